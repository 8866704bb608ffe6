package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var ErrOrderNotFound = errors.New("order not found")

type OrderStatus string

const (
	OrderPending OrderStatus = "pending"
	OrderPaid    OrderStatus = "paid"
	OrderFailed  OrderStatus = "failed"
)

// CanTransitionTo reports whether an order in status s may move to next.
// paid is absorbing; failed may still become paid when a later confirmation
// on the same intent succeeds.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	switch s {
	case OrderPending:
		return next == OrderPaid || next == OrderFailed
	case OrderFailed:
		return next == OrderPaid
	default:
		return false
	}
}

type AttemptStatus string

const (
	AttemptSucceeded AttemptStatus = "succeeded"
	AttemptFailed    AttemptStatus = "failed"
)

// OrderStatus is the order status an attempt with this status drives towards.
func (s AttemptStatus) OrderStatus() OrderStatus {
	if s == AttemptSucceeded {
		return OrderPaid
	}
	return OrderFailed
}

type Order struct {
	ID              int64           `json:"id"`
	UserID          string          `json:"user_id"`
	Total           decimal.Decimal `json:"total"`
	Status          OrderStatus     `json:"status"`
	PaymentIntentID string          `json:"payment_intent_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

type PaymentAttempt struct {
	ID              int64           `json:"id"`
	OrderID         int64           `json:"order_id"`
	EventID         string          `json:"event_id"`
	PaymentIntentID string          `json:"payment_intent_id"`
	Amount          decimal.Decimal `json:"amount"`
	Status          AttemptStatus   `json:"status"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// CartLine is client input. It never carries a price.
type CartLine struct {
	ItemID   int64 `json:"id"`
	Quantity int64 `json:"quantity"`
}

// Outcome is a verified terminal payment result for one order.
type Outcome struct {
	OrderID         int64
	EventID         string
	PaymentIntentID string
	Amount          decimal.Decimal
	Status          AttemptStatus
	ErrorMessage    string
}

type RecordResult struct {
	Order Order
	// Duplicate is set when the processor event was already recorded.
	Duplicate bool
	// Transitioned is set when the order status changed.
	Transitioned bool
}

type OrderEvent struct {
	Type            string          `json:"type"`
	OrderID         int64           `json:"order_id"`
	UserID          string          `json:"user_id"`
	Status          OrderStatus     `json:"status"`
	Amount          decimal.Decimal `json:"amount"`
	PaymentIntentID string          `json:"payment_intent_id"`
	OccurredAt      time.Time       `json:"occurred_at"`
}

const (
	EventOrderPaid   = "order.paid"
	EventOrderFailed = "order.failed"
)

func OrderEventType(status OrderStatus) string {
	if status == OrderPaid {
		return EventOrderPaid
	}
	return EventOrderFailed
}

type OutboxMessage struct {
	ID        uuid.UUID `json:"id"`
	EntityID  int64     `json:"entity_id"`
	EventType string    `json:"event_type"`
	Payload   []byte    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}
