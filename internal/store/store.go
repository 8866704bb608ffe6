package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"payments/internal/model"
)

type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, now: time.Now}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// PricesFor returns the current catalog price of every id that exists.
// Unknown ids are absent from the map.
func (s *Store) PricesFor(ctx context.Context, ids []int64) (map[int64]decimal.Decimal, error) {
	rows, err := s.pool.Query(ctx, "SELECT id, price::text FROM products WHERE id = ANY($1)", ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query prices: %w", err)
	}
	defer rows.Close()

	prices := make(map[int64]decimal.Decimal, len(ids))
	for rows.Next() {
		var (
			id  int64
			raw string
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan price: %w", err)
		}
		price, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid price %q for product %d: %w", raw, id, err)
		}
		prices[id] = price
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read prices: %w", err)
	}
	return prices, nil
}

// CustomerID returns the processor customer linked to the user, or "" when
// the profile or the link does not exist yet.
func (s *Store) CustomerID(ctx context.Context, userID string) (string, error) {
	var customerID *string
	err := s.pool.QueryRow(ctx, "SELECT stripe_customer_id FROM profiles WHERE id=$1", userID).Scan(&customerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read profile: %w", err)
	}
	if customerID == nil {
		return "", nil
	}
	return *customerID, nil
}

// LinkCustomer stores customerID on the user's profile, creating the
// profile if needed. A link that already exists wins, and the id the store
// settled on is returned.
func (s *Store) LinkCustomer(ctx context.Context, userID, email, customerID string) (string, error) {
	var linked string
	err := s.pool.QueryRow(
		ctx,
		`INSERT INTO profiles (id, email, stripe_customer_id, updated_at) VALUES ($1, NULLIF($2, ''), $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			stripe_customer_id = COALESCE(profiles.stripe_customer_id, EXCLUDED.stripe_customer_id),
			updated_at = EXCLUDED.updated_at
		RETURNING stripe_customer_id`,
		userID, email, customerID, s.now(),
	).Scan(&linked)
	if err != nil {
		if isUniqueViolation(err) {
			return "", fmt.Errorf("customer %s already linked to another profile: %w", customerID, err)
		}
		return "", fmt.Errorf("failed to link customer: %w", err)
	}
	return linked, nil
}

func (s *Store) CreateOrder(ctx context.Context, userID string, total decimal.Decimal) (*model.Order, error) {
	now := s.now()
	order := model.Order{
		UserID:    userID,
		Total:     total,
		Status:    model.OrderPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.pool.QueryRow(
		ctx,
		"INSERT INTO orders (user_id, total, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5) RETURNING id",
		order.UserID, order.Total.StringFixed(2), order.Status, order.CreatedAt, order.UpdatedAt,
	).Scan(&order.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert order: %w", err)
	}
	return &order, nil
}

func (s *Store) AttachIntent(ctx context.Context, orderID int64, intentID string) error {
	result, err := s.pool.Exec(
		ctx,
		"UPDATE orders SET payment_intent_id=$1, updated_at=$2 WHERE id=$3",
		intentID, s.now(), orderID,
	)
	if err != nil {
		return fmt.Errorf("failed to attach payment intent: %w", err)
	}
	if result.RowsAffected() == 0 {
		return model.ErrOrderNotFound
	}
	return nil
}

func (s *Store) GetOrder(ctx context.Context, orderID int64) (*model.Order, error) {
	order, err := scanOrder(s.pool.QueryRow(ctx, selectOrder+" WHERE id=$1", orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read order: %w", err)
	}
	return order, nil
}

// RecordOutcome appends the payment attempt and applies the order status
// transition in one transaction. An event id that was already recorded
// changes nothing. Every applied transition also enqueues an outbox message.
func (s *Store) RecordOutcome(ctx context.Context, outcome model.Outcome) (*model.RecordResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	order, err := scanOrder(tx.QueryRow(ctx, selectOrder+" WHERE id=$1 FOR UPDATE", outcome.OrderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock order: %w", err)
	}

	now := s.now()
	result, err := tx.Exec(
		ctx,
		`INSERT INTO payment_attempts (order_id, event_id, payment_intent_id, amount, status, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)
		ON CONFLICT (event_id) DO NOTHING`,
		order.ID, outcome.EventID, outcome.PaymentIntentID, outcome.Amount.StringFixed(2), outcome.Status, outcome.ErrorMessage, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert payment attempt: %w", err)
	}
	if result.RowsAffected() == 0 {
		return &model.RecordResult{Order: *order, Duplicate: true}, nil
	}

	record := model.RecordResult{Order: *order}
	next := outcome.Status.OrderStatus()
	if order.Status.CanTransitionTo(next) {
		_, err = tx.Exec(ctx, "UPDATE orders SET status=$1, updated_at=$2 WHERE id=$3", next, now, order.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to update order status: %w", err)
		}
		record.Order.Status = next
		record.Order.UpdatedAt = now
		record.Transitioned = true

		event := model.OrderEvent{
			Type:            model.OrderEventType(next),
			OrderID:         order.ID,
			UserID:          order.UserID,
			Status:          next,
			Amount:          outcome.Amount,
			PaymentIntentID: outcome.PaymentIntentID,
			OccurredAt:      now,
		}
		if err := insertOutboxMessage(ctx, tx, order.ID, event); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit outcome: %w", err)
	}
	return &record, nil
}

func insertOutboxMessage(ctx context.Context, tx pgx.Tx, entityID int64, event model.OrderEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	message := model.OutboxMessage{
		ID:        uuid.New(),
		EntityID:  entityID,
		EventType: event.Type,
		Payload:   payload,
		CreatedAt: event.OccurredAt,
	}

	_, err = tx.Exec(
		ctx,
		"INSERT INTO outbox_messages (id, entity_id, event_type, payload, created_at) VALUES ($1, $2, $3, $4, $5)",
		message.ID, message.EntityID, message.EventType, string(message.Payload), message.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert outbox message: %w", err)
	}
	return nil
}

const selectOrder = "SELECT id, user_id, total::text, status, payment_intent_id, created_at, updated_at FROM orders"

func scanOrder(row pgx.Row) (*model.Order, error) {
	var (
		order    model.Order
		total    string
		intentID *string
	)
	if err := row.Scan(&order.ID, &order.UserID, &total, &order.Status, &intentID, &order.CreatedAt, &order.UpdatedAt); err != nil {
		return nil, err
	}
	parsed, err := decimal.NewFromString(total)
	if err != nil {
		return nil, fmt.Errorf("invalid order total %q: %w", total, err)
	}
	order.Total = parsed
	if intentID != nil {
		order.PaymentIntentID = *intentID
	}
	return &order, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
