package checkout

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	"github.com/shopspring/decimal"

	"payments/internal/identity"
	"payments/internal/model"
	"payments/internal/processor"
)

type Authenticator interface {
	Authenticate(ctx context.Context, authorization string) (identity.Caller, error)
}

type IssuerStore interface {
	PricesFor(ctx context.Context, ids []int64) (map[int64]decimal.Decimal, error)
	CustomerID(ctx context.Context, userID string) (string, error)
	LinkCustomer(ctx context.Context, userID, email, customerID string) (string, error)
	CreateOrder(ctx context.Context, userID string, total decimal.Decimal) (*model.Order, error)
	AttachIntent(ctx context.Context, orderID int64, intentID string) error
}

type Processor interface {
	CreateCustomer(ctx context.Context, userID, email string) (string, error)
	CreateEphemeralKey(ctx context.Context, customerID string) (string, error)
	CreatePaymentIntent(ctx context.Context, req processor.IntentRequest) (processor.Intent, error)
}

type IssuerOptions struct {
	// RejectUnknownItems fails the request when a cart line references an
	// item missing from the catalog. When false such lines are dropped from
	// the total and logged.
	RejectUnknownItems bool
}

// Issuer turns a cart into a pending order and a payment intent.
type Issuer struct {
	auth      Authenticator
	store     IssuerStore
	processor Processor
	opts      IssuerOptions
	logger    *slog.Logger
}

// IssueResult is what the client needs to confirm the payment.
type IssueResult struct {
	// PaymentIntent is the intent client secret.
	PaymentIntent string
	EphemeralKey  string
	Customer      string
	OrderID       int64
	Amount        decimal.Decimal
}

func NewIssuer(auth Authenticator, store IssuerStore, proc Processor, opts IssuerOptions, logger *slog.Logger) *Issuer {
	return &Issuer{auth: auth, store: store, processor: proc, opts: opts, logger: logger}
}

// Issue prices lines from the catalog, persists a pending order and only then
// talks to the processor. A failed order insert means no processor call.
func (i *Issuer) Issue(ctx context.Context, authorization string, lines []model.CartLine) (*IssueResult, error) {
	caller, err := i.auth.Authenticate(ctx, authorization)
	if err != nil {
		return nil, fail(ErrUnauthorized, "Unauthorized", err)
	}
	logger := i.logger.With("user_id", caller.UserID)

	if err := validateLines(lines); err != nil {
		return nil, err
	}

	total, err := i.price(ctx, logger, lines)
	if err != nil {
		return nil, err
	}
	if !total.IsPositive() {
		return nil, fail(ErrInvalidRequest, "Cart has no purchasable items", nil)
	}

	order, err := i.store.CreateOrder(ctx, caller.UserID, total)
	if err != nil {
		return nil, fail(ErrStore, "Failed to create order", err)
	}
	logger = logger.With("order_id", order.ID)

	customerID, err := i.resolveCustomer(ctx, logger, caller)
	if err != nil {
		return nil, err
	}

	ephemeralKey, err := i.processor.CreateEphemeralKey(ctx, customerID)
	if err != nil {
		return nil, fail(ErrProcessor, "Failed to create ephemeral key", err)
	}

	intent, err := i.processor.CreatePaymentIntent(ctx, processor.IntentRequest{
		OrderID:    order.ID,
		CustomerID: customerID,
		Amount:     model.ToMinorUnits(total),
	})
	if err != nil {
		return nil, fail(ErrProcessor, "Failed to create payment intent", err)
	}

	if err := i.store.AttachIntent(ctx, order.ID, intent.ID); err != nil {
		return nil, fail(ErrStore, "Failed to update order", err)
	}

	logger.Info("payment intent issued", "payment_intent_id", intent.ID, "amount", total.StringFixed(2))
	return &IssueResult{
		PaymentIntent: intent.ClientSecret,
		EphemeralKey:  ephemeralKey,
		Customer:      customerID,
		OrderID:       order.ID,
		Amount:        total,
	}, nil
}

func validateLines(lines []model.CartLine) error {
	if len(lines) == 0 {
		return fail(ErrInvalidRequest, "Cart is empty", nil)
	}
	for _, line := range lines {
		if line.ItemID <= 0 || line.Quantity <= 0 {
			return fail(ErrInvalidRequest, "Invalid cart item", nil)
		}
	}
	return nil
}

// price sums catalog price times quantity. Client input never carries a
// price, so the total only depends on the store.
func (i *Issuer) price(ctx context.Context, logger *slog.Logger, lines []model.CartLine) (decimal.Decimal, error) {
	ids := make([]int64, 0, len(lines))
	for _, line := range lines {
		if !slices.Contains(ids, line.ItemID) {
			ids = append(ids, line.ItemID)
		}
	}

	prices, err := i.store.PricesFor(ctx, ids)
	if err != nil {
		return decimal.Zero, fail(ErrStore, "Failed to load prices", err)
	}

	total := decimal.Zero
	var unknown []int64
	for _, line := range lines {
		price, ok := prices[line.ItemID]
		if !ok {
			unknown = append(unknown, line.ItemID)
			continue
		}
		total = total.Add(price.Mul(decimal.NewFromInt(line.Quantity)))
	}

	if len(unknown) > 0 {
		if i.opts.RejectUnknownItems {
			return decimal.Zero, fail(ErrInvalidRequest, "Cart contains unknown items", nil)
		}
		logger.Warn("cart items not in catalog excluded from total", "item_ids", unknown)
	}
	return total, nil
}

func (i *Issuer) resolveCustomer(ctx context.Context, logger *slog.Logger, caller identity.Caller) (string, error) {
	customerID, err := i.store.CustomerID(ctx, caller.UserID)
	if err != nil {
		return "", fail(ErrStore, "Failed to load profile", err)
	}
	if customerID != "" {
		return customerID, nil
	}

	created, err := i.processor.CreateCustomer(ctx, caller.UserID, caller.Email)
	if err != nil {
		return "", fail(ErrProcessor, "Failed to create customer", err)
	}

	linked, err := i.store.LinkCustomer(ctx, caller.UserID, caller.Email, created)
	if err != nil {
		return "", fail(ErrStore, "Failed to save customer", err)
	}
	if linked != created {
		// A concurrent purchase linked its customer first; the one created
		// here stays unused on the processor side.
		logger.Warn("customer link race", "linked_customer_id", linked, "orphan_customer_id", created)
	}
	return linked, nil
}

// IsClientError reports whether err was caused by the caller's input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrInvalidRequest)
}
