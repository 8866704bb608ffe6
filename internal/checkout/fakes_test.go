package checkout

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"payments/internal/identity"
	"payments/internal/model"
	"payments/internal/processor"
)

var (
	errMockStore     = errors.New("store unavailable")
	errMockProcessor = errors.New("processor unavailable")
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// calls records the order in which collaborators were used.
type calls struct {
	mu  sync.Mutex
	log []string
}

func (c *calls) add(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log = append(c.log, name)
}

func (c *calls) names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.log...)
}

type MockAuthenticator struct {
	AuthenticateFunc func(ctx context.Context, authorization string) (identity.Caller, error)
}

func (m *MockAuthenticator) Authenticate(ctx context.Context, authorization string) (identity.Caller, error) {
	if m.AuthenticateFunc != nil {
		return m.AuthenticateFunc(ctx, authorization)
	}
	if authorization != "Bearer good" {
		return identity.Caller{}, identity.ErrUnauthorized
	}
	return identity.Caller{UserID: "user-1", Email: "shopper@example.com"}, nil
}

type MockStore struct {
	calls *calls

	PricesForFunc     func(ctx context.Context, ids []int64) (map[int64]decimal.Decimal, error)
	CustomerIDFunc    func(ctx context.Context, userID string) (string, error)
	LinkCustomerFunc  func(ctx context.Context, userID, email, customerID string) (string, error)
	CreateOrderFunc   func(ctx context.Context, userID string, total decimal.Decimal) (*model.Order, error)
	AttachIntentFunc  func(ctx context.Context, orderID int64, intentID string) error
	RecordOutcomeFunc func(ctx context.Context, outcome model.Outcome) (*model.RecordResult, error)
}

func (m *MockStore) PricesFor(ctx context.Context, ids []int64) (map[int64]decimal.Decimal, error) {
	m.calls.add("store.PricesFor")
	if m.PricesForFunc != nil {
		return m.PricesForFunc(ctx, ids)
	}
	return map[int64]decimal.Decimal{}, nil
}

func (m *MockStore) CustomerID(ctx context.Context, userID string) (string, error) {
	m.calls.add("store.CustomerID")
	if m.CustomerIDFunc != nil {
		return m.CustomerIDFunc(ctx, userID)
	}
	return "", nil
}

func (m *MockStore) LinkCustomer(ctx context.Context, userID, email, customerID string) (string, error) {
	m.calls.add("store.LinkCustomer")
	if m.LinkCustomerFunc != nil {
		return m.LinkCustomerFunc(ctx, userID, email, customerID)
	}
	return customerID, nil
}

func (m *MockStore) CreateOrder(ctx context.Context, userID string, total decimal.Decimal) (*model.Order, error) {
	m.calls.add("store.CreateOrder")
	if m.CreateOrderFunc != nil {
		return m.CreateOrderFunc(ctx, userID, total)
	}
	return &model.Order{ID: 42, UserID: userID, Total: total, Status: model.OrderPending}, nil
}

func (m *MockStore) AttachIntent(ctx context.Context, orderID int64, intentID string) error {
	m.calls.add("store.AttachIntent")
	if m.AttachIntentFunc != nil {
		return m.AttachIntentFunc(ctx, orderID, intentID)
	}
	return nil
}

func (m *MockStore) RecordOutcome(ctx context.Context, outcome model.Outcome) (*model.RecordResult, error) {
	m.calls.add("store.RecordOutcome")
	if m.RecordOutcomeFunc != nil {
		return m.RecordOutcomeFunc(ctx, outcome)
	}
	order := model.Order{ID: outcome.OrderID, Total: outcome.Amount, Status: outcome.Status.OrderStatus()}
	return &model.RecordResult{Order: order, Transitioned: true}, nil
}

type MockProcessor struct {
	calls *calls

	CreateCustomerFunc      func(ctx context.Context, userID, email string) (string, error)
	CreateEphemeralKeyFunc  func(ctx context.Context, customerID string) (string, error)
	CreatePaymentIntentFunc func(ctx context.Context, req processor.IntentRequest) (processor.Intent, error)
}

func (m *MockProcessor) CreateCustomer(ctx context.Context, userID, email string) (string, error) {
	m.calls.add("processor.CreateCustomer")
	if m.CreateCustomerFunc != nil {
		return m.CreateCustomerFunc(ctx, userID, email)
	}
	return "cus_new", nil
}

func (m *MockProcessor) CreateEphemeralKey(ctx context.Context, customerID string) (string, error) {
	m.calls.add("processor.CreateEphemeralKey")
	if m.CreateEphemeralKeyFunc != nil {
		return m.CreateEphemeralKeyFunc(ctx, customerID)
	}
	return "ek_secret", nil
}

func (m *MockProcessor) CreatePaymentIntent(ctx context.Context, req processor.IntentRequest) (processor.Intent, error) {
	m.calls.add("processor.CreatePaymentIntent")
	if m.CreatePaymentIntentFunc != nil {
		return m.CreatePaymentIntentFunc(ctx, req)
	}
	return processor.Intent{ID: "pi_123", ClientSecret: "pi_123_secret"}, nil
}

type MockVerifier struct {
	VerifyFunc func(payload []byte, signature string) (processor.Event, error)
}

func (m *MockVerifier) Verify(payload []byte, signature string) (processor.Event, error) {
	if m.VerifyFunc != nil {
		return m.VerifyFunc(payload, signature)
	}
	return nil, processor.ErrSignature
}

// fixture wires an Issuer and a Reconciler to shared mocks.
type fixture struct {
	calls     *calls
	auth      *MockAuthenticator
	store     *MockStore
	processor *MockProcessor
	verifier  *MockVerifier
}

func newFixture() *fixture {
	c := &calls{}
	return &fixture{
		calls:     c,
		auth:      &MockAuthenticator{},
		store:     &MockStore{calls: c},
		processor: &MockProcessor{calls: c},
		verifier:  &MockVerifier{},
	}
}

func (f *fixture) issuer(opts IssuerOptions) *Issuer {
	return NewIssuer(f.auth, f.store, f.processor, opts, discardLogger())
}

func (f *fixture) reconciler() *Reconciler {
	return NewReconciler(f.verifier, f.store, discardLogger())
}

func pricesOf(prices map[int64]string) func(context.Context, []int64) (map[int64]decimal.Decimal, error) {
	return func(_ context.Context, ids []int64) (map[int64]decimal.Decimal, error) {
		out := map[int64]decimal.Decimal{}
		for _, id := range ids {
			if p, ok := prices[id]; ok {
				out[id] = decimal.RequireFromString(p)
			}
		}
		return out, nil
	}
}
