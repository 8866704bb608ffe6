package checkout

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payments/internal/model"
	"payments/internal/processor"
)

func verifiedAs(ev processor.Event) func([]byte, string) (processor.Event, error) {
	return func([]byte, string) (processor.Event, error) { return ev, nil }
}

func TestReconcileSucceeded(t *testing.T) {
	f := newFixture()
	f.verifier.VerifyFunc = verifiedAs(processor.PaymentSucceeded{
		EventID:  "evt_1",
		IntentID: "pi_123",
		Amount:   700,
		Metadata: map[string]string{"order_id": "42"},
	})

	var recorded model.Outcome
	f.store.RecordOutcomeFunc = func(_ context.Context, outcome model.Outcome) (*model.RecordResult, error) {
		recorded = outcome
		return &model.RecordResult{
			Order:        model.Order{ID: 42, Total: decimal.RequireFromString("7.00"), Status: model.OrderPaid},
			Transitioned: true,
		}, nil
	}

	result, err := f.reconciler().Reconcile(context.Background(), []byte("{}"), "sig")
	require.NoError(t, err)

	assert.Equal(t, int64(42), recorded.OrderID)
	assert.Equal(t, "evt_1", recorded.EventID)
	assert.Equal(t, "pi_123", recorded.PaymentIntentID)
	assert.Equal(t, model.AttemptSucceeded, recorded.Status)
	assert.Equal(t, "7.00", recorded.Amount.StringFixed(2))
	assert.Empty(t, recorded.ErrorMessage)

	assert.Equal(t, Recorded, result.Disposition)
	assert.True(t, result.Transitioned)
	assert.Equal(t, int64(42), result.OrderID)
	assert.NoError(t, result.Warning)
}

func TestReconcileFailed(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    string
	}{
		{name: "processor message", message: "Your card was declined.", want: "Your card was declined."},
		{name: "placeholder", message: "", want: unknownFailureMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.verifier.VerifyFunc = verifiedAs(processor.PaymentFailed{
				EventID:  "evt_2",
				IntentID: "pi_123",
				Amount:   700,
				Metadata: map[string]string{"order_id": "42"},
				Message:  tt.message,
			})

			var recorded model.Outcome
			f.store.RecordOutcomeFunc = func(_ context.Context, outcome model.Outcome) (*model.RecordResult, error) {
				recorded = outcome
				return &model.RecordResult{Order: model.Order{ID: 42, Total: outcome.Amount, Status: model.OrderFailed}, Transitioned: true}, nil
			}

			result, err := f.reconciler().Reconcile(context.Background(), nil, "sig")
			require.NoError(t, err)
			assert.Equal(t, Recorded, result.Disposition)
			assert.Equal(t, model.AttemptFailed, recorded.Status)
			assert.Equal(t, tt.want, recorded.ErrorMessage)
		})
	}
}

func TestReconcileRejectsUnverified(t *testing.T) {
	tests := map[string]error{
		"bad signature":   fmt.Errorf("%w: mismatch", processor.ErrSignature),
		"malformed event": fmt.Errorf("%w: bad data", processor.ErrMalformedEvent),
	}
	for name, verifyErr := range tests {
		t.Run(name, func(t *testing.T) {
			f := newFixture()
			f.verifier.VerifyFunc = func([]byte, string) (processor.Event, error) { return nil, verifyErr }

			result, err := f.reconciler().Reconcile(context.Background(), []byte("{}"), "sig")
			assert.ErrorIs(t, err, ErrSignature)
			assert.Nil(t, result)
			assert.Empty(t, f.calls.names())
		})
	}
}

func TestReconcileIgnoresOtherKinds(t *testing.T) {
	f := newFixture()
	f.verifier.VerifyFunc = verifiedAs(processor.Unhandled{EventID: "evt_3", Type: "charge.refunded"})

	result, err := f.reconciler().Reconcile(context.Background(), nil, "sig")
	require.NoError(t, err)
	assert.Equal(t, Ignored, result.Disposition)
	assert.Equal(t, "charge.refunded", result.Kind)
	assert.Empty(t, f.calls.names())
}

func TestReconcileSkipsUnlinkedEvents(t *testing.T) {
	tests := map[string]map[string]string{
		"no metadata":     nil,
		"missing":         {"other": "1"},
		"not a number":    {"order_id": "abc"},
		"not an order id": {"order_id": "0"},
	}
	for name, metadata := range tests {
		t.Run(name, func(t *testing.T) {
			f := newFixture()
			f.verifier.VerifyFunc = verifiedAs(processor.PaymentSucceeded{EventID: "evt_4", IntentID: "pi_1", Amount: 100, Metadata: metadata})

			result, err := f.reconciler().Reconcile(context.Background(), nil, "sig")
			require.NoError(t, err)
			assert.Equal(t, Skipped, result.Disposition)
			assert.ErrorIs(t, result.Warning, ErrIntegrity)
			assert.Empty(t, f.calls.names())
		})
	}
}

func TestReconcileUnknownOrder(t *testing.T) {
	f := newFixture()
	f.verifier.VerifyFunc = verifiedAs(processor.PaymentSucceeded{EventID: "evt_5", IntentID: "pi_1", Amount: 100, Metadata: map[string]string{"order_id": "404"}})
	f.store.RecordOutcomeFunc = func(context.Context, model.Outcome) (*model.RecordResult, error) {
		return nil, model.ErrOrderNotFound
	}

	result, err := f.reconciler().Reconcile(context.Background(), nil, "sig")
	require.NoError(t, err)
	assert.Equal(t, Skipped, result.Disposition)
	assert.ErrorIs(t, result.Warning, ErrIntegrity)
}

func TestReconcileStoreFailureIsRetryable(t *testing.T) {
	f := newFixture()
	f.verifier.VerifyFunc = verifiedAs(processor.PaymentSucceeded{EventID: "evt_6", IntentID: "pi_1", Amount: 100, Metadata: map[string]string{"order_id": "42"}})
	f.store.RecordOutcomeFunc = func(context.Context, model.Outcome) (*model.RecordResult, error) {
		return nil, errMockStore
	}

	result, err := f.reconciler().Reconcile(context.Background(), nil, "sig")
	assert.ErrorIs(t, err, ErrStore)
	assert.NotErrorIs(t, err, ErrSignature)
	assert.Nil(t, result)
}

func TestReconcileDuplicateDelivery(t *testing.T) {
	f := newFixture()
	f.verifier.VerifyFunc = verifiedAs(processor.PaymentSucceeded{EventID: "evt_7", IntentID: "pi_1", Amount: 700, Metadata: map[string]string{"order_id": "42"}})
	f.store.RecordOutcomeFunc = func(context.Context, model.Outcome) (*model.RecordResult, error) {
		return &model.RecordResult{Order: model.Order{ID: 42, Status: model.OrderPaid}, Duplicate: true}, nil
	}

	result, err := f.reconciler().Reconcile(context.Background(), nil, "sig")
	require.NoError(t, err)
	assert.Equal(t, Duplicate, result.Disposition)
	assert.False(t, result.Transitioned)
}
