package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"payments/internal/model"
	"payments/internal/processor"
)

type EventVerifier interface {
	Verify(payload []byte, signature string) (processor.Event, error)
}

type LedgerStore interface {
	RecordOutcome(ctx context.Context, outcome model.Outcome) (*model.RecordResult, error)
}

const unknownFailureMessage = "Unknown error"

type Disposition string

const (
	// Recorded: the attempt was appended (Transitioned tells if the order moved).
	Recorded Disposition = "recorded"
	// Duplicate: the event id was already recorded.
	Duplicate Disposition = "duplicate"
	// Skipped: verified but not linked to a known order.
	Skipped Disposition = "skipped"
	// Ignored: an event kind this service does not act on.
	Ignored Disposition = "ignored"
)

type ReconcileResult struct {
	EventID      string
	Kind         string
	OrderID      int64
	Disposition  Disposition
	Transitioned bool
	// Warning wraps ErrIntegrity for events that were acknowledged without
	// being applied.
	Warning error
}

// Reconciler applies verified processor events to orders.
type Reconciler struct {
	verifier EventVerifier
	store    LedgerStore
	logger   *slog.Logger
}

func NewReconciler(verifier EventVerifier, store LedgerStore, logger *slog.Logger) *Reconciler {
	return &Reconciler{verifier: verifier, store: store, logger: logger}
}

// Reconcile verifies payload against signature and applies the event. An
// error means the event must not be acknowledged: ErrSignature for requests
// that fail verification, ErrStore for failures the processor should retry.
func (r *Reconciler) Reconcile(ctx context.Context, payload []byte, signature string) (*ReconcileResult, error) {
	ev, err := r.verifier.Verify(payload, signature)
	if err != nil {
		if errors.Is(err, processor.ErrMalformedEvent) {
			return nil, fail(ErrSignature, "Invalid webhook event", err)
		}
		return nil, fail(ErrSignature, "Webhook signature verification failed", err)
	}

	logger := r.logger.With("event_id", ev.ID(), "event_type", ev.Kind())
	result := &ReconcileResult{EventID: ev.ID(), Kind: ev.Kind()}

	var (
		outcome  model.Outcome
		metadata map[string]string
	)
	switch e := ev.(type) {
	case processor.PaymentSucceeded:
		metadata = e.Metadata
		outcome = model.Outcome{
			EventID:         e.EventID,
			PaymentIntentID: e.IntentID,
			Amount:          model.FromMinorUnits(e.Amount),
			Status:          model.AttemptSucceeded,
		}
	case processor.PaymentFailed:
		metadata = e.Metadata
		message := e.Message
		if message == "" {
			message = unknownFailureMessage
		}
		outcome = model.Outcome{
			EventID:         e.EventID,
			PaymentIntentID: e.IntentID,
			Amount:          model.FromMinorUnits(e.Amount),
			Status:          model.AttemptFailed,
			ErrorMessage:    message,
		}
	default:
		logger.Debug("webhook event ignored")
		result.Disposition = Ignored
		return result, nil
	}

	orderID, err := orderIDFrom(metadata)
	if err != nil {
		logger.Warn("webhook event not linked to an order", "payment_intent_id", outcome.PaymentIntentID, "error", err)
		result.Disposition = Skipped
		result.Warning = err
		return result, nil
	}
	outcome.OrderID = orderID
	result.OrderID = orderID
	logger = logger.With("order_id", orderID)

	record, err := r.store.RecordOutcome(ctx, outcome)
	if errors.Is(err, model.ErrOrderNotFound) {
		warning := fmt.Errorf("%w: order %d does not exist", ErrIntegrity, orderID)
		logger.Warn("webhook event references unknown order", "payment_intent_id", outcome.PaymentIntentID)
		result.Disposition = Skipped
		result.Warning = warning
		return result, nil
	}
	if err != nil {
		logger.Error("failed to record payment outcome", "error", err)
		return nil, fail(ErrStore, "Failed to record payment outcome", err)
	}

	if record.Duplicate {
		logger.Info("webhook event already recorded")
		result.Disposition = Duplicate
		return result, nil
	}

	if expected := model.ToMinorUnits(record.Order.Total); expected != model.ToMinorUnits(outcome.Amount) {
		logger.Warn("payment amount differs from order total",
			"order_total", record.Order.Total.StringFixed(2),
			"amount", outcome.Amount.StringFixed(2))
	}

	result.Disposition = Recorded
	result.Transitioned = record.Transitioned
	logger.Info("payment outcome recorded",
		"attempt_status", outcome.Status,
		"order_status", record.Order.Status,
		"transitioned", record.Transitioned)
	return result, nil
}

func orderIDFrom(metadata map[string]string) (int64, error) {
	raw, ok := metadata[processor.MetadataOrderID]
	if !ok || raw == "" {
		return 0, fmt.Errorf("%w: missing %s metadata", ErrIntegrity, processor.MetadataOrderID)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s %q", ErrIntegrity, processor.MetadataOrderID, raw)
	}
	return id, nil
}
