package processor

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

var (
	ErrSignature      = errors.New("webhook signature verification failed")
	ErrMalformedEvent = errors.New("malformed webhook event")
)

const (
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
)

// Event is one of PaymentSucceeded, PaymentFailed or Unhandled.
type Event interface {
	ID() string
	Kind() string
	event()
}

type PaymentSucceeded struct {
	EventID  string
	IntentID string
	Amount   int64
	Metadata map[string]string
}

type PaymentFailed struct {
	EventID  string
	IntentID string
	Amount   int64
	Metadata map[string]string
	Message  string
}

type Unhandled struct {
	EventID string
	Type    string
}

func (e PaymentSucceeded) ID() string   { return e.EventID }
func (e PaymentSucceeded) Kind() string { return EventPaymentSucceeded }
func (PaymentSucceeded) event()         {}

func (e PaymentFailed) ID() string   { return e.EventID }
func (e PaymentFailed) Kind() string { return EventPaymentFailed }
func (PaymentFailed) event()         {}

func (e Unhandled) ID() string   { return e.EventID }
func (e Unhandled) Kind() string { return e.Type }
func (Unhandled) event()         {}

type WebhookVerifier struct {
	secret    string
	tolerance time.Duration
}

// NewWebhookVerifier returns a verifier for the endpoint signing secret. A
// zero tolerance uses the processor's default replay window.
func NewWebhookVerifier(secret string, tolerance time.Duration) *WebhookVerifier {
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	return &WebhookVerifier{secret: secret, tolerance: tolerance}
}

// Verify checks signature against the unparsed payload and decodes the
// event. Nothing is decoded before the signature holds.
func (v *WebhookVerifier) Verify(payload []byte, signature string) (Event, error) {
	if signature == "" {
		return nil, fmt.Errorf("%w: missing signature header", ErrSignature)
	}
	if v.secret == "" {
		return nil, fmt.Errorf("%w: no webhook secret configured", ErrSignature)
	}

	ev, err := webhook.ConstructEventWithOptions(payload, signature, v.secret, webhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignature, err)
	}

	return decodeEvent(ev)
}

func decodeEvent(ev stripe.Event) (Event, error) {
	kind := string(ev.Type)
	if kind != EventPaymentSucceeded && kind != EventPaymentFailed {
		return Unhandled{EventID: ev.ID, Type: kind}, nil
	}

	if ev.Data == nil || len(ev.Data.Raw) == 0 {
		return nil, fmt.Errorf("%w: %s has no data", ErrMalformedEvent, ev.ID)
	}
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(ev.Data.Raw, &intent); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedEvent, ev.ID, err)
	}

	if kind == EventPaymentSucceeded {
		return PaymentSucceeded{
			EventID:  ev.ID,
			IntentID: intent.ID,
			Amount:   intent.Amount,
			Metadata: intent.Metadata,
		}, nil
	}

	failed := PaymentFailed{
		EventID:  ev.ID,
		IntentID: intent.ID,
		Amount:   intent.Amount,
		Metadata: intent.Metadata,
	}
	if intent.LastPaymentError != nil {
		failed.Message = intent.LastPaymentError.Msg
	}
	return failed, nil
}
