package checkout

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInvalidRequest = errors.New("invalid request")
	ErrStore          = errors.New("store error")
	ErrProcessor      = errors.New("payment processor error")
	// ErrSignature rejects a webhook before any event is processed.
	ErrSignature = errors.New("invalid webhook signature")
	// ErrIntegrity marks a verified event that cannot be tied to an order.
	// It is logged and acknowledged, never retried.
	ErrIntegrity = errors.New("integrity warning")
)

// Error carries a taxonomy kind and the message returned to the caller.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Is(target error) bool { return target == e.Kind }

func (e *Error) Unwrap() error { return e.Err }

func fail(kind error, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// PublicMessage is the text shown to the client for err.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "request failed"
}
