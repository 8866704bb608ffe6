package checkout

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"payments/internal/metrics"
	"payments/internal/model"
)

const (
	maxCartBody    = 1 << 20
	maxWebhookBody = 64 << 10

	SignatureHeader = "Stripe-Signature"
)

type issueRequest struct {
	Items []model.CartLine `json:"items"`
}

type issueResponse struct {
	PaymentIntent string  `json:"paymentIntent"`
	EphemeralKey  string  `json:"ephemeralKey"`
	Customer      string  `json:"customer"`
	OrderID       int64   `json:"orderId"`
	Amount        float64 `json:"amount"`
}

type Handlers struct {
	issuer     *Issuer
	reconciler *Reconciler
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

func NewHandlers(issuer *Issuer, reconciler *Reconciler, m *metrics.Metrics, logger *slog.Logger) *Handlers {
	return &Handlers{issuer: issuer, reconciler: reconciler, metrics: m, logger: logger}
}

// IssuePaymentIntent answers 200 with client credentials or 400 with
// {"error": message} for every failure.
func (h *Handlers) IssuePaymentIntent(w http.ResponseWriter, r *http.Request) {
	var req issueRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCartBody)).Decode(&req); err != nil {
		h.metrics.PaymentIntent("rejected")
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	result, err := h.issuer.Issue(r.Context(), r.Header.Get("Authorization"), req.Items)
	if err != nil {
		if IsClientError(err) {
			h.metrics.PaymentIntent("rejected")
			h.logger.Info("payment intent rejected", "error", err)
		} else {
			h.metrics.PaymentIntent("failed")
			h.logger.Error("payment intent failed", "error", err)
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": PublicMessage(err)})
		return
	}

	h.metrics.PaymentIntent("issued")
	writeJSON(w, http.StatusOK, issueResponse{
		PaymentIntent: result.PaymentIntent,
		EphemeralKey:  result.EphemeralKey,
		Customer:      result.Customer,
		OrderID:       result.OrderID,
		Amount:        result.Amount.InexactFloat64(),
	})
}

// Webhook reads the raw body so the signature is checked against exactly the
// bytes the processor signed.
func (h *Handlers) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		h.metrics.WebhookEvent("unknown", "unreadable")
		http.Error(w, "Unable to read request body", http.StatusBadRequest)
		return
	}

	result, err := h.reconciler.Reconcile(r.Context(), payload, r.Header.Get(SignatureHeader))
	switch {
	case errors.Is(err, ErrSignature):
		h.metrics.WebhookEvent("unknown", "rejected")
		h.logger.Warn("webhook rejected", "error", err)
		http.Error(w, "Webhook Error: "+PublicMessage(err), http.StatusBadRequest)
		return
	case err != nil:
		h.metrics.WebhookEvent("unknown", "error")
		http.Error(w, "Webhook Error: "+PublicMessage(err), http.StatusInternalServerError)
		return
	}

	kind := result.Kind
	if result.Disposition == Ignored {
		kind = "other"
	}
	h.metrics.WebhookEvent(kind, string(result.Disposition))
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
