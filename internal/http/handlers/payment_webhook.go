package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/jmylchreest/prayerline/internal/constants"
	"github.com/jmylchreest/prayerline/internal/payment"
	"github.com/jmylchreest/prayerline/internal/service"
)

// PaymentWebhookHandler receives payment gateway webhooks.
type PaymentWebhookHandler struct {
	payments *service.PaymentService
	logger   *slog.Logger
}

// NewPaymentWebhookHandler creates a webhook handler.
func NewPaymentWebhookHandler(payments *service.PaymentService, logger *slog.Logger) *PaymentWebhookHandler {
	return &PaymentWebhookHandler{payments: payments, logger: logger}
}

// HandleWebhook processes one signed gateway event.
// This is a raw HTTP handler since the signature covers the exact body bytes.
//
// Responses: 200 when applied or ignored, 400 for an unreadable body or bad
// signature, 409 when the event was already applied, 503 when the store is
// down so the gateway retries, 500 otherwise.
func (h *PaymentWebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxWebhookBodyBytes)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	err = h.payments.ApplyWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	switch {
	case err == nil:
		w.WriteHeader(http.StatusOK)
	case errors.Is(err, payment.ErrInvalidSignature):
		h.logger.Warn("webhook signature rejected", "error", err)
		http.Error(w, "invalid signature", http.StatusBadRequest)
	case errors.Is(err, service.ErrDuplicateEvent):
		http.Error(w, "event already applied", http.StatusConflict)
	case errors.Is(err, service.ErrStorageUnavailable), errors.Is(err, service.ErrConflict):
		h.logger.Error("webhook not applied, gateway will retry", "error", err)
		http.Error(w, "temporarily unavailable", http.StatusServiceUnavailable)
	default:
		h.logger.Error("failed to handle webhook event", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
