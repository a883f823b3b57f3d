package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/loomline/api/internal/platform/httpx"
	"github.com/loomline/api/internal/services"
)

// maxWebhookBodySize bounds PSP notification payloads. Stripe events are a
// few KB; anything larger is rejected before signature verification.
const maxWebhookBodySize = 256 * 1024

// WebhookHandlers receives payment provider notifications. The raw body must
// reach signature verification untouched, so no JSON decoding happens here.
type WebhookHandlers struct {
	payments services.PaymentService
}

// NewWebhookHandlers constructs webhook handlers.
func NewWebhookHandlers(payments services.PaymentService) *WebhookHandlers {
	return &WebhookHandlers{payments: payments}
}

// Routes registers the /webhooks endpoints.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/stripe", h.stripe)
}

func (h *WebhookHandlers) stripe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_unavailable", "payments are not enabled", http.StatusServiceUnavailable))
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize+1))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "failed to read webhook body", http.StatusBadRequest))
		return
	}
	if int64(len(payload)) > maxWebhookBodySize {
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "webhook body exceeds allowed size", http.StatusRequestEntityTooLarge))
		return
	}

	signature := r.Header.Get("Stripe-Signature")

	order, err := h.payments.HandleWebhook(ctx, payload, signature)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrPaymentInvalidInput):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "webhook rejected", http.StatusBadRequest))
		case errors.Is(err, services.ErrOrderNotFound):
			// Acknowledge unknown orders so the provider stops retrying.
			writeJSONResponse(w, http.StatusOK, map[string]any{"received": true})
		default:
			httpx.WriteError(ctx, w, httpx.NewError("webhook_error", "failed to process webhook", http.StatusInternalServerError))
		}
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"received":       true,
		"order_id":       order.ID,
		"payment_status": string(order.PaymentStatus),
	})
}
