package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hanko-field/storefront/internal/payments"
	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/platform/observability"
	"github.com/hanko-field/storefront/internal/services"
)

const maxWebhookBodySize = 256 * 1024

// WebhookParser verifies and decodes a signed gateway webhook.
type WebhookParser interface {
	Parse(payload []byte, signature string) (payments.WebhookEvent, error)
}

// WebhookHandlers receives payment gateway callbacks.
type WebhookHandlers struct {
	parser   WebhookParser
	checkout services.CheckoutService
}

// NewWebhookHandlers constructs webhook handlers.
func NewWebhookHandlers(parser WebhookParser, checkout services.CheckoutService) *WebhookHandlers {
	return &WebhookHandlers{parser: parser, checkout: checkout}
}

// Routes registers /webhooks endpoints.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/stripe", h.stripe)
}

func (h *WebhookHandlers) stripe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.parser == nil || h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("webhooks_unavailable", "webhook processing is not configured", http.StatusServiceUnavailable))
		return
	}
	payload, err := readLimitedBody(r, maxWebhookBodySize)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}
	event, err := h.parser.Parse(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		observability.FromContext(ctx).Warn("webhook rejected", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "webhook signature verification failed", http.StatusBadRequest))
		return
	}
	if err := h.checkout.HandlePaymentEvent(ctx, event); err != nil {
		observability.FromContext(ctx).Error("webhook processing failed",
			zap.String("event_id", event.ID),
			zap.String("event_type", event.Type),
			zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("webhook_failed", "event could not be processed", http.StatusInternalServerError))
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"received": true, "kind": string(event.Kind)})
}
