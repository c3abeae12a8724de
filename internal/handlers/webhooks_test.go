package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/hanko-field/storefront/internal/payments"
)

const webhookSecret = "whsec_handlers_test"

func signedWebhook(t *testing.T, payload string) *http.Request {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    webhookSecret,
		Timestamp: time.Now(),
	})
	req := newJSONRequest(http.MethodPost, "/stripe", string(signed.Payload))
	req.Header.Set("Stripe-Signature", signed.Header)
	return req
}

const completedSessionEvent = `{
	"id": "evt_1",
	"object": "event",
	"type": "checkout.session.completed",
	"data": {"object": {
		"id": "cs_1",
		"object": "checkout.session",
		"payment_status": "paid",
		"metadata": {"order_id": "ord-1"},
		"payment_intent": "pi_1"
	}}
}`

func TestStripeWebhookDeliversVerifiedEvents(t *testing.T) {
	verifier, err := payments.NewWebhookVerifier(webhookSecret)
	require.NoError(t, err)

	var got payments.WebhookEvent
	checkout := &stubCheckoutService{
		eventFn: func(_ context.Context, event payments.WebhookEvent) error {
			got = event
			return nil
		},
	}
	rr := serve(t, NewWebhookHandlers(verifier, checkout).Routes, signedWebhook(t, completedSessionEvent))

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, payments.WebhookPaymentSucceeded, got.Kind)
	assert.Equal(t, "ord-1", got.OrderID)
	assert.Equal(t, "pi_1", got.IntentID)
	assert.Equal(t, string(payments.WebhookPaymentSucceeded), decodeBody(t, rr)["kind"])
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	verifier, err := payments.NewWebhookVerifier(webhookSecret)
	require.NoError(t, err)
	checkout := &stubCheckoutService{
		eventFn: func(context.Context, payments.WebhookEvent) error {
			t.Fatal("unsigned events must not reach checkout")
			return nil
		},
	}

	req := newJSONRequest(http.MethodPost, "/stripe", completedSessionEvent)
	req.Header.Set("Stripe-Signature", "t=1,v1="+strings.Repeat("0", 64))
	rr := serve(t, NewWebhookHandlers(verifier, checkout).Routes, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "invalid_signature", decodeBody(t, rr)["error"])
}

func TestStripeWebhookProcessingFailureAsksForRetry(t *testing.T) {
	verifier, err := payments.NewWebhookVerifier(webhookSecret)
	require.NoError(t, err)
	checkout := &stubCheckoutService{
		eventFn: func(context.Context, payments.WebhookEvent) error {
			return errors.New("firestore unavailable")
		},
	}
	rr := serve(t, NewWebhookHandlers(verifier, checkout).Routes, signedWebhook(t, completedSessionEvent))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestStripeWebhookUnconfigured(t *testing.T) {
	rr := serve(t, NewWebhookHandlers(nil, nil).Routes, newJSONRequest(http.MethodPost, "/stripe", "{}"))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
