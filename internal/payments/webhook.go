package payments

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"
)

// ErrInvalidSignature is returned when a webhook payload does not carry a valid Stripe signature.
var ErrInvalidSignature = errors.New("payments: invalid webhook signature")

// WebhookEventKind classifies the Stripe events the checkout flow reacts to.
type WebhookEventKind string

const (
	WebhookPaymentSucceeded WebhookEventKind = "payment_succeeded"
	WebhookPaymentFailed    WebhookEventKind = "payment_failed"
	WebhookIgnored          WebhookEventKind = "ignored"
)

// WebhookEvent is the normalised subset of a Stripe event.
type WebhookEvent struct {
	ID        string
	Type      string
	Kind      WebhookEventKind
	OrderID   string
	SessionID string
	IntentID  string
}

// WebhookVerifier checks Stripe-Signature headers and decodes checkout events.
type WebhookVerifier struct {
	secret string
}

// NewWebhookVerifier builds a verifier for the endpoint signing secret (whsec_...).
func NewWebhookVerifier(secret string) (*WebhookVerifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("payments: webhook secret is required")
	}
	return &WebhookVerifier{secret: secret}, nil
}

// Parse verifies the signature and extracts the order reference from the event object.
func (v *WebhookVerifier) Parse(payload []byte, signature string) (WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := WebhookEvent{ID: event.ID, Type: string(event.Type), Kind: WebhookIgnored}
	if event.Data == nil {
		return out, nil
	}

	switch out.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded",
		"checkout.session.async_payment_failed", "checkout.session.expired":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return WebhookEvent{}, fmt.Errorf("payments: decode checkout session: %w", err)
		}
		out.SessionID = session.ID
		out.OrderID = defaultString(session.Metadata[metadataOrderID], session.ClientReferenceID)
		if session.PaymentIntent != nil {
			out.IntentID = session.PaymentIntent.ID
		}
		switch out.Type {
		case "checkout.session.async_payment_failed", "checkout.session.expired":
			out.Kind = WebhookPaymentFailed
		default:
			// A completed session with delayed methods may still be unpaid.
			if session.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid {
				out.Kind = WebhookPaymentSucceeded
			}
		}
	case "payment_intent.succeeded", "payment_intent.payment_failed", "payment_intent.canceled":
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return WebhookEvent{}, fmt.Errorf("payments: decode payment intent: %w", err)
		}
		out.IntentID = intent.ID
		out.OrderID = intent.Metadata[metadataOrderID]
		if out.Type == "payment_intent.succeeded" {
			out.Kind = WebhookPaymentSucceeded
		} else {
			out.Kind = WebhookPaymentFailed
		}
	}
	return out, nil
}
