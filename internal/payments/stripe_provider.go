package payments

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// ProviderStripe is the registration key of the Stripe gateway.
const ProviderStripe = "stripe"

const (
	metadataOrderID     = "order_id"
	metadataRefundSpeed = "refund_speed"
)

// StripeLogger defines the logging contract for Stripe provider operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripeSessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type stripePaymentIntentAPI interface {
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type stripeRefundAPI interface {
	New(params *stripe.RefundParams) (*stripe.Refund, error)
}

type stripeClients struct {
	sessions stripeSessionAPI
	intents  stripePaymentIntentAPI
	refunds  stripeRefundAPI
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey    string
	AccountID string
	Backends  *stripe.Backends
	Logger    StripeLogger
	Clock     func() time.Time
	clients   *stripeClients
}

// StripeProvider implements Provider on Stripe Checkout, Payment Intents and Refunds.
type StripeProvider struct {
	api     stripeClients
	account string
	clock   func() time.Time
	logger  StripeLogger
}

// NewStripeProvider constructs a Stripe Provider using the given configuration.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.clients == nil {
		return nil, errors.New("stripe: api key is required")
	}

	var clients stripeClients
	if cfg.clients != nil {
		clients = *cfg.clients
	} else {
		sc := client.New(apiKey, cfg.Backends)
		clients = stripeClients{
			sessions: sc.CheckoutSessions,
			intents:  sc.PaymentIntents,
			refunds:  sc.Refunds,
		}
	}
	if clients.sessions == nil || clients.intents == nil || clients.refunds == nil {
		return nil, errors.New("stripe: incomplete client configuration")
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeProvider{
		api:     clients,
		account: strings.TrimSpace(cfg.AccountID),
		clock:   func() time.Time { return clock().UTC() },
		logger:  logger,
	}, nil
}

// CreateCheckoutSession creates a hosted Stripe Checkout session for the order. The order id is
// copied into session and payment intent metadata so webhooks can find the order.
func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error) {
	if strings.TrimSpace(req.OrderID) == "" {
		return CheckoutSession{}, fmt.Errorf("%w: order id is required", ErrInvalidRequest)
	}

	metadata := map[string]string{metadataOrderID: req.OrderID}
	maps.Copy(metadata, req.Metadata)

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.OrderID),
		Metadata:          metadata,
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{Metadata: maps.Clone(metadata)},
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	if req.Locale != "" {
		params.Locale = stripe.String(stripeLocale(req.Locale))
	}
	if !req.ExpiresAt.IsZero() {
		params.ExpiresAt = stripe.Int64(req.ExpiresAt.Unix())
	}

	currency := strings.ToLower(req.Currency)
	for _, item := range req.Items {
		line := &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(max(item.Quantity, 1)),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(strings.ToLower(defaultString(item.Currency, currency))),
				UnitAmount: stripe.Int64(item.Amount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(item.Name),
				},
			},
		}
		if item.SKU != "" {
			line.PriceData.ProductData.Metadata = map[string]string{"sku": item.SKU}
		}
		params.LineItems = append(params.LineItems, line)
	}
	if len(params.LineItems) == 0 {
		params.LineItems = []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(currency),
				UnitAmount:  stripe.Int64(req.Amount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{Name: stripe.String("Order " + req.OrderID)},
			},
		}}
	}

	session, err := p.api.sessions.New(params)
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("stripe: create checkout session: %w", err)
	}

	intentID := ""
	if session.PaymentIntent != nil {
		intentID = session.PaymentIntent.ID
	}
	p.logger(ctx, "payments.stripe.session.created", map[string]any{
		"sessionId": session.ID,
		"orderId":   req.OrderID,
		"currency":  session.Currency,
	})

	expiresAt := p.clock().Add(30 * time.Minute)
	if session.ExpiresAt != 0 {
		expiresAt = time.Unix(session.ExpiresAt, 0).UTC()
	}
	return CheckoutSession{
		ID:           session.ID,
		Provider:     ProviderStripe,
		ClientSecret: session.ClientSecret,
		RedirectURL:  session.URL,
		IntentID:     intentID,
		ExpiresAt:    expiresAt,
	}, nil
}

// LookupPayment resolves the payment state. A session lookup expands the payment intent so a
// single call answers both "was it paid" and "which intent to refund later".
func (p *StripeProvider) LookupPayment(ctx context.Context, req LookupRequest) (PaymentDetails, error) {
	switch {
	case strings.TrimSpace(req.IntentID) != "":
		params := &stripe.PaymentIntentParams{}
		params.Context = ctx
		if p.account != "" {
			params.SetStripeAccount(p.account)
		}
		intent, err := p.api.intents.Get(req.IntentID, params)
		if err != nil {
			return PaymentDetails{}, fmt.Errorf("stripe: lookup payment intent: %w", err)
		}
		return intentDetails(intent), nil
	case strings.TrimSpace(req.SessionID) != "":
		params := &stripe.CheckoutSessionParams{}
		params.Context = ctx
		params.AddExpand("payment_intent")
		if p.account != "" {
			params.SetStripeAccount(p.account)
		}
		session, err := p.api.sessions.Get(req.SessionID, params)
		if err != nil {
			return PaymentDetails{}, fmt.Errorf("stripe: lookup checkout session: %w", err)
		}
		return sessionDetails(session), nil
	default:
		return PaymentDetails{}, fmt.Errorf("%w: intent or session id is required", ErrInvalidRequest)
	}
}

// Refund issues a partial refund against the payment intent. Stripe has no notion of refund
// speed, so it travels as metadata for reconciliation.
func (p *StripeProvider) Refund(ctx context.Context, req RefundRequest) (RefundResult, error) {
	if strings.TrimSpace(req.IntentID) == "" || req.Amount <= 0 {
		return RefundResult{}, fmt.Errorf("%w: intent id and positive amount are required", ErrInvalidRequest)
	}
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.IntentID),
		Amount:        stripe.Int64(req.Amount),
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	if reason := mapStripeRefundReason(req.Reason); reason != "" {
		params.Reason = stripe.String(reason)
	}
	params.Metadata = map[string]string{metadataRefundSpeed: string(defaultSpeed(req.Speed))}
	maps.Copy(params.Metadata, req.Metadata)

	refund, err := p.api.refunds.New(params)
	if err != nil {
		return RefundResult{}, fmt.Errorf("stripe: refund payment intent: %w", err)
	}
	p.logger(ctx, "payments.stripe.refund.created", map[string]any{
		"paymentIntent": req.IntentID,
		"refundId":      refund.ID,
		"amount":        refund.Amount,
		"status":        refund.Status,
	})
	return RefundResult{ID: refund.ID, Status: refundStatus(refund.Status), Amount: refund.Amount}, nil
}

func sessionDetails(session *stripe.CheckoutSession) PaymentDetails {
	if session == nil {
		return PaymentDetails{}
	}
	details := PaymentDetails{
		Provider:  ProviderStripe,
		SessionID: session.ID,
		Status:    StatusPending,
		Amount:    session.AmountTotal,
		Currency:  strings.ToUpper(string(session.Currency)),
		Metadata:  session.Metadata,
	}
	if session.PaymentIntent != nil {
		intent := intentDetails(session.PaymentIntent)
		details.IntentID = intent.IntentID
		details.Status = intent.Status
		details.CapturedAt = intent.CapturedAt
	}
	switch {
	case session.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid:
		details.Status = StatusSucceeded
	case session.Status == stripe.CheckoutSessionStatusExpired:
		details.Status = StatusFailed
	}
	return details
}

func intentDetails(intent *stripe.PaymentIntent) PaymentDetails {
	if intent == nil {
		return PaymentDetails{}
	}

	status := StatusPending
	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		status = StatusSucceeded
	case stripe.PaymentIntentStatusCanceled:
		status = StatusFailed
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		// A declined attempt returns the intent to requires_payment_method with the decline recorded.
		if intent.LastPaymentError != nil {
			status = StatusFailed
		}
	}

	var capturedAt *time.Time
	if charge := intent.LatestCharge; charge != nil {
		if charge.Captured {
			t := time.Unix(charge.Created, 0).UTC()
			capturedAt = &t
		}
		if charge.Refunded && charge.Amount > 0 && charge.AmountRefunded >= charge.Amount {
			status = StatusRefunded
		}
	}

	return PaymentDetails{
		Provider:   ProviderStripe,
		IntentID:   intent.ID,
		Status:     status,
		Amount:     intent.Amount,
		Currency:   strings.ToUpper(string(intent.Currency)),
		CapturedAt: capturedAt,
		Metadata:   intent.Metadata,
	}
}

func refundStatus(status stripe.RefundStatus) Status {
	switch status {
	case stripe.RefundStatusSucceeded:
		return StatusSucceeded
	case stripe.RefundStatusFailed, stripe.RefundStatusCanceled:
		return StatusFailed
	default:
		return StatusPending
	}
}

func mapStripeRefundReason(reason string) string {
	switch strings.ToLower(strings.TrimSpace(reason)) {
	case string(stripe.RefundReasonDuplicate):
		return string(stripe.RefundReasonDuplicate)
	case string(stripe.RefundReasonFraudulent):
		return string(stripe.RefundReasonFraudulent)
	case "":
		return ""
	default:
		return string(stripe.RefundReasonRequestedByCustomer)
	}
}

func stripeLocale(locale string) string {
	locale = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(locale)), "_", "-")
	// Checkout accepts a short list of locales; en-IN is not one of them.
	if base, _, ok := strings.Cut(locale, "-"); ok && base == "en" {
		return "en"
	}
	return locale
}

func defaultSpeed(speed RefundSpeed) RefundSpeed {
	if speed == "" {
		return RefundSpeedNormal
	}
	return speed
}

func defaultString(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}
