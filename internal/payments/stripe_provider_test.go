package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v78"
)

type stubSessions struct {
	created *stripe.CheckoutSessionParams
	session *stripe.CheckoutSession
	err     error
}

func (s *stubSessions) New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	s.created = params
	return s.session, s.err
}

func (s *stubSessions) Get(string, *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return s.session, s.err
}

type stubIntents struct {
	intent *stripe.PaymentIntent
}

func (s *stubIntents) Get(string, *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return s.intent, nil
}

type stubRefunds struct {
	params *stripe.RefundParams
	refund *stripe.Refund
}

func (s *stubRefunds) New(params *stripe.RefundParams) (*stripe.Refund, error) {
	s.params = params
	return s.refund, nil
}

func newTestStripe(t *testing.T, sessions *stubSessions, intents *stubIntents, refunds *stubRefunds) *StripeProvider {
	t.Helper()
	provider, err := NewStripeProvider(StripeProviderConfig{
		Clock:   func() time.Time { return time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC) },
		clients: &stripeClients{sessions: sessions, intents: intents, refunds: refunds},
	})
	require.NoError(t, err)
	return provider
}

func TestStripeCreateCheckoutSessionCarriesOrderID(t *testing.T) {
	sessions := &stubSessions{session: &stripe.CheckoutSession{ID: "cs_1", URL: "https://checkout.stripe.com/c/cs_1"}}
	provider := newTestStripe(t, sessions, &stubIntents{}, &stubRefunds{})

	session, err := provider.CreateCheckoutSession(context.Background(), CheckoutSessionRequest{
		OrderID:        "ord_1",
		Currency:       "INR",
		IdempotencyKey: "idem-1",
		Locale:         "en_IN",
		Items:          []CheckoutLineItem{{Name: "Mug", SKU: "MUG", Quantity: 2, Amount: 49900}},
	})
	require.NoError(t, err)

	assert.Equal(t, "cs_1", session.ID)
	assert.Equal(t, "https://checkout.stripe.com/c/cs_1", session.RedirectURL)
	assert.Equal(t, time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC), session.ExpiresAt)

	params := sessions.created
	require.NotNil(t, params)
	assert.Equal(t, "ord_1", params.Metadata[metadataOrderID])
	assert.Equal(t, "ord_1", params.PaymentIntentData.Metadata[metadataOrderID])
	assert.Equal(t, "ord_1", *params.ClientReferenceID)
	assert.Equal(t, "en", *params.Locale)
	require.Len(t, params.LineItems, 1)
	assert.Equal(t, "inr", *params.LineItems[0].PriceData.Currency)
	assert.Equal(t, int64(2), *params.LineItems[0].Quantity)
	require.NotNil(t, params.IdempotencyKey)
	assert.Equal(t, "idem-1", *params.IdempotencyKey)
}

func TestStripeCreateCheckoutSessionRequiresOrder(t *testing.T) {
	provider := newTestStripe(t, &stubSessions{}, &stubIntents{}, &stubRefunds{})
	_, err := provider.CreateCheckoutSession(context.Background(), CheckoutSessionRequest{})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestStripeCreateCheckoutSessionWrapsError(t *testing.T) {
	boom := errors.New("card network down")
	provider := newTestStripe(t, &stubSessions{err: boom}, &stubIntents{}, &stubRefunds{})
	_, err := provider.CreateCheckoutSession(context.Background(), CheckoutSessionRequest{OrderID: "o"})
	assert.ErrorIs(t, err, boom)
}

func TestStripeLookupSessionStatuses(t *testing.T) {
	tests := []struct {
		name    string
		session *stripe.CheckoutSession
		want    Status
	}{
		{"paid", &stripe.CheckoutSession{ID: "cs", PaymentStatus: stripe.CheckoutSessionPaymentStatusPaid,
			PaymentIntent: &stripe.PaymentIntent{ID: "pi_1", Status: stripe.PaymentIntentStatusSucceeded}}, StatusSucceeded},
		{"open", &stripe.CheckoutSession{ID: "cs", Status: stripe.CheckoutSessionStatusOpen, PaymentStatus: stripe.CheckoutSessionPaymentStatusUnpaid}, StatusPending},
		{"expired", &stripe.CheckoutSession{ID: "cs", Status: stripe.CheckoutSessionStatusExpired}, StatusFailed},
		{"declined", &stripe.CheckoutSession{ID: "cs", Status: stripe.CheckoutSessionStatusOpen,
			PaymentIntent: &stripe.PaymentIntent{ID: "pi_2", Status: stripe.PaymentIntentStatusRequiresPaymentMethod, LastPaymentError: &stripe.Error{Msg: "declined"}}}, StatusFailed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			provider := newTestStripe(t, &stubSessions{session: tc.session}, &stubIntents{}, &stubRefunds{})
			details, err := provider.LookupPayment(context.Background(), LookupRequest{SessionID: "cs"})
			require.NoError(t, err)
			assert.Equal(t, tc.want, details.Status)
		})
	}
}

func TestStripeLookupRequiresIdentifier(t *testing.T) {
	provider := newTestStripe(t, &stubSessions{}, &stubIntents{}, &stubRefunds{})
	_, err := provider.LookupPayment(context.Background(), LookupRequest{})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestStripeRefundRecordsSpeed(t *testing.T) {
	refunds := &stubRefunds{refund: &stripe.Refund{ID: "re_1", Amount: 500, Status: stripe.RefundStatusPending}}
	provider := newTestStripe(t, &stubSessions{}, &stubIntents{}, refunds)

	result, err := provider.Refund(context.Background(), RefundRequest{
		IntentID: "pi_1",
		Amount:   500,
		Speed:    RefundSpeedInstant,
		Reason:   "changed my mind",
	})
	require.NoError(t, err)
	assert.Equal(t, RefundResult{ID: "re_1", Status: StatusPending, Amount: 500}, result)
	assert.Equal(t, "instant", refunds.params.Metadata[metadataRefundSpeed])
	assert.Equal(t, string(stripe.RefundReasonRequestedByCustomer), *refunds.params.Reason)
	assert.Equal(t, int64(500), *refunds.params.Amount)
}

func TestStripeRefundRejectsZeroAmount(t *testing.T) {
	provider := newTestStripe(t, &stubSessions{}, &stubIntents{}, &stubRefunds{})
	_, err := provider.Refund(context.Background(), RefundRequest{IntentID: "pi"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}
