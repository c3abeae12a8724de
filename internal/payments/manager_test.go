package payments

import (
	"context"
	"errors"
	"testing"
)

type fakeProvider struct {
	lastOp  string
	session CheckoutSession
	payment PaymentDetails
	refund  RefundResult
	err     error
}

func (f *fakeProvider) CreateCheckoutSession(context.Context, CheckoutSessionRequest) (CheckoutSession, error) {
	f.lastOp = "create"
	return f.session, f.err
}

func (f *fakeProvider) LookupPayment(context.Context, LookupRequest) (PaymentDetails, error) {
	f.lastOp = "lookup"
	return f.payment, f.err
}

func (f *fakeProvider) Refund(context.Context, RefundRequest) (RefundResult, error) {
	f.lastOp = "refund"
	return f.refund, f.err
}

func TestManagerUsesSessionProvider(t *testing.T) {
	ctx := context.Background()
	stripe := &fakeProvider{payment: PaymentDetails{Status: StatusSucceeded}}
	other := &fakeProvider{payment: PaymentDetails{Status: StatusPending}}

	mgr, err := NewManager(map[string]Provider{"Stripe": stripe, "other": other})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	details, err := mgr.LookupPayment(ctx, PaymentContext{Provider: "other"}, LookupRequest{SessionID: "cs_1"})
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if details.Provider != "other" || other.lastOp != "lookup" || stripe.lastOp != "" {
		t.Fatalf("expected lookup routed to other provider, got %+v", details)
	}
}

func TestManagerDefaultsToStripe(t *testing.T) {
	stripe := &fakeProvider{session: CheckoutSession{ID: "cs_1"}}
	mgr, err := NewManager(map[string]Provider{ProviderStripe: stripe, "other": &fakeProvider{}})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	session, err := mgr.CreateCheckoutSession(context.Background(), PaymentContext{Currency: "INR"}, CheckoutSessionRequest{OrderID: "o1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if session.Provider != ProviderStripe {
		t.Fatalf("expected stripe provider stamped, got %q", session.Provider)
	}
}

func TestManagerRoutesByCurrency(t *testing.T) {
	stripe := &fakeProvider{}
	local := &fakeProvider{refund: RefundResult{ID: "rf_1", Status: StatusSucceeded}}
	mgr, err := NewManager(map[string]Provider{ProviderStripe: stripe, "local": local},
		WithCurrencyRoutes(map[string]string{"inr": "LOCAL"}))
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	result, err := mgr.Refund(context.Background(), PaymentContext{Currency: "INR"}, RefundRequest{IntentID: "pi", Amount: 100})
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if result.ID != "rf_1" || local.lastOp != "refund" {
		t.Fatalf("expected refund routed by currency, got %+v", result)
	}
}

func TestManagerUnknownProvider(t *testing.T) {
	mgr, err := NewManager(map[string]Provider{ProviderStripe: &fakeProvider{}})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	_, err = mgr.LookupPayment(context.Background(), PaymentContext{Provider: "paypal"}, LookupRequest{IntentID: "pi"})
	if !errors.Is(err, ErrUnsupportedProvider) {
		t.Fatalf("expected ErrUnsupportedProvider, got %v", err)
	}
}

func TestNewManagerRejectsNilProvider(t *testing.T) {
	if _, err := NewManager(map[string]Provider{"stripe": nil}); err == nil {
		t.Fatalf("expected error for nil provider")
	}
	if _, err := NewManager(nil); err == nil {
		t.Fatalf("expected error for empty registry")
	}
}
