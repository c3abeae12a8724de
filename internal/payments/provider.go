package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status enumerates the normalised payment states shared across gateways.
type Status string

const (
	// StatusPending indicates the payment is awaiting customer action or gateway confirmation.
	StatusPending Status = "pending"
	// StatusSucceeded indicates the gateway reports the payment as captured.
	StatusSucceeded Status = "succeeded"
	// StatusFailed indicates the payment failed, expired or was cancelled.
	StatusFailed Status = "failed"
	// StatusRefunded indicates the payment has been refunded in full.
	StatusRefunded Status = "refunded"
)

// RefundSpeed mirrors the order domain refund speeds without importing it.
type RefundSpeed string

const (
	RefundSpeedNormal  RefundSpeed = "normal"
	RefundSpeedInstant RefundSpeed = "instant"
)

var (
	// ErrUnsupportedProvider is returned when the manager cannot locate a provider.
	ErrUnsupportedProvider = errors.New("payments: unsupported provider")
	// ErrInvalidRequest is returned for requests missing identifiers or amounts.
	ErrInvalidRequest = errors.New("payments: invalid request")
)

// CheckoutLineItem describes a single line item shown on the hosted checkout page.
type CheckoutLineItem struct {
	Name     string
	SKU      string
	Quantity int64
	Amount   int64
	Currency string
}

// CheckoutSessionRequest captures the payload required to create a hosted checkout session.
type CheckoutSessionRequest struct {
	OrderID        string
	Amount         int64
	Currency       string
	CustomerEmail  string
	SuccessURL     string
	CancelURL      string
	Locale         string
	Metadata       map[string]string
	IdempotencyKey string
	Items          []CheckoutLineItem
	ExpiresAt      time.Time
}

// CheckoutSession represents the gateway session returned to the client.
type CheckoutSession struct {
	ID           string
	Provider     string
	ClientSecret string
	RedirectURL  string
	IntentID     string
	ExpiresAt    time.Time
}

// RefundRequest defines a gateway refund for part of a payment.
type RefundRequest struct {
	IntentID       string
	Amount         int64
	Speed          RefundSpeed
	Reason         string
	IdempotencyKey string
	Metadata       map[string]string
}

// RefundResult is the gateway's view of an issued refund.
type RefundResult struct {
	ID     string
	Status Status
	Amount int64
}

// LookupRequest identifies a payment by intent or by hosted session.
type LookupRequest struct {
	IntentID  string
	SessionID string
}

// PaymentDetails normalises gateway specific fields.
type PaymentDetails struct {
	Provider   string
	IntentID   string
	SessionID  string
	Status     Status
	Amount     int64
	Currency   string
	CapturedAt *time.Time
	Metadata   map[string]string
}

// Provider defines the contract gateway adapters implement.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error)
	LookupPayment(ctx context.Context, req LookupRequest) (PaymentDetails, error)
	Refund(ctx context.Context, req RefundRequest) (RefundResult, error)
}

// Manager selects a provider per call. Checkout sessions remember the provider that created them so
// verification and refunds return to the same gateway. Stripe is the fallback when registered.
type Manager struct {
	providers  map[string]Provider
	fallback   string
	byCurrency map[string]string
}

// ManagerOption configures optional behaviour when building a Manager.
type ManagerOption func(*Manager)

// WithCurrencyRoutes sends payments in the given ISO currencies to a specific provider,
// e.g. {"INR": "razorpay"}. Keys and values are case-insensitive.
func WithCurrencyRoutes(routes map[string]string) ManagerOption {
	return func(m *Manager) {
		for currency, provider := range routes {
			m.byCurrency[currencyKey(currency)] = normaliseKey(provider)
		}
	}
}

// NewManager registers providers under case-insensitive keys.
func NewManager(providers map[string]Provider, opts ...ManagerOption) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: no providers registered")
	}
	m := &Manager{providers: make(map[string]Provider, len(providers)), byCurrency: map[string]string{}}
	for name, provider := range providers {
		key := normaliseKey(name)
		if key == "" || provider == nil {
			return nil, fmt.Errorf("payments: provider %q is empty", name)
		}
		m.providers[key] = provider
	}
	switch {
	case m.providers[ProviderStripe] != nil:
		m.fallback = ProviderStripe
	case len(m.providers) == 1:
		for key := range m.providers {
			m.fallback = key
		}
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m, nil
}

// PaymentContext carries the hints used to pick a provider.
type PaymentContext struct {
	Provider string
	Currency string
}

// resolve prefers an explicit provider, then a currency route, then the fallback.
func (m *Manager) resolve(pc PaymentContext) (string, Provider, error) {
	if m == nil {
		return "", nil, ErrUnsupportedProvider
	}
	key := normaliseKey(pc.Provider)
	if key != "" {
		if p := m.providers[key]; p != nil {
			return key, p, nil
		}
		return "", nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, key)
	}
	if routed, ok := m.byCurrency[currencyKey(pc.Currency)]; ok && m.providers[routed] != nil {
		key = routed
	} else {
		key = m.fallback
	}
	if p := m.providers[key]; p != nil {
		return key, p, nil
	}
	return "", nil, ErrUnsupportedProvider
}

// CreateCheckoutSession delegates to the resolved provider and stamps its key on the session.
func (m *Manager) CreateCheckoutSession(ctx context.Context, pc PaymentContext, req CheckoutSessionRequest) (CheckoutSession, error) {
	key, provider, err := m.resolve(pc)
	if err != nil {
		return CheckoutSession{}, err
	}
	session, err := provider.CreateCheckoutSession(ctx, req)
	if err != nil {
		return CheckoutSession{}, err
	}
	session.Provider = key
	return session, nil
}

// LookupPayment delegates to the resolved provider.
func (m *Manager) LookupPayment(ctx context.Context, pc PaymentContext, req LookupRequest) (PaymentDetails, error) {
	key, provider, err := m.resolve(pc)
	if err != nil {
		return PaymentDetails{}, err
	}
	details, err := provider.LookupPayment(ctx, req)
	if err != nil {
		return PaymentDetails{}, err
	}
	details.Provider = key
	return details, nil
}

// Refund delegates to the resolved provider.
func (m *Manager) Refund(ctx context.Context, pc PaymentContext, req RefundRequest) (RefundResult, error) {
	_, provider, err := m.resolve(pc)
	if err != nil {
		return RefundResult{}, err
	}
	return provider.Refund(ctx, req)
}

func normaliseKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

func currencyKey(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
