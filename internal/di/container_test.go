package di

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanko-field/storefront/internal/platform/auth"
	"github.com/hanko-field/storefront/internal/platform/config"
	"github.com/hanko-field/storefront/internal/platform/idempotency"
	"github.com/hanko-field/storefront/internal/repositories"
	"github.com/hanko-field/storefront/internal/storefront"
)

// Repository fakes satisfy the interfaces without implementing them; wiring never calls them.
type (
	fakeCustomers  struct{ repositories.CustomerRepository }
	fakeAddresses  struct{ repositories.AddressRepository }
	fakeProducts   struct{ repositories.ProductRepository }
	fakePromotions struct{ repositories.PromotionRepository }
	fakeCarts      struct{ repositories.CartRepository }
	fakeOrders     struct{ repositories.OrderRepository }
	fakeCheckouts  struct{ repositories.CheckoutRepository }
	fakeRefunds    struct{ repositories.RefundRepository }
)

const testSessionSecret = "0123456789abcdef0123456789abcdef"

func testRegistry(t *testing.T, now time.Time) Registry {
	t.Helper()
	health, err := repositories.NewDependencyHealthRepository([]repositories.DependencyCheck{{
		Name:  "firestore",
		Check: func(context.Context) error { return nil },
	}}, func() time.Time { return now })
	require.NoError(t, err)
	return Registry{
		Customers:  fakeCustomers{},
		Addresses:  fakeAddresses{},
		Products:   fakeProducts{},
		Promotions: fakePromotions{},
		Carts:      fakeCarts{},
		Orders:     fakeOrders{},
		Checkouts:  fakeCheckouts{},
		Refunds:    fakeRefunds{},
		Health:     health,
	}
}

func testIntegrations(t *testing.T) Integrations {
	t.Helper()
	templates, err := storefront.Load("", "classic")
	require.NoError(t, err)
	sessions, err := auth.NewSessionManager(testSessionSecret)
	require.NoError(t, err)
	return Integrations{
		Templates:   templates,
		Sessions:    sessions,
		Idempotency: idempotency.NewMemoryStore(),
	}
}

func testConfig() config.Config {
	return config.Config{
		Environment: "local",
		Checkout:    config.CheckoutConfig{Currency: "INR", PendingTTL: 30 * time.Minute, RefundConcurrency: 2},
		Idempotency: config.IdempotencyConfig{Header: "Idempotency-Key", TTL: time.Hour},
	}
}

func TestNewContainerRequiresTemplatesAndSessions(t *testing.T) {
	_, err := NewContainer(context.Background(), testConfig(), Registry{}, Integrations{})
	assert.Error(t, err)

	integ := testIntegrations(t)
	integ.Sessions = nil
	_, err = NewContainer(context.Background(), testConfig(), Registry{}, integ)
	assert.Error(t, err)
}

func TestNewContainerReportsMissingRepositories(t *testing.T) {
	_, err := NewContainer(context.Background(), testConfig(), Registry{}, testIntegrations(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "promotion service")
}

func TestContainerWithoutPaymentsDisablesCheckout(t *testing.T) {
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	integ := testIntegrations(t)
	c, err := NewContainer(context.Background(), testConfig(), testRegistry(t, now), integ,
		WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	assert.Nil(t, c.Services.Checkout)
	assert.Nil(t, c.Services.Refunds)
	assert.NotNil(t, c.Services.Carts)
	assert.NotNil(t, c.Services.System)

	router := c.Handler("")
	token, _, err := integ.Sessions.Issue("c1", "asha@example.com")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/", strings.NewReader(`{"addressId":"a1","paymentType":"PREPAID"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code, rr.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/api/v1/cart/", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestContainerRouterServesPublicAndHealthRoutes(t *testing.T) {
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	c, err := NewContainer(context.Background(), testConfig(), testRegistry(t, now), testIntegrations(t),
		WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	router := c.Handler("demo-project")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/storefront/templates/classic", nil))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var tpl map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &tpl))
	assert.Equal(t, "classic", tpl["id"])

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	for _, path := range []string{"/api/v1/admin/products", "/internal/jobs/expire-checkouts"} {
		rr = httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, path, nil))
		assert.Equal(t, http.StatusNotImplemented, rr.Code, path)
	}
}
