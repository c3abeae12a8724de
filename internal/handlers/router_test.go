package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanko-field/storefront/internal/platform/requestctx"
)

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body), rr.Body.String())
	return body.Error
}

func get(router http.Handler, path string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestRouterUnconfiguredGroupsAnswer501(t *testing.T) {
	router := NewRouter()

	rr := get(router, "/healthz")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	for _, path := range []string{
		"/api/v1/storefront/templates/classic",
		"/api/v1/products",
		"/api/v1/cart",
		"/api/v1/checkout/ord-1",
		"/api/v1/admin/orders",
		"/webhooks/stripe",
		"/internal/jobs/expire-checkouts",
	} {
		rr := get(router, path)
		assert.Equal(t, http.StatusNotImplemented, rr.Code, path)
		assert.Equal(t, "not_implemented", errorCode(t, rr), path)
	}
}

func TestRouterMountsEveryGroup(t *testing.T) {
	mark := func(name string) RouteRegistrar {
		return func(r chi.Router) {
			r.Get("/*", func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("X-Group", name)
				w.WriteHeader(http.StatusNoContent)
			})
		}
	}
	router := NewRouter(
		WithStorefrontRoutes(mark("storefront")),
		WithProductRoutes(mark("products")),
		WithPromotionRoutes(mark("promotions")),
		WithAuthRoutes(mark("auth")),
		WithMeRoutes(mark("me")),
		WithCartRoutes(mark("cart")),
		WithCheckoutRoutes(mark("checkout")),
		WithOrderRoutes(mark("orders")),
		WithAdminRoutes(mark("admin")),
		WithWebhookRoutes(mark("webhooks")),
		WithInternalRoutes(mark("internal")),
	)

	cases := map[string]string{
		"/api/v1/storefront/templates/x": "storefront",
		"/api/v1/products/p1":            "products",
		"/api/v1/promotions/quote":       "promotions",
		"/api/v1/auth/session":           "auth",
		"/api/v1/me/addresses":           "me",
		"/api/v1/cart/items":             "cart",
		"/api/v1/checkout/ord-1":         "checkout",
		"/api/v1/orders/ord-1":           "orders",
		"/api/v1/admin/products":         "admin",
		"/webhooks/stripe":               "webhooks",
		"/internal/jobs/x":               "internal",
	}
	for path, want := range cases {
		rr := get(router, path)
		assert.Equal(t, http.StatusNoContent, rr.Code, path)
		assert.Equal(t, want, rr.Header().Get("X-Group"), path)
	}

	rr := get(router, "/api/v2/products")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, errorNotFoundCode, errorCode(t, rr))
}

func TestRouterCarriesTemplateHeader(t *testing.T) {
	var template string
	router := NewRouter(WithProductRoutes(func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			template = requestctx.TemplateID(r.Context())
			w.WriteHeader(http.StatusNoContent)
		})
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	req.Header.Set(TemplateHeader, "festive")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "festive", template)
}

func TestRouterGroupMiddlewareStaysInGroup(t *testing.T) {
	tag := func(value string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("X-Guard", value)
				next.ServeHTTP(w, r)
			})
		}
	}
	router := NewRouter(
		WithWebhookMiddlewares(tag("signature")),
		WithAdminMiddlewares(tag("roles")),
		WithInternalMiddlewares(tag("oidc")),
	)

	cases := map[string]string{
		"/webhooks/stripe":        "signature",
		"/api/v1/admin/orders":    "roles",
		"/internal/jobs/x":        "oidc",
		"/api/v1/products/p1":     "",
		"/api/v1/cart/items/sku1": "",
	}
	for path, want := range cases {
		assert.Equal(t, want, get(router, path).Header().Get("X-Guard"), path)
	}
}
