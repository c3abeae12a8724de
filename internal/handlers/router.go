package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hanko-field/storefront/internal/platform/httpx"
)

// RouteRegistrar registers a set of routes against the provided router.
type RouteRegistrar func(r chi.Router)

// Middleware is the standard net/http middleware shape.
type Middleware = func(http.Handler) http.Handler

// Option customises the router before construction.
type Option func(*routerConfig)

type groupKey int

const (
	groupStorefront groupKey = iota
	groupProducts
	groupPromotions
	groupAuth
	groupMe
	groupCart
	groupCheckout
	groupOrders
	groupAdmin
	groupWebhooks
	groupInternal
)

// routeGroup is one mount point. Versioned groups sit under /api/v1; the
// others hang off the root so payment providers and schedulers get stable URLs.
type routeGroup struct {
	path      string
	versioned bool
	register  RouteRegistrar
	mw        []Middleware
}

type routerConfig struct {
	middlewares []Middleware
	health      *HealthHandlers
	groups      map[groupKey]*routeGroup
}

const (
	apiPrefix         = "/api/v1"
	requestTimeout    = 60 * time.Second
	errorNotFoundCode = "route_not_found"
)

var groupOrder = []groupKey{
	groupStorefront, groupProducts, groupPromotions, groupAuth, groupMe,
	groupCart, groupCheckout, groupOrders, groupAdmin, groupWebhooks, groupInternal,
}

func defaultGroups() map[groupKey]*routeGroup {
	return map[groupKey]*routeGroup{
		groupStorefront: {path: "/storefront", versioned: true},
		groupProducts:   {path: "/products", versioned: true},
		groupPromotions: {path: "/promotions", versioned: true},
		groupAuth:       {path: "/auth", versioned: true},
		groupMe:         {path: "/me", versioned: true},
		groupCart:       {path: "/cart", versioned: true},
		groupCheckout:   {path: "/checkout", versioned: true},
		groupOrders:     {path: "/orders", versioned: true},
		groupAdmin:      {path: "/admin", versioned: true},
		groupWebhooks:   {path: "/webhooks"},
		groupInternal:   {path: "/internal"},
	}
}

// NewRouter builds the storefront HTTP surface. Groups without a registrar
// answer 501 so clients can tell a disabled integration from a typo.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		middlewares: []Middleware{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Timeout(requestTimeout),
			TemplateMiddleware,
		},
		groups: defaultGroups(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	r := chi.NewRouter()
	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError(errorNotFoundCode, fmt.Sprintf("no route for %s", req.URL.Path), http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})
	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)

	api := chi.NewRouter()
	for _, key := range groupOrder {
		group := cfg.groups[key]
		parent := chi.Router(r)
		if group.versioned {
			parent = api
		}
		parent.Route(group.path, group.mount)
	}
	r.Mount(apiPrefix, api)
	return r
}

func (g *routeGroup) mount(r chi.Router) {
	for _, mw := range g.mw {
		if mw != nil {
			r.Use(mw)
		}
	}
	if g.register != nil {
		g.register(r)
		return
	}
	registerNotImplemented(r, g.path[1:])
}

func withRoutes(key groupKey, reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.groups[key].register = reg }
}

func withGroupMiddlewares(key groupKey, mw []Middleware) Option {
	return func(cfg *routerConfig) { cfg.groups[key].mw = append(cfg.groups[key].mw, mw...) }
}

// WithMiddlewares appends middleware applied to every route.
func WithMiddlewares(mw ...Middleware) Option {
	return func(cfg *routerConfig) { cfg.middlewares = append(cfg.middlewares, mw...) }
}

// WithHealthHandlers overrides the /healthz and /readyz handlers.
func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) { cfg.health = h }
}

// WithStorefrontRoutes mounts template endpoints.
func WithStorefrontRoutes(reg RouteRegistrar) Option { return withRoutes(groupStorefront, reg) }

// WithProductRoutes mounts the public catalogue.
func WithProductRoutes(reg RouteRegistrar) Option { return withRoutes(groupProducts, reg) }

// WithPromotionRoutes mounts public promotion quotes.
func WithPromotionRoutes(reg RouteRegistrar) Option { return withRoutes(groupPromotions, reg) }

// WithAuthRoutes mounts registration and login.
func WithAuthRoutes(reg RouteRegistrar) Option { return withRoutes(groupAuth, reg) }

// WithMeRoutes mounts the signed-in customer's profile and addresses.
func WithMeRoutes(reg RouteRegistrar) Option { return withRoutes(groupMe, reg) }

func WithCartRoutes(reg RouteRegistrar) Option { return withRoutes(groupCart, reg) }

func WithCheckoutRoutes(reg RouteRegistrar) Option { return withRoutes(groupCheckout, reg) }

func WithOrderRoutes(reg RouteRegistrar) Option { return withRoutes(groupOrders, reg) }

// WithAdminRoutes mounts the back-office API.
func WithAdminRoutes(reg RouteRegistrar) Option { return withRoutes(groupAdmin, reg) }

// WithAdminMiddlewares guards the admin group, typically with a role check.
func WithAdminMiddlewares(mw ...Middleware) Option { return withGroupMiddlewares(groupAdmin, mw) }

// WithWebhookRoutes mounts payment provider callbacks at /webhooks.
func WithWebhookRoutes(reg RouteRegistrar) Option { return withRoutes(groupWebhooks, reg) }

func WithWebhookMiddlewares(mw ...Middleware) Option {
	return withGroupMiddlewares(groupWebhooks, mw)
}

// WithInternalRoutes mounts scheduler jobs at /internal.
func WithInternalRoutes(reg RouteRegistrar) Option { return withRoutes(groupInternal, reg) }

// WithInternalMiddlewares guards the internal group, typically with OIDC verification.
func WithInternalMiddlewares(mw ...Middleware) Option {
	return withGroupMiddlewares(groupInternal, mw)
}

func registerNotImplemented(r chi.Router, name string) {
	handler := func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("not_implemented", fmt.Sprintf("%s routes not implemented", name), http.StatusNotImplemented))
	}
	r.HandleFunc("/*", handler)
	r.HandleFunc("/", handler)
	r.NotFound(handler)
	r.MethodNotAllowed(handler)
}
