package di

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hanko-field/storefront/internal/handlers"
	"github.com/hanko-field/storefront/internal/platform/auth"
	"github.com/hanko-field/storefront/internal/platform/config"
	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
	"github.com/hanko-field/storefront/internal/platform/idempotency"
	"github.com/hanko-field/storefront/internal/platform/observability"
	"github.com/hanko-field/storefront/internal/repositories"
	firestoreRepo "github.com/hanko-field/storefront/internal/repositories/firestore"
	"github.com/hanko-field/storefront/internal/services"
)

// Registry bundles the repositories backing the storefront.
type Registry struct {
	Customers  repositories.CustomerRepository
	Addresses  repositories.AddressRepository
	Products   repositories.ProductRepository
	Promotions repositories.PromotionRepository
	Carts      repositories.CartRepository
	Orders     repositories.OrderRepository
	Checkouts  repositories.CheckoutRepository
	Refunds    repositories.RefundRepository
	Health     repositories.HealthRepository
}

// NewFirestoreRegistry builds every repository on the shared Firestore provider.
func NewFirestoreRegistry(provider *pfirestore.Provider) (Registry, error) {
	var (
		reg Registry
		err error
	)
	if reg.Customers, err = firestoreRepo.NewCustomerRepository(provider); err != nil {
		return Registry{}, fmt.Errorf("customer repository: %w", err)
	}
	if reg.Addresses, err = firestoreRepo.NewAddressRepository(provider); err != nil {
		return Registry{}, fmt.Errorf("address repository: %w", err)
	}
	if reg.Products, err = firestoreRepo.NewProductRepository(provider); err != nil {
		return Registry{}, fmt.Errorf("product repository: %w", err)
	}
	if reg.Promotions, err = firestoreRepo.NewPromotionRepository(provider); err != nil {
		return Registry{}, fmt.Errorf("promotion repository: %w", err)
	}
	if reg.Carts, err = firestoreRepo.NewCartRepository(provider); err != nil {
		return Registry{}, fmt.Errorf("cart repository: %w", err)
	}
	if reg.Orders, err = firestoreRepo.NewOrderRepository(provider); err != nil {
		return Registry{}, fmt.Errorf("order repository: %w", err)
	}
	if reg.Checkouts, err = firestoreRepo.NewCheckoutRepository(provider); err != nil {
		return Registry{}, fmt.Errorf("checkout repository: %w", err)
	}
	if reg.Refunds, err = firestoreRepo.NewRefundRepository(provider); err != nil {
		return Registry{}, fmt.Errorf("refund repository: %w", err)
	}
	return reg, nil
}

// Integrations are the external collaborators. Payments, Shipping, Notifications and Images are
// optional; features depending on a missing integration are disabled rather than failing startup.
type Integrations struct {
	Payments      services.PaymentGateway
	Webhooks      handlers.WebhookParser
	Shipping      services.ShippingCarrier
	Notifications services.NotificationPublisher
	Images        services.ImageStore
	Templates     services.TemplateCatalog
	Sessions      *auth.SessionManager
	Admin         *auth.AdminAuthenticator
	Internal      handlers.Middleware
	Idempotency   idempotency.Store
}

// Services bundles the service-layer contracts handlers rely upon.
type Services struct {
	Promotions services.PromotionService
	Products   services.ProductService
	Carts      services.CartService
	Customers  services.CustomerService
	Checkout   services.CheckoutService
	Refunds    services.RefundService
	Orders     services.OrderService
	System     services.SystemService
}

// Container wires repositories, services, and HTTP handlers for runtime use.
type Container struct {
	Config       config.Config
	Repositories Registry
	Integrations Integrations
	Services     Services

	build  services.BuildInfo
	logger *zap.Logger
	clock  func() time.Time
}

// Option customises NewContainer.
type Option func(*Container)

// WithBuildInfo sets the build metadata reported by health endpoints.
func WithBuildInfo(info services.BuildInfo) Option {
	return func(c *Container) { c.build = info }
}

// WithLogger sets the base logger used for service events.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Container) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock overrides the clock shared by every service.
func WithClock(clock func() time.Time) Option {
	return func(c *Container) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// NewContainer constructs the runtime dependencies.
func NewContainer(ctx context.Context, cfg config.Config, reg Registry, integ Integrations, opts ...Option) (*Container, error) {
	if integ.Templates == nil {
		return nil, errors.New("template catalog is required")
	}
	if integ.Sessions == nil {
		return nil, errors.New("session manager is required")
	}
	c := &Container{
		Config:       cfg,
		Repositories: reg,
		Integrations: integ,
		logger:       zap.NewNop(),
		clock:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.build.StartedAt.IsZero() {
		c.build.StartedAt = c.clock().UTC()
	}
	if c.build.Environment == "" {
		c.build.Environment = cfg.Environment
	}

	svc, err := c.buildServices(ctx)
	if err != nil {
		return nil, err
	}
	c.Services = svc
	return c, nil
}

func (c *Container) events(name string) services.EventLogger {
	return services.EventLogger(observability.NewEventLogger(c.logger.Named(name)))
}

func (c *Container) buildServices(_ context.Context) (Services, error) {
	var (
		svc   Services
		err   error
		reg   = c.Repositories
		integ = c.Integrations
		cfg   = c.Config
	)

	svc.Promotions, err = services.NewPromotionService(services.PromotionServiceDeps{
		Promotions: reg.Promotions,
		Products:   reg.Products,
		Clock:      c.clock,
		Logger:     c.events("promotions"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build promotion service: %w", err)
	}

	svc.Products, err = services.NewProductService(services.ProductServiceDeps{
		Products:   reg.Products,
		Promotions: reg.Promotions,
		Images:     integ.Images,
		Currency:   cfg.Checkout.Currency,
		Clock:      c.clock,
		Logger:     c.events("catalog"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build product service: %w", err)
	}

	svc.Carts, err = services.NewCartService(services.CartServiceDeps{
		Carts:      reg.Carts,
		Products:   reg.Products,
		Promotions: reg.Promotions,
		Currency:   cfg.Checkout.Currency,
		Clock:      c.clock,
		Logger:     c.events("cart"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}

	svc.Customers, err = services.NewCustomerService(services.CustomerServiceDeps{
		Customers:       reg.Customers,
		Addresses:       reg.Addresses,
		Sessions:        integ.Sessions,
		HashPassword:    auth.HashPassword,
		ComparePassword: auth.ComparePassword,
		Clock:           c.clock,
		Logger:          c.events("customers"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build customer service: %w", err)
	}

	svc.Orders, err = services.NewOrderService(services.OrderServiceDeps{
		Orders: reg.Orders,
		Clock:  c.clock,
		Logger: c.events("orders"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}

	if integ.Payments != nil {
		svc.Checkout, err = services.NewCheckoutService(services.CheckoutServiceDeps{
			Cart:          svc.Carts,
			Customers:     reg.Customers,
			Addresses:     reg.Addresses,
			Orders:        reg.Orders,
			Checkouts:     reg.Checkouts,
			Payments:      integ.Payments,
			Shipping:      integ.Shipping,
			Notifications: integ.Notifications,
			Templates:     integ.Templates,
			PendingTTL:    cfg.Checkout.PendingTTL,
			Clock:         c.clock,
			Logger:        c.events("checkout"),
		})
		if err != nil {
			return Services{}, fmt.Errorf("build checkout service: %w", err)
		}

		svc.Refunds, err = services.NewRefundService(services.RefundServiceDeps{
			Orders:        reg.Orders,
			Refunds:       reg.Refunds,
			Customers:     reg.Customers,
			Payments:      integ.Payments,
			Shipping:      integ.Shipping,
			Notifications: integ.Notifications,
			Concurrency:   cfg.Checkout.RefundConcurrency,
			Clock:         c.clock,
			Logger:        c.events("refunds"),
		})
		if err != nil {
			return Services{}, fmt.Errorf("build refund service: %w", err)
		}
	} else {
		c.logger.Warn("payment gateway not configured; checkout and refunds disabled")
	}

	if reg.Health != nil {
		svc.System, err = services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: reg.Health,
			Clock:            c.clock,
			Build:            c.build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
	}

	return svc, nil
}

// Router assembles the HTTP API. middlewares wrap every route.
func (c *Container) Router(middlewares ...handlers.Middleware) chi.Router {
	svc := c.Services
	integ := c.Integrations

	var idem handlers.Middleware
	if integ.Idempotency != nil {
		idem = idempotency.Middleware(integ.Idempotency,
			idempotency.WithHeader(c.Config.Idempotency.Header),
			idempotency.WithTTL(c.Config.Idempotency.TTL),
			idempotency.WithClock(c.clock),
		)
	}
	requireCustomer := integ.Sessions.RequireCustomer

	health := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(c.build),
		handlers.WithHealthClock(c.clock),
		handlers.WithHealthSystemService(svc.System),
	)
	catalog := handlers.NewCatalogHandlers(integ.Templates, svc.Products, svc.Promotions)

	var checkoutOpts []handlers.CheckoutOption
	if idem != nil {
		checkoutOpts = append(checkoutOpts, handlers.WithCheckoutIdempotency(idem, c.Config.Idempotency.Header))
	}

	opts := []handlers.Option{
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(health),
		handlers.WithStorefrontRoutes(catalog.TemplateRoutes),
		handlers.WithProductRoutes(catalog.ProductRoutes),
		handlers.WithPromotionRoutes(catalog.PromotionRoutes),
		handlers.WithAuthRoutes(handlers.NewAuthHandlers(svc.Customers, handlers.WithAuthClock(c.clock)).Routes),
		handlers.WithMeRoutes(handlers.NewMeHandlers(requireCustomer, svc.Customers).Routes),
		handlers.WithCartRoutes(handlers.NewCartHandlers(requireCustomer, svc.Carts).Routes),
		handlers.WithCheckoutRoutes(handlers.NewCheckoutHandlers(requireCustomer, svc.Checkout, checkoutOpts...).Routes),
		handlers.WithOrderRoutes(handlers.NewOrderHandlers(requireCustomer, svc.Orders, svc.Refunds, idem).Routes),
		handlers.WithWebhookRoutes(handlers.NewWebhookHandlers(integ.Webhooks, svc.Checkout).Routes),
	}

	if integ.Admin != nil {
		admin := handlers.NewAdminHandlers(handlers.AdminDeps{
			RequireAdmin: integ.Admin.RequireRoles(auth.RoleAdmin),
			Idempotency:  idem,
			Products:     svc.Products,
			Promotions:   svc.Promotions,
			Orders:       svc.Orders,
			Refunds:      svc.Refunds,
		})
		opts = append(opts,
			handlers.WithAdminRoutes(admin.Routes),
			handlers.WithAdminMiddlewares(integ.Admin.RequireRoles(auth.RoleAdmin, auth.RoleStaff)),
		)
	}

	if integ.Internal != nil {
		var cleaner handlers.IdempotencyCleaner
		if integ.Idempotency != nil {
			cleaner = integ.Idempotency
		}
		opts = append(opts,
			handlers.WithInternalRoutes(handlers.NewJobHandlers(svc.Checkout, cleaner, c.clock).Routes),
			handlers.WithInternalMiddlewares(integ.Internal),
		)
	}

	return handlers.NewRouter(opts...)
}

// Handler is Router with the standard observability middleware stack.
func (c *Container) Handler(traceProjectID string) http.Handler {
	return c.Router(
		observability.InjectLoggerMiddleware(c.logger.Named("http")),
		observability.TraceMiddleware(traceProjectID),
		observability.RecoveryMiddleware(c.logger.Named("http")),
		observability.RequestLoggerMiddleware(),
	)
}
