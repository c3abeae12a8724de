package repositories

import (
	"context"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// CustomerRepository persists storefront accounts.
type CustomerRepository interface {
	// Insert fails with a conflict when the email is already registered.
	Insert(ctx context.Context, customer domain.Customer) error
	Update(ctx context.Context, customer domain.Customer) error
	FindByID(ctx context.Context, customerID string) (domain.Customer, error)
	FindByEmail(ctx context.Context, email string) (domain.Customer, error)
}

// AddressRepository stores shipping addresses under customers/{id}/addresses.
type AddressRepository interface {
	List(ctx context.Context, customerID string) ([]domain.Address, error)
	FindByID(ctx context.Context, customerID, addressID string) (domain.Address, error)
	// Save upserts the address. When IsDefault is set every other address loses the flag.
	Save(ctx context.Context, address domain.Address) error
	Delete(ctx context.Context, customerID, addressID string) error
}

// ProductRepository persists catalogue products.
type ProductRepository interface {
	Insert(ctx context.Context, product domain.Product) error
	Update(ctx context.Context, product domain.Product) error
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	List(ctx context.Context, filter ProductListFilter) (domain.CursorPage[domain.Product], error)
}

// PromotionRepository persists promotion rules.
type PromotionRepository interface {
	Insert(ctx context.Context, promotion domain.Promotion) error
	Update(ctx context.Context, promotion domain.Promotion) error
	Delete(ctx context.Context, promotionID string) error
	FindByID(ctx context.Context, promotionID string) (domain.Promotion, error)
	List(ctx context.Context, filter PromotionListFilter) (domain.CursorPage[domain.Promotion], error)
	// ListActive returns every promotion flagged active in creation order; callers apply the schedule.
	ListActive(ctx context.Context) ([]domain.Promotion, error)
}

// CartRepository stores one cart per customer.
type CartRepository interface {
	// Get returns an empty cart when none has been saved yet.
	Get(ctx context.Context, customerID string) (domain.Cart, error)
	Save(ctx context.Context, cart domain.Cart) error
	Delete(ctx context.Context, customerID string) error
}

// OrderRepository persists orders and owns stock reservation.
type OrderRepository interface {
	// Place decrements stock for every line and writes the order in one transaction. Insufficient
	// stock yields a conflict and nothing is written.
	Place(ctx context.Context, order domain.OrderSummary) error
	// ReleaseStock returns the order's reserved quantities to the products.
	ReleaseStock(ctx context.Context, order domain.OrderSummary) error
	// Mutate loads the order, applies fn and writes it back transactionally. An error from fn aborts
	// the write and is returned unchanged.
	Mutate(ctx context.Context, orderID string, fn func(*domain.OrderSummary) error) (domain.OrderSummary, error)
	FindByID(ctx context.Context, orderID string) (domain.OrderSummary, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.OrderSummary], error)
}

// CheckoutRepository persists checkout sessions keyed by order id.
type CheckoutRepository interface {
	Create(ctx context.Context, session domain.CheckoutSession) error
	FindByOrderID(ctx context.Context, orderID string) (domain.CheckoutSession, error)
	FindByGatewaySession(ctx context.Context, gatewaySessionID string) (domain.CheckoutSession, error)
	// Mutate applies fn inside a transaction; see OrderRepository.Mutate.
	Mutate(ctx context.Context, orderID string, fn func(*domain.CheckoutSession) error) (domain.CheckoutSession, error)
	ListStale(ctx context.Context, status domain.CheckoutStatus, updatedBefore time.Time, limit int) ([]domain.CheckoutSession, error)
}

// RefundRepository persists per-line refunds.
type RefundRepository interface {
	Insert(ctx context.Context, refund domain.Refund) error
	Update(ctx context.Context, refund domain.Refund) error
	ListByOrder(ctx context.Context, orderID string) ([]domain.Refund, error)
}

// HealthRepository exposes status of downstream dependencies for readiness checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.HealthReport, error)
}

// ProductListFilter narrows product listings.
type ProductListFilter struct {
	ActiveOnly bool
	Pagination domain.Pagination
}

// PromotionListFilter narrows promotion listings.
type PromotionListFilter struct {
	ActiveOnly bool
	Pagination domain.Pagination
}

// OrderListFilter narrows order listings. An empty CustomerID lists every customer (admin).
type OrderListFilter struct {
	CustomerID string
	Status     domain.OrderStatus
	Pagination domain.Pagination
}
