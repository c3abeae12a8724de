package services

import (
	"context"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/notifications"
	"github.com/hanko-field/storefront/internal/payments"
	"github.com/hanko-field/storefront/internal/platform/storage"
	"github.com/hanko-field/storefront/internal/repositories"
	"github.com/hanko-field/storefront/internal/shipping"
	"github.com/hanko-field/storefront/internal/storefront"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination      = domain.Pagination
	Customer        = domain.Customer
	Address         = domain.Address
	Product         = domain.Product
	Promotion       = domain.Promotion
	PromotionHeader = domain.PromotionHeader
	DiscountResult  = domain.DiscountResult
	Cart            = domain.Cart
	CartItem        = domain.CartItem
	Order           = domain.OrderSummary
	OrderLine       = domain.OrderLine
	OrderStatus     = domain.OrderStatus
	CheckoutSession = domain.CheckoutSession
	Refund          = domain.Refund
	Shipment        = domain.Shipment
	HealthReport    = domain.HealthReport
)

// EventLogger receives structured service events; main adapts it to zap.
type EventLogger func(ctx context.Context, event string, fields map[string]any)

// PromotionService manages promotion rules and quotes discounted prices.
type PromotionService interface {
	ListPromotions(ctx context.Context, filter repositories.PromotionListFilter) (domain.CursorPage[Promotion], error)
	GetPromotion(ctx context.Context, promotionID string) (Promotion, error)
	CreatePromotion(ctx context.Context, cmd UpsertPromotionCommand) (Promotion, error)
	UpdatePromotion(ctx context.Context, cmd UpsertPromotionCommand) (Promotion, error)
	DeletePromotion(ctx context.Context, promotionID string) error
	// ActiveFor returns the promotions currently in force for the product, oldest first.
	ActiveFor(ctx context.Context, productID string) ([]Promotion, error)
	Quote(ctx context.Context, productID string) (ProductQuote, error)
}

// ProductService serves the catalogue to shoppers and admins.
type ProductService interface {
	ListProducts(ctx context.Context, page Pagination) (domain.CursorPage[ProductQuote], error)
	GetProduct(ctx context.Context, productID string) (ProductQuote, error)
	AdminListProducts(ctx context.Context, page Pagination) (domain.CursorPage[Product], error)
	AdminGetProduct(ctx context.Context, productID string) (Product, error)
	CreateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error)
	UpdateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error)
	DeleteProduct(ctx context.Context, productID string) error
	ImageUploadURL(ctx context.Context, productID, contentType string) (storage.SignedURL, error)
}

// CartService manages the mutable cart and prices it through the promotion engine.
type CartService interface {
	GetCart(ctx context.Context, customerID string) (Cart, error)
	AddItem(ctx context.Context, cmd CartItemCommand) (Cart, error)
	SetQuantity(ctx context.Context, cmd CartItemCommand) (Cart, error)
	RemoveItem(ctx context.Context, customerID, productID string) (Cart, error)
	ClearCart(ctx context.Context, customerID string) error
}

// CustomerService handles registration, login, profile and address book.
type CustomerService interface {
	Register(ctx context.Context, cmd RegisterCommand) (AuthResult, error)
	Login(ctx context.Context, cmd LoginCommand) (AuthResult, error)
	GetProfile(ctx context.Context, customerID string) (Customer, error)
	UpdateProfile(ctx context.Context, cmd UpdateProfileCommand) (Customer, error)
	ListAddresses(ctx context.Context, customerID string) ([]Address, error)
	UpsertAddress(ctx context.Context, cmd UpsertAddressCommand) (Address, error)
	DeleteAddress(ctx context.Context, customerID, addressID string) error
}

// CheckoutService drives the NOT_STARTED -> PENDING -> COMPLETED | FAILED state machine.
type CheckoutService interface {
	Start(ctx context.Context, cmd StartCheckoutCommand) (CheckoutResult, error)
	VerifyPayment(ctx context.Context, cmd VerifyPaymentCommand) (CheckoutResult, error)
	HandlePaymentEvent(ctx context.Context, event payments.WebhookEvent) error
	Status(ctx context.Context, customerID, orderID string) (CheckoutResult, error)
	ExpireStale(ctx context.Context, limit int) (ExpireResult, error)
}

// RefundService refunds order lines through the gateway and carrier.
type RefundService interface {
	RequestRefund(ctx context.Context, cmd RefundCommand) (RefundResult, error)
	AdminRefund(ctx context.Context, cmd RefundCommand) (RefundResult, error)
}

// OrderService exposes order reads and admin status changes.
type OrderService interface {
	ListOrders(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[Order], error)
	GetOrder(ctx context.Context, customerID, orderID string) (Order, error)
	AdminGetOrder(ctx context.Context, orderID string) (Order, error)
	UpdateStatus(ctx context.Context, cmd OrderStatusCommand) (Order, error)
}

// SystemService aggregates utility endpoints.
type SystemService interface {
	HealthReport(ctx context.Context) (HealthReport, error)
}

// TemplateCatalog resolves storefront templates.
type TemplateCatalog interface {
	Get(id string) (storefront.Template, error)
}

// PaymentGateway is the subset of payments.Manager the orchestrators use.
type PaymentGateway interface {
	CreateCheckoutSession(ctx context.Context, pc payments.PaymentContext, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error)
	LookupPayment(ctx context.Context, pc payments.PaymentContext, req payments.LookupRequest) (payments.PaymentDetails, error)
	Refund(ctx context.Context, pc payments.PaymentContext, req payments.RefundRequest) (payments.RefundResult, error)
}

// ShippingCarrier is the subset of shipping.Client the orchestrators use.
type ShippingCarrier interface {
	CreateShipment(ctx context.Context, req shipping.ShipmentRequest) (Shipment, error)
	CancelShipment(ctx context.Context, shipmentID, reason string) error
}

// ImageStore issues signed URLs for product images.
type ImageStore interface {
	UploadURL(ctx context.Context, productID, contentType string) (storage.SignedURL, error)
	ViewURL(ctx context.Context, object string) (storage.SignedURL, error)
	Remove(ctx context.Context, productID, object string) error
}

// SessionIssuer mints customer session tokens.
type SessionIssuer interface {
	Issue(customerID, email string) (string, time.Time, error)
}

// NotificationPublisher is satisfied by notifications.PubSubPublisher.
type NotificationPublisher = notifications.Publisher

// Command and DTO definitions ------------------------------------------------

type UpsertPromotionCommand struct {
	PromotionID   string
	Name          string
	Description   string
	PromotionBy   domain.PromotionBy
	PromotionType domain.PromotionType
	Value         float64
	Active        bool
	StartsAt      *time.Time
	EndsAt        *time.Time
	ProductIDs    []string
}

// ProductQuote is a product with its current promotion price applied.
type ProductQuote struct {
	Product   Product
	Discount  DiscountResult
	ImageURLs []string
}

type UpsertProductCommand struct {
	ProductID           string
	SKU                 string
	Name                string
	DescriptionMarkdown string
	Price               int64
	Currency            string
	Stock               int
	ImagePaths          []string
	PromotionIDs        []string
	Active              bool
}

type CartItemCommand struct {
	CustomerID string
	ProductID  string
	Quantity   int
}

type RegisterCommand struct {
	Name     string `json:"name" validate:"required,name"`
	Email    string `json:"email" validate:"required,storefront_email"`
	Mobile   string `json:"mobile" validate:"required,mobile"`
	Password string `json:"password" validate:"required,password"`
	Locale   string `json:"locale" validate:"omitempty,max=16"`
}

type LoginCommand struct {
	Email    string `json:"email" validate:"required,storefront_email"`
	Password string `json:"password" validate:"required,max=64"`
}

// AuthResult carries the customer and a fresh session token.
type AuthResult struct {
	Customer  Customer
	Token     string
	ExpiresAt time.Time
}

type UpdateProfileCommand struct {
	CustomerID string  `json:"-"`
	Name       *string `json:"name" validate:"omitempty,name"`
	Mobile     *string `json:"mobile" validate:"omitempty,mobile"`
	Locale     *string `json:"locale" validate:"omitempty,max=16"`
}

type UpsertAddressCommand struct {
	CustomerID string `json:"-"`
	AddressID  string `json:"-"`
	Name       string `json:"name" validate:"required,name"`
	Mobile     string `json:"mobile" validate:"required,mobile"`
	Line1      string `json:"line1" validate:"required,max=120"`
	Line2      string `json:"line2" validate:"omitempty,max=120"`
	City       string `json:"city" validate:"required,max=60"`
	State      string `json:"state" validate:"required,max=60"`
	Pincode    string `json:"pincode" validate:"required,pincode"`
	Country    string `json:"country" validate:"omitempty,len=2"`
	IsDefault  bool   `json:"isDefault"`
}

type StartCheckoutCommand struct {
	CustomerID     string
	AddressID      string
	PaymentType    domain.PaymentType
	TemplateID     string
	SuccessURL     string
	CancelURL      string
	IdempotencyKey string
}

type VerifyPaymentCommand struct {
	CustomerID string
	OrderID    string
}

// CheckoutResult is the checkout view returned to the client.
type CheckoutResult struct {
	Session      CheckoutSession
	Order        Order
	RedirectURL  string
	ClientSecret string
}

// ExpireResult summarises a stale checkout sweep.
type ExpireResult struct {
	Examined int
	Expired  int
	Failed   []string
}

type RefundCommand struct {
	CustomerID string
	OrderID    string
	LineIDs    []string
	Reason     string
	ActorID    string
}

// RefundLineFailure explains why a line could not be refunded.
type RefundLineFailure struct {
	LineID string
	Err    error
}

// RefundResult lists refunds created and lines that failed. A partially failed request still
// returns the refunds that succeeded.
type RefundResult struct {
	OrderID  string
	Refunds  []Refund
	Failures []RefundLineFailure
}

type OrderStatusCommand struct {
	OrderID  string
	LineIDs  []string
	Status   OrderStatus
	ActorID  string
	Reason   string
	Shipment string
}
