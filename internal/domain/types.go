package domain

import (
	"slices"
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage represents a paginated response with an optional next page token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// Customer is a storefront shopper account.
type Customer struct {
	ID           string
	Name         string
	Email        string
	Mobile       string
	PasswordHash string
	Locale       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Address is a shipping destination owned by a customer.
type Address struct {
	ID         string
	CustomerID string
	Name       string
	Mobile     string
	Line1      string
	Line2      string
	City       string
	State      string
	Pincode    string
	Country    string
	IsDefault  bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Product is a sellable catalogue entry. Prices are minor currency units.
type Product struct {
	ID                  string
	SKU                 string
	Name                string
	DescriptionMarkdown string
	DescriptionHTML     string
	Price               int64
	Currency            string
	Stock               int
	ImagePaths          []string
	PromotionIDs        []string
	Active              bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// CartItem stores a single product entry within a cart.
type CartItem struct {
	ProductID       string
	SKU             string
	Name            string
	Quantity        int
	UnitPrice       int64
	DiscountedPrice int64
	PercentOff      float64
	PromotionID     string
}

// LineTotal returns the discounted total for the line.
func (i CartItem) LineTotal() int64 {
	return i.DiscountedPrice * int64(i.Quantity)
}

// Cart aggregates the mutable shopping cart state for a customer.
type Cart struct {
	CustomerID string
	Currency   string
	Items      []CartItem
	Subtotal   int64
	Discount   int64
	Total      int64
	UpdatedAt  time.Time
}

// PaymentType selects how an order is paid.
type PaymentType string

const (
	// PaymentTypePrepaid routes the order through the payment gateway before confirmation.
	PaymentTypePrepaid PaymentType = "PREPAID"
	// PaymentTypeCashOnDelivery confirms the order immediately and collects payment on delivery.
	PaymentTypeCashOnDelivery PaymentType = "CASH_ON_DELIVERY"
)

// Valid reports whether the payment type is supported.
func (p PaymentType) Valid() bool {
	return p == PaymentTypePrepaid || p == PaymentTypeCashOnDelivery
}

// OrderStatus mirrors the status strings stored on orders and order lines.
type OrderStatus string

const (
	OrderStatusPlaced     OrderStatus = "Placed"
	OrderStatusConfirmed  OrderStatus = "Confirmed"
	OrderStatusDispatched OrderStatus = "Dispatched"
	OrderStatusDelivered  OrderStatus = "Delivered"
	OrderStatusCancelled  OrderStatus = "Cancelled"
	OrderStatusReturned   OrderStatus = "Returned"
	OrderStatusFailed     OrderStatus = "Failed"
)

// RefundStatus tracks the refund state of an order line.
type RefundStatus string

const (
	RefundStatusNone      RefundStatus = ""
	RefundStatusRequested RefundStatus = "requested"
	RefundStatusProcessed RefundStatus = "processed"
	RefundStatusPending   RefundStatus = "pending_settlement"
	RefundStatusFailed    RefundStatus = "failed"
)

// OrderTotals captures the monetary summary of an order.
type OrderTotals struct {
	Subtotal int64
	Discount int64
	Shipping int64
	Total    int64
}

// OrderLine is the detail row of an order summary.
type OrderLine struct {
	LineID          string
	ProductID       string
	SKU             string
	Name            string
	Quantity        int
	UnitPrice       int64
	DiscountedPrice int64
	Status          OrderStatus
	RefundStatus    RefundStatus
	ShipmentID      string
}

// Total returns the amount charged for the line.
func (l OrderLine) Total() int64 {
	return l.DiscountedPrice * int64(l.Quantity)
}

// OrderSummary is the order header returned to customers and admins.
type OrderSummary struct {
	ID              string
	CustomerID      string
	TemplateID      string
	Status          OrderStatus
	PaymentType     PaymentType
	AddressID       string
	Address         Address
	Lines           []OrderLine
	Currency        string
	Totals          OrderTotals
	PaymentIntentID string
	ShipmentID      string
	CheckoutStatus  CheckoutStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
	PlacedAt        *time.Time
}

// Line returns the order line with the given identifier.
func (o OrderSummary) Line(lineID string) (OrderLine, bool) {
	for _, line := range o.Lines {
		if line.LineID == lineID {
			return line, true
		}
	}
	return OrderLine{}, false
}

// ShipmentKind distinguishes forward deliveries from customer returns.
type ShipmentKind string

const (
	ShipmentKindForward ShipmentKind = "forward"
	ShipmentKindReverse ShipmentKind = "reverse"
)

// Shipment records a carrier consignment for an order.
type Shipment struct {
	ID             string
	OrderID        string
	LineIDs        []string
	Carrier        string
	TrackingNumber string
	Kind           ShipmentKind
	Status         string
	CreatedAt      time.Time
}

// RefundSpeed selects how quickly the gateway returns funds.
type RefundSpeed string

const (
	RefundSpeedNormal  RefundSpeed = "normal"
	RefundSpeedInstant RefundSpeed = "instant"
)

// Refund records a refund issued for a single order line.
type Refund struct {
	ID              string
	OrderID         string
	LineID          string
	CustomerID      string
	Amount          int64
	Currency        string
	Speed           RefundSpeed
	Status          RefundStatus
	GatewayRefundID string
	ShipmentID      string
	Reason          string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPlaced:     {OrderStatusConfirmed, OrderStatusCancelled, OrderStatusFailed},
	OrderStatusConfirmed:  {OrderStatusDispatched, OrderStatusCancelled},
	OrderStatusDispatched: {OrderStatusDelivered, OrderStatusReturned},
	OrderStatusDelivered:  {OrderStatusReturned},
}

// CanTransition reports whether an order or line may move from s to next.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	return slices.Contains(orderTransitions[s], next)
}

// Shipped reports whether goods have left the warehouse, which makes a refund need a reverse pickup.
func (s OrderStatus) Shipped() bool {
	return s == OrderStatusDispatched || s == OrderStatusDelivered
}

// Health status values reported by readiness probes.
const (
	HealthStatusOK       = "ok"
	HealthStatusDegraded = "degraded"
	HealthStatusError    = "error"
)

// HealthCheck is the result of probing one dependency.
type HealthCheck struct {
	Status    string
	Detail    string
	Latency   time.Duration
	CheckedAt time.Time
}

// HealthReport aggregates dependency probes.
type HealthReport struct {
	Status      string
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	Checks      map[string]HealthCheck
	GeneratedAt time.Time
}
