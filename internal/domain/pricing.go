package domain

import (
	"slices"
	"time"
)

// PromotionBy distinguishes value discounts from quantity (buy X get Y) rules.
type PromotionBy string

const (
	PromotionByValue    PromotionBy = "ByValue"
	PromotionByQuantity PromotionBy = "ByQuantity"
)

// PromotionType is the unit a ByValue promotion is expressed in.
type PromotionType string

const (
	// PromotionTypePercent discounts a percentage of the price.
	PromotionTypePercent PromotionType = "%"
	// PromotionTypeFlat subtracts a flat amount in major currency units.
	PromotionTypeFlat PromotionType = "INR"
)

// PromotionHeader is the list projection of a promotion.
type PromotionHeader struct {
	ID            string
	Name          string
	PromotionBy   PromotionBy
	PromotionType PromotionType
	Value         float64
	Active        bool
}

// Promotion is the full promotion record.
type Promotion struct {
	ID            string
	Name          string
	Description   string
	PromotionBy   PromotionBy
	PromotionType PromotionType
	Value         float64
	Active        bool
	StartsAt      *time.Time
	EndsAt        *time.Time
	ProductIDs    []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Header returns the list projection.
func (p Promotion) Header() PromotionHeader {
	return PromotionHeader{
		ID:            p.ID,
		Name:          p.Name,
		PromotionBy:   p.PromotionBy,
		PromotionType: p.PromotionType,
		Value:         p.Value,
		Active:        p.Active,
	}
}

// InWindow reports whether t falls inside the promotion schedule. Open ends are unbounded.
func (p Promotion) InWindow(t time.Time) bool {
	if p.StartsAt != nil && t.Before(*p.StartsAt) {
		return false
	}
	if p.EndsAt != nil && !t.Before(*p.EndsAt) {
		return false
	}
	return true
}

// AppliesTo reports whether the promotion targets the product. An empty product list targets all products.
func (p Promotion) AppliesTo(productID string) bool {
	if len(p.ProductIDs) == 0 {
		return true
	}
	return slices.Contains(p.ProductIDs, productID)
}

// DiscountResult is the outcome of applying promotions to a single price.
type DiscountResult struct {
	BasePrice       int64
	DiscountedPrice int64
	Discount        int64
	PercentOff      float64
	Promotion       *PromotionHeader
}

// CheckoutStatus is the state of a checkout attempt.
type CheckoutStatus string

const (
	CheckoutStatusNotStarted CheckoutStatus = "NOT_STARTED"
	CheckoutStatusPending    CheckoutStatus = "PENDING"
	CheckoutStatusCompleted  CheckoutStatus = "COMPLETED"
	CheckoutStatusFailed     CheckoutStatus = "FAILED"
)

var checkoutTransitions = map[CheckoutStatus][]CheckoutStatus{
	CheckoutStatusNotStarted: {CheckoutStatusPending, CheckoutStatusCompleted, CheckoutStatusFailed},
	CheckoutStatusPending:    {CheckoutStatusCompleted, CheckoutStatusFailed},
}

// CanTransition reports whether the checkout may move from s to next.
func (s CheckoutStatus) CanTransition(next CheckoutStatus) bool {
	return slices.Contains(checkoutTransitions[s], next)
}

// Terminal reports whether no further transitions are possible.
func (s CheckoutStatus) Terminal() bool {
	return s == CheckoutStatusCompleted || s == CheckoutStatusFailed
}

// CheckoutSession tracks a single checkout attempt for an order.
type CheckoutSession struct {
	OrderID          string
	CustomerID       string
	TemplateID       string
	Status           CheckoutStatus
	PaymentType      PaymentType
	GatewayProvider  string
	GatewaySessionID string
	PaymentIntentID  string
	RedirectURL      string
	ClientSecret     string
	FailureReason    string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
