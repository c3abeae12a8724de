package firestore

import (
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
)

type customerDocument struct {
	Name         string    `firestore:"name"`
	Email        string    `firestore:"email"`
	Mobile       string    `firestore:"mobile"`
	PasswordHash string    `firestore:"passwordHash"`
	Locale       string    `firestore:"locale"`
	CreatedAt    time.Time `firestore:"createdAt"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

func newCustomerDocument(c domain.Customer) customerDocument {
	return customerDocument{
		Name:         c.Name,
		Email:        c.Email,
		Mobile:       c.Mobile,
		PasswordHash: c.PasswordHash,
		Locale:       c.Locale,
		CreatedAt:    c.CreatedAt.UTC(),
		UpdatedAt:    c.UpdatedAt.UTC(),
	}
}

func (d customerDocument) toDomain(id string) domain.Customer {
	return domain.Customer{
		ID:           id,
		Name:         d.Name,
		Email:        d.Email,
		Mobile:       d.Mobile,
		PasswordHash: d.PasswordHash,
		Locale:       d.Locale,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

type addressDocument struct {
	Name      string    `firestore:"name"`
	Mobile    string    `firestore:"mobile"`
	Line1     string    `firestore:"line1"`
	Line2     string    `firestore:"line2,omitempty"`
	City      string    `firestore:"city"`
	State     string    `firestore:"state"`
	Pincode   string    `firestore:"pincode"`
	Country   string    `firestore:"country"`
	IsDefault bool      `firestore:"isDefault"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func newAddressDocument(a domain.Address) addressDocument {
	return addressDocument{
		Name:      a.Name,
		Mobile:    a.Mobile,
		Line1:     a.Line1,
		Line2:     a.Line2,
		City:      a.City,
		State:     a.State,
		Pincode:   a.Pincode,
		Country:   a.Country,
		IsDefault: a.IsDefault,
		CreatedAt: a.CreatedAt.UTC(),
		UpdatedAt: a.UpdatedAt.UTC(),
	}
}

func (d addressDocument) toDomain(customerID, id string) domain.Address {
	return domain.Address{
		ID:         id,
		CustomerID: customerID,
		Name:       d.Name,
		Mobile:     d.Mobile,
		Line1:      d.Line1,
		Line2:      d.Line2,
		City:       d.City,
		State:      d.State,
		Pincode:    d.Pincode,
		Country:    d.Country,
		IsDefault:  d.IsDefault,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

type productDocument struct {
	SKU                 string    `firestore:"sku"`
	Name                string    `firestore:"name"`
	DescriptionMarkdown string    `firestore:"descriptionMarkdown"`
	DescriptionHTML     string    `firestore:"descriptionHtml"`
	Price               int64     `firestore:"price"`
	Currency            string    `firestore:"currency"`
	Stock               int       `firestore:"stock"`
	ImagePaths          []string  `firestore:"imagePaths"`
	PromotionIDs        []string  `firestore:"promotionIds"`
	Active              bool      `firestore:"active"`
	CreatedAt           time.Time `firestore:"createdAt"`
	UpdatedAt           time.Time `firestore:"updatedAt"`
}

func newProductDocument(p domain.Product) productDocument {
	return productDocument{
		SKU:                 p.SKU,
		Name:                p.Name,
		DescriptionMarkdown: p.DescriptionMarkdown,
		DescriptionHTML:     p.DescriptionHTML,
		Price:               p.Price,
		Currency:            p.Currency,
		Stock:               p.Stock,
		ImagePaths:          p.ImagePaths,
		PromotionIDs:        p.PromotionIDs,
		Active:              p.Active,
		CreatedAt:           p.CreatedAt.UTC(),
		UpdatedAt:           p.UpdatedAt.UTC(),
	}
}

func (d productDocument) toDomain(id string) domain.Product {
	return domain.Product{
		ID:                  id,
		SKU:                 d.SKU,
		Name:                d.Name,
		DescriptionMarkdown: d.DescriptionMarkdown,
		DescriptionHTML:     d.DescriptionHTML,
		Price:               d.Price,
		Currency:            d.Currency,
		Stock:               d.Stock,
		ImagePaths:          d.ImagePaths,
		PromotionIDs:        d.PromotionIDs,
		Active:              d.Active,
		CreatedAt:           d.CreatedAt,
		UpdatedAt:           d.UpdatedAt,
	}
}

type promotionDocument struct {
	Name          string     `firestore:"name"`
	Description   string     `firestore:"description"`
	PromotionBy   string     `firestore:"promotionBy"`
	PromotionType string     `firestore:"promotionType"`
	Value         float64    `firestore:"value"`
	Active        bool       `firestore:"active"`
	StartsAt      *time.Time `firestore:"startsAt"`
	EndsAt        *time.Time `firestore:"endsAt"`
	ProductIDs    []string   `firestore:"productIds"`
	CreatedAt     time.Time  `firestore:"createdAt"`
	UpdatedAt     time.Time  `firestore:"updatedAt"`
}

func newPromotionDocument(p domain.Promotion) promotionDocument {
	return promotionDocument{
		Name:          p.Name,
		Description:   p.Description,
		PromotionBy:   string(p.PromotionBy),
		PromotionType: string(p.PromotionType),
		Value:         p.Value,
		Active:        p.Active,
		StartsAt:      p.StartsAt,
		EndsAt:        p.EndsAt,
		ProductIDs:    p.ProductIDs,
		CreatedAt:     p.CreatedAt.UTC(),
		UpdatedAt:     p.UpdatedAt.UTC(),
	}
}

func (d promotionDocument) toDomain(id string) domain.Promotion {
	return domain.Promotion{
		ID:            id,
		Name:          d.Name,
		Description:   d.Description,
		PromotionBy:   domain.PromotionBy(d.PromotionBy),
		PromotionType: domain.PromotionType(d.PromotionType),
		Value:         d.Value,
		Active:        d.Active,
		StartsAt:      d.StartsAt,
		EndsAt:        d.EndsAt,
		ProductIDs:    d.ProductIDs,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

type cartItemDocument struct {
	ProductID       string  `firestore:"productId"`
	SKU             string  `firestore:"sku"`
	Name            string  `firestore:"name"`
	Quantity        int     `firestore:"quantity"`
	UnitPrice       int64   `firestore:"unitPrice"`
	DiscountedPrice int64   `firestore:"discountedPrice"`
	PercentOff      float64 `firestore:"percentOff"`
	PromotionID     string  `firestore:"promotionId,omitempty"`
}

type cartDocument struct {
	Currency  string             `firestore:"currency"`
	Items     []cartItemDocument `firestore:"items"`
	Subtotal  int64              `firestore:"subtotal"`
	Discount  int64              `firestore:"discount"`
	Total     int64              `firestore:"total"`
	UpdatedAt time.Time          `firestore:"updatedAt"`
}

func newCartDocument(c domain.Cart) cartDocument {
	items := make([]cartItemDocument, 0, len(c.Items))
	for _, item := range c.Items {
		items = append(items, cartItemDocument(item))
	}
	return cartDocument{
		Currency:  c.Currency,
		Items:     items,
		Subtotal:  c.Subtotal,
		Discount:  c.Discount,
		Total:     c.Total,
		UpdatedAt: c.UpdatedAt.UTC(),
	}
}

func (d cartDocument) toDomain(customerID string) domain.Cart {
	items := make([]domain.CartItem, 0, len(d.Items))
	for _, item := range d.Items {
		items = append(items, domain.CartItem(item))
	}
	return domain.Cart{
		CustomerID: customerID,
		Currency:   d.Currency,
		Items:      items,
		Subtotal:   d.Subtotal,
		Discount:   d.Discount,
		Total:      d.Total,
		UpdatedAt:  d.UpdatedAt,
	}
}

type orderLineDocument struct {
	LineID          string `firestore:"lineId"`
	ProductID       string `firestore:"productId"`
	SKU             string `firestore:"sku"`
	Name            string `firestore:"name"`
	Quantity        int    `firestore:"quantity"`
	UnitPrice       int64  `firestore:"unitPrice"`
	DiscountedPrice int64  `firestore:"discountedPrice"`
	Status          string `firestore:"status"`
	RefundStatus    string `firestore:"refundStatus"`
	ShipmentID      string `firestore:"shipmentId"`
}

type orderDocument struct {
	CustomerID      string              `firestore:"customerId"`
	TemplateID      string              `firestore:"templateId"`
	Status          string              `firestore:"status"`
	PaymentType     string              `firestore:"paymentType"`
	AddressID       string              `firestore:"addressId"`
	Address         addressDocument     `firestore:"address"`
	Lines           []orderLineDocument `firestore:"lines"`
	Currency        string              `firestore:"currency"`
	Subtotal        int64               `firestore:"subtotal"`
	Discount        int64               `firestore:"discount"`
	Shipping        int64               `firestore:"shipping"`
	Total           int64               `firestore:"total"`
	PaymentIntentID string              `firestore:"paymentIntentId"`
	ShipmentID      string              `firestore:"shipmentId"`
	CheckoutStatus  string              `firestore:"checkoutStatus"`
	CreatedAt       time.Time           `firestore:"createdAt"`
	UpdatedAt       time.Time           `firestore:"updatedAt"`
	PlacedAt        *time.Time          `firestore:"placedAt"`
}

func newOrderDocument(o domain.OrderSummary) orderDocument {
	lines := make([]orderLineDocument, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, orderLineDocument{
			LineID:          l.LineID,
			ProductID:       l.ProductID,
			SKU:             l.SKU,
			Name:            l.Name,
			Quantity:        l.Quantity,
			UnitPrice:       l.UnitPrice,
			DiscountedPrice: l.DiscountedPrice,
			Status:          string(l.Status),
			RefundStatus:    string(l.RefundStatus),
			ShipmentID:      l.ShipmentID,
		})
	}
	return orderDocument{
		CustomerID:      o.CustomerID,
		TemplateID:      o.TemplateID,
		Status:          string(o.Status),
		PaymentType:     string(o.PaymentType),
		AddressID:       o.AddressID,
		Address:         newAddressDocument(o.Address),
		Lines:           lines,
		Currency:        o.Currency,
		Subtotal:        o.Totals.Subtotal,
		Discount:        o.Totals.Discount,
		Shipping:        o.Totals.Shipping,
		Total:           o.Totals.Total,
		PaymentIntentID: o.PaymentIntentID,
		ShipmentID:      o.ShipmentID,
		CheckoutStatus:  string(o.CheckoutStatus),
		CreatedAt:       o.CreatedAt.UTC(),
		UpdatedAt:       o.UpdatedAt.UTC(),
		PlacedAt:        o.PlacedAt,
	}
}

func (d orderDocument) toDomain(id string) domain.OrderSummary {
	lines := make([]domain.OrderLine, 0, len(d.Lines))
	for _, l := range d.Lines {
		lines = append(lines, domain.OrderLine{
			LineID:          l.LineID,
			ProductID:       l.ProductID,
			SKU:             l.SKU,
			Name:            l.Name,
			Quantity:        l.Quantity,
			UnitPrice:       l.UnitPrice,
			DiscountedPrice: l.DiscountedPrice,
			Status:          domain.OrderStatus(l.Status),
			RefundStatus:    domain.RefundStatus(l.RefundStatus),
			ShipmentID:      l.ShipmentID,
		})
	}
	return domain.OrderSummary{
		ID:              id,
		CustomerID:      d.CustomerID,
		TemplateID:      d.TemplateID,
		Status:          domain.OrderStatus(d.Status),
		PaymentType:     domain.PaymentType(d.PaymentType),
		AddressID:       d.AddressID,
		Address:         d.Address.toDomain(d.CustomerID, d.AddressID),
		Lines:           lines,
		Currency:        d.Currency,
		Totals:          domain.OrderTotals{Subtotal: d.Subtotal, Discount: d.Discount, Shipping: d.Shipping, Total: d.Total},
		PaymentIntentID: d.PaymentIntentID,
		ShipmentID:      d.ShipmentID,
		CheckoutStatus:  domain.CheckoutStatus(d.CheckoutStatus),
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
		PlacedAt:        d.PlacedAt,
	}
}

type checkoutDocument struct {
	CustomerID       string    `firestore:"customerId"`
	TemplateID       string    `firestore:"templateId"`
	Status           string    `firestore:"status"`
	PaymentType      string    `firestore:"paymentType"`
	GatewayProvider  string    `firestore:"gatewayProvider"`
	GatewaySessionID string    `firestore:"gatewaySessionId"`
	PaymentIntentID  string    `firestore:"paymentIntentId"`
	RedirectURL      string    `firestore:"redirectUrl"`
	ClientSecret     string    `firestore:"clientSecret"`
	FailureReason    string    `firestore:"failureReason"`
	CreatedAt        time.Time `firestore:"createdAt"`
	UpdatedAt        time.Time `firestore:"updatedAt"`
}

func newCheckoutDocument(s domain.CheckoutSession) checkoutDocument {
	return checkoutDocument{
		CustomerID:       s.CustomerID,
		TemplateID:       s.TemplateID,
		Status:           string(s.Status),
		PaymentType:      string(s.PaymentType),
		GatewayProvider:  s.GatewayProvider,
		GatewaySessionID: s.GatewaySessionID,
		PaymentIntentID:  s.PaymentIntentID,
		RedirectURL:      s.RedirectURL,
		ClientSecret:     s.ClientSecret,
		FailureReason:    s.FailureReason,
		CreatedAt:        s.CreatedAt.UTC(),
		UpdatedAt:        s.UpdatedAt.UTC(),
	}
}

func (d checkoutDocument) toDomain(orderID string) domain.CheckoutSession {
	return domain.CheckoutSession{
		OrderID:          orderID,
		CustomerID:       d.CustomerID,
		TemplateID:       d.TemplateID,
		Status:           domain.CheckoutStatus(d.Status),
		PaymentType:      domain.PaymentType(d.PaymentType),
		GatewayProvider:  d.GatewayProvider,
		GatewaySessionID: d.GatewaySessionID,
		PaymentIntentID:  d.PaymentIntentID,
		RedirectURL:      d.RedirectURL,
		ClientSecret:     d.ClientSecret,
		FailureReason:    d.FailureReason,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
}

type refundDocument struct {
	OrderID         string    `firestore:"orderId"`
	LineID          string    `firestore:"lineId"`
	CustomerID      string    `firestore:"customerId"`
	Amount          int64     `firestore:"amount"`
	Currency        string    `firestore:"currency"`
	Speed           string    `firestore:"speed"`
	Status          string    `firestore:"status"`
	GatewayRefundID string    `firestore:"gatewayRefundId"`
	ShipmentID      string    `firestore:"shipmentId"`
	Reason          string    `firestore:"reason"`
	CreatedAt       time.Time `firestore:"createdAt"`
	UpdatedAt       time.Time `firestore:"updatedAt"`
}

func newRefundDocument(r domain.Refund) refundDocument {
	return refundDocument{
		OrderID:         r.OrderID,
		LineID:          r.LineID,
		CustomerID:      r.CustomerID,
		Amount:          r.Amount,
		Currency:        r.Currency,
		Speed:           string(r.Speed),
		Status:          string(r.Status),
		GatewayRefundID: r.GatewayRefundID,
		ShipmentID:      r.ShipmentID,
		Reason:          r.Reason,
		CreatedAt:       r.CreatedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
	}
}

func (d refundDocument) toDomain(id string) domain.Refund {
	return domain.Refund{
		ID:              id,
		OrderID:         d.OrderID,
		LineID:          d.LineID,
		CustomerID:      d.CustomerID,
		Amount:          d.Amount,
		Currency:        d.Currency,
		Speed:           domain.RefundSpeed(d.Speed),
		Status:          domain.RefundStatus(d.Status),
		GatewayRefundID: d.GatewayRefundID,
		ShipmentID:      d.ShipmentID,
		Reason:          d.Reason,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}
