package handlers

import (
	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/services"
)

type promotionHeaderPayload struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	PromotionBy   string  `json:"promotionBy"`
	PromotionType string  `json:"promotionType"`
	Value         float64 `json:"value"`
	Active        bool    `json:"active"`
}

type discountPayload struct {
	BasePrice       int64                   `json:"basePrice"`
	DiscountedPrice int64                   `json:"discountedPrice"`
	Discount        int64                   `json:"discount"`
	PercentOff      float64                 `json:"percentOff"`
	Promotion       *promotionHeaderPayload `json:"promotion,omitempty"`
}

type productPayload struct {
	ID              string          `json:"id"`
	SKU             string          `json:"sku"`
	Name            string          `json:"name"`
	DescriptionHTML string          `json:"descriptionHtml,omitempty"`
	Currency        string          `json:"currency"`
	InStock         bool            `json:"inStock"`
	Pricing         discountPayload `json:"pricing"`
	ImageURLs       []string        `json:"imageUrls,omitempty"`
}

type adminProductPayload struct {
	ID                  string   `json:"id"`
	SKU                 string   `json:"sku"`
	Name                string   `json:"name"`
	DescriptionMarkdown string   `json:"descriptionMarkdown,omitempty"`
	DescriptionHTML     string   `json:"descriptionHtml,omitempty"`
	Price               int64    `json:"price"`
	Currency            string   `json:"currency"`
	Stock               int      `json:"stock"`
	ImagePaths          []string `json:"imagePaths,omitempty"`
	PromotionIDs        []string `json:"promotionIds,omitempty"`
	Active              bool     `json:"active"`
	CreatedAt           string   `json:"createdAt,omitempty"`
	UpdatedAt           string   `json:"updatedAt,omitempty"`
}

type promotionPayload struct {
	promotionHeaderPayload
	Description string   `json:"description,omitempty"`
	StartsAt    string   `json:"startsAt,omitempty"`
	EndsAt      string   `json:"endsAt,omitempty"`
	ProductIDs  []string `json:"productIds,omitempty"`
	CreatedAt   string   `json:"createdAt,omitempty"`
	UpdatedAt   string   `json:"updatedAt,omitempty"`
}

type customerPayload struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Mobile    string `json:"mobile"`
	Locale    string `json:"locale,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
}

type addressPayload struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Mobile    string `json:"mobile"`
	Line1     string `json:"line1"`
	Line2     string `json:"line2,omitempty"`
	City      string `json:"city"`
	State     string `json:"state"`
	Pincode   string `json:"pincode"`
	Country   string `json:"country,omitempty"`
	IsDefault bool   `json:"isDefault"`
}

type cartItemPayload struct {
	ProductID       string  `json:"productId"`
	SKU             string  `json:"sku"`
	Name            string  `json:"name"`
	Quantity        int     `json:"quantity"`
	UnitPrice       int64   `json:"unitPrice"`
	DiscountedPrice int64   `json:"discountedPrice"`
	PercentOff      float64 `json:"percentOff"`
	PromotionID     string  `json:"promotionId,omitempty"`
	LineTotal       int64   `json:"lineTotal"`
}

type cartPayload struct {
	Currency  string            `json:"currency"`
	Items     []cartItemPayload `json:"items"`
	Subtotal  int64             `json:"subtotal"`
	Discount  int64             `json:"discount"`
	Total     int64             `json:"total"`
	UpdatedAt string            `json:"updatedAt,omitempty"`
}

type orderLinePayload struct {
	LineID          string `json:"lineId"`
	ProductID       string `json:"productId"`
	SKU             string `json:"sku"`
	Name            string `json:"name"`
	Quantity        int    `json:"quantity"`
	UnitPrice       int64  `json:"unitPrice"`
	DiscountedPrice int64  `json:"discountedPrice"`
	Total           int64  `json:"total"`
	Status          string `json:"status"`
	RefundStatus    string `json:"refundStatus,omitempty"`
	ShipmentID      string `json:"shipmentId,omitempty"`
}

type orderTotalsPayload struct {
	Subtotal int64 `json:"subtotal"`
	Discount int64 `json:"discount"`
	Shipping int64 `json:"shipping"`
	Total    int64 `json:"total"`
}

type orderPayload struct {
	ID             string             `json:"id"`
	CustomerID     string             `json:"customerId,omitempty"`
	Status         string             `json:"status"`
	PaymentType    string             `json:"paymentType"`
	CheckoutStatus string             `json:"checkoutStatus,omitempty"`
	Currency       string             `json:"currency"`
	Totals         orderTotalsPayload `json:"totals"`
	Address        addressPayload     `json:"address"`
	Lines          []orderLinePayload `json:"lines"`
	ShipmentID     string             `json:"shipmentId,omitempty"`
	PlacedAt       string             `json:"placedAt,omitempty"`
	CreatedAt      string             `json:"createdAt,omitempty"`
	UpdatedAt      string             `json:"updatedAt,omitempty"`
}

type refundPayload struct {
	ID         string `json:"id"`
	LineID     string `json:"lineId"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	Speed      string `json:"speed"`
	Status     string `json:"status"`
	ShipmentID string `json:"shipmentId,omitempty"`
	CreatedAt  string `json:"createdAt,omitempty"`
}

type refundFailurePayload struct {
	LineID string `json:"lineId"`
	Reason string `json:"reason"`
}

type refundResultPayload struct {
	OrderID  string                 `json:"orderId"`
	Refunds  []refundPayload        `json:"refunds"`
	Failures []refundFailurePayload `json:"failures,omitempty"`
}

type checkoutPayload struct {
	OrderID       string        `json:"orderId"`
	Status        string        `json:"status"`
	PaymentType   string        `json:"paymentType"`
	RedirectURL   string        `json:"redirectUrl,omitempty"`
	ClientSecret  string        `json:"clientSecret,omitempty"`
	FailureReason string        `json:"failureReason,omitempty"`
	Order         *orderPayload `json:"order,omitempty"`
	UpdatedAt     string        `json:"updatedAt,omitempty"`
}

func buildPromotionHeader(h *domain.PromotionHeader) *promotionHeaderPayload {
	if h == nil {
		return nil
	}
	return &promotionHeaderPayload{
		ID:            h.ID,
		Name:          h.Name,
		PromotionBy:   string(h.PromotionBy),
		PromotionType: string(h.PromotionType),
		Value:         h.Value,
		Active:        h.Active,
	}
}

func buildDiscountPayload(d domain.DiscountResult) discountPayload {
	return discountPayload{
		BasePrice:       d.BasePrice,
		DiscountedPrice: d.DiscountedPrice,
		Discount:        d.Discount,
		PercentOff:      d.PercentOff,
		Promotion:       buildPromotionHeader(d.Promotion),
	}
}

func buildProductPayload(q services.ProductQuote) productPayload {
	return productPayload{
		ID:              q.Product.ID,
		SKU:             q.Product.SKU,
		Name:            q.Product.Name,
		DescriptionHTML: q.Product.DescriptionHTML,
		Currency:        q.Product.Currency,
		InStock:         q.Product.Stock > 0,
		Pricing:         buildDiscountPayload(q.Discount),
		ImageURLs:       q.ImageURLs,
	}
}

func buildAdminProductPayload(p domain.Product) adminProductPayload {
	return adminProductPayload{
		ID:                  p.ID,
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
		CreatedAt:           formatTime(p.CreatedAt),
		UpdatedAt:           formatTime(p.UpdatedAt),
	}
}

func buildPromotionPayload(p domain.Promotion) promotionPayload {
	header := p.Header()
	return promotionPayload{
		promotionHeaderPayload: *buildPromotionHeader(&header),
		Description:            p.Description,
		StartsAt:               formatTimePtr(p.StartsAt),
		EndsAt:                 formatTimePtr(p.EndsAt),
		ProductIDs:             p.ProductIDs,
		CreatedAt:              formatTime(p.CreatedAt),
		UpdatedAt:              formatTime(p.UpdatedAt),
	}
}

func buildCustomerPayload(c domain.Customer) customerPayload {
	return customerPayload{
		ID:        c.ID,
		Name:      c.Name,
		Email:     c.Email,
		Mobile:    c.Mobile,
		Locale:    c.Locale,
		CreatedAt: formatTime(c.CreatedAt),
	}
}

func buildAddressPayload(a domain.Address) addressPayload {
	return addressPayload{
		ID:        a.ID,
		Name:      a.Name,
		Mobile:    a.Mobile,
		Line1:     a.Line1,
		Line2:     a.Line2,
		City:      a.City,
		State:     a.State,
		Pincode:   a.Pincode,
		Country:   a.Country,
		IsDefault: a.IsDefault,
	}
}

func buildCartPayload(c domain.Cart) cartPayload {
	items := make([]cartItemPayload, 0, len(c.Items))
	for _, item := range c.Items {
		items = append(items, cartItemPayload{
			ProductID:       item.ProductID,
			SKU:             item.SKU,
			Name:            item.Name,
			Quantity:        item.Quantity,
			UnitPrice:       item.UnitPrice,
			DiscountedPrice: item.DiscountedPrice,
			PercentOff:      item.PercentOff,
			PromotionID:     item.PromotionID,
			LineTotal:       item.LineTotal(),
		})
	}
	return cartPayload{
		Currency:  c.Currency,
		Items:     items,
		Subtotal:  c.Subtotal,
		Discount:  c.Discount,
		Total:     c.Total,
		UpdatedAt: formatTime(c.UpdatedAt),
	}
}

func buildOrderPayload(o domain.OrderSummary, includeCustomer bool) orderPayload {
	lines := make([]orderLinePayload, 0, len(o.Lines))
	for _, line := range o.Lines {
		lines = append(lines, orderLinePayload{
			LineID:          line.LineID,
			ProductID:       line.ProductID,
			SKU:             line.SKU,
			Name:            line.Name,
			Quantity:        line.Quantity,
			UnitPrice:       line.UnitPrice,
			DiscountedPrice: line.DiscountedPrice,
			Total:           line.Total(),
			Status:          string(line.Status),
			RefundStatus:    string(line.RefundStatus),
			ShipmentID:      line.ShipmentID,
		})
	}
	payload := orderPayload{
		ID:             o.ID,
		Status:         string(o.Status),
		PaymentType:    string(o.PaymentType),
		CheckoutStatus: string(o.CheckoutStatus),
		Currency:       o.Currency,
		Totals: orderTotalsPayload{
			Subtotal: o.Totals.Subtotal,
			Discount: o.Totals.Discount,
			Shipping: o.Totals.Shipping,
			Total:    o.Totals.Total,
		},
		Address:    buildAddressPayload(o.Address),
		Lines:      lines,
		ShipmentID: o.ShipmentID,
		PlacedAt:   formatTimePtr(o.PlacedAt),
		CreatedAt:  formatTime(o.CreatedAt),
		UpdatedAt:  formatTime(o.UpdatedAt),
	}
	if includeCustomer {
		payload.CustomerID = o.CustomerID
	}
	return payload
}

func buildRefundResultPayload(result services.RefundResult) refundResultPayload {
	refunds := make([]refundPayload, 0, len(result.Refunds))
	for _, rf := range result.Refunds {
		refunds = append(refunds, refundPayload{
			ID:         rf.ID,
			LineID:     rf.LineID,
			Amount:     rf.Amount,
			Currency:   rf.Currency,
			Speed:      string(rf.Speed),
			Status:     string(rf.Status),
			ShipmentID: rf.ShipmentID,
			CreatedAt:  formatTime(rf.CreatedAt),
		})
	}
	var failures []refundFailurePayload
	for _, f := range result.Failures {
		reason := "refund failed"
		if f.Err != nil {
			reason = f.Err.Error()
		}
		failures = append(failures, refundFailurePayload{LineID: f.LineID, Reason: reason})
	}
	return refundResultPayload{OrderID: result.OrderID, Refunds: refunds, Failures: failures}
}

func buildCheckoutPayload(result services.CheckoutResult) checkoutPayload {
	session := result.Session
	payload := checkoutPayload{
		OrderID:       session.OrderID,
		Status:        string(session.Status),
		PaymentType:   string(session.PaymentType),
		RedirectURL:   result.RedirectURL,
		ClientSecret:  result.ClientSecret,
		FailureReason: session.FailureReason,
		UpdatedAt:     formatTime(session.UpdatedAt),
	}
	if payload.RedirectURL == "" {
		payload.RedirectURL = session.RedirectURL
	}
	if result.Order.ID != "" {
		order := buildOrderPayload(result.Order, false)
		payload.Order = &order
	}
	return payload
}
