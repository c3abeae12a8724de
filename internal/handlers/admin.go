package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/platform/auth"
	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/repositories"
	"github.com/hanko-field/storefront/internal/services"
)

const maxAdminBodySize = 64 * 1024

// AdminHandlers is the back-office API for products, promotions and orders. The /admin group is
// expected to be wrapped by AdminAuthenticator.RequireRoles; requireAdmin additionally guards
// destructive routes.
type AdminHandlers struct {
	requireAdmin Middleware
	idempotency  Middleware
	products     services.ProductService
	promotions   services.PromotionService
	orders       services.OrderService
	refunds      services.RefundService
}

// AdminDeps bundles the services behind the admin API.
type AdminDeps struct {
	RequireAdmin Middleware
	Idempotency  Middleware
	Products     services.ProductService
	Promotions   services.PromotionService
	Orders       services.OrderService
	Refunds      services.RefundService
}

// NewAdminHandlers constructs the admin handlers.
func NewAdminHandlers(deps AdminDeps) *AdminHandlers {
	return &AdminHandlers{
		requireAdmin: deps.RequireAdmin,
		idempotency:  deps.Idempotency,
		products:     deps.Products,
		promotions:   deps.Promotions,
		orders:       deps.Orders,
		refunds:      deps.Refunds,
	}
}

// Routes registers admin endpoints.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	destructive := r
	if h.requireAdmin != nil {
		destructive = r.With(h.requireAdmin)
	}

	r.Get("/products", h.listProducts)
	r.Post("/products", h.createProduct)
	r.Get("/products/{productID}", h.getProduct)
	r.Put("/products/{productID}", h.updateProduct)
	destructive.Delete("/products/{productID}", h.deleteProduct)
	r.Post("/products/{productID}/image-upload-url", h.imageUploadURL)

	r.Get("/promotions", h.listPromotions)
	r.Post("/promotions", h.createPromotion)
	r.Get("/promotions/{promotionID}", h.getPromotion)
	r.Put("/promotions/{promotionID}", h.updatePromotion)
	destructive.Delete("/promotions/{promotionID}", h.deletePromotion)

	r.Get("/orders", h.listOrders)
	r.Get("/orders/{orderID}", h.getOrder)
	r.Patch("/orders/{orderID}/status", h.updateOrderStatus)
	refunds := destructive
	if h.idempotency != nil {
		refunds = destructive.With(h.idempotency)
	}
	refunds.Post("/orders/{orderID}/refunds", h.refundOrder)
}

type productRequest struct {
	SKU                 string   `json:"sku"`
	Name                string   `json:"name"`
	DescriptionMarkdown string   `json:"descriptionMarkdown"`
	Price               int64    `json:"price"`
	Currency            string   `json:"currency"`
	Stock               int      `json:"stock"`
	ImagePaths          []string `json:"imagePaths"`
	PromotionIDs        []string `json:"promotionIds"`
	Active              *bool    `json:"active"`
}

type promotionRequest struct {
	Name          string     `json:"name"`
	Description   string     `json:"description"`
	PromotionBy   string     `json:"promotionBy"`
	PromotionType string     `json:"promotionType"`
	Value         float64    `json:"value"`
	Active        *bool      `json:"active"`
	StartsAt      *time.Time `json:"startsAt"`
	EndsAt        *time.Time `json:"endsAt"`
	ProductIDs    []string   `json:"productIds"`
}

type imageUploadRequest struct {
	ContentType string `json:"contentType"`
}

type orderStatusRequest struct {
	Status     string   `json:"status"`
	LineIDs    []string `json:"lineIds"`
	Reason     string   `json:"reason"`
	ShipmentID string   `json:"shipmentId"`
}

type adminProductListResponse struct {
	Items         []adminProductPayload `json:"items"`
	NextPageToken string                `json:"nextPageToken,omitempty"`
}

type promotionListResponse struct {
	Items         []promotionPayload `json:"items"`
	NextPageToken string             `json:"nextPageToken,omitempty"`
}

func (p productRequest) command(productID string) services.UpsertProductCommand {
	active := true
	if p.Active != nil {
		active = *p.Active
	}
	return services.UpsertProductCommand{
		ProductID:           productID,
		SKU:                 p.SKU,
		Name:                p.Name,
		DescriptionMarkdown: p.DescriptionMarkdown,
		Price:               p.Price,
		Currency:            p.Currency,
		Stock:               p.Stock,
		ImagePaths:          p.ImagePaths,
		PromotionIDs:        p.PromotionIDs,
		Active:              active,
	}
}

func (p promotionRequest) command(promotionID string) services.UpsertPromotionCommand {
	active := true
	if p.Active != nil {
		active = *p.Active
	}
	return services.UpsertPromotionCommand{
		PromotionID:   promotionID,
		Name:          p.Name,
		Description:   p.Description,
		PromotionBy:   domain.PromotionBy(strings.TrimSpace(p.PromotionBy)),
		PromotionType: domain.PromotionType(strings.TrimSpace(p.PromotionType)),
		Value:         p.Value,
		Active:        active,
		StartsAt:      p.StartsAt,
		EndsAt:        p.EndsAt,
		ProductIDs:    p.ProductIDs,
	}
}

func (h *AdminHandlers) unavailable(w http.ResponseWriter, r *http.Request, name string) {
	httpx.WriteError(r.Context(), w, httpx.NewError(name+"_unavailable", name+" service unavailable", http.StatusServiceUnavailable))
}

func (h *AdminHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	if h.products == nil {
		h.unavailable(w, r, "catalog")
		return
	}
	page, ok := pageFromRequest(w, r)
	if !ok {
		return
	}
	result, err := h.products.AdminListProducts(r.Context(), page)
	if err != nil {
		writeProductError(r.Context(), w, err)
		return
	}
	items := make([]adminProductPayload, 0, len(result.Items))
	for _, p := range result.Items {
		items = append(items, buildAdminProductPayload(p))
	}
	writeJSONResponse(w, http.StatusOK, adminProductListResponse{Items: items, NextPageToken: result.NextPageToken})
}

func (h *AdminHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	if h.products == nil {
		h.unavailable(w, r, "catalog")
		return
	}
	product, err := h.products.AdminGetProduct(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		writeProductError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildAdminProductPayload(product))
}

func (h *AdminHandlers) createProduct(w http.ResponseWriter, r *http.Request) {
	h.saveProduct(w, r, "")
}

func (h *AdminHandlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	h.saveProduct(w, r, chi.URLParam(r, "productID"))
}

func (h *AdminHandlers) saveProduct(w http.ResponseWriter, r *http.Request, productID string) {
	if h.products == nil {
		h.unavailable(w, r, "catalog")
		return
	}
	var req productRequest
	if !decodeJSONBody(w, r, maxAdminBodySize, &req) {
		return
	}
	var (
		product services.Product
		err     error
		status  = http.StatusOK
	)
	if productID == "" {
		product, err = h.products.CreateProduct(r.Context(), req.command(""))
		status = http.StatusCreated
	} else {
		product, err = h.products.UpdateProduct(r.Context(), req.command(productID))
	}
	if err != nil {
		writeProductError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, status, buildAdminProductPayload(product))
}

func (h *AdminHandlers) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if h.products == nil {
		h.unavailable(w, r, "catalog")
		return
	}
	if err := h.products.DeleteProduct(r.Context(), chi.URLParam(r, "productID")); err != nil {
		writeProductError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandlers) imageUploadURL(w http.ResponseWriter, r *http.Request) {
	if h.products == nil {
		h.unavailable(w, r, "catalog")
		return
	}
	var req imageUploadRequest
	if !decodeJSONBody(w, r, maxAdminBodySize, &req) {
		return
	}
	signed, err := h.products.ImageUploadURL(r.Context(), chi.URLParam(r, "productID"), req.ContentType)
	if err != nil {
		writeProductError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, signed)
}

func (h *AdminHandlers) listPromotions(w http.ResponseWriter, r *http.Request) {
	if h.promotions == nil {
		h.unavailable(w, r, "promotions")
		return
	}
	page, ok := pageFromRequest(w, r)
	if !ok {
		return
	}
	result, err := h.promotions.ListPromotions(r.Context(), repositories.PromotionListFilter{
		ActiveOnly: r.URL.Query().Get("active") == "true",
		Pagination: page,
	})
	if err != nil {
		writePromotionError(r.Context(), w, err)
		return
	}
	items := make([]promotionPayload, 0, len(result.Items))
	for _, p := range result.Items {
		items = append(items, buildPromotionPayload(p))
	}
	writeJSONResponse(w, http.StatusOK, promotionListResponse{Items: items, NextPageToken: result.NextPageToken})
}

func (h *AdminHandlers) getPromotion(w http.ResponseWriter, r *http.Request) {
	if h.promotions == nil {
		h.unavailable(w, r, "promotions")
		return
	}
	promo, err := h.promotions.GetPromotion(r.Context(), chi.URLParam(r, "promotionID"))
	if err != nil {
		writePromotionError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildPromotionPayload(promo))
}

func (h *AdminHandlers) createPromotion(w http.ResponseWriter, r *http.Request) {
	h.savePromotion(w, r, "")
}

func (h *AdminHandlers) updatePromotion(w http.ResponseWriter, r *http.Request) {
	h.savePromotion(w, r, chi.URLParam(r, "promotionID"))
}

func (h *AdminHandlers) savePromotion(w http.ResponseWriter, r *http.Request, promotionID string) {
	if h.promotions == nil {
		h.unavailable(w, r, "promotions")
		return
	}
	var req promotionRequest
	if !decodeJSONBody(w, r, maxAdminBodySize, &req) {
		return
	}
	var (
		promo  services.Promotion
		err    error
		status = http.StatusOK
	)
	if promotionID == "" {
		promo, err = h.promotions.CreatePromotion(r.Context(), req.command(""))
		status = http.StatusCreated
	} else {
		promo, err = h.promotions.UpdatePromotion(r.Context(), req.command(promotionID))
	}
	if err != nil {
		writePromotionError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, status, buildPromotionPayload(promo))
}

func (h *AdminHandlers) deletePromotion(w http.ResponseWriter, r *http.Request) {
	if h.promotions == nil {
		h.unavailable(w, r, "promotions")
		return
	}
	if err := h.promotions.DeletePromotion(r.Context(), chi.URLParam(r, "promotionID")); err != nil {
		writePromotionError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	if h.orders == nil {
		h.unavailable(w, r, "orders")
		return
	}
	page, ok := pageFromRequest(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	result, err := h.orders.ListOrders(r.Context(), repositories.OrderListFilter{
		CustomerID: strings.TrimSpace(query.Get("customerId")),
		Status:     domain.OrderStatus(strings.TrimSpace(query.Get("status"))),
		Pagination: page,
	})
	if err != nil {
		writeOrderError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderList(result, true))
}

func (h *AdminHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	if h.orders == nil {
		h.unavailable(w, r, "orders")
		return
	}
	order, err := h.orders.AdminGetOrder(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeOrderError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order, true))
}

func (h *AdminHandlers) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	if h.orders == nil {
		h.unavailable(w, r, "orders")
		return
	}
	var req orderStatusRequest
	if !decodeJSONBody(w, r, maxAdminBodySize, &req) {
		return
	}
	order, err := h.orders.UpdateStatus(r.Context(), services.OrderStatusCommand{
		OrderID:  chi.URLParam(r, "orderID"),
		LineIDs:  req.LineIDs,
		Status:   domain.OrderStatus(strings.TrimSpace(req.Status)),
		ActorID:  actorID(r),
		Reason:   req.Reason,
		Shipment: req.ShipmentID,
	})
	if err != nil {
		writeOrderError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order, true))
}

func (h *AdminHandlers) refundOrder(w http.ResponseWriter, r *http.Request) {
	if h.refunds == nil {
		h.unavailable(w, r, "refunds")
		return
	}
	req, ok := decodeRefundRequest(w, r)
	if !ok {
		return
	}
	result, err := h.refunds.AdminRefund(r.Context(), services.RefundCommand{
		OrderID: chi.URLParam(r, "orderID"),
		LineIDs: req.LineIDs,
		Reason:  req.Reason,
		ActorID: actorID(r),
	})
	writeRefundResult(r.Context(), w, result, err)
}

func actorID(r *http.Request) string {
	if principal, ok := auth.PrincipalFromContext(r.Context()); ok && principal != nil {
		return principal.Subject
	}
	return ""
}
