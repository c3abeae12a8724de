package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/services"
	"github.com/hanko-field/storefront/internal/storefront"
)

// CatalogHandlers serves the anonymous storefront: templates, products and promotion quotes.
type CatalogHandlers struct {
	templates  services.TemplateCatalog
	products   services.ProductService
	promotions services.PromotionService
}

// NewCatalogHandlers constructs the public catalogue handlers.
func NewCatalogHandlers(templates services.TemplateCatalog, products services.ProductService, promotions services.PromotionService) *CatalogHandlers {
	return &CatalogHandlers{templates: templates, products: products, promotions: promotions}
}

// TemplateRoutes registers /storefront endpoints.
func (h *CatalogHandlers) TemplateRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/templates/{templateID}", h.getTemplate)
}

// ProductRoutes registers /products endpoints.
func (h *CatalogHandlers) ProductRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listProducts)
	r.Get("/{productID}", h.getProduct)
}

// PromotionRoutes registers /promotions endpoints.
func (h *CatalogHandlers) PromotionRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/quote", h.quote)
}

type productListResponse struct {
	Items         []productPayload `json:"items"`
	NextPageToken string           `json:"nextPageToken,omitempty"`
}

func (h *CatalogHandlers) getTemplate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.templates == nil {
		httpx.WriteError(ctx, w, httpx.NewError("templates_unavailable", "storefront templates are unavailable", http.StatusServiceUnavailable))
		return
	}
	tmpl, err := h.templates.Get(chi.URLParam(r, "templateID"))
	if err != nil {
		if errors.Is(err, storefront.ErrTemplateNotFound) {
			httpx.WriteError(ctx, w, httpx.NewError("template_not_found", "storefront template not found", http.StatusNotFound))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("templates_unavailable", err.Error(), http.StatusServiceUnavailable))
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=300")
	writeJSONResponse(w, http.StatusOK, tmpl.Public())
}

func (h *CatalogHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.products == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalogue is unavailable", http.StatusServiceUnavailable))
		return
	}
	page, ok := pageFromRequest(w, r)
	if !ok {
		return
	}
	result, err := h.products.ListProducts(ctx, page)
	if err != nil {
		writeProductError(ctx, w, err)
		return
	}
	items := make([]productPayload, 0, len(result.Items))
	for _, q := range result.Items {
		items = append(items, buildProductPayload(q))
	}
	writeJSONResponse(w, http.StatusOK, productListResponse{Items: items, NextPageToken: result.NextPageToken})
}

func (h *CatalogHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.products == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalogue is unavailable", http.StatusServiceUnavailable))
		return
	}
	quote, err := h.products.GetProduct(ctx, chi.URLParam(r, "productID"))
	if err != nil {
		writeProductError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildProductPayload(quote))
}

func (h *CatalogHandlers) quote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.promotions == nil {
		httpx.WriteError(ctx, w, httpx.NewError("promotions_unavailable", "promotions are unavailable", http.StatusServiceUnavailable))
		return
	}
	productID := strings.TrimSpace(r.URL.Query().Get("productId"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "productId is required", http.StatusBadRequest))
		return
	}
	quote, err := h.promotions.Quote(ctx, productID)
	if err != nil {
		writePromotionError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildProductPayload(quote))
}

func writeProductError(ctx context.Context, w http.ResponseWriter, err error) {
	if writeValidationError(ctx, w, err) {
		return
	}
	switch {
	case errors.Is(err, services.ErrProductInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrProductConflict):
		httpx.WriteError(ctx, w, httpx.NewError("product_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrProductImagesDisabled):
		httpx.WriteError(ctx, w, httpx.NewError("images_unavailable", "image storage is not configured", http.StatusServiceUnavailable))
	case errors.Is(err, services.ErrProductUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalogue is temporarily unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("catalog_error", "failed to process product request", http.StatusInternalServerError))
	}
}

func writePromotionError(ctx context.Context, w http.ResponseWriter, err error) {
	if writeValidationError(ctx, w, err) {
		return
	}
	switch {
	case errors.Is(err, services.ErrPromotionInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrPromotionNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("promotion_not_found", "promotion not found", http.StatusNotFound))
	case errors.Is(err, services.ErrPromotionProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrPromotionConflict):
		httpx.WriteError(ctx, w, httpx.NewError("promotion_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrPromotionUnavailable), errors.Is(err, services.ErrPromotionRepositoryMissing):
		httpx.WriteError(ctx, w, httpx.NewError("promotions_unavailable", "promotions are temporarily unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("promotion_error", "failed to process promotion request", http.StatusInternalServerError))
	}
}
