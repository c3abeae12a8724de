package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hanko-field/storefront/internal/platform/auth"
	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/services"
)

const maxCartBodySize = 4 * 1024

// CartHandlers exposes the signed-in customer's cart.
type CartHandlers struct {
	requireCustomer Middleware
	carts           services.CartService
}

// NewCartHandlers constructs handlers guarded by the customer session middleware.
func NewCartHandlers(requireCustomer Middleware, carts services.CartService) *CartHandlers {
	return &CartHandlers{requireCustomer: requireCustomer, carts: carts}
}

// Routes wires the /cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.requireCustomer != nil {
		r.Use(h.requireCustomer)
	}
	r.Get("/", h.getCart)
	r.Delete("/", h.clearCart)
	r.Post("/items", h.addItem)
	r.Patch("/items/{productID}", h.setQuantity)
	r.Delete("/items/{productID}", h.removeItem)
}

type addCartItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type setQuantityRequest struct {
	Quantity int `json:"quantity"`
}

func (h *CartHandlers) ready(w http.ResponseWriter, r *http.Request) (string, bool) {
	if h.carts == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return "", false
	}
	return principalSubject(w, r, auth.PrincipalCustomer)
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	customerID, ok := h.ready(w, r)
	if !ok {
		return
	}
	cart, err := h.carts.GetCart(r.Context(), customerID)
	if err != nil {
		writeCartError(r.Context(), w, err)
		return
	}
	writeCart(w, http.StatusOK, cart)
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	customerID, ok := h.ready(w, r)
	if !ok {
		return
	}
	var req addCartItemRequest
	if !decodeJSONBody(w, r, maxCartBodySize, &req) {
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	cart, err := h.carts.AddItem(r.Context(), services.CartItemCommand{
		CustomerID: customerID,
		ProductID:  req.ProductID,
		Quantity:   req.Quantity,
	})
	if err != nil {
		writeCartError(r.Context(), w, err)
		return
	}
	writeCart(w, http.StatusOK, cart)
}

func (h *CartHandlers) setQuantity(w http.ResponseWriter, r *http.Request) {
	customerID, ok := h.ready(w, r)
	if !ok {
		return
	}
	var req setQuantityRequest
	if !decodeJSONBody(w, r, maxCartBodySize, &req) {
		return
	}
	cart, err := h.carts.SetQuantity(r.Context(), services.CartItemCommand{
		CustomerID: customerID,
		ProductID:  chi.URLParam(r, "productID"),
		Quantity:   req.Quantity,
	})
	if err != nil {
		writeCartError(r.Context(), w, err)
		return
	}
	writeCart(w, http.StatusOK, cart)
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	customerID, ok := h.ready(w, r)
	if !ok {
		return
	}
	cart, err := h.carts.RemoveItem(r.Context(), customerID, chi.URLParam(r, "productID"))
	if err != nil {
		writeCartError(r.Context(), w, err)
		return
	}
	writeCart(w, http.StatusOK, cart)
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	customerID, ok := h.ready(w, r)
	if !ok {
		return
	}
	if err := h.carts.ClearCart(r.Context(), customerID); err != nil {
		writeCartError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeCart(w http.ResponseWriter, status int, cart services.Cart) {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%d", cart.UpdatedAt.UTC().Format("2006-01-02T15:04:05.999999999Z"), cart.Total, len(cart.Items))))
	w.Header().Set("ETag", `W/"`+hex.EncodeToString(sum[:8])+`"`)
	if !cart.UpdatedAt.IsZero() {
		w.Header().Set("Last-Modified", cart.UpdatedAt.UTC().Format(http.TimeFormat))
	}
	writeJSONResponse(w, status, buildCartPayload(cart))
}

func writeCartError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCartInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCartItemNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("cart_item_not_found", "item is not in the cart", http.StatusNotFound))
	case errors.Is(err, services.ErrCartProductUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("product_unavailable", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrCartUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("cart_unavailable", "cart service temporarily unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("cart_error", "failed to process cart request", http.StatusInternalServerError))
	}
}
