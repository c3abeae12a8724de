package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/platform/auth"
	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/platform/requestctx"
	"github.com/hanko-field/storefront/internal/services"
)

const maxCheckoutRequestBody = 8 * 1024

// CheckoutHandlers exposes the checkout state machine to signed-in customers.
type CheckoutHandlers struct {
	requireCustomer Middleware
	idempotency     Middleware
	checkout        services.CheckoutService
	idemHeader      string
}

// CheckoutOption customises CheckoutHandlers.
type CheckoutOption func(*CheckoutHandlers)

// WithCheckoutIdempotency guards checkout starts with the idempotency middleware. header names the
// request header carrying the key, which is also forwarded to the payment gateway.
func WithCheckoutIdempotency(mw Middleware, header string) CheckoutOption {
	return func(h *CheckoutHandlers) {
		h.idempotency = mw
		if strings.TrimSpace(header) != "" {
			h.idemHeader = header
		}
	}
}

// NewCheckoutHandlers constructs checkout handlers guarded by the customer session middleware.
func NewCheckoutHandlers(requireCustomer Middleware, checkout services.CheckoutService, opts ...CheckoutOption) *CheckoutHandlers {
	h := &CheckoutHandlers{
		requireCustomer: requireCustomer,
		checkout:        checkout,
		idemHeader:      "Idempotency-Key",
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes registers checkout endpoints under the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.requireCustomer != nil {
		r.Use(h.requireCustomer)
	}
	start := r
	if h.idempotency != nil {
		start = r.With(h.idempotency)
	}
	start.Post("/", h.start)
	r.Post("/{orderID}/verify", h.verify)
	r.Get("/{orderID}", h.status)
}

type startCheckoutRequest struct {
	AddressID   string `json:"addressId"`
	PaymentType string `json:"paymentType"`
	TemplateID  string `json:"templateId"`
	SuccessURL  string `json:"successUrl"`
	CancelURL   string `json:"cancelUrl"`
}

func (h *CheckoutHandlers) ready(w http.ResponseWriter, r *http.Request) (string, bool) {
	if h.checkout == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return "", false
	}
	return principalSubject(w, r, auth.PrincipalCustomer)
}

func (h *CheckoutHandlers) start(w http.ResponseWriter, r *http.Request) {
	customerID, ok := h.ready(w, r)
	if !ok {
		return
	}
	var req startCheckoutRequest
	if !decodeJSONBody(w, r, maxCheckoutRequestBody, &req) {
		return
	}
	paymentType := domain.PaymentType(strings.ToUpper(strings.TrimSpace(req.PaymentType)))
	if !paymentType.Valid() {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "paymentType must be PREPAID or CASH_ON_DELIVERY", http.StatusBadRequest))
		return
	}
	templateID := strings.TrimSpace(req.TemplateID)
	if templateID == "" {
		templateID = requestctx.TemplateID(r.Context())
	}

	result, err := h.checkout.Start(r.Context(), services.StartCheckoutCommand{
		CustomerID:     customerID,
		AddressID:      req.AddressID,
		PaymentType:    paymentType,
		TemplateID:     templateID,
		SuccessURL:     req.SuccessURL,
		CancelURL:      req.CancelURL,
		IdempotencyKey: strings.TrimSpace(r.Header.Get(h.idemHeader)),
	})
	if err != nil {
		writeCheckoutError(r.Context(), w, err, result)
		return
	}
	status := http.StatusCreated
	if result.Session.Status == domain.CheckoutStatusPending {
		status = http.StatusAccepted
	}
	writeJSONResponse(w, status, buildCheckoutPayload(result))
}

func (h *CheckoutHandlers) verify(w http.ResponseWriter, r *http.Request) {
	customerID, ok := h.ready(w, r)
	if !ok {
		return
	}
	result, err := h.checkout.VerifyPayment(r.Context(), services.VerifyPaymentCommand{
		CustomerID: customerID,
		OrderID:    chi.URLParam(r, "orderID"),
	})
	if err != nil {
		writeCheckoutError(r.Context(), w, err, result)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCheckoutPayload(result))
}

func (h *CheckoutHandlers) status(w http.ResponseWriter, r *http.Request) {
	customerID, ok := h.ready(w, r)
	if !ok {
		return
	}
	result, err := h.checkout.Status(r.Context(), customerID, chi.URLParam(r, "orderID"))
	if err != nil {
		writeCheckoutError(r.Context(), w, err, result)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCheckoutPayload(result))
}

// writeCheckoutError maps checkout failures. A carrier 401 ends the customer session.
func writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error, result services.CheckoutResult) {
	var details map[string]any
	if result.Session.OrderID != "" {
		details = map[string]any{"checkout": buildCheckoutPayload(result)}
	}
	switch {
	case errors.Is(err, services.ErrCheckoutUnauthorized):
		httpx.WriteError(ctx, w, httpx.NewError("session_expired", "authorization expired, sign in again", http.StatusUnauthorized).WithLogout())
	case errors.Is(err, services.ErrCheckoutInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutCartEmpty):
		httpx.WriteError(ctx, w, httpx.NewError("cart_empty", "cart is empty", http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutPaymentTypeUnsupported):
		httpx.WriteError(ctx, w, httpx.NewError("payment_type_unsupported", "payment type is not offered by this storefront", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrCheckoutNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_not_found", "checkout not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCheckoutConflict):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutPaymentFailed):
		httpx.WriteError(ctx, w, httpx.NewError("payment_failed", "payment was not completed", http.StatusPaymentRequired).WithDetails(details))
	case errors.Is(err, services.ErrCheckoutFinalizeFailed):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_failed", "order could not be completed", http.StatusBadGateway).WithDetails(details))
	case errors.Is(err, services.ErrCheckoutUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout temporarily unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("checkout_error", "failed to process checkout", http.StatusInternalServerError))
	}
}
