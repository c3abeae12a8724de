package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/platform/auth"
	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/repositories"
	"github.com/hanko-field/storefront/internal/services"
)

const maxRefundBodySize = 8 * 1024

// OrderHandlers exposes the signed-in customer's orders and refund requests.
type OrderHandlers struct {
	requireCustomer Middleware
	idempotency     Middleware
	orders          services.OrderService
	refunds         services.RefundService
}

// NewOrderHandlers constructs order handlers. idempotency, when set, guards refund requests.
func NewOrderHandlers(requireCustomer Middleware, orders services.OrderService, refunds services.RefundService, idempotency Middleware) *OrderHandlers {
	return &OrderHandlers{
		requireCustomer: requireCustomer,
		idempotency:     idempotency,
		orders:          orders,
		refunds:         refunds,
	}
}

// Routes registers /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.requireCustomer != nil {
		r.Use(h.requireCustomer)
	}
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	refunds := r
	if h.idempotency != nil {
		refunds = r.With(h.idempotency)
	}
	refunds.Post("/{orderID}/refunds", h.requestRefund)
}

type orderListResponse struct {
	Items         []orderPayload `json:"items"`
	NextPageToken string         `json:"nextPageToken,omitempty"`
}

type refundRequest struct {
	LineIDs []string `json:"lineIds"`
	Reason  string   `json:"reason"`
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("orders_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	customerID, ok := principalSubject(w, r, auth.PrincipalCustomer)
	if !ok {
		return
	}
	page, ok := pageFromRequest(w, r)
	if !ok {
		return
	}
	result, err := h.orders.ListOrders(ctx, repositories.OrderListFilter{
		CustomerID: customerID,
		Status:     domain.OrderStatus(strings.TrimSpace(r.URL.Query().Get("status"))),
		Pagination: page,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderList(result, false))
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("orders_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	customerID, ok := principalSubject(w, r, auth.PrincipalCustomer)
	if !ok {
		return
	}
	order, err := h.orders.GetOrder(ctx, customerID, chi.URLParam(r, "orderID"))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order, false))
}

func (h *OrderHandlers) requestRefund(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.refunds == nil {
		httpx.WriteError(ctx, w, httpx.NewError("refunds_unavailable", "refund service unavailable", http.StatusServiceUnavailable))
		return
	}
	customerID, ok := principalSubject(w, r, auth.PrincipalCustomer)
	if !ok {
		return
	}
	req, ok := decodeRefundRequest(w, r)
	if !ok {
		return
	}
	result, err := h.refunds.RequestRefund(ctx, services.RefundCommand{
		CustomerID: customerID,
		OrderID:    chi.URLParam(r, "orderID"),
		LineIDs:    req.LineIDs,
		Reason:     req.Reason,
		ActorID:    customerID,
	})
	writeRefundResult(ctx, w, result, err)
}

// decodeRefundRequest accepts an empty body as a whole-order refund.
func decodeRefundRequest(w http.ResponseWriter, r *http.Request) (refundRequest, bool) {
	var req refundRequest
	body, err := readLimitedBody(r, maxRefundBodySize)
	switch {
	case errors.Is(err, errEmptyBody):
		return req, true
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(r.Context(), w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		return req, false
	case err != nil:
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return req, false
	}
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return refundRequest{}, false
	}
	return req, true
}

func buildOrderList(page domain.CursorPage[domain.OrderSummary], includeCustomer bool) orderListResponse {
	items := make([]orderPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderPayload(order, includeCustomer))
	}
	return orderListResponse{Items: items, NextPageToken: page.NextPageToken}
}

// writeRefundResult answers 201 when at least one line was refunded; failed lines are listed
// alongside. A carrier 401 ends the session.
func writeRefundResult(ctx context.Context, w http.ResponseWriter, result services.RefundResult, err error) {
	payload := buildRefundResultPayload(result)
	switch {
	case err == nil:
		status := http.StatusCreated
		if len(result.Failures) > 0 {
			status = http.StatusMultiStatus
		}
		writeJSONResponse(w, status, payload)
	case errors.Is(err, services.ErrRefundUnauthorized):
		httpx.WriteError(ctx, w, httpx.NewError("session_expired", "authorization expired, sign in again", http.StatusUnauthorized).WithLogout().WithDetails(map[string]any{"refund": payload}))
	case errors.Is(err, services.ErrRefundInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrRefundNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrRefundNotEligible):
		httpx.WriteError(ctx, w, httpx.NewError("refund_not_eligible", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrRefundFailed):
		httpx.WriteError(ctx, w, httpx.NewError("refund_failed", "no line could be refunded", http.StatusUnprocessableEntity).WithDetails(map[string]any{"refund": payload}))
	case errors.Is(err, services.ErrRefundUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("refunds_unavailable", "refunds temporarily unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("refund_error", "failed to process refund", http.StatusInternalServerError))
	}
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_status_transition", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("orders_unavailable", "orders temporarily unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}
