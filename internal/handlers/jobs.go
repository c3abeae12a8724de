package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/services"
)

const maxJobBatch = 500

// IdempotencyCleaner deletes expired idempotency records.
type IdempotencyCleaner interface {
	CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

// JobHandlers exposes scheduler-triggered maintenance jobs under /internal.
type JobHandlers struct {
	checkout    services.CheckoutService
	idempotency IdempotencyCleaner
	clock       func() time.Time
}

// NewJobHandlers constructs internal job handlers. clock may be nil.
func NewJobHandlers(checkout services.CheckoutService, idempotency IdempotencyCleaner, clock func() time.Time) *JobHandlers {
	if clock == nil {
		clock = time.Now
	}
	return &JobHandlers{checkout: checkout, idempotency: idempotency, clock: clock}
}

// Routes registers /internal endpoints.
func (h *JobHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/jobs/expire-checkouts", h.expireCheckouts)
	r.Post("/jobs/cleanup-idempotency", h.cleanupIdempotency)
}

type expireCheckoutsResponse struct {
	Examined int      `json:"examined"`
	Expired  int      `json:"expired"`
	Failed   []string `json:"failed,omitempty"`
}

func (h *JobHandlers) expireCheckouts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}
	limit, ok := jobLimit(w, r)
	if !ok {
		return
	}
	result, err := h.checkout.ExpireStale(ctx, limit)
	if err != nil {
		writeCheckoutError(ctx, w, err, services.CheckoutResult{})
		return
	}
	writeJSONResponse(w, http.StatusOK, expireCheckoutsResponse{
		Examined: result.Examined,
		Expired:  result.Expired,
		Failed:   result.Failed,
	})
}

func (h *JobHandlers) cleanupIdempotency(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.idempotency == nil {
		httpx.WriteError(ctx, w, httpx.NewError("idempotency_unavailable", "idempotency store not configured", http.StatusServiceUnavailable))
		return
	}
	limit, ok := jobLimit(w, r)
	if !ok {
		return
	}
	deleted, err := h.idempotency.CleanupExpired(ctx, h.clock().UTC(), limit)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("cleanup_failed", err.Error(), http.StatusServiceUnavailable))
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]int{"deleted": deleted})
}

// jobLimit reads the optional ?limit= batch size; zero lets the job pick its default.
func jobLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "limit must be a positive integer", http.StatusBadRequest))
		return 0, false
	}
	return min(limit, maxJobBatch), true
}
