package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/platform/auth"
	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/platform/pagination"
	"github.com/hanko-field/storefront/internal/platform/requestctx"
	"github.com/hanko-field/storefront/internal/validation"
)

const (
	defaultBodyLimit = 64 * 1024

	// TemplateHeader selects the storefront template serving the request.
	TemplateHeader = "X-Storefront-Template"
)

var (
	errEmptyBody    = errors.New("request body is empty")
	errBodyTooLarge = errors.New("request body too large")
)

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = defaultBodyLimit
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

// decodeJSONBody reads and strictly decodes the request body into dst. On failure the error has
// already been written to w.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, limit int64, dst any) bool {
	ctx := r.Context()
	body, err := readLimitedBody(r, limit)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return false
	}
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", fmt.Sprintf("invalid JSON payload: %v", err), http.StatusBadRequest))
		return false
	}
	return true
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// principalSubject returns the authenticated subject of the given kind, writing 401 when absent.
func principalSubject(w http.ResponseWriter, r *http.Request, kind auth.PrincipalKind) (string, bool) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok || principal == nil || principal.Kind != kind || strings.TrimSpace(principal.Subject) == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return "", false
	}
	return principal.Subject, true
}

// writeValidationError renders field errors as 422 and reports whether err carried any.
func writeValidationError(ctx context.Context, w http.ResponseWriter, err error) bool {
	verr, ok := validation.As(err)
	if !ok {
		return false
	}
	httpx.WriteError(ctx, w, httpx.NewError("validation_failed", "one or more fields are invalid", http.StatusUnprocessableEntity).WithDetails(verr.Details()))
	return true
}

func pageFromRequest(w http.ResponseWriter, r *http.Request) (domain.Pagination, bool) {
	page, err := pagination.FromRequest(r)
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_pagination", err.Error(), http.StatusBadRequest))
		return domain.Pagination{}, false
	}
	return page, true
}

// TemplateMiddleware records the storefront template named by the request header.
func TemplateMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := strings.TrimSpace(r.Header.Get(TemplateHeader)); id != "" {
			r = r.WithContext(requestctx.WithTemplateID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
