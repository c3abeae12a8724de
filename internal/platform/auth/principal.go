package auth

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/hanko-field/storefront/internal/platform/httpx"
)

// Role constants used when checking admin authorisation boundaries.
const (
	RoleStaff = "staff"
	RoleAdmin = "admin"
)

// PrincipalKind identifies which authentication scheme produced a principal.
type PrincipalKind string

const (
	PrincipalCustomer PrincipalKind = "customer"
	PrincipalAdmin    PrincipalKind = "admin"
	PrincipalService  PrincipalKind = "service"
)

// Principal is the authenticated caller of a request.
type Principal struct {
	Subject string
	Kind    PrincipalKind
	Email   string
	Roles   []string
}

// HasRole reports whether the principal carries role (case-insensitive).
func (p *Principal) HasRole(role string) bool {
	if p == nil {
		return false
	}
	for _, r := range p.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

type contextKey string

const (
	principalKey contextKey = "storefront/auth/principal"
	slotKey      contextKey = "storefront/auth/slot"
)

type principalSlot struct {
	mu        sync.Mutex
	principal *Principal
}

// WithPrincipalSlot prepares ctx so outer middleware can observe the principal set by inner middleware.
func WithPrincipalSlot(ctx context.Context) context.Context {
	return context.WithValue(ctx, slotKey, &principalSlot{})
}

// WithPrincipal stores the principal within the context.
func WithPrincipal(ctx context.Context, principal *Principal) context.Context {
	if slot, ok := ctx.Value(slotKey).(*principalSlot); ok {
		slot.mu.Lock()
		slot.principal = principal
		slot.mu.Unlock()
	}
	return context.WithValue(ctx, principalKey, principal)
}

// PrincipalFromContext returns the principal stored on ctx or on an enclosing slot.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	if ctx == nil {
		return nil, false
	}
	if p, ok := ctx.Value(principalKey).(*Principal); ok && p != nil {
		return p, true
	}
	if slot, ok := ctx.Value(slotKey).(*principalSlot); ok {
		slot.mu.Lock()
		defer slot.mu.Unlock()
		if slot.principal != nil {
			return slot.principal, true
		}
	}
	return nil, false
}

// SlotMiddleware installs a principal slot for the request.
func SlotMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(WithPrincipalSlot(r.Context())))
	})
}

func extractBearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func respondUnauthenticated(w http.ResponseWriter, r *http.Request, code, message string, logout bool) {
	err := httpx.NewError(code, message, http.StatusUnauthorized)
	if logout {
		err = err.WithLogout()
	}
	w.Header().Set("WWW-Authenticate", `Bearer realm="storefront"`)
	httpx.WriteError(r.Context(), w, err)
}

func respondForbidden(w http.ResponseWriter, r *http.Request, code, message string) {
	httpx.WriteError(r.Context(), w, httpx.NewError(code, message, http.StatusForbidden))
}
