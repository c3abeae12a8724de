package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"
)

const (
	defaultRoleClaim     = "role"
	defaultVerifyTimeout = 5 * time.Second
)

// TokenVerifier verifies Firebase ID tokens.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// AdminAuthenticator guards back-office routes with Firebase ID tokens carrying a role claim.
type AdminAuthenticator struct {
	verifier  TokenVerifier
	roleClaim string
	timeout   time.Duration
}

// AdminOption customises AdminAuthenticator.
type AdminOption func(*AdminAuthenticator)

// WithRoleClaim overrides the custom claim used for role extraction.
func WithRoleClaim(claim string) AdminOption {
	return func(a *AdminAuthenticator) {
		if claim = strings.TrimSpace(claim); claim != "" {
			a.roleClaim = claim
		}
	}
}

// WithVerificationTimeout bounds token verification calls.
func WithVerificationTimeout(d time.Duration) AdminOption {
	return func(a *AdminAuthenticator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// NewAdminAuthenticator constructs an AdminAuthenticator.
func NewAdminAuthenticator(verifier TokenVerifier, opts ...AdminOption) *AdminAuthenticator {
	a := &AdminAuthenticator{
		verifier:  verifier,
		roleClaim: defaultRoleClaim,
		timeout:   defaultVerifyTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// RequireRoles verifies the bearer token and requires at least one of roles.
func (a *AdminAuthenticator) RequireRoles(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		if role = normaliseRole(role); role != "" {
			allowed[role] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				respondUnauthenticated(w, r, "unauthenticated", "authorization header missing or invalid", false)
				return
			}
			if a == nil || a.verifier == nil {
				respondUnauthenticated(w, r, "unauthenticated", "authorization service unavailable", false)
				return
			}

			ctx, cancel := context.WithTimeout(r.Context(), a.timeout)
			token, err := a.verifier.VerifyIDToken(ctx, raw)
			cancel()
			if err != nil {
				if firebaseauth.IsIDTokenExpired(err) || errors.Is(err, ErrTokenExpired) {
					respondUnauthenticated(w, r, "token_expired", "id token expired", true)
					return
				}
				respondUnauthenticated(w, r, "invalid_token", "id token verification failed", false)
				return
			}

			principal := &Principal{
				Subject: token.UID,
				Kind:    PrincipalAdmin,
				Email:   claimString(token.Claims, "email"),
				Roles:   rolesFromClaim(token.Claims[a.roleClaim]),
			}
			if !hasAllowedRole(principal.Roles, allowed) {
				respondForbidden(w, r, "insufficient_role", "identity does not have required role")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

func hasAllowedRole(roles []string, allowed map[string]struct{}) bool {
	if len(roles) == 0 {
		return false
	}
	if len(allowed) == 0 {
		return true
	}
	for _, role := range roles {
		if _, ok := allowed[normaliseRole(role)]; ok {
			return true
		}
	}
	return false
}

// rolesFromClaim accepts a single role string, a list of roles, or a {role: bool} map.
func rolesFromClaim(raw any) []string {
	var out []string
	seen := map[string]struct{}{}
	add := func(role string) {
		role = normaliseRole(role)
		if role == "" {
			return
		}
		if _, dup := seen[role]; dup {
			return
		}
		seen[role] = struct{}{}
		out = append(out, role)
	}
	switch v := raw.(type) {
	case string:
		add(v)
	case []string:
		for _, item := range v {
			add(item)
		}
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				add(s)
			}
		}
	case map[string]any:
		for role, enabled := range v {
			if b, ok := enabled.(bool); ok && b {
				add(role)
			}
		}
	}
	return out
}

func claimString(claims map[string]any, key string) string {
	if s, ok := claims[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func normaliseRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}
