package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"

	"github.com/hanko-field/storefront/internal/platform/httpx"
)

type stubTokenVerifier struct {
	token    *firebaseauth.Token
	err      error
	received string
}

func (s *stubTokenVerifier) VerifyIDToken(_ context.Context, idToken string) (*firebaseauth.Token, error) {
	s.received = idToken
	if s.err != nil {
		return nil, s.err
	}
	return s.token, nil
}

func TestRequireRolesAllowsAdmin(t *testing.T) {
	verifier := &stubTokenVerifier{token: &firebaseauth.Token{
		UID: "admin-1",
		Claims: map[string]any{
			"role":  []any{"Admin", "staff"},
			"email": "ops@example.com",
		},
	}}
	authn := NewAdminAuthenticator(verifier)

	called := false
	handler := authn.RequireRoles(RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		principal, ok := PrincipalFromContext(r.Context())
		if !ok {
			t.Fatalf("expected principal in context")
		}
		if principal.Subject != "admin-1" || principal.Kind != PrincipalAdmin {
			t.Fatalf("unexpected principal: %+v", principal)
		}
		if !principal.HasRole(RoleAdmin) || !principal.HasRole("STAFF") {
			t.Fatalf("expected admin and staff roles, got %v", principal.Roles)
		}
		if principal.Email != "ops@example.com" {
			t.Fatalf("unexpected email %q", principal.Email)
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/products", nil)
	req.Header.Set("Authorization", "Bearer id-token")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if !called {
		t.Fatalf("expected handler to be called, status %d", rr.Code)
	}
	if verifier.received != "id-token" {
		t.Fatalf("expected token forwarded, got %q", verifier.received)
	}
}

func TestRequireRolesRejectsCustomerRole(t *testing.T) {
	verifier := &stubTokenVerifier{token: &firebaseauth.Token{UID: "u", Claims: map[string]any{"role": "user"}}}
	handler := NewAdminAuthenticator(verifier).RequireRoles(RoleAdmin, RoleStaff)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler must not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer t")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestRequireRolesMissingHeader(t *testing.T) {
	handler := NewAdminAuthenticator(&stubTokenVerifier{}).RequireRoles(RoleAdmin)(http.NotFoundHandler())
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestRequireRolesExpiredTokenSignalsLogout(t *testing.T) {
	verifier := &stubTokenVerifier{err: ErrTokenExpired}
	handler := NewAdminAuthenticator(verifier).RequireRoles(RoleAdmin)(http.NotFoundHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer t")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if rr.Header().Get(httpx.LogoutHeader) != "true" {
		t.Fatalf("expected logout header")
	}
}

func TestSessionManagerRoundTrip(t *testing.T) {
	sessions, err := NewSessionManager(strings.Repeat("s", 32))
	if err != nil {
		t.Fatalf("NewSessionManager: %v", err)
	}
	token, expires, err := sessions.Issue("cust-1", "asha@example.com")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if time.Until(expires) <= 0 {
		t.Fatalf("expected future expiry, got %s", expires)
	}
	principal, err := sessions.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if principal.Subject != "cust-1" || principal.Kind != PrincipalCustomer || principal.Email != "asha@example.com" {
		t.Fatalf("unexpected principal %+v", principal)
	}

	other, _ := NewSessionManager(strings.Repeat("x", 32))
	if _, err := other.Verify(token); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected ErrSessionInvalid for foreign secret, got %v", err)
	}
}

func TestRequireCustomerExpiredSession(t *testing.T) {
	past := func() time.Time { return time.Now().Add(-48 * time.Hour) }
	issuer, _ := NewSessionManager(strings.Repeat("s", 32), WithSessionClock(past))
	token, _, err := issuer.Issue("cust-1", "")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	verifier, _ := NewSessionManager(strings.Repeat("s", 32))
	handler := verifier.RequireCustomer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler must not run for expired session")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] != "session_expired" || body["logout"] != true {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("Str0ng!pass")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if err := ComparePassword(hash, "Str0ng!pass"); err != nil {
		t.Fatalf("expected match, got %v", err)
	}
	if err := ComparePassword(hash, "wrong"); !errors.Is(err, ErrPasswordMismatch) {
		t.Fatalf("expected ErrPasswordMismatch, got %v", err)
	}
}

func TestPrincipalSlotVisibleToOuterContext(t *testing.T) {
	outer := WithPrincipalSlot(context.Background())
	_ = WithPrincipal(outer, &Principal{Subject: "cust-9", Kind: PrincipalCustomer})
	p, ok := PrincipalFromContext(outer)
	if !ok || p.Subject != "cust-9" {
		t.Fatalf("expected principal through slot, got %+v", p)
	}
}
