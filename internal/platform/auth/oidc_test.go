package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	jwt "github.com/golang-jwt/jwt/v4"
)

func newJWKSServer(t *testing.T, key *rsa.PrivateKey, kid string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	jwk := jose.JSONWebKey{Key: &key.PublicKey, KeyID: kid, Algorithm: "RS256", Use: "sig"}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{jwk}})
	}))
	t.Cleanup(server.Close)
	return server, &hits
}

func signServiceToken(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestJWKSCacheCachesKeys(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	server, hits := newJWKSServer(t, key, "k1")
	cache := NewJWKSCache(server.URL, server.Client())

	for i := 0; i < 3; i++ {
		got, err := cache.Key(context.Background(), "k1")
		if err != nil {
			t.Fatalf("Key: %v", err)
		}
		if _, ok := got.(*rsa.PublicKey); !ok {
			t.Fatalf("expected rsa public key, got %T", got)
		}
	}
	if hits.Load() != 1 {
		t.Fatalf("expected a single jwks fetch, got %d", hits.Load())
	}

	if _, err := cache.Key(context.Background(), "unknown"); err == nil {
		t.Fatalf("expected error for unknown kid")
	}
}

func TestRequireServiceToken(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	server, _ := newJWKSServer(t, key, "k1")
	authn := NewServiceAuthenticator(NewJWKSCache(server.URL, server.Client()),
		"https://storefront.example.com", []string{"https://accounts.google.com"}, []string{"scheduler@proj.iam.gserviceaccount.com"})

	var seen *Principal
	handler := authn.RequireServiceToken(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	base := jwt.MapClaims{
		"iss":   "https://accounts.google.com",
		"aud":   "https://storefront.example.com",
		"sub":   "1234",
		"email": "scheduler@proj.iam.gserviceaccount.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	clone := func(overrides jwt.MapClaims) jwt.MapClaims {
		out := jwt.MapClaims{}
		for k, v := range base {
			out[k] = v
		}
		for k, v := range overrides {
			out[k] = v
		}
		return out
	}

	tests := []struct {
		name   string
		token  string
		status int
	}{
		{"valid", signServiceToken(t, key, "k1", base), http.StatusNoContent},
		{"missing", "", http.StatusUnauthorized},
		{"wrong audience", signServiceToken(t, key, "k1", clone(jwt.MapClaims{"aud": "other"})), http.StatusUnauthorized},
		{"wrong issuer", signServiceToken(t, key, "k1", clone(jwt.MapClaims{"iss": "https://evil.example.com"})), http.StatusUnauthorized},
		{"expired", signServiceToken(t, key, "k1", clone(jwt.MapClaims{"exp": time.Now().Add(-time.Hour).Unix()})), http.StatusUnauthorized},
		{"email not allowed", signServiceToken(t, key, "k1", clone(jwt.MapClaims{"email": "other@proj.iam.gserviceaccount.com"})), http.StatusForbidden},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodPost, "/internal/jobs/expire-checkouts", nil)
			if tc.token != "" {
				req.Header.Set("Authorization", "Bearer "+tc.token)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d (%s)", tc.status, rr.Code, rr.Body.String())
			}
			if tc.status == http.StatusNoContent && (seen == nil || seen.Kind != PrincipalService) {
				t.Fatalf("expected service principal, got %+v", seen)
			}
		})
	}
}
