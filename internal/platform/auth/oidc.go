package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v4"
)

const defaultJWKSTTL = time.Hour

// ErrJWKSUnavailable is returned when signing keys cannot be fetched.
var ErrJWKSUnavailable = errors.New("auth: jwks unavailable")

// KeySource resolves RSA verification keys by key id.
type KeySource interface {
	Key(ctx context.Context, kid string) (any, error)
}

// JWKSCache fetches and caches a JSON Web Key Set (Google's OIDC certs in production).
type JWKSCache struct {
	url    string
	client *http.Client
	ttl    time.Duration
	now    func() time.Time

	mu      sync.RWMutex
	keys    map[string]jose.JSONWebKey
	expires time.Time
}

// NewJWKSCache constructs a cache for the given JWKS URL.
func NewJWKSCache(url string, client *http.Client) *JWKSCache {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &JWKSCache{url: strings.TrimSpace(url), client: client, ttl: defaultJWKSTTL, now: time.Now}
}

// Key returns the public key for kid, refreshing the set when stale or when kid is unknown.
func (c *JWKSCache) Key(ctx context.Context, kid string) (any, error) {
	c.mu.RLock()
	jwk, ok := c.keys[kid]
	fresh := c.now().Before(c.expires)
	c.mu.RUnlock()
	if ok && fresh {
		return jwk.Key, nil
	}

	if err := c.refresh(ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	jwk, ok = c.keys[kid]
	if !ok {
		return nil, fmt.Errorf("auth: unknown key id %q", kid)
	}
	return jwk.Key, nil
}

func (c *JWKSCache) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrJWKSUnavailable, err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrJWKSUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrJWKSUnavailable, resp.StatusCode)
	}

	var set jose.JSONWebKeySet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrJWKSUnavailable, err)
	}
	keys := make(map[string]jose.JSONWebKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.KeyID != "" && k.Valid() && k.IsPublic() {
			keys[k.KeyID] = k
		}
	}
	if len(keys) == 0 {
		return fmt.Errorf("%w: empty key set", ErrJWKSUnavailable)
	}

	c.mu.Lock()
	c.keys = keys
	c.expires = c.now().Add(c.ttl)
	c.mu.Unlock()
	return nil
}

// ServiceAuthenticator verifies Google-signed OIDC tokens sent by Cloud Scheduler and Tasks.
type ServiceAuthenticator struct {
	keys          KeySource
	audience      string
	issuers       []string
	allowedEmails []string
}

// NewServiceAuthenticator constructs a ServiceAuthenticator. An empty allowedEmails accepts any
// service account with a valid token for the audience.
func NewServiceAuthenticator(keys KeySource, audience string, issuers, allowedEmails []string) *ServiceAuthenticator {
	return &ServiceAuthenticator{
		keys:          keys,
		audience:      strings.TrimSpace(audience),
		issuers:       issuers,
		allowedEmails: allowedEmails,
	}
}

// RequireServiceToken guards internal job endpoints.
func (s *ServiceAuthenticator) RequireServiceToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := extractBearerToken(r.Header.Get("Authorization"))
		if !ok {
			respondUnauthenticated(w, r, "unauthenticated", "service token missing", false)
			return
		}
		if s == nil || s.keys == nil || s.audience == "" {
			respondUnauthenticated(w, r, "verification_unavailable", "service token verification not configured", false)
			return
		}

		claims := jwt.MapClaims{}
		parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
		_, err := parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
			kid, _ := t.Header["kid"].(string)
			return s.keys.Key(r.Context(), kid)
		})
		if err != nil {
			respondUnauthenticated(w, r, "invalid_token", "service token verification failed", false)
			return
		}
		if !claims.VerifyAudience(s.audience, true) {
			respondUnauthenticated(w, r, "invalid_token", "service token audience mismatch", false)
			return
		}
		issuer, _ := claims["iss"].(string)
		if len(s.issuers) > 0 && !slices.Contains(s.issuers, issuer) {
			respondUnauthenticated(w, r, "invalid_token", "service token issuer mismatch", false)
			return
		}
		email, _ := claims["email"].(string)
		if len(s.allowedEmails) > 0 && !slices.Contains(s.allowedEmails, email) {
			respondForbidden(w, r, "service_not_allowed", "service account not allowed")
			return
		}
		subject, _ := claims["sub"].(string)
		principal := &Principal{Subject: subject, Kind: PrincipalService, Email: email}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
	})
}
