package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"
)

const (
	defaultSessionTTL    = 24 * time.Hour
	defaultSessionIssuer = "storefront"
)

var (
	// ErrSessionInvalid is returned for malformed, tampered or foreign tokens.
	ErrSessionInvalid = errors.New("auth: session token invalid")
	// ErrPasswordMismatch is returned when a password does not match its hash.
	ErrPasswordMismatch = errors.New("auth: password mismatch")
)

type sessionClaims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// SessionManager issues and verifies HS256 customer session tokens.
type SessionManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// SessionOption customises SessionManager.
type SessionOption func(*SessionManager)

// WithSessionTTL overrides the token lifetime.
func WithSessionTTL(ttl time.Duration) SessionOption {
	return func(m *SessionManager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithSessionIssuer overrides the iss claim.
func WithSessionIssuer(issuer string) SessionOption {
	return func(m *SessionManager) {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			m.issuer = issuer
		}
	}
}

// WithSessionClock overrides the time source.
func WithSessionClock(now func() time.Time) SessionOption {
	return func(m *SessionManager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewSessionManager constructs a SessionManager. The secret must be at least 32 bytes.
func NewSessionManager(secret string, opts ...SessionOption) (*SessionManager, error) {
	if len(secret) < 32 {
		return nil, errors.New("auth: session secret must be at least 32 bytes")
	}
	m := &SessionManager{
		secret: []byte(secret),
		issuer: defaultSessionIssuer,
		ttl:    defaultSessionTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m, nil
}

// Issue returns a signed session token for the customer.
func (m *SessionManager) Issue(customerID, email string) (string, time.Time, error) {
	if strings.TrimSpace(customerID) == "" {
		return "", time.Time{}, errors.New("auth: customer id is required")
	}
	now := m.now().UTC()
	expires := now.Add(m.ttl)
	claims := sessionClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   customerID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign session: %w", err)
	}
	return signed, expires, nil
}

// Verify parses token and returns the customer principal. Expired tokens yield ErrTokenExpired.
func (m *SessionManager) Verify(token string) (*Principal, error) {
	claims := &sessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		var verr *jwt.ValidationError
		if errors.As(err, &verr) && verr.Errors&jwt.ValidationErrorExpired != 0 {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrSessionInvalid, err)
	}
	if !parsed.Valid || claims.Subject == "" || !claims.VerifyIssuer(m.issuer, true) {
		return nil, ErrSessionInvalid
	}
	if claims.ExpiresAt != nil && !claims.ExpiresAt.After(m.now()) {
		return nil, ErrTokenExpired
	}
	return &Principal{
		Subject: claims.Subject,
		Kind:    PrincipalCustomer,
		Email:   claims.Email,
	}, nil
}

// RequireCustomer rejects requests without a valid customer session. Expired or invalid sessions
// answer 401 with the logout signal so clients drop the stored token.
func (m *SessionManager) RequireCustomer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := extractBearerToken(r.Header.Get("Authorization"))
		if !ok {
			respondUnauthenticated(w, r, "unauthenticated", "authorization header missing or invalid", false)
			return
		}
		principal, err := m.Verify(raw)
		switch {
		case errors.Is(err, ErrTokenExpired):
			respondUnauthenticated(w, r, "session_expired", "session expired, sign in again", true)
			return
		case err != nil:
			respondUnauthenticated(w, r, "invalid_session", "session token invalid", true)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
	})
}

// HashPassword hashes a customer password with bcrypt.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("auth: hash password: %w", err)
	}
	return string(hash), nil
}

// ComparePassword checks password against a bcrypt hash.
func ComparePassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrPasswordMismatch
		}
		return fmt.Errorf("auth: compare password: %w", err)
	}
	return nil
}
