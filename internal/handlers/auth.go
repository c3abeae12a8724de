package handlers

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/services"
)

const (
	maxAuthBodySize   = 8 * 1024
	loginRateLimit    = 10
	loginRateWindow   = time.Minute
	registerRateLimit = 5
)

// AuthHandlers exposes customer registration and login.
type AuthHandlers struct {
	customers       services.CustomerService
	loginLimiter    rateLimiter
	registerLimiter rateLimiter
}

// AuthOption customises AuthHandlers.
type AuthOption func(*authConfig)

type authConfig struct {
	clock func() time.Time
}

// WithAuthClock overrides the clock used by the rate limiters.
func WithAuthClock(clock func() time.Time) AuthOption {
	return func(cfg *authConfig) {
		if clock != nil {
			cfg.clock = clock
		}
	}
}

// NewAuthHandlers constructs auth handlers with per-client rate limiting.
func NewAuthHandlers(customers services.CustomerService, opts ...AuthOption) *AuthHandlers {
	cfg := authConfig{clock: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &AuthHandlers{
		customers:       customers,
		loginLimiter:    newClientLimiter(loginRateLimit, loginRateWindow, cfg.clock),
		registerLimiter: newClientLimiter(registerRateLimit, loginRateWindow, cfg.clock),
	}
}

// Routes wires /auth endpoints.
func (h *AuthHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/register", h.register)
	r.Post("/login", h.login)
}

type authResponse struct {
	Customer  customerPayload `json:"customer"`
	Token     string          `json:"token"`
	ExpiresAt string          `json:"expiresAt"`
}

func (h *AuthHandlers) register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.customers == nil {
		httpx.WriteError(ctx, w, httpx.NewError("auth_unavailable", "customer service unavailable", http.StatusServiceUnavailable))
		return
	}
	if !allow(h.registerLimiter, clientKey(r)) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many registration attempts", http.StatusTooManyRequests))
		return
	}
	var cmd services.RegisterCommand
	if !decodeJSONBody(w, r, maxAuthBodySize, &cmd) {
		return
	}
	result, err := h.customers.Register(ctx, cmd)
	if err != nil {
		writeCustomerError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildAuthResponse(result))
}

func (h *AuthHandlers) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.customers == nil {
		httpx.WriteError(ctx, w, httpx.NewError("auth_unavailable", "customer service unavailable", http.StatusServiceUnavailable))
		return
	}
	if !allow(h.loginLimiter, clientKey(r)) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many login attempts", http.StatusTooManyRequests))
		return
	}
	var cmd services.LoginCommand
	if !decodeJSONBody(w, r, maxAuthBodySize, &cmd) {
		return
	}
	result, err := h.customers.Login(ctx, cmd)
	if err != nil {
		writeCustomerError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildAuthResponse(result))
}

func buildAuthResponse(result services.AuthResult) authResponse {
	return authResponse{
		Customer:  buildCustomerPayload(result.Customer),
		Token:     result.Token,
		ExpiresAt: formatTime(result.ExpiresAt),
	}
}

func allow(limiter rateLimiter, key string) bool {
	if limiter == nil {
		return true
	}
	return limiter.Allow(key)
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}

func writeCustomerError(ctx context.Context, w http.ResponseWriter, err error) {
	if writeValidationError(ctx, w, err) {
		return
	}
	switch {
	case errors.Is(err, services.ErrCustomerInvalidCredentials):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_credentials", "email or password is incorrect", http.StatusUnauthorized))
	case errors.Is(err, services.ErrCustomerEmailTaken):
		httpx.WriteError(ctx, w, httpx.NewError("email_taken", "an account with this email already exists", http.StatusConflict))
	case errors.Is(err, services.ErrCustomerAddressLimit):
		httpx.WriteError(ctx, w, httpx.NewError("address_limit", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrCustomerInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCustomerNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", "customer resource not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCustomerUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("customer_unavailable", "customer service temporarily unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("customer_error", "failed to process request", http.StatusInternalServerError))
	}
}
