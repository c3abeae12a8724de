package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	envPrefix = "STOREFRONT_"

	defaultEnvFile             = ".env"
	defaultPort                = "8080"
	defaultReadTimeout         = 15 * time.Second
	defaultWriteTimeout        = 30 * time.Second
	defaultIdleTimeout         = 120 * time.Second
	defaultShutdownTimeout     = 20 * time.Second
	defaultLogLevel            = "info"
	defaultEnvironment         = "local"
	defaultCurrency            = "INR"
	defaultSessionTTL          = 24 * time.Hour
	defaultSignedURLTTL        = 15 * time.Minute
	defaultShippingTimeout     = 10 * time.Second
	defaultCheckoutPendingTTL  = 30 * time.Minute
	defaultRefundConcurrency   = 4
	defaultIdempotencyHeader   = "Idempotency-Key"
	defaultIdempotencyTTL      = 24 * time.Hour
	defaultIdempotencyInterval = time.Hour
	defaultIdempotencyBatch    = 200
	defaultTemplateID          = "classic"
	defaultJWKSURL             = "https://www.googleapis.com/oauth2/v3/certs"
	defaultOIDCIssuer          = "https://accounts.google.com"
	defaultSecretsFallbackFile = ".secrets.local"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Environment string
	Logging     LoggingConfig
	Server      ServerConfig
	Firebase    FirebaseConfig
	Firestore   FirestoreConfig
	Storage     StorageConfig
	Stripe      StripeConfig
	Shipping    ShippingConfig
	PubSub      PubSubConfig
	Session     SessionConfig
	Internal    InternalAuthConfig
	Checkout    CheckoutConfig
	Templates   TemplateConfig
	Secrets     SecretsConfig
	Idempotency IdempotencyConfig
}

// LoggingConfig controls zap output.
type LoggingConfig struct {
	Level       string
	Development bool
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// FirebaseConfig stores Firebase project settings used for admin sign-in.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// StorageConfig configures product image storage.
type StorageConfig struct {
	ProductImagesBucket string
	SignedURLTTL        time.Duration
	ServiceAccountFile  string
}

// StripeConfig holds payment gateway credentials.
type StripeConfig struct {
	APIKey        string
	WebhookSecret string
	AccountID     string
}

// ShippingConfig configures the carrier REST API.
type ShippingConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// PubSubConfig configures notification publishing.
type PubSubConfig struct {
	ProjectID          string
	NotificationsTopic string
}

// SessionConfig configures customer session tokens.
type SessionConfig struct {
	Secret string
	TTL    time.Duration
}

// InternalAuthConfig configures OIDC verification for scheduler driven job endpoints.
type InternalAuthConfig struct {
	Audience      string
	JWKSURL       string
	Issuers       []string
	AllowedEmails []string
}

// CheckoutConfig tunes the checkout and refund orchestrators.
type CheckoutConfig struct {
	Currency          string
	PendingTTL        time.Duration
	RefundConcurrency int
}

// TemplateConfig locates the storefront template catalogue.
type TemplateConfig struct {
	CatalogFile string
	DefaultID   string
}

// SecretsConfig configures secret:// resolution.
type SecretsConfig struct {
	ProjectID    string
	FallbackFile string
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Header           string
	TTL              time.Duration
	CleanupInterval  time.Duration
	CleanupBatchSize int
}

// SecretResolver resolves secret references such as secret://stripe-api-key.
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret calls f.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing or invalid field list.
func (e *ValidationError) Fields() []string {
	return append([]string(nil), e.fields...)
}

// SecretError describes a failure resolving a secret reference.
type SecretError struct {
	Field string
	Ref   string
	Err   error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("config: resolve %s (%s): %v", e.Field, e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

var errNoSecretResolver = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
	resolver     SecretResolver
}

// WithEnvFile overrides the .env file path. An empty path disables dotenv loading.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) { o.envFile = path }
}

// WithEnvMap injects explicit values that take precedence over the process environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) { o.envMap = values }
}

// WithoutSystemEnv disables reading the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) { o.useSystemEnv = false }
}

// WithSecretResolver sets the resolver used for secret:// and sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) { o.resolver = resolver }
}

// Lookup returns a key lookup honouring the same precedence as Load:
// explicit map, then process environment, then the .env file.
func Lookup(opts ...Option) (func(string) (string, bool), error) {
	options := loaderOptions{envFile: defaultEnvFile, useSystemEnv: true}
	for _, opt := range opts {
		opt(&options)
	}
	return options.lookup()
}

func (o loaderOptions) lookup() (func(string) (string, bool), error) {
	dotEnv, err := loadDotEnv(o.envFile)
	if err != nil {
		return nil, err
	}
	return func(key string) (string, bool) {
		if v, ok := o.envMap[key]; ok {
			return v, true
		}
		if o.useSystemEnv {
			if v, ok := os.LookupEnv(key); ok {
				return v, true
			}
		}
		v, ok := dotEnv[key]
		return v, ok
	}, nil
}

// Load assembles the configuration from defaults, the .env file, the environment and secret references.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{envFile: defaultEnvFile, useSystemEnv: true}
	for _, opt := range opts {
		opt(&options)
	}
	lookup, err := options.lookup()
	if err != nil {
		return Config{}, err
	}
	get := func(key, fallback string) string { return stringWithDefault(lookup, envPrefix+key, fallback) }
	dur := func(key string, fallback time.Duration) time.Duration {
		return durationWithDefault(lookup, envPrefix+key, fallback)
	}

	cfg := Config{
		Environment: strings.ToLower(get("ENVIRONMENT", defaultEnvironment)),
		Logging: LoggingConfig{
			Level:       get("LOG_LEVEL", defaultLogLevel),
			Development: boolWithDefault(lookup, envPrefix+"LOG_DEVELOPMENT", false),
		},
		Server: ServerConfig{
			Port:            get("SERVER_PORT", defaultPort),
			ReadTimeout:     dur("SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:    dur("SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:     dur("SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			ShutdownTimeout: dur("SERVER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
		},
		Firebase: FirebaseConfig{
			ProjectID:       get("FIREBASE_PROJECT_ID", ""),
			CredentialsFile: get("FIREBASE_CREDENTIALS_FILE", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:    get("FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: get("FIRESTORE_EMULATOR_HOST", ""),
		},
		Storage: StorageConfig{
			ProductImagesBucket: get("STORAGE_PRODUCT_IMAGES_BUCKET", ""),
			SignedURLTTL:        dur("STORAGE_SIGNED_URL_TTL", defaultSignedURLTTL),
			ServiceAccountFile:  get("STORAGE_SERVICE_ACCOUNT_FILE", ""),
		},
		Stripe: StripeConfig{
			APIKey:        get("STRIPE_API_KEY", ""),
			WebhookSecret: get("STRIPE_WEBHOOK_SECRET", ""),
			AccountID:     get("STRIPE_ACCOUNT_ID", ""),
		},
		Shipping: ShippingConfig{
			BaseURL: get("SHIPPING_BASE_URL", ""),
			APIKey:  get("SHIPPING_API_KEY", ""),
			Timeout: dur("SHIPPING_TIMEOUT", defaultShippingTimeout),
		},
		PubSub: PubSubConfig{
			ProjectID:          get("PUBSUB_PROJECT_ID", ""),
			NotificationsTopic: get("PUBSUB_NOTIFICATIONS_TOPIC", ""),
		},
		Session: SessionConfig{
			Secret: get("SESSION_SECRET", ""),
			TTL:    dur("SESSION_TTL", defaultSessionTTL),
		},
		Internal: InternalAuthConfig{
			Audience:      get("INTERNAL_OIDC_AUDIENCE", ""),
			JWKSURL:       get("INTERNAL_OIDC_JWKS_URL", defaultJWKSURL),
			Issuers:       csvWithDefault(lookup, envPrefix+"INTERNAL_OIDC_ISSUERS"),
			AllowedEmails: csvWithDefault(lookup, envPrefix+"INTERNAL_OIDC_ALLOWED_EMAILS"),
		},
		Checkout: CheckoutConfig{
			Currency:          strings.ToUpper(get("CHECKOUT_CURRENCY", defaultCurrency)),
			PendingTTL:        dur("CHECKOUT_PENDING_TTL", defaultCheckoutPendingTTL),
			RefundConcurrency: intWithDefault(lookup, envPrefix+"REFUND_CONCURRENCY", defaultRefundConcurrency),
		},
		Templates: TemplateConfig{
			CatalogFile: get("TEMPLATES_FILE", ""),
			DefaultID:   get("TEMPLATES_DEFAULT", defaultTemplateID),
		},
		Secrets: SecretsConfig{
			ProjectID:    get("SECRETS_PROJECT_ID", ""),
			FallbackFile: get("SECRETS_FALLBACK_FILE", defaultSecretsFallbackFile),
		},
		Idempotency: IdempotencyConfig{
			Header:           get("IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:              dur("IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			CleanupInterval:  dur("IDEMPOTENCY_CLEANUP_INTERVAL", defaultIdempotencyInterval),
			CleanupBatchSize: intWithDefault(lookup, envPrefix+"IDEMPOTENCY_CLEANUP_BATCH", defaultIdempotencyBatch),
		},
	}

	// Project IDs cascade from the Firebase project.
	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.Secrets.ProjectID == "" {
		cfg.Secrets.ProjectID = cfg.Firebase.ProjectID
	}
	if len(cfg.Internal.Issuers) == 0 {
		cfg.Internal.Issuers = []string{defaultOIDCIssuer, "accounts.google.com"}
	}

	secretFields := []struct {
		name  string
		field *string
	}{
		{"Stripe.APIKey", &cfg.Stripe.APIKey},
		{"Stripe.WebhookSecret", &cfg.Stripe.WebhookSecret},
		{"Shipping.APIKey", &cfg.Shipping.APIKey},
		{"Session.Secret", &cfg.Session.Secret},
	}
	for _, target := range secretFields {
		resolved, err := resolveSecret(ctx, target.name, *target.field, options.resolver)
		if err != nil {
			return Config{}, err
		}
		*target.field = resolved
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func resolveSecret(ctx context.Context, field, value string, resolver SecretResolver) (string, error) {
	value = strings.TrimSpace(value)
	if !IsSecretReference(value) {
		return value, nil
	}
	ref := NormalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Field: field, Ref: ref, Err: errNoSecretResolver}
	}
	secret, err := resolver.ResolveSecret(ctx, ref)
	if err != nil {
		return "", &SecretError{Field: field, Ref: ref, Err: err}
	}
	return strings.TrimSpace(secret), nil
}

func validate(cfg Config) error {
	var missing []string
	require := func(ok bool, field string) {
		if !ok {
			missing = append(missing, field)
		}
	}

	require(cfg.Server.Port != "", "Server.Port")
	require(cfg.Firebase.ProjectID != "", "Firebase.ProjectID")
	require(cfg.Firestore.ProjectID != "", "Firestore.ProjectID")
	require(len(cfg.Session.Secret) >= 32, "Session.Secret")
	require(cfg.Checkout.Currency != "", "Checkout.Currency")
	require(cfg.Checkout.PendingTTL > 0, "Checkout.PendingTTL")
	require(cfg.Checkout.RefundConcurrency > 0, "Checkout.RefundConcurrency")
	require(strings.TrimSpace(cfg.Idempotency.Header) != "", "Idempotency.Header")
	require(cfg.Idempotency.TTL > 0, "Idempotency.TTL")
	require(cfg.Idempotency.CleanupInterval > 0, "Idempotency.CleanupInterval")
	require(cfg.Idempotency.CleanupBatchSize > 0, "Idempotency.CleanupBatchSize")
	if cfg.Environment != defaultEnvironment {
		require(cfg.Stripe.APIKey != "", "Stripe.APIKey")
		require(cfg.Stripe.WebhookSecret != "", "Stripe.WebhookSecret")
		require(cfg.Shipping.BaseURL != "", "Shipping.BaseURL")
		require(cfg.PubSub.NotificationsTopic != "", "PubSub.NotificationsTopic")
		require(cfg.Storage.ProductImagesBucket != "", "Storage.ProductImagesBucket")
		require(cfg.Internal.Audience != "", "Internal.Audience")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

// IsSecretReference reports whether value points at Secret Manager.
func IsSecretReference(value string) bool {
	value = strings.TrimSpace(value)
	return strings.HasPrefix(value, "secret://") || strings.HasPrefix(value, "sm://")
}

// NormalizeSecretReference rewrites sm:// references to secret://.
func NormalizeSecretReference(value string) string {
	value = strings.TrimSpace(value)
	if rest, ok := strings.CutPrefix(value, "sm://"); ok {
		return "secret://" + rest
	}
	return value
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		key, value, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), `"'`)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func csvWithDefault(lookup func(string) (string, bool), key string) []string {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
