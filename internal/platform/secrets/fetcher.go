package secrets

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gopkg.in/yaml.v3"
)

const meterName = "github.com/hanko-field/storefront/internal/platform/secrets"

// ErrSecretNotFound is returned when neither Secret Manager nor the fallback file has the secret.
var ErrSecretNotFound = errors.New("secrets: secret not found")

type accessor interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Fetcher resolves secret:// references against Secret Manager, caching values for the process
// lifetime. Local development falls back to a YAML file of name: value pairs.
type Fetcher struct {
	client     accessor
	ownsClient bool
	projectID  string
	logger     *zap.Logger

	fallbackPath string
	fallbackOnce sync.Once
	fallback     map[string]string
	fallbackErr  error

	mu    sync.RWMutex
	cache map[string]string

	latency metric.Float64Histogram
}

// Option customises a Fetcher.
type Option func(*Fetcher)

// WithLogger sets the diagnostic logger.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithFallbackFile sets the YAML file consulted when Secret Manager is unavailable.
func WithFallbackFile(path string) Option {
	return func(f *Fetcher) { f.fallbackPath = strings.TrimSpace(path) }
}

// WithClient injects a Secret Manager client, mainly for tests.
func WithClient(client accessor) Option {
	return func(f *Fetcher) { f.client = client }
}

// NewFetcher builds a Fetcher for projectID. When no client is injected one is created with
// clientOpts; failure to create it leaves the fetcher in fallback-only mode.
func NewFetcher(ctx context.Context, projectID string, clientOpts []option.ClientOption, opts ...Option) *Fetcher {
	f := &Fetcher{
		projectID: strings.TrimSpace(projectID),
		logger:    zap.NewNop(),
		cache:     make(map[string]string),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}

	hist, err := otel.Meter(meterName).Float64Histogram("secrets.fetch.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency of secret resolution"))
	if err == nil {
		f.latency = hist
	}

	if f.client == nil && f.projectID != "" {
		client, err := secretmanager.NewClient(ctx, clientOpts...)
		if err != nil {
			f.logger.Warn("secrets: secret manager unavailable, using fallback file", zap.Error(err))
		} else {
			f.client = client
			f.ownsClient = true
		}
	}
	return f
}

// Close releases the Secret Manager client when owned.
func (f *Fetcher) Close() error {
	if f.ownsClient && f.client != nil {
		return f.client.Close()
	}
	return nil
}

// ResolveSecret implements config.SecretResolver.
// References look like secret://name, secret://name?version=3 or secret://projects/p/secrets/name.
func (f *Fetcher) ResolveSecret(ctx context.Context, ref string) (string, error) {
	start := time.Now()
	project, name, version, err := parseReference(ref, f.projectID)
	if err != nil {
		return "", err
	}
	key := project + "/" + name + "@" + version

	f.mu.RLock()
	cached, ok := f.cache[key]
	f.mu.RUnlock()
	if ok {
		f.record(ctx, start, "cache")
		return cached, nil
	}

	source := "remote"
	value, err := f.fetchRemote(ctx, project, name, version)
	if err != nil {
		if !fallbackEligible(err) {
			f.record(ctx, start, "error")
			return "", fmt.Errorf("secrets: access %s: %w", name, err)
		}
		f.logger.Debug("secrets: falling back to local file", zap.String("secret", name), zap.Error(err))
		source = "fallback"
		value, err = f.lookupFallback(name)
		if err != nil {
			f.record(ctx, start, "error")
			return "", err
		}
	}

	f.mu.Lock()
	f.cache[key] = value
	f.mu.Unlock()
	f.record(ctx, start, source)
	return value, nil
}

func (f *Fetcher) fetchRemote(ctx context.Context, project, name, version string) (string, error) {
	if f.client == nil || project == "" {
		return "", errNoClient
	}
	resp, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: fmt.Sprintf("projects/%s/secrets/%s/versions/%s", project, name, version),
	})
	if err != nil {
		return "", err
	}
	if resp.GetPayload() == nil {
		return "", fmt.Errorf("secrets: empty payload for %s", name)
	}
	return strings.TrimSpace(string(resp.GetPayload().GetData())), nil
}

var errNoClient = errors.New("secrets: secret manager client not configured")

func fallbackEligible(err error) bool {
	if errors.Is(err, errNoClient) {
		return true
	}
	switch status.Code(err) {
	case codes.NotFound, codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable:
		return true
	}
	return false
}

func (f *Fetcher) lookupFallback(name string) (string, error) {
	f.fallbackOnce.Do(func() {
		if f.fallbackPath == "" {
			return
		}
		data, err := os.ReadFile(f.fallbackPath)
		if errors.Is(err, os.ErrNotExist) {
			return
		}
		if err != nil {
			f.fallbackErr = fmt.Errorf("secrets: read fallback file: %w", err)
			return
		}
		values := map[string]string{}
		if err := yaml.Unmarshal(data, &values); err != nil {
			f.fallbackErr = fmt.Errorf("secrets: parse fallback file: %w", err)
			return
		}
		f.fallback = values
	})
	if f.fallbackErr != nil {
		return "", f.fallbackErr
	}
	value, ok := f.fallback[name]
	if !ok || strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("%w: %s", ErrSecretNotFound, name)
	}
	return strings.TrimSpace(value), nil
}

func (f *Fetcher) record(ctx context.Context, start time.Time, source string) {
	if f.latency == nil {
		return
	}
	f.latency.Record(ctx, float64(time.Since(start).Microseconds())/1000,
		metric.WithAttributes(attribute.String("source", source)))
}

func parseReference(ref, defaultProject string) (project, name, version string, err error) {
	ref = strings.TrimSpace(ref)
	rest, ok := strings.CutPrefix(ref, "secret://")
	if !ok {
		if rest, ok = strings.CutPrefix(ref, "sm://"); !ok {
			return "", "", "", fmt.Errorf("secrets: unsupported reference %q", ref)
		}
	}
	u, err := url.Parse("secret://host/" + rest)
	if err != nil {
		return "", "", "", fmt.Errorf("secrets: parse reference %q: %w", ref, err)
	}
	version = u.Query().Get("version")
	if version == "" {
		version = "latest"
	}
	project = defaultProject
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	switch {
	case len(segments) == 1 && segments[0] != "":
		name = segments[0]
	case len(segments) == 4 && segments[0] == "projects" && segments[2] == "secrets":
		project, name = segments[1], segments[3]
	default:
		return "", "", "", fmt.Errorf("secrets: malformed reference %q", ref)
	}
	return project, name, version, nil
}
