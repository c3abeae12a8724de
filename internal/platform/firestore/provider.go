package firestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/hanko-field/storefront/internal/platform/config"
)

// ErrProviderClosed is returned after Close has been called.
var ErrProviderClosed = errors.New("firestore: provider is closed")

var errMissingProject = errors.New("firestore: project id is required")

// Provider owns the single Firestore client shared by every storefront repository.
// The client is dialled on first use; a failed dial is not cached.
type Provider struct {
	projectID string
	emulator  string
	connect   time.Duration
	extra     []option.ClientOption

	mu     sync.Mutex
	client *firestore.Client
	closed bool
}

// ProviderOption customises a Provider.
type ProviderOption func(*Provider)

// WithDialTimeout bounds how long the first client creation may take.
func WithDialTimeout(timeout time.Duration) ProviderOption {
	return func(p *Provider) {
		if timeout > 0 {
			p.connect = timeout
		}
	}
}

// WithClientOptions passes extra options (credentials, endpoints) to the client.
func WithClientOptions(opts ...option.ClientOption) ProviderOption {
	return func(p *Provider) { p.extra = append(p.extra, opts...) }
}

// NewProvider prepares a provider for the configured project. The emulator host
// falls back to FIRESTORE_EMULATOR_HOST when the config leaves it blank.
func NewProvider(cfg config.FirestoreConfig, opts ...ProviderOption) *Provider {
	p := &Provider{
		projectID: strings.TrimSpace(cfg.ProjectID),
		emulator:  strings.TrimSpace(cfg.EmulatorHost),
		connect:   10 * time.Second,
	}
	if p.emulator == "" {
		p.emulator = strings.TrimSpace(os.Getenv("FIRESTORE_EMULATOR_HOST"))
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Client returns the shared client.
func (p *Provider) Client(ctx context.Context) (*firestore.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.closed:
		return nil, ErrProviderClosed
	case p.client != nil:
		return p.client, nil
	case p.projectID == "":
		return nil, errMissingProject
	}

	dialCtx, cancel := context.WithTimeout(ctx, p.connect)
	defer cancel()
	client, err := firestore.NewClient(dialCtx, p.projectID, p.clientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("firestore: connect to %s: %w", p.projectID, err)
	}
	p.client = client
	return client, nil
}

func (p *Provider) clientOptions() []option.ClientOption {
	opts := append([]option.ClientOption(nil), p.extra...)
	if p.emulator == "" {
		return opts
	}
	return append(opts,
		option.WithEndpoint(p.emulator),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
}

// Ping lists at most one root collection, which is enough to prove the
// credentials and the database are usable. An empty database is healthy.
func (p *Provider) Ping(ctx context.Context) error {
	client, err := p.Client(ctx)
	if err != nil {
		return err
	}
	if _, err := client.Collections(ctx).Next(); err != nil && !errors.Is(err, iterator.Done) {
		return WrapError("firestore.ping", err)
	}
	return nil
}

// RunTransaction runs fn in a transaction on the shared client.
func (p *Provider) RunTransaction(ctx context.Context, fn TxFunc, opts ...TxOption) error {
	client, err := p.Client(ctx)
	if err != nil {
		return err
	}
	return RunTransaction(ctx, client, fn, opts...)
}

// Close releases the client. Later calls to Client fail with ErrProviderClosed.
func (p *Provider) Close() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	client := p.client
	p.client = nil
	if client == nil {
		return nil
	}
	return client.Close()
}
