package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hanko-field/storefront/internal/di"
	"github.com/hanko-field/storefront/internal/notifications"
	"github.com/hanko-field/storefront/internal/payments"
	"github.com/hanko-field/storefront/internal/platform/auth"
	"github.com/hanko-field/storefront/internal/platform/config"
	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
	"github.com/hanko-field/storefront/internal/platform/idempotency"
	"github.com/hanko-field/storefront/internal/platform/secrets"
	platformstorage "github.com/hanko-field/storefront/internal/platform/storage"
	"github.com/hanko-field/storefront/internal/repositories"
	"github.com/hanko-field/storefront/internal/services"
	"github.com/hanko-field/storefront/internal/shipping"
	"github.com/hanko-field/storefront/internal/storefront"
)

func serveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the storefront HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := loadRuntime(cmd.Context(), opts)
			if err != nil {
				reportConfigError(cmd.ErrOrStderr(), err)
				return err
			}
			defer rt.Close()
			return serve(cmd.Context(), rt)
		},
	}
}

func serve(ctx context.Context, rt *runtime) error {
	startedAt := time.Now().UTC()
	logger := rt.logger.Named("api")
	cfg := rt.cfg
	buildInfo := buildInfoFromEnv(rt.lookup, cfg, startedAt)

	var clientOpts []option.ClientOption
	if creds := strings.TrimSpace(cfg.Firebase.CredentialsFile); creds != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(creds))
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore, pfirestore.WithClientOptions(clientOpts...))
	defer func() {
		if err := firestoreProvider.Close(); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()
	registry, err := di.NewFirestoreRegistry(firestoreProvider)
	if err != nil {
		return fmt.Errorf("initialise repositories: %w", err)
	}

	var integ di.Integrations

	templates, err := storefront.Load(cfg.Templates.CatalogFile, cfg.Templates.DefaultID)
	if err != nil {
		return fmt.Errorf("load storefront templates: %w", err)
	}
	integ.Templates = templates

	sessions, err := auth.NewSessionManager(cfg.Session.Secret, auth.WithSessionTTL(cfg.Session.TTL))
	if err != nil {
		return fmt.Errorf("initialise session manager: %w", err)
	}
	integ.Sessions = sessions

	if key := strings.TrimSpace(cfg.Stripe.APIKey); key != "" {
		paymentsLogger := logger.Named("payments")
		stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey:    key,
			AccountID: cfg.Stripe.AccountID,
			Logger: func(_ context.Context, event string, fields map[string]any) {
				zFields := make([]zap.Field, 0, len(fields)+1)
				zFields = append(zFields, zap.String("event", event))
				for k, v := range fields {
					zFields = append(zFields, zap.Any(k, v))
				}
				paymentsLogger.Debug("stripe log", zFields...)
			},
			Clock: time.Now,
		})
		if err != nil {
			return fmt.Errorf("initialise stripe provider: %w", err)
		}
		manager, err := payments.NewManager(map[string]payments.Provider{payments.ProviderStripe: stripeProvider})
		if err != nil {
			return fmt.Errorf("initialise payment manager: %w", err)
		}
		integ.Payments = manager
	} else {
		logger.Warn("stripe api key not configured; checkout and refunds are disabled")
	}
	if secret := strings.TrimSpace(cfg.Stripe.WebhookSecret); secret != "" {
		verifier, err := payments.NewWebhookVerifier(secret)
		if err != nil {
			return fmt.Errorf("initialise webhook verifier: %w", err)
		}
		integ.Webhooks = verifier
	}

	if strings.TrimSpace(cfg.Shipping.BaseURL) != "" {
		carrier, err := shipping.NewClient(cfg.Shipping.BaseURL, cfg.Shipping.APIKey, cfg.Shipping.Timeout)
		if err != nil {
			return fmt.Errorf("initialise shipping client: %w", err)
		}
		integ.Shipping = carrier
	}

	var topic *pubsub.Topic
	if name := strings.TrimSpace(cfg.PubSub.NotificationsTopic); name != "" {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID, clientOpts...)
		if err != nil {
			return fmt.Errorf("initialise pubsub client: %w", err)
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
		topic = pubsubClient.Topic(name)
		defer topic.Stop()
		publisher, err := notifications.NewPubSubPublisher(topic)
		if err != nil {
			return fmt.Errorf("initialise notification publisher: %w", err)
		}
		integ.Notifications = publisher
	} else {
		integ.Notifications = notifications.LogPublisher{Logger: logger.Named("notifications")}
	}

	var (
		storageClient *cloudstorage.Client
		imagesBucket  = strings.TrimSpace(cfg.Storage.ProductImagesBucket)
	)
	if imagesBucket != "" && strings.TrimSpace(cfg.Storage.ServiceAccountFile) != "" {
		storageClient, err = cloudstorage.NewClient(ctx, clientOpts...)
		if err != nil {
			return fmt.Errorf("initialise storage client: %w", err)
		}
		defer func() {
			if err := storageClient.Close(); err != nil {
				logger.Warn("storage close error", zap.Error(err))
			}
		}()
		signer, err := platformstorage.NewServiceAccountSignerFromFile(cfg.Storage.ServiceAccountFile)
		if err != nil {
			return fmt.Errorf("load storage signer: %w", err)
		}
		images, err := platformstorage.NewProductImages(imagesBucket, signer,
			platformstorage.GCSRemover{Client: storageClient},
			platformstorage.WithViewTTL(cfg.Storage.SignedURLTTL),
		)
		if err != nil {
			return fmt.Errorf("initialise product images: %w", err)
		}
		integ.Images = images
	}

	if strings.TrimSpace(cfg.Firebase.ProjectID) != "" {
		verifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
		if err != nil {
			logger.Warn("firebase verifier unavailable; admin routes disabled", zap.Error(err))
		} else {
			integ.Admin = auth.NewAdminAuthenticator(verifier)
		}
	}

	if audience := strings.TrimSpace(cfg.Internal.Audience); audience != "" {
		keys := auth.NewJWKSCache(cfg.Internal.JWKSURL, &http.Client{Timeout: 10 * time.Second})
		integ.Internal = auth.NewServiceAuthenticator(keys, audience, cfg.Internal.Issuers, cfg.Internal.AllowedEmails).RequireServiceToken
	} else {
		logger.Warn("internal OIDC audience not configured; job routes disabled")
	}

	idempotencyStore := idempotency.NewFirestoreStore(firestoreProvider)
	integ.Idempotency = idempotencyStore

	health, err := newHealthRepository(firestoreProvider, rt, topic, storageClient, imagesBucket)
	if err != nil {
		logger.Warn("health: dependency checks unavailable", zap.Error(err))
	} else {
		registry.Health = health
	}

	container, err := di.NewContainer(ctx, cfg, registry, integ,
		di.WithBuildInfo(buildInfo),
		di.WithLogger(rt.logger),
	)
	if err != nil {
		return fmt.Errorf("initialise services: %w", err)
	}

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	var cleanupWG sync.WaitGroup
	cleanupTicker := time.NewTicker(cfg.Idempotency.CleanupInterval)
	cleanupWG.Add(1)
	go func() {
		defer cleanupWG.Done()
		cleanupLogger := logger.Named("idempotency")
		for {
			select {
			case <-cleanupTicker.C:
				runCtx, cancel := context.WithTimeout(cleanupCtx, time.Minute)
				removed, err := idempotencyStore.CleanupExpired(runCtx, time.Now().UTC(), cfg.Idempotency.CleanupBatchSize)
				cancel()
				if err != nil {
					cleanupLogger.Error("idempotency cleanup error", zap.Error(err))
					continue
				}
				if removed > 0 {
					cleanupLogger.Info("idempotency cleanup removed records", zap.Int("count", removed))
				}
			case <-cleanupCtx.Done():
				return
			}
		}
	}()

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      container.Handler(traceProjectID(cfg)),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	serveErr := make(chan error, 1)
	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("storefront api listening",
			zap.String("environment", buildInfo.Environment),
			zap.String("version", buildInfo.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-shutdown:
		logger.Info("shutdown signal received; draining requests")
	case err := <-serveErr:
		if err != nil {
			serverLogger.Error("http server error", zap.Error(err))
			runErr = err
		}
	}

	cleanupTicker.Stop()
	cleanupCancel()
	cleanupWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
		if runErr == nil {
			runErr = err
		}
	}
	return runErr
}

func buildInfoFromEnv(lookup func(string) (string, bool), cfg config.Config, started time.Time) services.BuildInfo {
	get := func(key string) string {
		if lookup == nil {
			return ""
		}
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}
	version := get(envPrefix + "BUILD_VERSION")
	if version == "" {
		version = "dev"
	}
	commit := get(envPrefix + "BUILD_COMMIT_SHA")
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func newHealthRepository(provider *pfirestore.Provider, rt *runtime, topic *pubsub.Topic, storageClient *cloudstorage.Client, bucket string) (repositories.HealthRepository, error) {
	checks := make([]repositories.DependencyCheck, 0, 4)
	if provider != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:    "firestore",
			Timeout: 1500 * time.Millisecond,
			Check:   provider.Ping,
		})
	}
	if rt != nil && rt.fetcher != nil {
		const secretHealthReference = "secret://system-healthz"
		fetcher := rt.fetcher
		checks = append(checks, repositories.DependencyCheck{
			Name:    "secretManager",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				_, err := fetcher.ResolveSecret(ctx, secretHealthReference)
				if err == nil || status.Code(err) == codes.NotFound || errors.Is(err, secrets.ErrSecretNotFound) {
					return nil
				}
				return err
			},
		})
	}
	if topic != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:    "pubsub",
			Timeout: 2 * time.Second,
			Check: func(ctx context.Context) error {
				ok, err := topic.Exists(ctx)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("topic %s does not exist", topic.ID())
				}
				return nil
			},
		})
	}
	if storageClient != nil && bucket != "" {
		checks = append(checks, repositories.DependencyCheck{
			Name:    "storage",
			Timeout: 2 * time.Second,
			Check: func(ctx context.Context) error {
				_, err := storageClient.Bucket(bucket).Attrs(ctx)
				return err
			},
		})
	}
	if len(checks) == 0 {
		return nil, errors.New("health: no dependency checks configured")
	}
	return repositories.NewDependencyHealthRepository(checks, time.Now)
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}
