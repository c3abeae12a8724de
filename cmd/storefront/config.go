package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/hanko-field/storefront/internal/platform/config"
	"github.com/hanko-field/storefront/internal/platform/observability"
	"github.com/hanko-field/storefront/internal/platform/secrets"
)

const envPrefix = "STOREFRONT_"

// runtime is what every command needs before it can touch the domain: a logger, a secret
// fetcher and the resolved configuration.
type runtime struct {
	logger  *zap.Logger
	fetcher *secrets.Fetcher
	cfg     config.Config
	lookup  func(string) (string, bool)
}

func (r *runtime) Close() {
	if r.fetcher != nil {
		if err := r.fetcher.Close(); err != nil {
			r.logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}
	_ = r.logger.Sync()
}

func (o *rootOptions) configOptions() []config.Option {
	if strings.TrimSpace(o.envFile) == "" {
		return nil
	}
	return []config.Option{config.WithEnvFile(o.envFile)}
}

// loadRuntime reads the handful of settings needed to build the logger and the secret
// fetcher, then loads the full configuration with secret:// references resolved.
func loadRuntime(ctx context.Context, opts *rootOptions) (*runtime, error) {
	lookup, err := config.Lookup(opts.configOptions()...)
	if err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	get := func(key string) string {
		v, _ := lookup(envPrefix + key)
		return strings.TrimSpace(v)
	}

	logOpts := []observability.LoggerOption{observability.WithLevel(get("LOG_LEVEL"))}
	if dev, _ := strconv.ParseBool(get("LOG_DEVELOPMENT")); dev {
		logOpts = append(logOpts, observability.WithDevelopmentEncoding())
	}
	logger, err := observability.NewLogger("storefront", logOpts...)
	if err != nil {
		return nil, fmt.Errorf("initialise logger: %w", err)
	}

	projectID := get("SECRETS_PROJECT_ID")
	if projectID == "" {
		projectID = get("FIREBASE_PROJECT_ID")
	}
	fallback := get("SECRETS_FALLBACK_FILE")
	if fallback == "" {
		fallback = ".secrets.local"
	}
	var clientOpts []option.ClientOption
	if creds := get("FIREBASE_CREDENTIALS_FILE"); creds != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(creds))
	}
	fetcher := secrets.NewFetcher(ctx, projectID, clientOpts,
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallback),
	)

	rt := &runtime{logger: logger, fetcher: fetcher, lookup: lookup}
	loadOpts := append(opts.configOptions(), config.WithSecretResolver(fetcher))
	cfg, err := config.Load(ctx, loadOpts...)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.cfg = cfg
	return rt, nil
}

func configCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect runtime configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Load the configuration, resolve secrets and report enabled integrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := loadRuntime(cmd.Context(), opts)
			if err != nil {
				reportConfigError(cmd.ErrOrStderr(), err)
				return err
			}
			defer rt.Close()
			printConfigSummary(cmd.OutOrStdout(), rt.cfg)
			return nil
		},
	})
	return cmd
}

func reportConfigError(w io.Writer, err error) {
	var invalid *config.ValidationError
	if errors.As(err, &invalid) {
		fmt.Fprintln(w, "configuration is invalid:")
		for _, field := range invalid.Fields() {
			fmt.Fprintf(w, "  - %s\n", field)
		}
		return
	}
	var secretErr *config.SecretError
	if errors.As(err, &secretErr) {
		fmt.Fprintf(w, "secret %s for %s could not be resolved: %v\n", secretErr.Ref, secretErr.Field, secretErr.Err)
	}
}

func printConfigSummary(w io.Writer, cfg config.Config) {
	enabled := func(ok bool) string {
		if ok {
			return "enabled"
		}
		return "disabled"
	}
	fmt.Fprintf(w, "environment: %s\n", cfg.Environment)
	fmt.Fprintf(w, "listen:      :%s\n", cfg.Server.Port)
	fmt.Fprintf(w, "project:     %s\n", cfg.Firestore.ProjectID)
	fmt.Fprintf(w, "currency:    %s\n", cfg.Checkout.Currency)
	fmt.Fprintf(w, "payments:    %s\n", enabled(cfg.Stripe.APIKey != ""))
	fmt.Fprintf(w, "webhooks:    %s\n", enabled(cfg.Stripe.WebhookSecret != ""))
	fmt.Fprintf(w, "shipping:    %s\n", enabled(cfg.Shipping.BaseURL != ""))
	fmt.Fprintf(w, "pubsub:      %s\n", enabled(cfg.PubSub.NotificationsTopic != ""))
	fmt.Fprintf(w, "images:      %s\n", enabled(cfg.Storage.ProductImagesBucket != "" && cfg.Storage.ServiceAccountFile != ""))
	fmt.Fprintf(w, "admin:       %s\n", enabled(cfg.Firebase.ProjectID != ""))
	fmt.Fprintf(w, "jobs:        %s\n", enabled(cfg.Internal.Audience != ""))
}
