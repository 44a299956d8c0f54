// Package app builds every long-lived collaborator from Config, acting as a
// dependency injection container for the commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	gcsclient "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/threadwatch/internal/clock"
	"github.com/JakeFAU/threadwatch/internal/config"
	"github.com/JakeFAU/threadwatch/internal/digest"
	"github.com/JakeFAU/threadwatch/internal/extract"
	collyfetcher "github.com/JakeFAU/threadwatch/internal/fetcher/colly"
	"github.com/JakeFAU/threadwatch/internal/logging"
	"github.com/JakeFAU/threadwatch/internal/metrics"
	memorynotifier "github.com/JakeFAU/threadwatch/internal/notifier/memory"
	"github.com/JakeFAU/threadwatch/internal/notifier/webhook"
	pubsubpublisher "github.com/JakeFAU/threadwatch/internal/publisher/pubsub"
	"github.com/JakeFAU/threadwatch/internal/retry"
	"github.com/JakeFAU/threadwatch/internal/runid"
	gcsstore "github.com/JakeFAU/threadwatch/internal/storage/gcs"
	"github.com/JakeFAU/threadwatch/internal/storage/local"
	memorystore "github.com/JakeFAU/threadwatch/internal/storage/memory"
	pgstore "github.com/JakeFAU/threadwatch/internal/storage/postgres"
	"github.com/JakeFAU/threadwatch/internal/watch"
)

// App holds the services for a single check run.
type App struct {
	cfg      config.Config
	runID    string
	logger   *zap.Logger
	store    watch.StateStore
	detector *watch.Detector
	closers  []func() error
}

type options struct {
	fetchTransport http.RoundTripper
	webhookClient  *http.Client
	clock          watch.Clock
	store          watch.StateStore
}

// Option overrides a collaborator, mostly for tests.
type Option func(*options)

// WithFetchTransport replaces the fetcher's HTTP transport.
func WithFetchTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.fetchTransport = rt }
}

// WithWebhookClient replaces the notifier's HTTP client.
func WithWebhookClient(c *http.Client) Option {
	return func(o *options) { o.webhookClient = c }
}

// WithClock replaces the wall clock.
func WithClock(c watch.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithStore bypasses the configured backend.
func WithStore(s watch.StateStore) Option {
	return func(o *options) { o.store = s }
}

// New validates cfg and wires the detector. Call Close when done.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{clock: clock.System{}}
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &App{cfg: cfg, runID: runid.New()}
	a.logger = logging.ForRun(logger, a.runID, cfg.Source.URL)

	if o.store != nil {
		a.store = o.store
	} else {
		store, closeStore, err := OpenStore(ctx, cfg.State)
		if err != nil {
			return nil, err
		}
		a.store = store
		a.closers = append(a.closers, closeStore)
	}

	var fetcher watch.Fetcher = collyfetcher.New(collyfetcher.Config{
		UserAgent:    cfg.Source.UserAgent,
		MaxRedirects: cfg.Source.MaxRedirects,
		Timeout:      cfg.SourceTimeout(),
		Transport:    o.fetchTransport,
	})
	policy := retry.NewExponentialPolicy(
		cfg.Source.MaxRetries+1,
		time.Duration(cfg.Source.BackoffInitialMs)*time.Millisecond,
		time.Duration(cfg.Source.BackoffMaxMs)*time.Millisecond,
	)
	fetcher = retry.WrapFetcher(fetcher, policy, a.logger.Named("retry"))

	var notifier watch.Notifier
	store := a.store
	if cfg.Webhook.DryRun {
		a.logger.Info("dry run: notifications are logged and the watermark is not saved")
		notifier = memorynotifier.New(a.logger.Named("dry_run"))
		store = readOnlyStore{StateStore: store, logger: a.logger}
	} else {
		wh, err := webhook.New(webhook.Config{
			URL:       cfg.Webhook.URL,
			UserAgent: cfg.Source.UserAgent,
			Timeout:   cfg.WebhookTimeout(),
			Client:    o.webhookClient,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("%w: %v", watch.ErrConfig, err)
		}
		notifier = wh
	}

	detectorOpts := []watch.Option{
		watch.WithHasher(digest.NewSHA256()),
		watch.WithRecorder(metrics.NewRecorder(cfg.Source.URL)),
	}
	if cfg.PubSubEnabled() {
		pub, err := pubsubpublisher.New(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicName)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("initialize pubsub publisher: %w", err)
		}
		a.closers = append(a.closers, pub.Close)
		detectorOpts = append(detectorOpts, watch.WithPublisher(pub))
	}

	a.detector = watch.NewDetector(
		watch.Config{SourceURL: cfg.Source.URL, RunID: a.runID},
		store,
		fetcher,
		extract.New(cfg.Extract.Markers),
		notifier,
		o.clock,
		a.logger,
		detectorOpts...,
	)
	return a, nil
}

// OpenStore builds the configured watermark backend. The returned func
// releases any client it opened.
func OpenStore(ctx context.Context, cfg config.StateConfig) (watch.StateStore, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Backend {
	case config.BackendFile:
		s, err := local.New(local.Config{Path: cfg.Path})
		if err != nil {
			return nil, nil, fmt.Errorf("initialize file state store: %w", err)
		}
		return s, noop, nil
	case config.BackendMemory:
		return memorystore.NewStateStore(), noop, nil
	case config.BackendGCS:
		client, err := gcsclient.NewClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("create gcs client: %w", err)
		}
		s, err := gcsstore.New(client, gcsstore.Config{Bucket: cfg.GCSBucket, Object: cfg.GCSObject})
		if err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("initialize gcs state store: %w", err)
		}
		return s, client.Close, nil
	case config.BackendPostgres:
		s, err := pgstore.New(ctx, pgstore.Config{DSN: cfg.DSN, Table: cfg.Table, Key: cfg.Key})
		if err != nil {
			return nil, nil, fmt.Errorf("initialize postgres state store: %w", err)
		}
		return s, func() error { s.Close(); return nil }, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown state.backend %q", watch.ErrConfig, cfg.Backend)
	}
}

// Logger returns the run-scoped logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Store exposes the configured watermark backend.
func (a *App) Store() watch.StateStore {
	return a.store
}

// RunID identifies this invocation in logs and change events.
func (a *App) RunID() string {
	return a.runID
}

// Check performs one detection run and exports metrics when configured.
func (a *App) Check(ctx context.Context) (watch.Outcome, error) {
	out, err := a.detector.Run(ctx)
	if path := a.cfg.Metrics.TextfilePath; path != "" {
		if werr := metrics.WriteTextfile(path); werr != nil {
			a.logger.Warn("metrics textfile not written", zap.Error(werr))
		}
	}
	return out, err
}

// Close releases clients in reverse order of creation.
func (a *App) Close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("error closing application services", zap.Error(err))
	}
}

// readOnlyStore drops writes so dry runs can be repeated.
type readOnlyStore struct {
	watch.StateStore
	logger *zap.Logger
}

func (s readOnlyStore) Save(_ context.Context, last int) error {
	s.logger.Info("dry run: watermark not saved", zap.Int("last", last))
	return nil
}
