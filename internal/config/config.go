// Package config loads and validates watcher configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/JakeFAU/threadwatch/internal/extract"
	collyfetcher "github.com/JakeFAU/threadwatch/internal/fetcher/colly"
	"github.com/JakeFAU/threadwatch/internal/watch"
)

// State backends.
const (
	BackendFile     = "file"
	BackendGCS      = "gcs"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config captures all knobs loaded via Viper.
type Config struct {
	Source  SourceConfig  `mapstructure:"source"`
	Webhook WebhookConfig `mapstructure:"webhook"`
	Extract ExtractConfig `mapstructure:"extract"`
	State   StateConfig   `mapstructure:"state"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// SourceConfig describes the watched thread and how to fetch it.
type SourceConfig struct {
	URL              string `mapstructure:"url"`
	UserAgent        string `mapstructure:"user_agent"`
	MaxRedirects     int    `mapstructure:"max_redirects"`
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	MaxRetries       int    `mapstructure:"max_retries"`
	BackoffInitialMs int    `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int    `mapstructure:"backoff_max_ms"`
}

// WebhookConfig describes the notification endpoint.
type WebhookConfig struct {
	URL            string `mapstructure:"url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	DryRun         bool   `mapstructure:"dry_run"`
}

// ExtractConfig tunes the structured extraction tier.
type ExtractConfig struct {
	Markers []string `mapstructure:"markers"`
}

// StateConfig selects and configures the watermark backend.
type StateConfig struct {
	Backend   string `mapstructure:"backend"`
	Path      string `mapstructure:"path"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	GCSObject string `mapstructure:"gcs_object"`
	DSN       string `mapstructure:"dsn"`
	Table     string `mapstructure:"table"`
	Key       string `mapstructure:"key"`
}

// PubSubConfig holds the optional change-event topic.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// MetricsConfig controls the Prometheus textfile export.
type MetricsConfig struct {
	TextfilePath string `mapstructure:"textfile_path"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from an optional file, a .env file in the working
// directory, and the environment. It does not validate; callers pick
// Validate or ValidateState depending on what they are about to do.
func Load(path string) (Config, error) {
	return load(path, ".env")
}

func load(path, envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("%w: read %s: %v", watch.ErrConfig, envFile, err)
		}
	}

	v := viper.New()
	v.SetEnvPrefix("THREADWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// The watcher has always been driven by these two variables.
	if err := v.BindEnv("source.url", "THREAD_URL", "THREADWATCH_SOURCE_URL"); err != nil {
		return Config{}, fmt.Errorf("bind source.url: %w", err)
	}
	if err := v.BindEnv("webhook.url", "DISCORD_WEBHOOK", "THREADWATCH_WEBHOOK_URL"); err != nil {
		return Config{}, fmt.Errorf("bind webhook.url: %w", err)
	}

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("%w: read config: %v", watch.ErrConfig, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: unmarshal config: %v", watch.ErrConfig, err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("source.user_agent", collyfetcher.DefaultUserAgent)
	v.SetDefault("source.max_redirects", 5)
	v.SetDefault("source.timeout_seconds", 15)
	v.SetDefault("source.max_retries", 0)
	v.SetDefault("source.backoff_initial_ms", 250)
	v.SetDefault("source.backoff_max_ms", 5000)
	v.SetDefault("webhook.timeout_seconds", 15)
	v.SetDefault("webhook.dry_run", false)
	v.SetDefault("extract.markers", extract.DefaultMarkers)
	v.SetDefault("state.backend", BackendFile)
	v.SetDefault("state.path", "state.json")
	v.SetDefault("state.gcs_bucket", "")
	v.SetDefault("state.gcs_object", "threadwatch/state.json")
	v.SetDefault("state.dsn", "")
	v.SetDefault("state.table", "watermarks")
	v.SetDefault("state.key", "default")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("metrics.textfile_path", "")
	v.SetDefault("logging.development", false)
}

// Validate enforces everything a check run needs.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Source.URL) == "" {
		return fmt.Errorf("%w: source.url is required (set THREAD_URL)", watch.ErrConfig)
	}
	if strings.TrimSpace(c.Webhook.URL) == "" {
		return fmt.Errorf("%w: webhook.url is required (set DISCORD_WEBHOOK)", watch.ErrConfig)
	}
	if err := requireHTTPS("source.url", c.Source.URL); err != nil {
		return err
	}
	if err := requireHTTPS("webhook.url", c.Webhook.URL); err != nil {
		return err
	}
	if c.Source.MaxRedirects < 0 {
		return fmt.Errorf("%w: source.max_redirects must be >= 0", watch.ErrConfig)
	}
	if c.Source.TimeoutSeconds <= 0 {
		return fmt.Errorf("%w: source.timeout_seconds must be > 0", watch.ErrConfig)
	}
	if c.Webhook.TimeoutSeconds <= 0 {
		return fmt.Errorf("%w: webhook.timeout_seconds must be > 0", watch.ErrConfig)
	}
	if c.Source.MaxRetries < 0 {
		return fmt.Errorf("%w: source.max_retries must be >= 0", watch.ErrConfig)
	}
	return c.ValidateState()
}

// ValidateState checks only the watermark backend settings.
func (c Config) ValidateState() error {
	switch c.State.Backend {
	case BackendFile:
		if strings.TrimSpace(c.State.Path) == "" {
			return fmt.Errorf("%w: state.path is required for the file backend", watch.ErrConfig)
		}
	case BackendGCS:
		if c.State.GCSBucket == "" {
			return fmt.Errorf("%w: state.gcs_bucket is required for the gcs backend", watch.ErrConfig)
		}
	case BackendPostgres:
		if c.State.DSN == "" {
			return fmt.Errorf("%w: state.dsn is required for the postgres backend", watch.ErrConfig)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("%w: unknown state.backend %q", watch.ErrConfig, c.State.Backend)
	}
	return nil
}

// PubSubEnabled reports whether change events should be published.
func (c Config) PubSubEnabled() bool {
	return c.PubSub.ProjectID != "" && c.PubSub.TopicName != ""
}

// SourceTimeout converts the fetch timeout to a duration.
func (c Config) SourceTimeout() time.Duration {
	return time.Duration(c.Source.TimeoutSeconds) * time.Second
}

// WebhookTimeout converts the webhook timeout to a duration.
func (c Config) WebhookTimeout() time.Duration {
	return time.Duration(c.Webhook.TimeoutSeconds) * time.Second
}

func requireHTTPS(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", watch.ErrConfig, key, err)
	}
	if u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("%w: %s must be an https URL: %w", watch.ErrConfig, key, watch.ErrInsecureURL)
	}
	return nil
}
