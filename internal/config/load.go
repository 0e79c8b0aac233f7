package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"feedsync/internal/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"
)

// FileEnv names the environment variable holding the YAML config path.
const FileEnv = "FEEDSYNC_CONFIG"

var loadMetrics = config.NewConfigMetrics(prometheus.DefaultRegisterer, "feedsync")

// LoadFile overlays the YAML document at path onto cfg.
// Unknown keys are rejected so typos do not go unnoticed.
func LoadFile(path string, cfg *ClientConfig) error {
	// #nosec G304 -- path comes from the operator via FEEDSYNC_CONFIG or a flag
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer func() { _ = f.Close() }()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Load builds the configuration from defaults, the optional file and the
// environment, then validates it. Only an unreadable file or a failed
// validation is an error; bad environment values fall back with a warning.
func Load(logger *slog.Logger) (*ClientConfig, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := DefaultConfig()

	if path := os.Getenv(FileEnv); path != "" {
		if err := LoadFile(path, &cfg); err != nil {
			return nil, err
		}
		logger.Info("configuration file loaded", slog.String("path", path))
	}

	fallbacks := applyEnv(&cfg, logger)
	loadMetrics.SetFallbackActive(fallbacks > 0)

	if err := cfg.Validate(); err != nil {
		loadMetrics.RecordValidationError("config")
		return nil, err
	}
	loadMetrics.RecordLoadTimestamp()
	return &cfg, nil
}

// envLoader applies environment overrides and counts fallbacks.
type envLoader struct {
	logger    *slog.Logger
	fallbacks int
}

func report[T any](l *envLoader, field, envKey string, r config.LoadResult[T]) T {
	if r.FallbackApplied {
		l.fallbacks++
		loadMetrics.RecordFallback(field)
		for _, w := range r.Warnings {
			l.logger.Warn("configuration fallback applied",
				slog.String("field", field),
				slog.String("env_key", envKey),
				slog.String("detail", w))
		}
	}
	return r.Value
}

func (l *envLoader) str(field, envKey string, dst *string, validator func(string) error) {
	*dst = report(l, field, envKey, config.LoadEnvWithFallback(envKey, *dst, validator))
}

func (l *envLoader) duration(field, envKey string, dst *time.Duration, validator func(time.Duration) error) {
	*dst = report(l, field, envKey, config.LoadEnvDuration(envKey, *dst, validator))
}

func (l *envLoader) integer(field, envKey string, dst *int, validator func(int) error) {
	*dst = report(l, field, envKey, config.LoadEnvInt(envKey, *dst, validator))
}

func (l *envLoader) boolean(field, envKey string, dst *bool) {
	*dst = report(l, field, envKey, config.LoadEnvBool(envKey, *dst))
}

func applyEnv(cfg *ClientConfig, logger *slog.Logger) int {
	l := &envLoader{logger: logger}
	positive := config.ValidatePositiveDuration

	l.str("backend.kind", "FEEDSYNC_BACKEND", &cfg.Backend.Kind, config.OneOf(BackendREST, BackendPostgres))
	l.str("backend.rest_url", "FEEDSYNC_REST_URL", &cfg.Backend.RESTURL, config.ValidateHTTPURL)
	l.str("backend.auth_url", "FEEDSYNC_AUTH_URL", &cfg.Backend.AuthURL, config.ValidateHTTPURL)
	l.str("backend.storage_url", "FEEDSYNC_STORAGE_URL", &cfg.Backend.StorageURL, config.ValidateHTTPURL)
	l.str("backend.upload_bucket", "FEEDSYNC_UPLOAD_BUCKET", &cfg.Backend.UploadBucket, nil)
	l.str("backend.api_key", "FEEDSYNC_API_KEY", &cfg.Backend.APIKey, nil)
	l.str("backend.database_url", "DATABASE_URL", &cfg.Backend.DatabaseURL, nil)
	l.duration("backend.request_timeout", "FEEDSYNC_REQUEST_TIMEOUT", &cfg.Backend.RequestTimeout, positive)
	l.duration("backend.poll_interval", "FEEDSYNC_POLL_INTERVAL", &cfg.Backend.PollInterval, positive)

	l.duration("executor.attempt_timeout", "FEEDSYNC_ATTEMPT_TIMEOUT", &cfg.Executor.AttemptTimeout, positive)
	l.integer("executor.max_retries", "FEEDSYNC_MAX_RETRIES", &cfg.Executor.MaxRetries, func(v int) error {
		return config.ValidateIntRange(v, 0, 10)
	})
	l.duration("executor.base_delay", "FEEDSYNC_RETRY_BASE_DELAY", &cfg.Executor.BaseDelay, positive)
	l.duration("executor.feedback_window", "FEEDSYNC_FEEDBACK_WINDOW", &cfg.Executor.FeedbackWindow, positive)

	l.str("probe.url", "FEEDSYNC_PROBE_URL", &cfg.Probe.URL, config.ValidateHTTPURL)

	l.duration("interaction.rate_limit", "FEEDSYNC_QUERY_RATE_LIMIT", &cfg.Interaction.RateLimit, positive)
	l.str("interaction.prune_schedule", "FEEDSYNC_PRUNE_SCHEDULE", &cfg.Interaction.PruneSchedule, config.ValidateCronSchedule)

	l.boolean("notify.push_enabled", "FEEDSYNC_PUSH_ENABLED", &cfg.Notify.PushEnabled)
	l.str("notify.push_url", "FEEDSYNC_PUSH_URL", &cfg.Notify.PushURL, config.ValidateHTTPURL)
	l.str("notify.push_access_token", "FEEDSYNC_PUSH_ACCESS_TOKEN", &cfg.Notify.PushAccessToken, nil)
	l.str("notify.webhook_url", "FEEDSYNC_WEBHOOK_URL", &cfg.Notify.WebhookURL, config.ValidateHTTPURL)
	l.duration("notify.delivery_timeout", "FEEDSYNC_DELIVERY_TIMEOUT", &cfg.Notify.DeliveryTimeout, positive)
	l.str("notify.inbox_resync_schedule", "FEEDSYNC_INBOX_RESYNC_SCHEDULE", &cfg.Notify.InboxResyncSchedule, config.ValidateCronSchedule)

	l.str("server.addr", "FEEDSYNC_OPS_ADDR", &cfg.Server.Addr, nil)
	l.boolean("tracing.enabled", "FEEDSYNC_TRACING", &cfg.Tracing.Enabled)
	l.str("log_level", "LOG_LEVEL", &cfg.LogLevel, config.OneOf("debug", "info", "warn", "error"))

	return l.fallbacks
}
