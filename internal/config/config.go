// Package config assembles the client configuration from defaults, an
// optional YAML file and environment overrides.
//
// Sources, later wins:
//   - DefaultConfig()
//   - the YAML file named by FEEDSYNC_CONFIG, when set
//   - FEEDSYNC_* environment variables
//
// Environment values are loaded fail-open: an invalid value keeps the
// previous one, logs a warning and increments the fallback metrics.
package config

import (
	"errors"
	"fmt"
	"time"

	"feedsync/internal/pkg/config"
)

// Backend kinds.
const (
	BackendREST     = "rest"
	BackendPostgres = "postgres"
)

// BackendConfig selects and addresses the remote data platform.
type BackendConfig struct {
	// Kind is "rest" (PostgREST gateway) or "postgres" (direct connection).
	// Default: rest
	Kind string `yaml:"kind"`

	// RESTURL is the gateway root, e.g. https://project.example.com/rest/v1
	RESTURL string `yaml:"rest_url"`

	// AuthURL is the token endpoint root, e.g. https://project.example.com/auth/v1
	AuthURL string `yaml:"auth_url"`

	// StorageURL is the object storage root used for uploads.
	StorageURL string `yaml:"storage_url"`

	// UploadBucket is the bucket resumes are stored in. Default: resumes
	UploadBucket string `yaml:"upload_bucket"`

	// APIKey is the public anon key. Usually supplied through the environment.
	APIKey string `yaml:"api_key"`

	// DatabaseURL is the DSN for the postgres backend.
	DatabaseURL string `yaml:"database_url"`

	// RequestTimeout is the HTTP timeout of a single gateway request. Default: 15s
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// PollInterval drives realtime emulation on the rest backend. Default: 10s
	PollInterval time.Duration `yaml:"poll_interval"`
}

// ExecutorConfig tunes the request executor.
type ExecutorConfig struct {
	// AttemptTimeout bounds one attempt. Default: 15s
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`

	// MaxRetries after the first attempt. Range 0-10. Default: 2
	MaxRetries int `yaml:"max_retries"`

	// BaseDelay doubles per retry. Default: 500ms
	BaseDelay time.Duration `yaml:"base_delay"`

	// Jitter is the random delay added to each backoff. Default: 150ms
	Jitter time.Duration `yaml:"jitter"`

	// FeedbackWindow collapses repeated connection alerts. Default: 8s
	FeedbackWindow time.Duration `yaml:"feedback_window"`
}

// ProbeConfig tunes network detection.
type ProbeConfig struct {
	// URL is requested with HEAD to decide reachability. Empty disables probing.
	URL string `yaml:"url"`

	// Timeout per probe. Default: 3s
	Timeout time.Duration `yaml:"timeout"`

	// CacheTTL reuses a probe result. Default: 5s
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// InteractionConfig tunes likes and bookmarks.
type InteractionConfig struct {
	// RateLimit is the minimum interval between status or count queries per key. Default: 1s
	RateLimit time.Duration `yaml:"rate_limit"`

	// PruneAge drops ledger entries older than this. Default: 10m
	PruneAge time.Duration `yaml:"prune_age"`

	// PruneSchedule is the cron expression of the ledger pruning job. Default: "*/10 * * * *"
	PruneSchedule string `yaml:"prune_schedule"`
}

// NotifyConfig tunes notification delivery and the inbox.
type NotifyConfig struct {
	// PushEnabled turns on push delivery. Default: true
	PushEnabled bool `yaml:"push_enabled"`

	// PushURL is the push gateway endpoint. Empty uses the Expo default.
	PushURL string `yaml:"push_url"`

	// PushAccessToken is sent to the push gateway when set.
	PushAccessToken string `yaml:"push_access_token"`

	// WebhookURL receives local alerts when set; otherwise alerts are logged.
	WebhookURL string `yaml:"webhook_url"`

	// DeliveryTimeout bounds the delivery step of one notification. Default: 10s
	DeliveryTimeout time.Duration `yaml:"delivery_timeout"`

	// FailureThreshold opens a channel after this many consecutive failures. Range 1-100. Default: 5
	FailureThreshold int `yaml:"failure_threshold"`

	// OpenTimeout is how long an opened channel is skipped. Default: 5m
	OpenTimeout time.Duration `yaml:"open_timeout"`

	// InboxPageSize is the number of notifications listed. Range 1-500. Default: 50
	InboxPageSize int `yaml:"inbox_page_size"`

	// InboxResyncSchedule is the cron expression of the inbox resync job. Default: "*/15 * * * *"
	InboxResyncSchedule string `yaml:"inbox_resync_schedule"`
}

// ServerConfig configures the ops endpoints of the daemon.
type ServerConfig struct {
	// Addr is the listen address. Default: ":9091"
	Addr string `yaml:"addr"`

	// ShutdownTimeout bounds graceful shutdown. Default: 10s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// TracingConfig configures OpenTelemetry.
type TracingConfig struct {
	// Enabled installs an SDK tracer provider. Default: false
	Enabled bool `yaml:"enabled"`

	// SampleRatio is the fraction of traces kept, 0 to 1. Default: 1
	SampleRatio float64 `yaml:"sample_ratio"`
}

// ClientConfig is the complete client configuration.
type ClientConfig struct {
	Backend     BackendConfig     `yaml:"backend"`
	Executor    ExecutorConfig    `yaml:"executor"`
	Probe       ProbeConfig       `yaml:"probe"`
	Interaction InteractionConfig `yaml:"interaction"`
	Notify      NotifyConfig      `yaml:"notify"`
	Server      ServerConfig      `yaml:"server"`
	Tracing     TracingConfig     `yaml:"tracing"`

	// LogLevel is debug, info, warn or error. Default: info
	LogLevel string `yaml:"log_level"`
}

// DefaultConfig returns the defaults listed on each field.
func DefaultConfig() ClientConfig {
	return ClientConfig{
		Backend: BackendConfig{
			Kind:           BackendREST,
			UploadBucket:   "resumes",
			RequestTimeout: 15 * time.Second,
			PollInterval:   10 * time.Second,
		},
		Executor: ExecutorConfig{
			AttemptTimeout: 15 * time.Second,
			MaxRetries:     2,
			BaseDelay:      500 * time.Millisecond,
			Jitter:         150 * time.Millisecond,
			FeedbackWindow: 8 * time.Second,
		},
		Probe: ProbeConfig{
			Timeout:  3 * time.Second,
			CacheTTL: 5 * time.Second,
		},
		Interaction: InteractionConfig{
			RateLimit:     time.Second,
			PruneAge:      10 * time.Minute,
			PruneSchedule: "*/10 * * * *",
		},
		Notify: NotifyConfig{
			PushEnabled:         true,
			DeliveryTimeout:     10 * time.Second,
			FailureThreshold:    5,
			OpenTimeout:         5 * time.Minute,
			InboxPageSize:       50,
			InboxResyncSchedule: "*/15 * * * *",
		},
		Server: ServerConfig{
			Addr:            ":9091",
			ShutdownTimeout: 10 * time.Second,
		},
		Tracing: TracingConfig{
			SampleRatio: 1,
		},
		LogLevel: "info",
	}
}

// Validate checks every field and returns all problems joined.
func (c *ClientConfig) Validate() error {
	var errs []error
	add := func(field string, err error) {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
		}
	}

	add("backend.kind", config.OneOf(BackendREST, BackendPostgres)(c.Backend.Kind))
	switch c.Backend.Kind {
	case BackendREST:
		add("backend.rest_url", config.ValidateHTTPURL(c.Backend.RESTURL))
		if c.Backend.AuthURL != "" {
			add("backend.auth_url", config.ValidateHTTPURL(c.Backend.AuthURL))
		}
		add("backend.poll_interval", config.ValidateDuration(c.Backend.PollInterval, time.Second, time.Hour))
	case BackendPostgres:
		if c.Backend.DatabaseURL == "" {
			errs = append(errs, errors.New("backend.database_url: required for the postgres backend"))
		}
	}
	if c.Backend.StorageURL != "" {
		add("backend.storage_url", config.ValidateHTTPURL(c.Backend.StorageURL))
	}
	add("backend.request_timeout", config.ValidatePositiveDuration(c.Backend.RequestTimeout))

	add("executor.attempt_timeout", config.ValidatePositiveDuration(c.Executor.AttemptTimeout))
	add("executor.max_retries", config.ValidateIntRange(c.Executor.MaxRetries, 0, 10))
	add("executor.base_delay", config.ValidateDuration(c.Executor.BaseDelay, time.Millisecond, time.Minute))
	add("executor.jitter", config.ValidateDuration(c.Executor.Jitter, 0, time.Minute))
	add("executor.feedback_window", config.ValidatePositiveDuration(c.Executor.FeedbackWindow))

	if c.Probe.URL != "" {
		add("probe.url", config.ValidateHTTPURL(c.Probe.URL))
	}
	add("probe.timeout", config.ValidatePositiveDuration(c.Probe.Timeout))
	add("probe.cache_ttl", config.ValidatePositiveDuration(c.Probe.CacheTTL))

	add("interaction.rate_limit", config.ValidatePositiveDuration(c.Interaction.RateLimit))
	add("interaction.prune_age", config.ValidatePositiveDuration(c.Interaction.PruneAge))
	add("interaction.prune_schedule", config.ValidateCronSchedule(c.Interaction.PruneSchedule))

	if c.Notify.PushURL != "" {
		add("notify.push_url", config.ValidateHTTPURL(c.Notify.PushURL))
	}
	if c.Notify.WebhookURL != "" {
		add("notify.webhook_url", config.ValidateHTTPURL(c.Notify.WebhookURL))
	}
	add("notify.delivery_timeout", config.ValidatePositiveDuration(c.Notify.DeliveryTimeout))
	add("notify.failure_threshold", config.ValidateIntRange(c.Notify.FailureThreshold, 1, 100))
	add("notify.open_timeout", config.ValidatePositiveDuration(c.Notify.OpenTimeout))
	add("notify.inbox_page_size", config.ValidateIntRange(c.Notify.InboxPageSize, 1, 500))
	add("notify.inbox_resync_schedule", config.ValidateCronSchedule(c.Notify.InboxResyncSchedule))

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr: required"))
	}
	add("server.shutdown_timeout", config.ValidatePositiveDuration(c.Server.ShutdownTimeout))

	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("tracing.sample_ratio: %v is outside [0, 1]", c.Tracing.SampleRatio))
	}
	add("log_level", config.OneOf("debug", "info", "warn", "error")(c.LogLevel))

	if len(errs) > 0 {
		return fmt.Errorf("validation failed: %w", errors.Join(errs...))
	}
	return nil
}
