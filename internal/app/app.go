// Package app wires the client core from a loaded configuration. Both
// binaries build through it so they share one dependency graph.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"feedsync/internal/config"
	"feedsync/internal/domain/entity"
	"feedsync/internal/infra/db"
	"feedsync/internal/infra/netprobe"
	"feedsync/internal/infra/notifier"
	"feedsync/internal/infra/remote/postgres"
	"feedsync/internal/infra/remote/rest"
	"feedsync/internal/infra/upload"
	"feedsync/internal/remote"
	"feedsync/internal/resilience/retry"
	"feedsync/internal/usecase/application"
	"feedsync/internal/usecase/comment"
	"feedsync/internal/usecase/execute"
	"feedsync/internal/usecase/feedback"
	"feedsync/internal/usecase/interaction"
	"feedsync/internal/usecase/notify"
	"feedsync/pkg/ratelimit"

	"github.com/prometheus/client_golang/prometheus"
)

// Credential environment variables. Secrets are never read from the config file.
const (
	EnvAccessToken  = "FEEDSYNC_ACCESS_TOKEN"
	EnvRefreshToken = "FEEDSYNC_REFRESH_TOKEN"
	EnvEmail        = "FEEDSYNC_EMAIL"
	EnvPassword     = "FEEDSYNC_PASSWORD"
	EnvUserID       = "FEEDSYNC_USER_ID"
)

// ErrNoCredentials is returned when the rest backend has no way to sign in.
var ErrNoCredentials = errors.New("no credentials: set FEEDSYNC_ACCESS_TOKEN or FEEDSYNC_EMAIL and FEEDSYNC_PASSWORD")

// App holds every wired component.
type App struct {
	Config   *config.ClientConfig
	Logger   *slog.Logger
	Store    remote.Store
	Identity remote.Identity
	Executor *execute.Executor

	Likes        *interaction.Manager
	Bookmarks    *interaction.Manager
	Comments     *comment.Manager
	Dispatcher   *notify.Dispatcher
	Inbox        *notify.Inbox
	Applications *application.Tracker

	// DB is set for the postgres backend only.
	DB *sql.DB

	closers []func() error
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// backend is the store-facing part of the graph, which differs per backend kind.
type backend struct {
	store      remote.Store
	identity   remote.Identity
	refresher  remote.SessionRefresher
	subscriber remote.Subscriber
	tokens     upload.TokenSource
	db         *sql.DB
}

// Build wires the application. ratelimitMetrics may be nil.
func Build(ctx context.Context, cfg *config.ClientConfig, logger *slog.Logger, ratelimitMetrics ratelimit.Metrics) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	var (
		be  *backend
		err error
	)
	switch cfg.Backend.Kind {
	case config.BackendPostgres:
		be, err = a.postgresBackend(ctx)
	default:
		be, err = a.restBackend(ctx)
	}
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Store = be.store
	a.Identity = be.identity
	a.DB = be.db

	alerter := buildAlerter(cfg, logger)
	throttle := feedback.NewThrottle(alerter, cfg.Executor.FeedbackWindow, feedback.WithLogger(logger))

	var prober netprobe.Prober = netprobe.Online
	if cfg.Probe.URL != "" {
		prober = netprobe.NewHTTPProber(netprobe.Config{
			URL:      cfg.Probe.URL,
			Timeout:  cfg.Probe.Timeout,
			CacheTTL: cfg.Probe.CacheTTL,
		}, logger)
	}

	a.Executor = execute.New(execute.Config{
		AttemptTimeout: cfg.Executor.AttemptTimeout,
		Policy: retry.Policy{
			MaxRetries: cfg.Executor.MaxRetries,
			BaseDelay:  cfg.Executor.BaseDelay,
			Jitter:     cfg.Executor.Jitter,
			MaxDelay:   10 * time.Second,
		},
	}, execute.Deps{
		Prober:    prober,
		Feedback:  throttle,
		Refresher: be.refresher,
		OnAuthFailure: func(ctx context.Context) {
			logger.Error("session could not be recovered, sign in again")
		},
		Logger: logger,
	})

	interactionCfg := interaction.Config{
		RateLimit: cfg.Interaction.RateLimit,
		Metrics:   ratelimitMetrics,
		Logger:    logger,
	}
	a.Likes = interaction.NewManager(entity.OperationLike, interaction.NewLikeStrategy(be.store), a.Executor, be.identity, interactionCfg)
	a.Bookmarks = interaction.NewManager(entity.OperationBookmark, interaction.NewBookmarkStrategy(be.store), a.Executor, be.identity, interactionCfg)

	push := notifier.NewExpoPushSender(notifier.ExpoConfig{
		Enabled:     cfg.Notify.PushEnabled,
		URL:         cfg.Notify.PushURL,
		AccessToken: cfg.Notify.PushAccessToken,
	})
	a.Dispatcher = notify.NewDispatcher(be.store, a.Executor, []notify.Channel{
		notify.NewPushChannel(be.store, push, cfg.Notify.PushEnabled),
		notify.NewAlertChannel(alerter),
	}, notify.Config{
		DeliveryTimeout:  cfg.Notify.DeliveryTimeout,
		FailureThreshold: cfg.Notify.FailureThreshold,
		OpenTimeout:      cfg.Notify.OpenTimeout,
		Logger:           logger,
	})

	a.Inbox = notify.NewInbox(be.store, a.Executor, be.identity, be.subscriber, alerter, notify.InboxConfig{
		PageSize: cfg.Notify.InboxPageSize,
		Logger:   logger,
	})
	a.Comments = comment.NewManager(be.store, a.Executor, be.identity, a.Dispatcher, comment.Config{Logger: logger})

	var uploader remote.Uploader
	if cfg.Backend.StorageURL != "" {
		uploader = upload.NewHTTPUploader(upload.Config{
			URL:    cfg.Backend.StorageURL,
			Bucket: cfg.Backend.UploadBucket,
			APIKey: cfg.Backend.APIKey,
		}, be.tokens)
	}
	a.Applications = application.NewTracker(be.store, a.Executor, be.identity, uploader, a.Dispatcher, application.Config{Logger: logger})

	return a, nil
}

func buildAlerter(cfg *config.ClientConfig, logger *slog.Logger) notifier.Alerter {
	if cfg.Notify.WebhookURL != "" {
		return notifier.NewWebhookAlerter(notifier.WebhookConfig{Enabled: true, URL: cfg.Notify.WebhookURL})
	}
	return notifier.NewLogAlerter(logger)
}

func (a *App) restBackend(ctx context.Context) (*backend, error) {
	cfg := a.Config.Backend
	session := rest.NewSession(rest.AuthConfig{URL: cfg.AuthURL, APIKey: cfg.APIKey, Timeout: cfg.RequestTimeout})
	if err := signIn(ctx, session); err != nil {
		return nil, err
	}
	store := rest.NewStore(rest.Config{BaseURL: cfg.RESTURL, APIKey: cfg.APIKey, Timeout: cfg.RequestTimeout}, session)
	id, _ := session.CurrentUserID()
	a.Logger.Info("rest backend ready",
		slog.String("url", cfg.RESTURL),
		slog.String("user_id", id))
	return &backend{
		store:      store,
		identity:   session,
		refresher:  session,
		subscriber: remote.NewPollingSubscriber(store, cfg.PollInterval),
		tokens:     session,
	}, nil
}

// signIn restores a saved token pair or signs in with a password.
func signIn(ctx context.Context, session *rest.Session) error {
	if access := os.Getenv(EnvAccessToken); access != "" {
		if err := session.SetTokens(access, os.Getenv(EnvRefreshToken)); err != nil {
			return fmt.Errorf("restore session: %w", err)
		}
		if !session.ExpiresAt().IsZero() && time.Now().After(session.ExpiresAt()) {
			if err := session.Refresh(ctx); err != nil {
				return fmt.Errorf("refresh expired session: %w", err)
			}
		}
		return nil
	}
	email, password := os.Getenv(EnvEmail), os.Getenv(EnvPassword)
	if email == "" || password == "" {
		return ErrNoCredentials
	}
	if err := session.SignInWithPassword(ctx, email, password); err != nil {
		return fmt.Errorf("sign in: %w", err)
	}
	return nil
}

func (a *App) postgresBackend(ctx context.Context) (*backend, error) {
	dsn := a.Config.Backend.DatabaseURL
	sqlDB, err := db.Open(ctx, dsn, db.ConnectionConfigFromEnv())
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, sqlDB.Close)

	if err := db.MigrateUp(ctx, sqlDB); err != nil {
		return nil, err
	}

	userID := os.Getenv(EnvUserID)
	if userID == "" {
		a.Logger.Warn("FEEDSYNC_USER_ID not set, running unauthenticated")
	}
	return &backend{
		store:      postgres.NewStore(sqlDB),
		identity:   remote.StaticIdentity(userID),
		subscriber: postgres.NewListener(dsn, a.Logger),
		db:         sqlDB,
	}, nil
}

// NewRateLimitMetrics registers the interaction dedup metrics once per process.
func NewRateLimitMetrics() ratelimit.Metrics {
	return ratelimit.NewPrometheusMetrics(prometheus.DefaultRegisterer)
}
