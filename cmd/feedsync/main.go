// Command feedsync runs the sync core as a daemon: it keeps the notification
// inbox live, prunes interaction ledgers on a schedule and serves health,
// channel status and Prometheus metrics on the ops address.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"feedsync/internal/app"
	"feedsync/internal/config"
	"feedsync/internal/infra/ops"
	"feedsync/internal/observability/logging"
	"feedsync/internal/observability/metrics"
	"feedsync/internal/observability/tracing"
	"feedsync/internal/usecase/notify"
)

const serviceName = "feedsync"

func main() {
	logger := logging.NewLogger()
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("feedsync exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(logger)
	if err != nil {
		return err
	}
	logging.SetLevel(cfg.LogLevel)
	logger.Info("configuration loaded",
		slog.String("backend", cfg.Backend.Kind),
		slog.String("ops_addr", cfg.Server.Addr),
		slog.Duration("query_rate_limit", cfg.Interaction.RateLimit),
		slog.Bool("push_enabled", cfg.Notify.PushEnabled),
		slog.Bool("tracing", cfg.Tracing.Enabled))

	if cfg.Tracing.Enabled {
		shutdown, err := tracing.InitTracer(serviceName,
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.Tracing.SampleRatio))))
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Warn("tracer shutdown failed", slog.Any("error", err))
			}
		}()
	}

	a, err := app.Build(ctx, cfg, logger, app.NewRateLimitMetrics())
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("failed to close backend", slog.Any("error", err))
		}
	}()

	server := ops.NewServer(cfg.Server.Addr, logger, channelHealth(a.Dispatcher))
	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	scheduler := ops.NewScheduler(logger, cfg.Executor.AttemptTimeout*4)
	if err := registerJobs(scheduler, a); err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Prime the inbox before reporting ready.
	scheduler.Run("inbox_resync", inboxResync(a))

	go func() {
		if err := a.Inbox.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("inbox watch stopped", slog.Any("error", err))
		}
	}()

	server.SetReady(true)
	logger.Info("feedsync running")

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return err
		}
	}
	server.SetReady(false)
	return nil
}

func registerJobs(s *ops.Scheduler, a *app.App) error {
	cfg := a.Config
	if err := s.Add("inbox_resync", cfg.Notify.InboxResyncSchedule, inboxResync(a)); err != nil {
		return err
	}
	if err := s.Add("ledger_prune", cfg.Interaction.PruneSchedule, func(ctx context.Context) error {
		n := a.Likes.PruneLedgers() + a.Bookmarks.PruneLedgers()
		a.Logger.Debug("interaction ledgers pruned", slog.Int("entries", n))
		return nil
	}); err != nil {
		return err
	}
	if a.DB != nil {
		return s.Add("db_stats", "@every 30s", func(ctx context.Context) error {
			stats := a.DB.Stats()
			metrics.UpdateDBConnectionStats(stats.InUse, stats.Idle)
			return nil
		})
	}
	return nil
}

func inboxResync(a *app.App) ops.Job {
	return func(ctx context.Context) error {
		_, unread, err := a.Inbox.Refresh(ctx)
		if err != nil {
			return err
		}
		a.Logger.Debug("inbox resynced", slog.Int("unread", unread))
		return nil
	}
}

func channelHealth(d *notify.Dispatcher) ops.ChannelHealthFunc {
	return func() []ops.ChannelStatus {
		health := d.ChannelHealth()
		out := make([]ops.ChannelStatus, 0, len(health))
		for _, h := range health {
			out = append(out, ops.ChannelStatus{
				Name:               h.Name,
				Enabled:            h.Enabled,
				CircuitBreakerOpen: h.CircuitBreakerOpen,
				DisabledUntil:      h.DisabledUntil,
			})
		}
		return out
	}
}
