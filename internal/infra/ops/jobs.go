package ops

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"feedsync/internal/observability/logging"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/robfig/cron/v3"
)

var (
	jobRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedsync_job_runs_total",
		Help: "Total scheduled job runs by job and status (success, failure)",
	}, []string{"job", "status"})

	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "feedsync_job_duration_seconds",
		Help:    "Duration of scheduled job runs",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 60},
	}, []string{"job"})

	jobLastSuccess = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "feedsync_job_last_success_timestamp",
		Help: "Unix timestamp of the last successful run per job",
	}, []string{"job"})
)

// Job is one scheduled maintenance task.
type Job func(ctx context.Context) error

// Scheduler runs jobs on cron schedules. A run never overlaps the previous
// run of the same job; a slow run causes the next tick to be skipped.
type Scheduler struct {
	cron    *cron.Cron
	logger  *slog.Logger
	timeout time.Duration

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a scheduler. Each run is bounded by timeout.
func NewScheduler(logger *slog.Logger, timeout time.Duration) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cron.DefaultLogger),
			cron.SkipIfStillRunning(cron.DefaultLogger),
		)),
		logger:  logger,
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Add registers job under name with a five-field cron schedule.
func (s *Scheduler) Add(name, schedule string, job Job) error {
	if _, err := s.cron.AddFunc(schedule, func() { s.Run(name, job) }); err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	s.logger.Info("job scheduled", slog.String("job", name), slog.String("schedule", schedule))
	return nil
}

// Run executes job once with metrics and logging. It is what the cron ticks call.
func (s *Scheduler) Run(name string, job Job) {
	s.mu.Lock()
	parent := s.ctx
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()
	ctx = logging.ContextWithRequestID(ctx, logging.NewRequestID())
	logger := logging.WithRequestID(ctx, s.logger).With(slog.String("job", name))

	start := time.Now()
	err := job(ctx)
	jobDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	if err != nil {
		jobRunsTotal.WithLabelValues(name, "failure").Inc()
		logger.Warn("job failed", slog.Duration("duration", time.Since(start)), slog.Any("error", err))
		return
	}
	jobRunsTotal.WithLabelValues(name, "success").Inc()
	jobLastSuccess.WithLabelValues(name).SetToCurrentTime()
	logger.Debug("job completed", slog.Duration("duration", time.Since(start)))
}

// Start begins running scheduled jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()
	<-s.cron.Stop().Done()
}
