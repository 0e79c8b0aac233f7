// Package execute runs remote operations with a per-attempt timeout,
// exponential backoff, a single session refresh on 401, an offline
// short-circuit and classification of failures into retry-eligible kinds.
//
// Callers wrap each remote call:
//
//	liked, err := execute.Do(ctx, exec, "like.status", func(ctx context.Context) (bool, error) {
//	    return strategy.IsActive(ctx, userID, postID)
//	})
//
// Failures are returned as *execute.Error whose Message is safe to show.
package execute

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"feedsync/internal/infra/netprobe"
	"feedsync/internal/observability/logging"
	"feedsync/internal/observability/tracing"
	"feedsync/internal/remote"
	"feedsync/internal/resilience/retry"
	"feedsync/internal/usecase/feedback"

	"go.opentelemetry.io/otel/attribute"
)

// DefaultAttemptTimeout bounds every single attempt.
const DefaultAttemptTimeout = 15 * time.Second

// Operation is one re-invocable remote call. It must be safe to retry.
type Operation[T any] func(ctx context.Context) (T, error)

// Config holds executor-wide defaults.
type Config struct {
	// AttemptTimeout bounds a single attempt. Default: 15s
	AttemptTimeout time.Duration

	// Policy is the default retry policy. Default: retry.DefaultPolicy()
	Policy retry.Policy
}

// DefaultConfig returns the executor defaults.
func DefaultConfig() Config {
	return Config{
		AttemptTimeout: DefaultAttemptTimeout,
		Policy:         retry.DefaultPolicy(),
	}
}

// Deps are the executor's collaborators. Only Prober is required.
type Deps struct {
	Prober    netprobe.Prober
	Feedback  feedback.Notifier
	Refresher remote.SessionRefresher
	// OnAuthFailure runs when a session cannot be recovered, unless a call supplies its own.
	OnAuthFailure func(ctx context.Context)
	Logger        *slog.Logger
}

// Executor runs operations. It is safe for concurrent use.
type Executor struct {
	cfg  Config
	deps Deps
	wait func(ctx context.Context, d time.Duration) error
}

// New creates an executor.
func New(cfg Config, deps Deps) *Executor {
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = DefaultAttemptTimeout
	}
	if deps.Prober == nil {
		deps.Prober = netprobe.Online
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Executor{cfg: cfg, deps: deps, wait: retry.Wait}
}

type options struct {
	policy           retry.Policy
	attemptTimeout   time.Duration
	skipNetworkCheck bool
	silent           bool
	onAuthFailure    func(ctx context.Context)
}

// Option adjusts a single Do call.
type Option func(*options)

// WithMaxRetries overrides the number of retries after the first attempt.
func WithMaxRetries(n int) Option {
	return func(o *options) {
		if n < 0 {
			n = 0
		}
		o.policy.MaxRetries = n
	}
}

// WithPolicy replaces the retry policy.
func WithPolicy(p retry.Policy) Option {
	return func(o *options) { o.policy = p }
}

// WithAttemptTimeout overrides the per-attempt timeout.
func WithAttemptTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.attemptTimeout = d
		}
	}
}

// SkipNetworkCheck bypasses the offline short-circuit.
func SkipNetworkCheck() Option {
	return func(o *options) { o.skipNetworkCheck = true }
}

// Silent suppresses the throttled user alert for this call.
func Silent() Option {
	return func(o *options) { o.silent = true }
}

// OnAuthFailure sets the hook run when the session cannot be recovered.
func OnAuthFailure(fn func(ctx context.Context)) Option {
	return func(o *options) { o.onAuthFailure = fn }
}

// Do runs op under e's policy and returns its payload or a classified *Error.
//
// The sequence is:
//  1. Unless skipped, fail fast with KindNetwork when the prober reports offline.
//  2. Run op with a per-attempt timeout.
//  3. On the first 401, refresh the session once and re-run without spending a retry.
//  4. Retry retry-eligible kinds with exponential backoff while retries remain.
//  5. On a final retry-eligible failure, surface one throttled alert.
func Do[T any](ctx context.Context, e *Executor, name string, op Operation[T], opts ...Option) (T, error) {
	var zero T
	o := options{
		policy:         e.cfg.Policy,
		attemptTimeout: e.cfg.AttemptTimeout,
		onAuthFailure:  e.deps.OnAuthFailure,
	}
	for _, opt := range opts {
		opt(&o)
	}

	start := time.Now()
	logger := logging.WithRequestID(ctx, e.deps.Logger).With(slog.String("operation", name))
	ctx, span := tracing.StartSpan(ctx, "execute."+name, attribute.String("operation", name))

	finish := func(outcome string, attempts int, err error) {
		span.SetAttributes(attribute.Int("attempts", attempts), attribute.String("outcome", outcome))
		tracing.EndSpan(span, err)
		recordResult(name, outcome, time.Since(start))
	}

	if !o.skipNetworkCheck {
		if st := e.deps.Prober.Status(ctx); st.Offline() {
			err := &Error{Kind: KindNetwork, Op: name, Message: MessageNetwork, Err: ErrOffline}
			logger.Warn("skipping remote call while offline",
				slog.Bool("connected", st.Connected),
				slog.String("internet", st.InternetReachable.String()))
			e.alert(ctx, o, err)
			finish("offline", 0, err)
			return zero, err
		}
	}

	var (
		refreshed bool
		retries   int
		attempts  int
	)
	for {
		attempts++
		recordAttempt(name)

		result, err := runAttempt(ctx, op, o.attemptTimeout)
		if err == nil {
			if retries > 0 || refreshed {
				logger.Info("remote call succeeded after recovery",
					slog.Int("attempts", attempts),
					slog.Bool("refreshed", refreshed))
			}
			finish("success", attempts, nil)
			return result, nil
		}

		if ctx.Err() != nil {
			cerr := &Error{Kind: KindFatal, Op: name, Message: MessageGeneric, Err: ctx.Err()}
			finish("canceled", attempts, cerr)
			return zero, cerr
		}

		classified := Classify(name, err)

		if classified.Kind == KindAuthExpired {
			if !refreshed {
				refreshed = true
				if e.refresh(ctx, logger) {
					continue
				}
			} else {
				logger.Warn("request rejected again after session refresh")
			}
			if o.onAuthFailure != nil {
				o.onAuthFailure(ctx)
			}
		}

		if classified.Kind.Retryable() && retries < o.policy.MaxRetries {
			retries++
			delay := o.policy.Delay(retries)
			recordRetry(name, classified.Kind)
			logger.Warn("remote call failed, retrying",
				slog.String("kind", classified.Kind.String()),
				slog.Int("status", classified.Status),
				slog.Int("retry", retries),
				slog.Int("max_retries", o.policy.MaxRetries),
				slog.Duration("delay", delay),
				slog.Any("error", err))
			if werr := e.wait(ctx, delay); werr != nil {
				cerr := &Error{Kind: KindFatal, Op: name, Message: MessageGeneric, Err: werr}
				finish("canceled", attempts, cerr)
				return zero, cerr
			}
			continue
		}

		level := slog.LevelWarn
		if classified.Kind.Retryable() {
			level = slog.LevelError
			e.alert(ctx, o, classified)
		}
		logger.Log(ctx, level, "remote call failed",
			slog.String("kind", classified.Kind.String()),
			slog.Int("status", classified.Status),
			slog.Int("attempts", attempts),
			slog.Any("error", err))
		finish(classified.Kind.String(), attempts, classified)
		return zero, classified
	}
}

// runAttempt runs op once under the attempt timeout. A deadline that fired
// for the attempt but not for the caller surfaces as context.DeadlineExceeded.
func runAttempt[T any](ctx context.Context, op Operation[T], timeout time.Duration) (T, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := op(attemptCtx)
	if err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
		err = errors.Join(context.DeadlineExceeded, err)
	}
	return result, err
}

func (e *Executor) refresh(ctx context.Context, logger *slog.Logger) bool {
	if e.deps.Refresher == nil {
		logger.Warn("session expired and no refresher is configured")
		recordAuthRefresh(false)
		return false
	}
	if err := e.deps.Refresher.Refresh(ctx); err != nil {
		logger.Warn("session refresh failed", slog.Any("error", err))
		recordAuthRefresh(false)
		return false
	}
	logger.Info("session refreshed, retrying request")
	recordAuthRefresh(true)
	return true
}

func (e *Executor) alert(ctx context.Context, o options, err *Error) {
	if o.silent || e.deps.Feedback == nil {
		return
	}
	e.deps.Feedback.MaybeNotify(ctx, err.Message)
}
