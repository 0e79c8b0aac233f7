// Package ops serves the daemon's operational endpoints and runs its
// scheduled maintenance jobs.
package ops

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"feedsync/internal/observability/metrics"
	"feedsync/internal/observability/tracing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ChannelStatus is the health of one notification delivery channel.
type ChannelStatus struct {
	Name               string     `json:"name"`
	Enabled            bool       `json:"enabled"`
	CircuitBreakerOpen bool       `json:"circuit_breaker_open"`
	DisabledUntil      *time.Time `json:"disabled_until,omitempty"`
}

// ChannelHealthFunc reports the current channel health.
type ChannelHealthFunc func() []ChannelStatus

type healthResponse struct {
	Status string `json:"status"`
}

type channelHealthResponse struct {
	Healthy  bool            `json:"healthy"`
	Channels []ChannelStatus `json:"channels"`
}

// Server exposes:
//   - GET /health: liveness, always 200
//   - GET /health/ready: 200 once SetReady(true), 503 before
//   - GET /health/channels: 503 when an enabled channel is open
//   - GET /metrics: Prometheus scrape endpoint
type Server struct {
	addr     string
	logger   *slog.Logger
	channels ChannelHealthFunc
	isReady  atomic.Bool
	server   *http.Server
}

// NewServer creates a server on addr. channels may be nil.
func NewServer(addr string, logger *slog.Logger, channels ChannelHealthFunc) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{addr: addr, logger: logger, channels: channels}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(tracing.Middleware)
	r.Use(recordRequests)

	r.Get("/health", s.handleLiveness)
	r.Get("/health/ready", s.handleReadiness)
	r.Get("/health/channels", s.handleChannels)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// recordRequests counts requests by route pattern so paths do not explode label cardinality.
func recordRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.RecordHTTPRequest(r.Method, route, status, time.Since(start))
	})
}

// Start serves until ctx is canceled, then shuts down within 5 seconds.
// It returns http.ErrServerClosed after a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("ops server starting", slog.String("addr", s.addr))
		errChan <- s.server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Info("ops server shutting down")
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("ops server shutdown failed", slog.Any("error", err))
			return err
		}
		return http.ErrServerClosed

	case err := <-errChan:
		if !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("ops server failed", slog.Any("error", err))
		}
		return err
	}
}

// SetReady sets the readiness reported by /health/ready.
func (s *Server) SetReady(ready bool) {
	s.isReady.Store(ready)
	s.logger.Info("ops server readiness changed", slog.Bool("ready", ready))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", slog.Any("error", err))
	}
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if s.isReady.Load() {
		s.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
		return
	}
	s.writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "not ready"})
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	if s.channels == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "notification dispatcher not initialized",
		})
		return
	}

	statuses := s.channels()
	healthy := true
	for _, st := range statuses {
		if st.Enabled && st.CircuitBreakerOpen {
			healthy = false
		}
	}
	if statuses == nil {
		statuses = []ChannelStatus{}
	}

	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, channelHealthResponse{Healthy: healthy, Channels: statuses})
}
