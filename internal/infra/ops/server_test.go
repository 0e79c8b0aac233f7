package ops

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(channels ChannelHealthFunc) *Server {
	return NewServer(":0", slog.New(slog.NewTextHandler(io.Discard, nil)), channels)
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestServer_Liveness(t *testing.T) {
	rec := get(t, newTestServer(nil).Handler(), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServer_Readiness(t *testing.T) {
	s := newTestServer(nil)
	h := s.Handler()

	rec := get(t, h, "/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	s.SetReady(true)
	rec = get(t, h, "/health/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_Channels(t *testing.T) {
	until := time.Date(2024, 1, 1, 0, 5, 0, 0, time.UTC)

	tests := []struct {
		name       string
		statuses   []ChannelStatus
		wantCode   int
		wantHealth bool
	}{
		{
			name:       "all closed",
			statuses:   []ChannelStatus{{Name: "push", Enabled: true}, {Name: "alert", Enabled: true}},
			wantCode:   http.StatusOK,
			wantHealth: true,
		},
		{
			name:       "enabled channel open",
			statuses:   []ChannelStatus{{Name: "push", Enabled: true, CircuitBreakerOpen: true, DisabledUntil: &until}},
			wantCode:   http.StatusServiceUnavailable,
			wantHealth: false,
		},
		{
			name:       "disabled channel open is ignored",
			statuses:   []ChannelStatus{{Name: "push", Enabled: false, CircuitBreakerOpen: true}},
			wantCode:   http.StatusOK,
			wantHealth: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(func() []ChannelStatus { return tt.statuses })
			rec := get(t, s.Handler(), "/health/channels")

			assert.Equal(t, tt.wantCode, rec.Code)
			var body channelHealthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantHealth, body.Healthy)
			assert.Len(t, body.Channels, len(tt.statuses))
		})
	}
}

func TestServer_ChannelsWithoutDispatcher(t *testing.T) {
	rec := get(t, newTestServer(nil).Handler(), "/health/channels")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_Metrics(t *testing.T) {
	h := newTestServer(nil).Handler()
	_ = get(t, h, "/health")

	rec := get(t, h, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestServer_UnknownRoute(t *testing.T) {
	rec := get(t, newTestServer(nil).Handler(), "/admin")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
