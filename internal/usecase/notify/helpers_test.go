package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"feedsync/internal/infra/netprobe"
	"feedsync/internal/remote"
	"feedsync/internal/resilience/retry"
	"feedsync/internal/usecase/execute"

	"github.com/stretchr/testify/require"
)

// fakeStore routes calls to per-operation hooks and records every query.
type fakeStore struct {
	mu      sync.Mutex
	calls   []string
	queries []remote.Query
	values  []map[string]any

	selectFn func(q remote.Query) (*remote.Response, error)
	insertFn func(table string, row map[string]any) (*remote.Response, error)
	updateFn func(q remote.Query, values map[string]any) (*remote.Response, error)
	deleteFn func(q remote.Query) (*remote.Response, error)
}

func (s *fakeStore) record(call string, q remote.Query, values map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
	s.queries = append(s.queries, q)
	s.values = append(s.values, values)
}

func (s *fakeStore) count(call string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (s *fakeStore) Select(ctx context.Context, q remote.Query) (*remote.Response, error) {
	s.record("select:"+q.Table, q, nil)
	if s.selectFn == nil {
		return &remote.Response{Data: json.RawMessage(`[]`)}, nil
	}
	return s.selectFn(q)
}

func (s *fakeStore) Insert(ctx context.Context, table string, row map[string]any) (*remote.Response, error) {
	s.record("insert:"+table, remote.Query{Table: table}, row)
	if s.insertFn == nil {
		return &remote.Response{Status: http.StatusCreated}, nil
	}
	return s.insertFn(table, row)
}

func (s *fakeStore) Update(ctx context.Context, q remote.Query, values map[string]any) (*remote.Response, error) {
	s.record("update:"+q.Table, q, values)
	if s.updateFn == nil {
		return &remote.Response{}, nil
	}
	return s.updateFn(q, values)
}

func (s *fakeStore) Delete(ctx context.Context, q remote.Query) (*remote.Response, error) {
	s.record("delete:"+q.Table, q, nil)
	if s.deleteFn == nil {
		return &remote.Response{}, nil
	}
	return s.deleteFn(q)
}

func jsonRows(t *testing.T, v any) *remote.Response {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return &remote.Response{Data: data, Status: http.StatusOK}
}

func newExecutor() *execute.Executor {
	return execute.New(execute.Config{
		AttemptTimeout: time.Second,
		Policy:         retry.Policy{MaxRetries: 0},
	}, execute.Deps{Prober: netprobe.Online})
}

// newRetryingExecutor retries up to maxRetries times without delay.
func newRetryingExecutor(maxRetries int) *execute.Executor {
	return execute.New(execute.Config{
		AttemptTimeout: time.Second,
		Policy:         retry.Policy{MaxRetries: maxRetries},
	}, execute.Deps{Prober: netprobe.Online})
}

var errBackend = &remote.Error{Status: http.StatusInternalServerError, Message: "boom"}

var errGateway = errors.New("gateway unavailable")

// recordingAlerter counts alerts.
type recordingAlerter struct {
	mu     sync.Mutex
	titles []string
	err    error
}

func (a *recordingAlerter) Alert(ctx context.Context, title, body string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.titles = append(a.titles, title)
	return a.err
}

func (a *recordingAlerter) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.titles)
}

// fakePushSender returns per-token results.
type fakePushSender struct {
	mu      sync.Mutex
	results map[string]error
	sent    []string
	data    []map[string]any
}

func (p *fakePushSender) SendPush(ctx context.Context, token, title, body string, data map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, token)
	p.data = append(p.data, data)
	return p.results[token]
}
