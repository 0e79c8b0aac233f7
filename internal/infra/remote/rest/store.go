// Package rest implements the remote store contract against a PostgREST
// compatible gateway, together with the token session that authenticates it.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"feedsync/internal/observability/metrics"
	"feedsync/internal/remote"
	"feedsync/internal/resilience/circuitbreaker"
)

const (
	backendName     = "rest"
	maxBodyLen      = 8 << 20
	maxErrorBodyLen = 64 << 10
)

// TokenSource supplies the bearer token for the current session.
// An empty token sends only the API key, which is the anonymous role.
type TokenSource interface {
	AccessToken() string
}

// Config holds gateway connection settings.
type Config struct {
	// BaseURL is the gateway root, e.g. https://project.example.com/rest/v1
	BaseURL string

	// APIKey is the public anon key sent with every request
	APIKey string

	// Timeout is the per-request HTTP timeout
	Timeout time.Duration
}

// Store implements remote.Store over HTTP.
type Store struct {
	baseURL    string
	apiKey     string
	tokens     TokenSource
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
}

// NewStore creates a gateway store. tokens may be nil for anonymous access.
func NewStore(cfg Config, tokens TokenSource) *Store {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	bc := circuitbreaker.RemoteStoreConfig()
	bc.IsSuccessful = isAnswer
	return &Store{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    circuitbreaker.New(bc),
	}
}

// Breaker exposes the circuit breaker for health reporting.
func (s *Store) Breaker() *circuitbreaker.CircuitBreaker {
	return s.breaker
}

// isAnswer treats client errors as answers from a healthy gateway.
func isAnswer(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	status := remote.StatusOf(err)
	return status >= 400 && status < 500 && status != http.StatusRequestTimeout && status != http.StatusTooManyRequests
}

// gatewayError is the error document returned by the gateway.
type gatewayError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func decodeError(resp *http.Response, body []byte) error {
	var ge gatewayError
	if err := json.Unmarshal(body, &ge); err != nil || ge.Message == "" {
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &remote.Error{Status: resp.StatusCode, Message: msg}
	}
	details := ge.Details
	if ge.Hint != "" {
		details = strings.TrimSpace(details + " " + ge.Hint)
	}
	return &remote.Error{Status: resp.StatusCode, Code: ge.Code, Message: ge.Message, Details: details}
}

type request struct {
	method string
	table  string
	query  url.Values
	body   any
	prefer []string
}

func (s *Store) do(ctx context.Context, r request) (*remote.Response, error) {
	start := time.Now()
	resp, err := circuitbreaker.Call(s.breaker, func() (*remote.Response, error) {
		return s.roundTrip(ctx, r)
	})
	metrics.RecordStoreRequest(backendName, r.method, r.table, statusOf(resp, err), time.Since(start))
	return resp, err
}

func statusOf(resp *remote.Response, err error) int {
	if err != nil {
		return remote.StatusOf(err)
	}
	return resp.Status
}

func (s *Store) roundTrip(ctx context.Context, r request) (*remote.Response, error) {
	endpoint := s.baseURL + "/" + r.table
	if len(r.query) > 0 {
		endpoint += "?" + r.query.Encode()
	}

	var reader io.Reader
	if r.body != nil {
		data, err := json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("marshal %s body: %w", r.table, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("create http request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("apikey", s.apiKey)
	}
	if token := s.bearer(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if len(r.prefer) > 0 {
		req.Header.Set("Prefer", strings.Join(r.prefer, ","))
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", r.method, r.table, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyLen))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", r.table, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(body) > maxErrorBodyLen {
			body = body[:maxErrorBodyLen]
		}
		return nil, decodeError(resp, body)
	}

	out := &remote.Response{Status: resp.StatusCode}
	if len(body) > 0 {
		out.Data = json.RawMessage(body)
		var rows []json.RawMessage
		if err := json.Unmarshal(body, &rows); err == nil {
			out.Count = len(rows)
		}
	}
	if n, ok := parseContentRange(resp.Header.Get("Content-Range")); ok {
		out.Count = n
	}
	return out, nil
}

func (s *Store) bearer() string {
	if s.tokens == nil {
		return ""
	}
	return s.tokens.AccessToken()
}

// Select implements remote.Store. CountOnly queries are sent as HEAD with an exact count.
func (s *Store) Select(ctx context.Context, q remote.Query) (*remote.Response, error) {
	values, err := encodeQuery(q)
	if err != nil {
		return nil, err
	}
	if q.CountOnly {
		return s.do(ctx, request{method: http.MethodHead, table: q.Table, query: values, prefer: []string{"count=exact"}})
	}
	return s.do(ctx, request{method: http.MethodGet, table: q.Table, query: values})
}

// Insert implements remote.Store.
func (s *Store) Insert(ctx context.Context, table string, row map[string]any) (*remote.Response, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}
	return s.do(ctx, request{
		method: http.MethodPost,
		table:  table,
		body:   row,
		prefer: []string{"return=representation"},
	})
}

// Update implements remote.Store.
func (s *Store) Update(ctx context.Context, q remote.Query, values map[string]any) (*remote.Response, error) {
	if len(q.Filters) == 0 {
		return nil, ErrUnfiltered
	}
	params, err := encodeQuery(remote.Query{Table: q.Table, Filters: q.Filters})
	if err != nil {
		return nil, err
	}
	return s.do(ctx, request{
		method: http.MethodPatch,
		table:  q.Table,
		query:  params,
		body:   values,
		prefer: []string{"return=representation"},
	})
}

// Delete implements remote.Store.
func (s *Store) Delete(ctx context.Context, q remote.Query) (*remote.Response, error) {
	if len(q.Filters) == 0 {
		return nil, ErrUnfiltered
	}
	params, err := encodeQuery(remote.Query{Table: q.Table, Filters: q.Filters})
	if err != nil {
		return nil, err
	}
	return s.do(ctx, request{
		method: http.MethodDelete,
		table:  q.Table,
		query:  params,
		prefer: []string{"return=representation"},
	})
}

// ErrUnfiltered is returned for an update or delete without filters.
var ErrUnfiltered = errors.New("refusing to modify rows without a filter")
