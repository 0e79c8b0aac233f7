package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"feedsync/internal/resilience/circuitbreaker"
	"feedsync/internal/resilience/retry"

	"github.com/google/uuid"
)

// DefaultExpoURL is the public push endpoint of the Expo push service.
const DefaultExpoURL = "https://exp.host/--/api/v2/push/send"

// ExpoConfig contains configuration for push delivery through the Expo push service.
type ExpoConfig struct {
	// Enabled indicates whether push delivery is enabled
	Enabled bool

	// URL is the push endpoint. Default: DefaultExpoURL
	URL string

	// AccessToken is sent as a bearer token when the project requires enhanced security
	AccessToken string

	// Timeout is the HTTP request timeout for a single push request
	Timeout time.Duration
}

// ExpoPushSender sends push notifications through the Expo push HTTP API.
type ExpoPushSender struct {
	config      ExpoConfig
	httpClient  *http.Client
	rateLimiter *RateLimiter
	breaker     *circuitbreaker.CircuitBreaker
	policy      retry.Policy
}

// NewExpoPushSender creates a new ExpoPushSender.
//
// The sender is initialized with:
//   - HTTP client with configured timeout
//   - Rate limiter at 6 requests/second with burst of 10
//     (Expo accepts up to 600 notifications per second per project; one message per request here)
//   - Circuit breaker with PushGatewayConfig
func NewExpoPushSender(config ExpoConfig) *ExpoPushSender {
	if config.URL == "" {
		config.URL = DefaultExpoURL
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	return &ExpoPushSender{
		config:      config,
		httpClient:  &http.Client{Timeout: config.Timeout},
		rateLimiter: NewRateLimiter(6, 10),
		breaker:     circuitbreaker.New(circuitbreaker.PushGatewayConfig()),
		policy:      retry.PushGatewayPolicy(),
	}
}

// expoMessage represents the JSON payload sent to the push endpoint.
type expoMessage struct {
	To    string         `json:"to"`
	Title string         `json:"title"`
	Body  string         `json:"body"`
	Data  map[string]any `json:"data,omitempty"`
	Sound string         `json:"sound,omitempty"`
}

// expoResponse is the push endpoint's response for a single message.
type expoResponse struct {
	Data   expoTicket  `json:"data"`
	Errors []expoError `json:"errors"`
}

type expoTicket struct {
	Status  string `json:"status"`
	ID      string `json:"id"`
	Message string `json:"message"`
	Details struct {
		Error string `json:"error"`
	} `json:"details"`
}

type expoError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	maxPushTitleLength = 178
	maxPushBodyLength  = 2000
	truncationSuffix   = "..."
)

// IsExpoToken reports whether token looks like an Expo push token.
func IsExpoToken(token string) bool {
	return (strings.HasPrefix(token, "ExponentPushToken[") || strings.HasPrefix(token, "ExpoPushToken[")) &&
		strings.HasSuffix(token, "]")
}

func (s *ExpoPushSender) buildMessage(token, title, body string, data map[string]any) expoMessage {
	return expoMessage{
		To:    token,
		Title: truncate(title, maxPushTitleLength, truncationSuffix),
		Body:  truncate(body, maxPushBodyLength, truncationSuffix),
		Data:  data,
		Sound: "default",
	}
}

// sendRequest posts one message and interprets the push ticket.
func (s *ExpoPushSender) sendRequest(ctx context.Context, msg expoMessage) error {
	jsonData, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal push payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.URL, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if s.config.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.config.AccessToken)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body := readBody(resp)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError("push gateway", resp, body)
	}

	var parsed expoResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return fmt.Errorf("decode push response: %w", err)
	}
	if len(parsed.Errors) > 0 {
		return &ClientError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("push gateway error %s: %s", parsed.Errors[0].Code, parsed.Errors[0].Message)}
	}
	if parsed.Data.Status == "error" {
		if parsed.Data.Details.Error == "DeviceNotRegistered" {
			return ErrDeviceNotRegistered
		}
		return &ClientError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("push rejected: %s", parsed.Data.Message)}
	}
	return nil
}

// SendPush sends a push notification to token.
//
// It performs the following steps:
//  1. Reject tokens that are not Expo push tokens
//  2. Generate unique request_id for tracing
//  3. Apply rate limiting
//  4. Send the request with retry and circuit breaker protection
func (s *ExpoPushSender) SendPush(ctx context.Context, token, title, body string, data map[string]any) error {
	if !IsExpoToken(token) {
		return ErrDeviceNotRegistered
	}

	requestID := uuid.New().String()
	ctx = context.WithValue(ctx, requestIDKey, requestID)

	if err := s.rateLimiter.Wait(ctx); err != nil {
		slog.Error("Rate limiter error",
			slog.String("request_id", requestID),
			slog.Any("error", err))
		return fmt.Errorf("rate limiter error: %w", err)
	}

	msg := s.buildMessage(token, title, body, data)
	return sendWithRetry(ctx, "push gateway", s.policy, s.breaker, func(ctx context.Context) error {
		return s.sendRequest(ctx, msg)
	})
}
