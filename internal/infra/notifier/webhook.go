package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"feedsync/internal/resilience/circuitbreaker"
	"feedsync/internal/resilience/retry"

	"github.com/google/uuid"
)

// WebhookConfig contains configuration for alert delivery to an incoming webhook.
// The payload is Slack-compatible, which most chat tools accept.
type WebhookConfig struct {
	// Enabled indicates whether webhook alerts are enabled
	Enabled bool

	// URL is the incoming webhook URL (includes authentication token)
	URL string

	// Timeout is the HTTP request timeout
	Timeout time.Duration
}

// WebhookAlerter posts alerts to an incoming webhook.
type WebhookAlerter struct {
	config      WebhookConfig
	httpClient  *http.Client
	rateLimiter *RateLimiter
	breaker     *circuitbreaker.CircuitBreaker
	policy      retry.Policy
}

// NewWebhookAlerter creates a new WebhookAlerter.
// Rate limited to 1 request/second with burst of 1 (Slack incoming webhook limit).
func NewWebhookAlerter(config WebhookConfig) *WebhookAlerter {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	return &WebhookAlerter{
		config:      config,
		httpClient:  &http.Client{Timeout: config.Timeout},
		rateLimiter: NewRateLimiter(1, 1),
		breaker:     circuitbreaker.New(circuitbreaker.WebhookConfig()),
		policy:      retry.Policy{MaxRetries: 1, BaseDelay: time.Second, Jitter: 200 * time.Millisecond},
	}
}

// webhookPayload represents the JSON payload sent to the webhook.
type webhookPayload struct {
	Text   string         `json:"text"`
	Blocks []webhookBlock `json:"blocks"`
}

type webhookBlock struct {
	Type string           `json:"type"`
	Text *webhookTextItem `json:"text,omitempty"`
}

type webhookTextItem struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

const (
	maxSectionTextLength = 3000
	maxFallbackLength    = 150
)

func (w *WebhookAlerter) buildPayload(title, body string) webhookPayload {
	return webhookPayload{
		Text: truncate(title, maxFallbackLength, truncationSuffix),
		Blocks: []webhookBlock{{
			Type: "section",
			Text: &webhookTextItem{
				Type: "mrkdwn",
				Text: truncate(fmt.Sprintf("*%s*\n%s", title, body), maxSectionTextLength, truncationSuffix),
			},
		}},
	}
}

func (w *WebhookAlerter) sendRequest(ctx context.Context, payload webhookPayload) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.config.URL, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body := readBody(resp)
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return statusError("webhook", resp, body)
}

// Alert posts title and body to the webhook.
func (w *WebhookAlerter) Alert(ctx context.Context, title, body string) error {
	ctx = context.WithValue(ctx, requestIDKey, uuid.New().String())

	if err := w.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter error: %w", err)
	}

	payload := w.buildPayload(title, body)
	return sendWithRetry(ctx, "webhook", w.policy, w.breaker, func(ctx context.Context) error {
		return w.sendRequest(ctx, payload)
	})
}
