// Package upload stores blobs such as resumes in an object storage bucket over HTTP.
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"feedsync/internal/observability/metrics"
	"feedsync/internal/remote"

	"github.com/google/uuid"
)

// ErrEmptyObject is returned for an upload without content.
var ErrEmptyObject = errors.New("upload: empty object")

// TokenSource supplies the bearer token for uploads.
type TokenSource interface {
	AccessToken() string
}

// Config holds storage endpoint settings.
type Config struct {
	// URL is the storage root, e.g. https://project.example.com/storage/v1
	URL string

	// Bucket is the target bucket
	Bucket string

	// APIKey is the public anon key
	APIKey string

	// MaxSize rejects larger objects before sending. Zero disables the check.
	MaxSize int

	// Timeout is the HTTP timeout per upload
	Timeout time.Duration
}

// HTTPUploader implements remote.Uploader.
type HTTPUploader struct {
	cfg        Config
	tokens     TokenSource
	httpClient *http.Client
}

// NewHTTPUploader creates an uploader. tokens may be nil.
func NewHTTPUploader(cfg Config, tokens TokenSource) *HTTPUploader {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	return &HTTPUploader{
		cfg:        cfg,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Upload implements remote.Uploader. An empty name gets a random one.
// Status failures are returned as *remote.Error so the executor classifies them.
func (u *HTTPUploader) Upload(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyObject
	}
	if u.cfg.MaxSize > 0 && len(data) > u.cfg.MaxSize {
		return "", &remote.Error{
			Status:  http.StatusRequestEntityTooLarge,
			Message: fmt.Sprintf("object of %d bytes exceeds limit of %d", len(data), u.cfg.MaxSize),
		}
	}
	if name == "" {
		name = uuid.New().String()
	}
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	objectPath := u.cfg.Bucket + "/" + escapePath(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.cfg.URL+"/object/"+objectPath, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("create http request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "true")
	if u.cfg.APIKey != "" {
		req.Header.Set("apikey", u.cfg.APIKey)
	}
	if u.tokens != nil {
		if token := u.tokens.AccessToken(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := u.httpClient.Do(req)
	if err != nil {
		metrics.RecordUpload(false, len(data))
		return "", fmt.Errorf("upload %s: %w", name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		metrics.RecordUpload(false, len(data))
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return "", &remote.Error{Status: resp.StatusCode, Message: msg}
	}

	metrics.RecordUpload(true, len(data))
	return u.cfg.URL + "/object/public/" + objectPath, nil
}

func escapePath(name string) string {
	parts := strings.Split(name, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
