package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"feedsync/internal/remote"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned when an access token cannot be read.
var ErrInvalidToken = errors.New("invalid access token")

// AuthConfig holds token endpoint settings.
type AuthConfig struct {
	// URL is the auth root, e.g. https://project.example.com/auth/v1
	URL string

	// APIKey is the public anon key
	APIKey string

	// Timeout is the HTTP timeout for token requests
	Timeout time.Duration
}

// Session keeps the current token pair. It implements TokenSource,
// remote.SessionRefresher and remote.Identity.
type Session struct {
	cfg        AuthConfig
	httpClient *http.Client

	mu           sync.RWMutex
	accessToken  string
	refreshToken string
	userID       string
	expiresAt    time.Time
}

// NewSession creates an empty session.
func NewSession(cfg AuthConfig) *Session {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Session{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// tokenResponse is the token endpoint payload.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	User         struct {
		ID string `json:"id"`
	} `json:"user"`
}

// SetTokens installs a token pair obtained elsewhere, for example from a saved login.
func (s *Session) SetTokens(accessToken, refreshToken string) error {
	sub, exp, err := readClaims(accessToken)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = accessToken
	s.refreshToken = refreshToken
	s.userID = sub
	s.expiresAt = exp
	return nil
}

// readClaims extracts subject and expiry without verifying the signature;
// the gateway verifies tokens, the client only needs to read them.
func readClaims(token string) (string, time.Time, error) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", time.Time{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	var exp time.Time
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}
	return claims.Subject, exp, nil
}

// AccessToken implements TokenSource.
func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

// CurrentUserID implements remote.Identity.
func (s *Session) CurrentUserID() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID, s.userID != ""
}

// ExpiresAt returns the access token expiry, zero when unknown.
func (s *Session) ExpiresAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expiresAt
}

// SignInWithPassword exchanges credentials for a token pair.
func (s *Session) SignInWithPassword(ctx context.Context, email, password string) error {
	return s.grant(ctx, "password", map[string]string{"email": email, "password": password})
}

// Refresh implements remote.SessionRefresher with the refresh-token grant.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.RLock()
	refresh := s.refreshToken
	s.mu.RUnlock()
	if refresh == "" {
		return remote.ErrNoSession
	}
	return s.grant(ctx, "refresh_token", map[string]string{"refresh_token": refresh})
}

// SignOut forgets the session locally.
func (s *Session) SignOut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken, s.refreshToken, s.userID = "", "", ""
	s.expiresAt = time.Time{}
}

func (s *Session) grant(ctx context.Context, grantType string, payload map[string]string) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal token request: %w", err)
	}
	endpoint := strings.TrimRight(s.cfg.URL, "/") + "/token?grant_type=" + grantType
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("apikey", s.cfg.APIKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("token %s: %w", grantType, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLen))
	if err != nil {
		return fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		// A rejected refresh token means the session is gone.
		if grantType == "refresh_token" && resp.StatusCode >= 400 && resp.StatusCode < 500 {
			s.SignOut()
			return fmt.Errorf("%w: %w", remote.ErrNoSession, decodeError(resp, body))
		}
		return decodeError(resp, body)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return fmt.Errorf("decode token response: %w", err)
	}
	sub, exp, err := readClaims(tr.AccessToken)
	if err != nil {
		return err
	}
	if tr.User.ID != "" && tr.User.ID != sub {
		slog.Warn("token subject differs from user id",
			slog.String("sub", sub),
			slog.String("user_id", tr.User.ID))
	}
	if exp.IsZero() && tr.ExpiresIn > 0 {
		exp = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = tr.AccessToken
	if tr.RefreshToken != "" {
		s.refreshToken = tr.RefreshToken
	}
	s.userID = sub
	s.expiresAt = exp
	return nil
}
