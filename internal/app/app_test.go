package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"feedsync/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func token(t *testing.T, sub string, exp time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{Subject: sub, ExpiresAt: jwt.NewNumericDate(exp)}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("k"))
	require.NoError(t, err)
	return s
}

func clearCredentials(t *testing.T) {
	for _, key := range []string{EnvAccessToken, EnvRefreshToken, EnvEmail, EnvPassword, EnvUserID} {
		t.Setenv(key, "")
	}
}

func TestBuild_RESTBackend(t *testing.T) {
	clearCredentials(t)
	t.Setenv(EnvAccessToken, token(t, "user-1", time.Now().Add(time.Hour)))
	t.Setenv(EnvRefreshToken, "r1")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/likes", r.URL.Path)
		assert.Equal(t, http.MethodHead, r.Method)
		assert.Equal(t, "eq.P1", r.URL.Query().Get("post_id"))
		w.Header().Set("Content-Range", "*/7")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := config.DefaultConfig()
	cfg.Backend.RESTURL = server.URL + "/rest/v1"
	cfg.Backend.AuthURL = server.URL + "/auth/v1"

	a, err := Build(context.Background(), &cfg, testLogger(), nil)
	require.NoError(t, err)
	defer func() { assert.NoError(t, a.Close()) }()

	id, ok := a.Identity.CurrentUserID()
	assert.True(t, ok)
	assert.Equal(t, "user-1", id)
	assert.Nil(t, a.DB)

	n, err := a.Likes.Count(context.Background(), "P1")
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.Equal(t, 7, a.Likes.State("P1").Count)

	for _, ch := range a.Dispatcher.ChannelHealth() {
		assert.False(t, ch.CircuitBreakerOpen, ch.Name)
	}
}

func TestBuild_NoCredentials(t *testing.T) {
	clearCredentials(t)
	cfg := config.DefaultConfig()
	cfg.Backend.RESTURL = "http://127.0.0.1:1/rest/v1"

	_, err := Build(context.Background(), &cfg, testLogger(), nil)
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestSignIn_Password(t *testing.T) {
	clearCredentials(t)
	t.Setenv(EnvEmail, "a@example.com")
	t.Setenv(EnvPassword, "secret")
	access := token(t, "user-9", time.Now().Add(time.Hour))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "password", r.URL.Query().Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"`+access+`","refresh_token":"r9"}`)
	}))
	defer server.Close()

	cfg := config.DefaultConfig()
	cfg.Backend.RESTURL = server.URL + "/rest/v1"
	cfg.Backend.AuthURL = server.URL

	a, err := Build(context.Background(), &cfg, testLogger(), nil)
	require.NoError(t, err)
	id, _ := a.Identity.CurrentUserID()
	assert.Equal(t, "user-9", id)
}
