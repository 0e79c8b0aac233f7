package upload

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"feedsync/internal/remote"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticToken string

func (s staticToken) AccessToken() string { return string(s) }

func TestHTTPUploader_Upload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/storage/v1/object/resumes/u1/cv%20final.pdf", r.URL.EscapedPath())
		assert.Equal(t, "application/pdf", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "%PDF-1.4", string(body))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	u := NewHTTPUploader(Config{URL: server.URL + "/storage/v1/", Bucket: "resumes"}, staticToken("tok"))
	got, err := u.Upload(context.Background(), "u1/cv final.pdf", []byte("%PDF-1.4"), "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/storage/v1/object/public/resumes/u1/cv%20final.pdf", got)
}

func TestHTTPUploader_GeneratesName(t *testing.T) {
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		assert.Equal(t, "text/plain; charset=utf-8", r.Header.Get("Content-Type"))
	}))
	defer server.Close()

	u := NewHTTPUploader(Config{URL: server.URL, Bucket: "b"}, nil)
	_, err := u.Upload(context.Background(), "", []byte("hello"), "")
	require.NoError(t, err)
	name := strings.TrimPrefix(path, "/object/b/")
	assert.Len(t, name, 36)
}

func TestHTTPUploader_Failures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, "maintenance")
	}))
	defer server.Close()

	u := NewHTTPUploader(Config{URL: server.URL, Bucket: "b", MaxSize: 4}, nil)

	_, err := u.Upload(context.Background(), "x", nil, "")
	assert.ErrorIs(t, err, ErrEmptyObject)

	_, err = u.Upload(context.Background(), "x", []byte("too large"), "")
	assert.Equal(t, http.StatusRequestEntityTooLarge, remote.StatusOf(err))

	_, err = u.Upload(context.Background(), "x", []byte("ok"), "")
	assert.Equal(t, http.StatusServiceUnavailable, remote.StatusOf(err))
	assert.Contains(t, err.Error(), "maintenance")
}
