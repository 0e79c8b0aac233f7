package execute

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"feedsync/internal/remote"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind Kind
	}{
		{"401", &remote.Error{Status: http.StatusUnauthorized}, KindAuthExpired},
		{"429", &remote.Error{Status: http.StatusTooManyRequests}, KindRateLimited},
		{"408", &remote.Error{Status: http.StatusRequestTimeout}, KindServerTransient},
		{"425", &remote.Error{Status: http.StatusTooEarly}, KindServerTransient},
		{"500", &remote.Error{Status: http.StatusInternalServerError}, KindServerTransient},
		{"503 wrapped", fmt.Errorf("select: %w", &remote.Error{Status: http.StatusServiceUnavailable}), KindServerTransient},
		{"400", &remote.Error{Status: http.StatusBadRequest}, KindFatal},
		{"404", &remote.Error{Status: http.StatusNotFound}, KindFatal},
		{"breaker open", gobreaker.ErrOpenState, KindServerTransient},
		{"deadline", context.DeadlineExceeded, KindTimeout},
		{"net timeout", timeoutErr{}, KindTimeout},
		{"transport", errors.New("EOF"), KindNetwork},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify("op", tt.err)
			assert.Equal(t, tt.kind, got.Kind)
			assert.Equal(t, "op", got.Op)
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

func TestClassify_PassesThroughClassified(t *testing.T) {
	original := &Error{Kind: KindRateLimited, Op: "inner"}
	assert.Same(t, original, Classify("outer", fmt.Errorf("wrap: %w", original)))
}

func TestKind_Retryable(t *testing.T) {
	assert.True(t, KindNetwork.Retryable())
	assert.True(t, KindTimeout.Retryable())
	assert.True(t, KindRateLimited.Retryable())
	assert.True(t, KindServerTransient.Retryable())
	assert.False(t, KindAuthExpired.Retryable())
	assert.False(t, KindFatal.Retryable())
}

func TestUserMessage(t *testing.T) {
	assert.Empty(t, UserMessage(nil))
	assert.Equal(t, MessageGeneric, UserMessage(errors.New("raw")))
	assert.Equal(t, MessageNetwork, UserMessage(&Error{Kind: KindNetwork, Message: MessageNetwork}))
}

func TestError_String(t *testing.T) {
	err := &Error{Kind: KindServerTransient, Status: 503, Op: "like.toggle", Err: errors.New("unavailable")}
	assert.Equal(t, "like.toggle: server_transient (status 503): unavailable", err.Error())
}
