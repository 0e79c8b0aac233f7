package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
)

func testConfig() Config {
	return Config{
		Name:             "test-circuit",
		MaxRequests:      1,
		Interval:         10 * time.Second,
		Timeout:          20 * time.Second,
		FailureThreshold: 1.0,
		MinRequests:      3,
	}
}

func TestNew(t *testing.T) {
	cb := New(testConfig())
	if cb.Name() != "test-circuit" {
		t.Errorf("expected name='test-circuit', got %q", cb.Name())
	}
	if cb.State() != gobreaker.StateClosed {
		t.Errorf("expected initial state=Closed, got %v", cb.State())
	}
}

func TestCall_Success(t *testing.T) {
	cb := New(testConfig())
	got, err := Call(cb, func() (string, error) { return "ok", nil })
	if err != nil || got != "ok" {
		t.Fatalf("Call() = %q, %v", got, err)
	}
}

func TestCall_OpensAfterThreshold(t *testing.T) {
	cb := New(testConfig())
	testErr := errors.New("boom")

	for i := 0; i < 3; i++ {
		if _, err := Call(cb, func() (int, error) { return 0, testErr }); err != testErr {
			t.Fatalf("attempt %d: expected test error, got %v", i, err)
		}
	}
	if !cb.IsOpen() {
		t.Fatal("expected breaker to be open after 3 failures")
	}

	called := false
	_, err := Call(cb, func() (int, error) {
		called = true
		return 1, nil
	})
	if !IsBreakerError(err) {
		t.Errorf("expected breaker error, got %v", err)
	}
	if called {
		t.Error("function must not run while breaker is open")
	}
}

func TestIsSuccessful_DoesNotTrip(t *testing.T) {
	cfg := testConfig()
	answer := errors.New("not found")
	cfg.IsSuccessful = func(err error) bool { return err == nil || err == answer }
	cb := New(cfg)

	for i := 0; i < 5; i++ {
		_, _ = Call(cb, func() (int, error) { return 0, answer })
	}
	if cb.IsOpen() {
		t.Error("answers must not trip the breaker")
	}
}

func TestPresetConfigs(t *testing.T) {
	for _, cfg := range []Config{RemoteStoreConfig(), PushGatewayConfig(), WebhookConfig(), DBConfig(), DefaultConfig("x")} {
		if cfg.Name == "" || cfg.Timeout <= 0 || cfg.MinRequests == 0 {
			t.Errorf("invalid preset config: %+v", cfg)
		}
	}
}
