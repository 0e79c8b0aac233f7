package config

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestConfigMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewConfigMetrics(reg, "test_component")

	m.RecordValidationError("backend_url")
	m.RecordFallback("attempt_timeout")
	m.RecordFallback("attempt_timeout")
	m.SetFallbackActive(true)
	m.RecordLoadTimestamp()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ValidationErrorsTotal.WithLabelValues("backend_url")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FallbacksTotal.WithLabelValues("attempt_timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FallbackActive))
	assert.Greater(t, testutil.ToFloat64(m.LoadTimestamp), 0.0)

	m.SetFallbackActive(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.FallbackActive))
}

func TestConfigMetrics_DuplicateComponentPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewConfigMetrics(reg, "dup")
	assert.Panics(t, func() { NewConfigMetrics(reg, "dup") })
}
