package ratelimit

// NoOpMetrics is a Metrics implementation that discards everything.
type NoOpMetrics struct{}

// NewNoOpMetrics creates a new no-op metrics recorder.
func NewNoOpMetrics() *NoOpMetrics {
	return &NoOpMetrics{}
}

// RecordDeduplicated does nothing.
func (m *NoOpMetrics) RecordDeduplicated(scope string) {}

// RecordSuppressed does nothing.
func (m *NoOpMetrics) RecordSuppressed(scope string) {}

// RecordAllowed does nothing.
func (m *NoOpMetrics) RecordAllowed(scope string) {}

// SetInFlight does nothing.
func (m *NoOpMetrics) SetInFlight(scope string, count int) {}
