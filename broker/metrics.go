package broker

import (
	"time"

	"github.com/glimte/gdp-bridge/contracts"
)

// MetricsCollector records control channel activity
type MetricsCollector interface {
	// RecordControlFrame records one control frame send; err is nil on success
	RecordControlFrame(op contracts.Op, duration time.Duration, err error)
	// RecordDispatch records an inbound message; delivered is false when no
	// subscription was live
	RecordDispatch(topic string, callbacks int, delivered bool)
}

// NoOpMetrics discards all measurements
type NoOpMetrics struct{}

// RecordControlFrame implements MetricsCollector
func (NoOpMetrics) RecordControlFrame(contracts.Op, time.Duration, error) {}

// RecordDispatch implements MetricsCollector
func (NoOpMetrics) RecordDispatch(string, int, bool) {}
