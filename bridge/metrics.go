package bridge

import (
	"github.com/glimte/gdp-bridge/broker"
	"github.com/glimte/gdp-bridge/contracts"
)

// DropReason tells why a message was not forwarded
type DropReason string

const (
	// DropNoPeers means the local topic had no peer when a remote message arrived
	DropNoPeers DropReason = "no_peers"
	// DropConversion means payload conversion failed
	DropConversion DropReason = "conversion"
	// DropPublishError means the target side rejected the message
	DropPublishError DropReason = "publish_error"
)

// MetricsCollector records route activity. It also collects the broker
// client's control channel measurements.
type MetricsCollector interface {
	broker.MetricsCollector

	// RecordForwarded records a message forwarded by route
	RecordForwarded(route string, direction contracts.Direction)
	// RecordDropped records a message dropped by route
	RecordDropped(route string, reason DropReason)
	// SetRouteActive records whether route currently holds its remote handle
	SetRouteActive(route string, active bool)
}

// NoOpMetrics discards all measurements
type NoOpMetrics struct {
	broker.NoOpMetrics
}

// RecordForwarded implements MetricsCollector
func (NoOpMetrics) RecordForwarded(string, contracts.Direction) {}

// RecordDropped implements MetricsCollector
func (NoOpMetrics) RecordDropped(string, DropReason) {}

// SetRouteActive implements MetricsCollector
func (NoOpMetrics) SetRouteActive(string, bool) {}
