// Package metrics exports bridge measurements to Prometheus.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/glimte/gdp-bridge/bridge"
	"github.com/glimte/gdp-bridge/contracts"
)

// Namespace prefixes every exported metric
const Namespace = "gdp_bridge"

const (
	resultOK    = "ok"
	resultError = "error"
)

// PrometheusCollector implements bridge.MetricsCollector
type PrometheusCollector struct {
	controlFrames   *prometheus.CounterVec
	controlDuration *prometheus.HistogramVec
	dispatched      *prometheus.CounterVec
	forwarded       *prometheus.CounterVec
	dropped         *prometheus.CounterVec
	routeActive     *prometheus.GaugeVec
}

var _ bridge.MetricsCollector = (*PrometheusCollector)(nil)

// NewPrometheusCollector creates the collectors and registers them with reg
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	c := &PrometheusCollector{
		controlFrames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "control_frames_total",
			Help:      "Control frames sent to the remote broker by op and result",
		}, []string{"op", "result"}),
		controlDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "control_frame_duration_seconds",
			Help:      "Time spent writing a control frame",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
		}, []string{"op"}),
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "inbound_messages_total",
			Help:      "Inbound remote messages by whether a subscription was live",
		}, []string{"result"}),
		forwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "messages_forwarded_total",
			Help:      "Messages forwarded by route and direction",
		}, []string{"route", "direction"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "messages_dropped_total",
			Help:      "Messages dropped by route and reason",
		}, []string{"route", "reason"}),
		routeActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "route_active",
			Help:      "1 while the route holds its remote handle",
		}, []string{"route"}),
	}

	for _, collector := range []prometheus.Collector{
		c.controlFrames,
		c.controlDuration,
		c.dispatched,
		c.forwarded,
		c.dropped,
		c.routeActive,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}

	return c, nil
}

// RecordControlFrame implements broker.MetricsCollector
func (c *PrometheusCollector) RecordControlFrame(op contracts.Op, duration time.Duration, err error) {
	result := resultOK
	if err != nil {
		result = resultError
	}
	c.controlFrames.WithLabelValues(string(op), result).Inc()
	c.controlDuration.WithLabelValues(string(op)).Observe(duration.Seconds())
}

// RecordDispatch implements broker.MetricsCollector
func (c *PrometheusCollector) RecordDispatch(topic string, callbacks int, delivered bool) {
	result := "delivered"
	if !delivered {
		result = "no_subscription"
	}
	c.dispatched.WithLabelValues(result).Inc()
}

// RecordForwarded implements bridge.MetricsCollector
func (c *PrometheusCollector) RecordForwarded(route string, direction contracts.Direction) {
	c.forwarded.WithLabelValues(route, direction.String()).Inc()
}

// RecordDropped implements bridge.MetricsCollector
func (c *PrometheusCollector) RecordDropped(route string, reason bridge.DropReason) {
	c.dropped.WithLabelValues(route, string(reason)).Inc()
}

// SetRouteActive implements bridge.MetricsCollector
func (c *PrometheusCollector) SetRouteActive(route string, active bool) {
	value := 0.0
	if active {
		value = 1
	}
	c.routeActive.WithLabelValues(route).Set(value)
}

// Handler serves the metrics gathered by g
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
