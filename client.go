// Copyright 2024 Mmate Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package gdpbridge wires a configured bridge proxy together with its
// control channel, metrics and health checks.
package gdpbridge

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/glimte/gdp-bridge/bridge"
	"github.com/glimte/gdp-bridge/config"
	"github.com/glimte/gdp-bridge/contracts"
	"github.com/glimte/gdp-bridge/health"
	"github.com/glimte/gdp-bridge/localbus"
	"github.com/glimte/gdp-bridge/metrics"
	"github.com/glimte/gdp-bridge/remote"
	"github.com/glimte/gdp-bridge/remote/amqplink"
	"github.com/glimte/gdp-bridge/remote/wslink"
	"github.com/glimte/gdp-bridge/serialization"
)

// Goroutine thresholds for the health check
const (
	goroutineWarning  = 10000
	goroutineCritical = 50000
	healthTimeout     = 5 * time.Second
)

// Client provides the main entry point for gdp-bridge
type Client struct {
	cfg      *config.Config
	link     remote.Link
	proxy    *bridge.Proxy
	metrics  *metrics.PrometheusCollector
	gatherer prometheus.Gatherer
	health   *health.Registry
	logger   *slog.Logger
}

// clientConfig holds client configuration
type clientConfig struct {
	logger       *slog.Logger
	link         remote.Link
	registry     *prometheus.Registry
	typeRegistry serialization.TypeRegistry
	housekeeping bridge.HousekeepingFunc
}

// ClientOption configures the client
type ClientOption func(*clientConfig)

// WithLogger sets the logger for all components
func WithLogger(logger *slog.Logger) ClientOption {
	return func(cfg *clientConfig) {
		cfg.logger = logger
	}
}

// WithLink replaces the control channel selected by remote.transport
func WithLink(link remote.Link) ClientOption {
	return func(cfg *clientConfig) {
		cfg.link = link
	}
}

// WithPrometheusRegistry registers the bridge metrics on registry instead of
// a private one
func WithPrometheusRegistry(registry *prometheus.Registry) ClientOption {
	return func(cfg *clientConfig) {
		cfg.registry = registry
	}
}

// WithTypeRegistry sets the message types the bridge can convert
func WithTypeRegistry(registry serialization.TypeRegistry) ClientOption {
	return func(cfg *clientConfig) {
		cfg.typeRegistry = registry
	}
}

// WithHousekeeping sets the hook run on every lifetime loop tick
func WithHousekeeping(fn bridge.HousekeepingFunc) ClientOption {
	return func(cfg *clientConfig) {
		cfg.housekeeping = fn
	}
}

// NewClient builds a bridge for cfg on top of bus. Nothing is connected
// until Run or Start.
func NewClient(cfg *config.Config, bus localbus.Bus, options ...ClientOption) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	opts := &clientConfig{
		logger: slog.Default(),
	}
	for _, opt := range options {
		opt(opts)
	}

	link := opts.link
	if link == nil {
		var err error
		link, err = newLink(cfg, opts.logger)
		if err != nil {
			return nil, err
		}
	}

	registry := opts.registry
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	collector, err := metrics.NewPrometheusCollector(registry)
	if err != nil {
		return nil, err
	}

	proxyOpts := []bridge.Option{
		bridge.WithLogger(opts.logger),
		bridge.WithMetrics(collector),
		bridge.WithHousekeepingInterval(cfg.HousekeepingInterval.Std()),
		bridge.WithShutdownGrace(cfg.ShutdownGrace.Std()),
		bridge.WithControlTimeout(cfg.Remote.SendTimeout.Std()),
	}
	if policy := cfg.ReconnectPolicy(); policy != nil {
		proxyOpts = append(proxyOpts, bridge.WithReconnectPolicy(policy))
	}
	if opts.typeRegistry != nil {
		proxyOpts = append(proxyOpts, bridge.WithTypeRegistry(opts.typeRegistry))
	}
	if opts.housekeeping != nil {
		proxyOpts = append(proxyOpts, bridge.WithHousekeeping(opts.housekeeping))
	}

	proxy, err := bridge.NewProxy(link, cfg.Remote.Address, bus, cfg.Routes(), proxyOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create proxy: %w", err)
	}

	checks := health.NewRegistry()
	checks.SetMetadata("transport", cfg.Remote.Transport)
	checks.Register(health.NewLinkChecker(link, cfg.Remote.Address))
	checks.Register(health.NewRoutesChecker(proxy))
	checks.Register(health.NewGoroutineChecker(goroutineWarning, goroutineCritical))

	return &Client{
		cfg:      cfg,
		link:     link,
		proxy:    proxy,
		metrics:  collector,
		gatherer: registry,
		health:   checks,
		logger:   opts.logger,
	}, nil
}

func newLink(cfg *config.Config, logger *slog.Logger) (remote.Link, error) {
	switch cfg.Remote.Transport {
	case config.TransportWebSocket, "":
		return wslink.New(
			wslink.WithLogger(logger),
			wslink.WithSendTimeout(cfg.Remote.SendTimeout.Std()),
		), nil
	case config.TransportAMQP:
		return amqplink.New(
			amqplink.WithLogger(logger),
			amqplink.WithExchange(cfg.Remote.ControlExchange),
			amqplink.WithSendTimeout(cfg.Remote.SendTimeout.Std()),
		), nil
	default:
		return nil, fmt.Errorf("unknown remote transport %q", cfg.Remote.Transport)
	}
}

// Run runs the bridge until ctx is done or the control channel is lost
func (c *Client) Run(ctx context.Context) error {
	c.logger.Info("starting bridge",
		"transport", c.cfg.Remote.Transport,
		"address", c.cfg.Remote.Address,
		"routes", len(c.cfg.Routes()))
	return c.proxy.Run(ctx)
}

// Start connects and creates every route without blocking
func (c *Client) Start(ctx context.Context) error {
	return c.proxy.Start(ctx)
}

// Shutdown releases every remote handle and closes the control channel
func (c *Client) Shutdown(ctx context.Context) error {
	return c.proxy.Shutdown(ctx)
}

// Proxy returns the bridge proxy
func (c *Client) Proxy() *bridge.Proxy {
	return c.proxy
}

// Link returns the control channel
func (c *Client) Link() remote.Link {
	return c.link
}

// Warnings returns the unknown type warnings collected at start
func (c *Client) Warnings() []contracts.UnknownTypeWarning {
	return c.proxy.Warnings()
}

// Health returns the health check registry
func (c *Client) Health() *health.Registry {
	return c.health
}

// HealthHandler serves /healthz and /livez
func (c *Client) HealthHandler() http.Handler {
	return health.NewServeMux(c.health, healthTimeout)
}

// MetricsHandler serves the Prometheus metrics
func (c *Client) MetricsHandler() http.Handler {
	return metrics.Handler(c.gatherer)
}
