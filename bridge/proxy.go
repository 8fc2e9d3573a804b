package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/glimte/gdp-bridge/broker"
	"github.com/glimte/gdp-bridge/contracts"
	"github.com/glimte/gdp-bridge/internal/reliability"
	"github.com/glimte/gdp-bridge/localbus"
	"github.com/glimte/gdp-bridge/remote"
	"github.com/glimte/gdp-bridge/serialization"
)

const (
	// DefaultHousekeepingInterval is the lifetime loop tick
	DefaultHousekeepingInterval = time.Second
	// DefaultShutdownGrace bounds the release of remote handles on shutdown
	DefaultShutdownGrace = 5 * time.Second
	// DefaultControlTimeout bounds control frames sent from bus callbacks
	DefaultControlTimeout = 5 * time.Second
)

var (
	// ErrAlreadyStarted is returned when Start is called twice
	ErrAlreadyStarted = errors.New("bridge: proxy already started")
	// ErrStopped is returned when starting a proxy that was shut down
	ErrStopped = errors.New("bridge: proxy stopped")
)

// HousekeepingFunc is called on every lifetime loop tick
type HousekeepingFunc func(ctx context.Context, routes []RouteStatus)

// Proxy owns the link, the broker client and every route
type Proxy struct {
	link      remote.Link
	address   string
	client    *broker.Client
	bus       localbus.Bus
	configs   []RouteConfig
	registry  serialization.TypeRegistry
	converter serialization.Converter
	logger    *slog.Logger
	metrics   MetricsCollector

	housekeeping         HousekeepingFunc
	housekeepingInterval time.Duration
	shutdownGrace        time.Duration
	controlTimeout       time.Duration
	reconnect            reliability.RetryPolicy

	mu       sync.RWMutex
	routes   []*Route
	warnings []contracts.UnknownTypeWarning
	started  bool
	stopped  bool
}

// Option configures the proxy
type Option func(*Proxy)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(p *Proxy) {
		p.logger = logger
	}
}

// WithMetrics sets the metrics collector
func WithMetrics(metrics MetricsCollector) Option {
	return func(p *Proxy) {
		p.metrics = metrics
	}
}

// WithTypeRegistry sets the registry used for the startup type check and
// by the default converter
func WithTypeRegistry(registry serialization.TypeRegistry) Option {
	return func(p *Proxy) {
		p.registry = registry
	}
}

// WithConverter sets the payload converter
func WithConverter(converter serialization.Converter) Option {
	return func(p *Proxy) {
		p.converter = converter
	}
}

// WithHousekeeping sets the hook called on every lifetime loop tick
func WithHousekeeping(fn HousekeepingFunc) Option {
	return func(p *Proxy) {
		p.housekeeping = fn
	}
}

// WithHousekeepingInterval sets the lifetime loop tick
func WithHousekeepingInterval(interval time.Duration) Option {
	return func(p *Proxy) {
		p.housekeepingInterval = interval
	}
}

// WithShutdownGrace bounds the release of remote handles on shutdown
func WithShutdownGrace(grace time.Duration) Option {
	return func(p *Proxy) {
		p.shutdownGrace = grace
	}
}

// WithControlTimeout bounds control frames sent on peer count changes
func WithControlTimeout(timeout time.Duration) Option {
	return func(p *Proxy) {
		p.controlTimeout = timeout
	}
}

// WithReconnectPolicy makes Run reconnect a lost link under policy instead
// of returning the connection error
func WithReconnectPolicy(policy reliability.RetryPolicy) Option {
	return func(p *Proxy) {
		p.reconnect = policy
	}
}

// NewProxy creates a proxy for routes. The link is connected by Start.
func NewProxy(link remote.Link, address string, bus localbus.Bus, routes []RouteConfig, options ...Option) (*Proxy, error) {
	if link == nil {
		return nil, errors.New("bridge: link cannot be nil")
	}
	if bus == nil {
		return nil, errors.New("bridge: local bus cannot be nil")
	}

	seen := make(map[RouteConfig]bool, len(routes))
	for _, rc := range routes {
		if err := rc.Validate(); err != nil {
			return nil, err
		}
		if seen[rc] {
			return nil, fmt.Errorf("bridge: duplicate route %s", rc.Name())
		}
		seen[rc] = true
	}

	p := &Proxy{
		link:                 link,
		address:              address,
		bus:                  bus,
		configs:              append([]RouteConfig(nil), routes...),
		logger:               slog.Default(),
		metrics:              NoOpMetrics{},
		housekeepingInterval: DefaultHousekeepingInterval,
		shutdownGrace:        DefaultShutdownGrace,
		controlTimeout:       DefaultControlTimeout,
	}

	for _, opt := range options {
		opt(p)
	}

	if p.registry == nil {
		p.registry = serialization.NewStandardRegistry()
	}
	if p.converter == nil {
		p.converter = serialization.NewJSONConverter(p.registry)
	}

	p.client = broker.NewClient(link, broker.WithLogger(p.logger), broker.WithMetrics(p.metrics))
	return p, nil
}

// Client returns the broker client
func (p *Proxy) Client() *broker.Client {
	return p.client
}

// Link returns the remote link
func (p *Proxy) Link() remote.Link {
	return p.link
}

// Start connects the link, checks route types and starts every route.
// Unknown types are logged and kept in Warnings; their routes are still
// created.
func (p *Proxy) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return ErrStopped
	}
	if p.started {
		p.mu.Unlock()
		return ErrAlreadyStarted
	}
	p.started = true
	p.mu.Unlock()

	if err := p.link.Connect(ctx, p.address); err != nil {
		p.logger.Error("failed to connect to remote broker", "address", p.address, "error", err)
		return err
	}

	warnings := p.checkTypes()

	deps := routeDeps{
		client:    p.client,
		bus:       p.bus,
		converter: p.converter,
		logger:    p.logger,
		metrics:   p.metrics,
		timeout:   p.controlTimeout,
	}

	routes := make([]*Route, 0, len(p.configs))
	for _, rc := range p.configs {
		route := newRoute(rc, deps)
		if err := route.start(ctx); err != nil {
			p.logger.Error("failed to start route", "route", rc.Name(), "error", err)
			p.setRoutes(routes, warnings)
			p.Shutdown(context.Background())
			return fmt.Errorf("failed to start route %s: %w", rc.Name(), err)
		}
		routes = append(routes, route)
	}

	p.setRoutes(routes, warnings)
	p.logger.Info("bridge started",
		"address", p.address,
		"routes", len(routes),
		"typeWarnings", len(warnings))
	return nil
}

func (p *Proxy) setRoutes(routes []*Route, warnings []contracts.UnknownTypeWarning) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.routes = routes
	p.warnings = warnings
}

// checkTypes reports every route whose type the registry does not know
func (p *Proxy) checkTypes() []contracts.UnknownTypeWarning {
	var warnings []contracts.UnknownTypeWarning
	for _, rc := range p.configs {
		if p.registry.IsTypeKnown(rc.Type) {
			continue
		}
		w := contracts.UnknownTypeWarning{Topic: rc.sourceTopic(), Type: rc.Type, Direction: rc.Direction}
		p.logger.Warn("unknown message type", "route", rc.Name(), "warning", w.Error())
		warnings = append(warnings, w)
	}
	return warnings
}

// Warnings returns the unknown type warnings collected by Start
func (p *Proxy) Warnings() []contracts.UnknownTypeWarning {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]contracts.UnknownTypeWarning(nil), p.warnings...)
}

// Routes returns a snapshot of every started route
func (p *Proxy) Routes() []RouteStatus {
	p.mu.RLock()
	routes := p.routes
	p.mu.RUnlock()

	statuses := make([]RouteStatus, len(routes))
	for i, r := range routes {
		statuses[i] = r.Status()
	}
	return statuses
}

// Route returns the started route named name
func (p *Proxy) Route(name string) (*Route, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, r := range p.routes {
		if r.name == name {
			return r, true
		}
	}
	return nil, false
}

// Run starts the proxy and blocks until ctx is done or the control
// channel is lost for good. Remote handles are released before it returns.
// A lost channel is returned as a *contracts.ConnectionError.
func (p *Proxy) Run(ctx context.Context) error {
	if err := p.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p.housekeepingLoop(gctx)
		return nil
	})
	g.Go(func() error {
		return p.supervise(gctx)
	})
	err := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), p.shutdownGrace)
	defer cancel()
	if serr := p.Shutdown(shutdownCtx); serr != nil {
		p.logger.Warn("shutdown completed with errors", "error", serr)
	}

	return err
}

// housekeepingLoop ticks until ctx is done
func (p *Proxy) housekeepingLoop(ctx context.Context) {
	if p.housekeepingInterval <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(p.housekeepingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			routes := p.Routes()
			for _, r := range routes {
				p.metrics.SetRouteActive(r.Name, r.Active)
			}
			if p.housekeeping != nil {
				p.housekeeping(ctx, routes)
			}
		}
	}
}

// supervise waits for link loss and reconnects when a policy is set
func (p *Proxy) supervise(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-p.link.Done():
		}

		err := p.link.Err()
		if err == nil || ctx.Err() != nil {
			// closed locally
			return nil
		}

		p.logger.Error("control channel lost", "address", p.address, "error", err)
		if p.reconnect == nil {
			return err
		}

		if rerr := p.reconnectLink(ctx); rerr != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.logger.Error("giving up on control channel", "error", rerr)
			return errors.Join(err, rerr)
		}
	}
}

// reconnectLink reconnects the link, restores remote handles and lets
// every demand listener catch up with peer changes missed while down
func (p *Proxy) reconnectLink(ctx context.Context) error {
	err := reliability.Retry(ctx, p.reconnect, func(ctx context.Context) error {
		err := p.client.Reconnect(ctx, func(ctx context.Context) error {
			return p.link.Connect(ctx, p.address)
		})
		if err != nil && !contracts.IsFatal(err) {
			// only a lost channel is worth another attempt
			return reliability.Permanent(err)
		}
		return err
	}, func(failures int, err error, wait time.Duration) {
		p.logger.Warn("reconnect attempt failed", "attempt", failures, "error", err, "nextRetryIn", wait)
	})
	if err != nil {
		return err
	}

	p.mu.RLock()
	routes := p.routes
	p.mu.RUnlock()
	for _, r := range routes {
		if r.demand != nil {
			r.demand.Reconcile()
		}
	}

	p.logger.Info("control channel restored", "address", p.address)
	return nil
}

// Shutdown detaches every route from the local bus, releases every remote
// handle within the grace period and closes the link. Teardown errors are
// logged and returned joined; the proxy is stopped either way.
func (p *Proxy) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	routes := p.routes
	p.mu.Unlock()

	graceCtx, cancel := context.WithTimeout(ctx, p.shutdownGrace)
	defer cancel()

	for _, r := range routes {
		r.detach()
	}

	var errs []error
	for _, r := range routes {
		if err := r.release(graceCtx); err != nil {
			p.logger.Warn("failed to release route", "route", r.name, "error", err)
			errs = append(errs, err)
		}
	}

	if err := p.client.ReleaseAll(graceCtx); err != nil {
		p.logger.Warn("failed to release remaining handles", "error", err)
		errs = append(errs, err)
	}

	if err := p.link.Close(); err != nil {
		p.logger.Warn("failed to close control channel", "error", err)
		errs = append(errs, err)
	}

	p.logger.Info("bridge stopped", "routes", len(routes))
	return errors.Join(errs...)
}
