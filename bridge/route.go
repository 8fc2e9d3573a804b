package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/glimte/gdp-bridge/broker"
	"github.com/glimte/gdp-bridge/contracts"
	"github.com/glimte/gdp-bridge/localbus"
	"github.com/glimte/gdp-bridge/serialization"
)

// Route is one configured pairing of a local and a remote topic
type Route struct {
	config    RouteConfig
	name      string
	client    *broker.Client
	bus       localbus.Bus
	converter serialization.Converter
	logger    *slog.Logger
	metrics   MetricsCollector
	timeout   time.Duration

	// local-to-remote state
	mu    sync.Mutex
	pub   *broker.Publication
	token localbus.Token

	// remote-to-local state
	demand *DemandListener
}

type routeDeps struct {
	client    *broker.Client
	bus       localbus.Bus
	converter serialization.Converter
	logger    *slog.Logger
	metrics   MetricsCollector
	timeout   time.Duration
}

func newRoute(config RouteConfig, deps routeDeps) *Route {
	r := &Route{
		config:    config,
		name:      config.Name(),
		client:    deps.client,
		bus:       deps.bus,
		converter: deps.converter,
		metrics:   deps.metrics,
		timeout:   deps.timeout,
		logger: deps.logger.With(
			"route", config.Name(),
			"localTopic", config.Local,
			"remoteTopic", config.Remote),
	}
	if config.Direction == contracts.RemoteToLocal {
		r.demand = newDemandListener(r)
	}
	return r
}

// Config returns the route configuration
func (r *Route) Config() RouteConfig {
	return r.config
}

// Active reports whether the route holds its remote handle
func (r *Route) Active() bool {
	if r.demand != nil {
		return r.demand.Active()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pub != nil
}

// Demand returns the demand listener of a remote-to-local route, nil otherwise
func (r *Route) Demand() *DemandListener {
	return r.demand
}

// Status returns a snapshot of the route
func (r *Route) Status() RouteStatus {
	return RouteStatus{
		Name:        r.name,
		Direction:   r.config.Direction,
		LocalTopic:  r.config.Local,
		RemoteTopic: r.config.Remote,
		Type:        r.config.Type,
		Active:      r.Active(),
	}
}

// start wires both ends of the route
func (r *Route) start(ctx context.Context) error {
	if r.demand != nil {
		r.demand.attach()
		return nil
	}
	return r.startLocalToRemote(ctx)
}

// startLocalToRemote advertises the remote topic and attaches to the local one
func (r *Route) startLocalToRemote(ctx context.Context) error {
	pub, err := r.client.AcquirePublication(ctx, r.config.RemoteTopic())
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.pub = pub
	r.mu.Unlock()
	r.metrics.SetRouteActive(r.name, true)

	token, err := r.bus.Subscribe(r.config.Local, r.config.Type, r.onLocalMessage)
	if err != nil {
		r.release(ctx)
		return err
	}

	r.mu.Lock()
	r.token = token
	r.mu.Unlock()

	r.logger.Info("route started", "direction", r.config.Direction.String())
	return nil
}

// detach stops listening to the local bus
func (r *Route) detach() {
	if r.demand != nil {
		r.demand.detach()
		return
	}

	r.mu.Lock()
	token := r.token
	r.token = ""
	r.mu.Unlock()

	if token != "" {
		if err := r.bus.Unsubscribe(token); err != nil {
			r.logger.Warn("failed to detach from local topic", "error", err)
		}
	}
}

// release gives back the route's remote handle
func (r *Route) release(ctx context.Context) error {
	if r.demand != nil {
		return r.demand.release(ctx)
	}

	r.mu.Lock()
	pub := r.pub
	r.pub = nil
	r.mu.Unlock()

	if pub == nil {
		return nil
	}
	r.metrics.SetRouteActive(r.name, false)
	return r.client.ReleasePublication(ctx, pub)
}

// onLocalMessage forwards a local message to the remote broker
func (r *Route) onLocalMessage(ctx context.Context, payload interface{}) {
	r.mu.Lock()
	pub := r.pub
	r.mu.Unlock()

	if pub == nil {
		return
	}

	msg, err := r.converter.ToRemote(payload, r.config.Type)
	if err != nil {
		r.logger.Warn("dropping local message", "error", err)
		r.metrics.RecordDropped(r.name, DropConversion)
		return
	}

	if err := pub.Publish(ctx, msg); err != nil {
		if errors.Is(err, contracts.ErrHandleReleased) {
			return
		}
		r.logger.Warn("failed to forward local message", "error", err)
		r.metrics.RecordDropped(r.name, DropPublishError)
		return
	}

	r.metrics.RecordForwarded(r.name, contracts.LocalToRemote)
}

// onRemoteMessage republishes a remote message on the local topic. A
// message arriving while the local topic has no peer is dropped.
func (r *Route) onRemoteMessage(ctx context.Context, msg json.RawMessage) {
	if r.bus.ConnectedPeerCount(r.config.Local) < 1 {
		r.logger.Debug("dropping remote message, no local peers")
		r.metrics.RecordDropped(r.name, DropNoPeers)
		return
	}

	payload, err := r.converter.ToLocal(msg, r.config.Type)
	if err != nil {
		r.logger.Warn("dropping remote message", "error", err)
		r.metrics.RecordDropped(r.name, DropConversion)
		return
	}

	if err := r.bus.Publish(ctx, r.config.Local, r.config.Type, payload); err != nil {
		r.logger.Warn("failed to publish remote message locally", "error", err)
		r.metrics.RecordDropped(r.name, DropPublishError)
		return
	}

	r.metrics.RecordForwarded(r.name, contracts.RemoteToLocal)
}

func (r *Route) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), r.timeout)
}
