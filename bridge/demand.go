package bridge

import (
	"context"
	"sync"

	"github.com/glimte/gdp-bridge/broker"
)

// DemandListener drives the remote subscription of a remote-to-local
// route from local peer count changes. It is Idle while no subscription is
// held and Active while one is.
//
// Events are serialized per route. Each event compares the live peer
// count with the current state: a peer on an Idle route acquires the
// subscription, no peer on an Active route releases it, anything else is
// a no-op.
type DemandListener struct {
	route    *Route
	callback *broker.FuncCallback

	mu     sync.Mutex
	sub    *broker.Subscription
	id     broker.CallbackID
	cancel func()
	closed bool
}

func newDemandListener(route *Route) *DemandListener {
	return &DemandListener{
		route:    route,
		callback: broker.NewCallback(route.onRemoteMessage),
	}
}

// Active reports whether the remote subscription is held
func (d *DemandListener) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sub != nil
}

// OnPeerCountChange handles a peer count transition of the local topic
func (d *DemandListener) OnPeerCountChange(count int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reconcile(count)
}

// Reconcile re-evaluates the state against the current peer count
func (d *DemandListener) Reconcile() {
	d.OnPeerCountChange(d.route.bus.ConnectedPeerCount(d.route.config.Local))
}

// attach starts observing the local topic and reconciles once
func (d *DemandListener) attach() {
	cancel := d.route.bus.OnPeerCountChange(d.route.config.Local, d.OnPeerCountChange)

	d.mu.Lock()
	d.cancel = cancel
	d.mu.Unlock()

	d.route.logger.Info("route started", "direction", d.route.config.Direction.String())
	d.Reconcile()
}

// detach stops observing the local topic; later events are ignored
func (d *DemandListener) detach() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closed = true
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
}

// release drops the remote subscription if held
func (d *DemandListener) release(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.sub == nil {
		return nil
	}
	return d.deactivate(ctx)
}

// reconcile applies one transition; d.mu must be held
func (d *DemandListener) reconcile(reported int) {
	if d.closed {
		return
	}

	peers := d.route.bus.ConnectedPeerCount(d.route.config.Local)
	logger := d.route.logger.With("peers", peers, "reportedPeers", reported)

	switch {
	case peers >= 1 && d.sub == nil:
		ctx, cancel := d.route.opContext()
		defer cancel()

		sub, id, err := d.route.client.AcquireSubscription(ctx, d.route.config.RemoteTopic(), d.callback)
		if err != nil {
			logger.Error("failed to activate route", "error", err)
			return
		}
		d.sub = sub
		d.id = id
		d.route.metrics.SetRouteActive(d.route.name, true)
		logger.Info("route activated")

	case peers == 0 && d.sub != nil:
		ctx, cancel := d.route.opContext()
		defer cancel()

		if err := d.deactivate(ctx); err != nil {
			logger.Error("failed to release remote subscription", "error", err)
			return
		}
		logger.Info("route deactivated")
	}
}

// deactivate releases the subscription; the handle is dropped even if the
// unsubscribe frame fails. d.mu must be held.
func (d *DemandListener) deactivate(ctx context.Context) error {
	sub := d.sub
	d.sub = nil
	d.route.metrics.SetRouteActive(d.route.name, false)
	return d.route.client.ReleaseSubscription(ctx, sub, d.id)
}
