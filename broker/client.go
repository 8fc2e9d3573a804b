package broker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/glimte/gdp-bridge/contracts"
	"github.com/glimte/gdp-bridge/remote"
)

// Client enforces per-topic singleton advertise/subscribe on top of a
// remote.Link and dispatches inbound messages to subscription callbacks.
type Client struct {
	link    remote.Link
	logger  *slog.Logger
	metrics MetricsCollector

	// opMu serializes acquire/release together with the frame they send
	opMu sync.Mutex

	// mu guards the handle maps and handle state; dispatch only reads
	mu            sync.RWMutex
	publications  map[string]*Publication
	subscriptions map[string]*Subscription
	lastID        CallbackID
}

// Option configures the client
type Option func(*Client)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMetrics sets the metrics collector
func WithMetrics(metrics MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = metrics
	}
}

// NewClient creates a client and registers it as the link's inbound handler
func NewClient(link remote.Link, options ...Option) *Client {
	c := &Client{
		link:          link,
		logger:        slog.Default(),
		metrics:       NoOpMetrics{},
		publications:  make(map[string]*Publication),
		subscriptions: make(map[string]*Subscription),
	}

	for _, opt := range options {
		opt(c)
	}

	link.OnMessage(c.Dispatch)
	return c
}

// AcquirePublication returns the publication handle for topic, advertising
// it on first use. If the advertise frame cannot be sent no handle is
// created and the error is returned.
func (c *Client) AcquirePublication(ctx context.Context, topic contracts.Topic) (*Publication, error) {
	if err := topic.Validate(); err != nil {
		return nil, err
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if pub, ok := c.publications[topic.Name]; ok {
		pub.usageCount++
		count := pub.usageCount
		c.mu.Unlock()

		if pub.topic.Type != topic.Type {
			c.logger.Warn("publication type differs from advertised type",
				"topic", topic.Name,
				"advertisedType", pub.topic.Type,
				"requestedType", topic.Type)
		}
		c.logger.Debug("publication shared", "topic", topic.Name, "usageCount", count)
		return pub, nil
	}
	c.mu.Unlock()

	pub := &Publication{client: c, topic: topic, id: uuid.NewString(), usageCount: 1}
	if err := c.send(ctx, contracts.AdvertiseFrame(pub.id, topic)); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.publications[topic.Name] = pub
	c.mu.Unlock()

	c.logger.Info("advertised remote topic", "topic", topic.Name, "type", topic.Type, "id", pub.id)
	return pub, nil
}

// ReleasePublication drops one reference. The last release unadvertises
// the topic. Releasing a destroyed handle returns a *contracts.DoubleReleaseError
// and changes nothing.
func (c *Client) ReleasePublication(ctx context.Context, pub *Publication) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if pub == nil || pub.released || c.publications[pub.topic.Name] != pub {
		c.mu.Unlock()
		return c.doubleRelease("publication", pub.topicName())
	}

	pub.usageCount--
	if pub.usageCount > 0 {
		count := pub.usageCount
		c.mu.Unlock()
		c.logger.Debug("publication released", "topic", pub.topic.Name, "usageCount", count)
		return nil
	}

	pub.released = true
	delete(c.publications, pub.topic.Name)
	c.mu.Unlock()

	if err := c.send(ctx, contracts.UnadvertiseFrame(pub.id, pub.topic)); err != nil {
		return err
	}
	c.logger.Info("unadvertised remote topic", "topic", pub.topic.Name, "id", pub.id)
	return nil
}

// AcquireSubscription registers cb for topic, subscribing on first use. The
// returned CallbackID releases this registration. If the subscribe frame
// cannot be sent no handle is created and the error is returned.
func (c *Client) AcquireSubscription(ctx context.Context, topic contracts.Topic, cb Callback) (*Subscription, CallbackID, error) {
	if err := topic.Validate(); err != nil {
		return nil, 0, err
	}
	if cb == nil {
		return nil, 0, errors.New("subscription callback cannot be nil")
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if sub, ok := c.subscriptions[topic.Name]; ok {
		id := c.register(sub, cb)
		count := len(sub.callbacks)
		c.mu.Unlock()
		c.logger.Debug("subscription shared", "topic", topic.Name, "callbacks", count)
		return sub, id, nil
	}
	c.mu.Unlock()

	if err := c.send(ctx, contracts.SubscribeFrame(topic)); err != nil {
		return nil, 0, err
	}

	sub := &Subscription{client: c, topic: topic}
	c.mu.Lock()
	id := c.register(sub, cb)
	c.subscriptions[topic.Name] = sub
	c.mu.Unlock()

	c.logger.Info("subscribed to remote topic", "topic", topic.Name, "type", topic.Type)
	return sub, id, nil
}

// register appends cb to sub under a fresh id; c.mu must be held
func (c *Client) register(sub *Subscription, cb Callback) CallbackID {
	c.lastID++
	sub.callbacks = append(sub.callbacks, registration{id: c.lastID, cb: cb})
	return c.lastID
}

// ReleaseSubscription removes the registration id from the handle.
// Removing the last callback unsubscribes. A destroyed handle or unknown id
// returns a *contracts.DoubleReleaseError and changes nothing.
func (c *Client) ReleaseSubscription(ctx context.Context, sub *Subscription, id CallbackID) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if sub == nil || sub.released || c.subscriptions[sub.topic.Name] != sub {
		c.mu.Unlock()
		return c.doubleRelease("subscription", sub.topicName())
	}

	idx := sub.indexOf(id)
	if idx < 0 {
		c.mu.Unlock()
		return c.doubleRelease("subscription callback", sub.topic.Name)
	}

	callbacks := make([]registration, 0, len(sub.callbacks)-1)
	callbacks = append(callbacks, sub.callbacks[:idx]...)
	callbacks = append(callbacks, sub.callbacks[idx+1:]...)
	sub.callbacks = callbacks

	if len(callbacks) > 0 {
		c.mu.Unlock()
		c.logger.Debug("subscription callback removed", "topic", sub.topic.Name, "callbacks", len(callbacks))
		return nil
	}

	sub.released = true
	delete(c.subscriptions, sub.topic.Name)
	c.mu.Unlock()

	if err := c.send(ctx, contracts.UnsubscribeFrame(sub.topic)); err != nil {
		return err
	}
	c.logger.Info("unsubscribed from remote topic", "topic", sub.topic.Name)
	return nil
}

// Dispatch delivers an inbound message to the callbacks of topic in
// registration order. Messages without a live subscription are dropped.
func (c *Client) Dispatch(ctx context.Context, topic string, msg json.RawMessage) {
	c.mu.RLock()
	sub, ok := c.subscriptions[topic]
	var callbacks []Callback
	if ok {
		callbacks = make([]Callback, len(sub.callbacks))
		for i, reg := range sub.callbacks {
			callbacks[i] = reg.cb
		}
	}
	c.mu.RUnlock()

	c.metrics.RecordDispatch(topic, len(callbacks), ok)
	if !ok {
		c.logger.Debug("dropping message for topic without subscription", "topic", topic)
		return
	}

	for _, cb := range callbacks {
		cb.Handle(ctx, msg)
	}
}

// Restore resends advertise and subscribe frames for every live handle.
// Refcounts and callbacks are kept as they are.
func (c *Client) Restore(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.restore(ctx)
}

// Reconnect calls connect and then restores every live handle without
// letting any acquire or release in between. Handles acquired on the fresh
// channel are therefore never announced twice.
func (c *Client) Reconnect(ctx context.Context, connect func(ctx context.Context) error) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := connect(ctx); err != nil {
		return err
	}
	return c.restore(ctx)
}

// restore resends the frames; c.opMu must be held
func (c *Client) restore(ctx context.Context) error {
	pubs, subs := c.snapshot()

	for _, pub := range pubs {
		if err := c.send(ctx, contracts.AdvertiseFrame(pub.id, pub.topic)); err != nil {
			return err
		}
	}
	for _, sub := range subs {
		if err := c.send(ctx, contracts.SubscribeFrame(sub.topic)); err != nil {
			return err
		}
	}

	c.logger.Info("restored remote handles", "publications", len(pubs), "subscriptions", len(subs))
	return nil
}

// ReleaseAll destroys every live handle regardless of refcount, sending
// unsubscribe and unadvertise frames. Send failures are joined and
// returned; every handle is destroyed either way.
func (c *Client) ReleaseAll(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	pubs, subs := c.snapshot()

	c.mu.Lock()
	for _, sub := range subs {
		sub.released = true
		sub.callbacks = nil
	}
	for _, pub := range pubs {
		pub.released = true
		pub.usageCount = 0
	}
	c.subscriptions = make(map[string]*Subscription)
	c.publications = make(map[string]*Publication)
	c.mu.Unlock()

	var errs []error
	for _, sub := range subs {
		if err := c.send(ctx, contracts.UnsubscribeFrame(sub.topic)); err != nil {
			errs = append(errs, err)
		}
	}
	for _, pub := range pubs {
		if err := c.send(ctx, contracts.UnadvertiseFrame(pub.id, pub.topic)); err != nil {
			errs = append(errs, err)
		}
	}

	c.logger.Info("released all remote handles",
		"publications", len(pubs),
		"subscriptions", len(subs),
		"errors", len(errs))
	return errors.Join(errs...)
}

// Stats is a snapshot of live handles
type Stats struct {
	// Publications maps remote topic to usage count
	Publications map[string]int
	// Subscriptions maps remote topic to callback count
	Subscriptions map[string]int
}

// Stats returns a snapshot of live handles
func (c *Client) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := Stats{
		Publications:  make(map[string]int, len(c.publications)),
		Subscriptions: make(map[string]int, len(c.subscriptions)),
	}
	for name, pub := range c.publications {
		stats.Publications[name] = pub.usageCount
	}
	for name, sub := range c.subscriptions {
		stats.Subscriptions[name] = len(sub.callbacks)
	}
	return stats
}

// snapshot returns the live handles sorted by topic name
func (c *Client) snapshot() ([]*Publication, []*Subscription) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	pubs := make([]*Publication, 0, len(c.publications))
	for _, pub := range c.publications {
		pubs = append(pubs, pub)
	}
	sort.Slice(pubs, func(i, j int) bool { return pubs[i].topic.Name < pubs[j].topic.Name })

	subs := make([]*Subscription, 0, len(c.subscriptions))
	for _, sub := range c.subscriptions {
		subs = append(subs, sub)
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].topic.Name < subs[j].topic.Name })

	return pubs, subs
}

func (c *Client) send(ctx context.Context, frame contracts.ControlFrame) error {
	start := time.Now()
	err := c.link.SendControl(ctx, frame)
	c.metrics.RecordControlFrame(frame.Op, time.Since(start), err)
	if err != nil {
		c.logger.Error("control frame failed", "op", frame.Op, "topic", frame.Topic, "error", err)
	}
	return err
}

func (c *Client) doubleRelease(kind, topic string) error {
	err := &contracts.DoubleReleaseError{Kind: kind, Topic: topic}
	c.logger.Warn("release of destroyed handle ignored", "kind", kind, "topic", topic)
	return err
}

func (p *Publication) topicName() string {
	if p == nil {
		return ""
	}
	return p.topic.Name
}

func (s *Subscription) topicName() string {
	if s == nil {
		return ""
	}
	return s.topic.Name
}
