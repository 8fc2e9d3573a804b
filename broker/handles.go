package broker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/glimte/gdp-bridge/contracts"
)

// Publication represents "this process publishes topic T to the remote
// broker". It is shared by every acquirer of the same remote topic.
type Publication struct {
	client *Client
	topic  contracts.Topic
	id     string

	// guarded by client.mu
	usageCount int
	released   bool
}

// Topic returns the remote topic
func (p *Publication) Topic() contracts.Topic {
	return p.topic
}

// ID returns the advertisement id shared by advertise and unadvertise
func (p *Publication) ID() string {
	return p.id
}

// UsageCount returns the number of live acquirers
func (p *Publication) UsageCount() int {
	p.client.mu.RLock()
	defer p.client.mu.RUnlock()
	return p.usageCount
}

// Released reports whether the handle was destroyed
func (p *Publication) Released() bool {
	p.client.mu.RLock()
	defer p.client.mu.RUnlock()
	return p.released
}

// Publish sends msg on the remote topic. It does not wait for remote
// delivery, only for the control channel write.
func (p *Publication) Publish(ctx context.Context, msg json.RawMessage) error {
	if p.Released() {
		return contracts.ErrHandleReleased
	}

	start := time.Now()
	err := p.client.link.SendControl(ctx, contracts.PublishFrame(p.topic, msg))
	p.client.metrics.RecordControlFrame(contracts.OpPublish, time.Since(start), err)
	return err
}

// Subscription represents "this process receives topic T from the remote
// broker". It owns the callback list dispatched on each inbound message.
type Subscription struct {
	client *Client
	topic  contracts.Topic

	// guarded by client.mu
	callbacks []registration
	released  bool
}

// CallbackID names one callback registration on a subscription
type CallbackID uint64

type registration struct {
	id CallbackID
	cb Callback
}

// Topic returns the remote topic
func (s *Subscription) Topic() contracts.Topic {
	return s.topic
}

// Callbacks returns the number of registered callbacks
func (s *Subscription) Callbacks() int {
	s.client.mu.RLock()
	defer s.client.mu.RUnlock()
	return len(s.callbacks)
}

// Released reports whether the handle was destroyed
func (s *Subscription) Released() bool {
	s.client.mu.RLock()
	defer s.client.mu.RUnlock()
	return s.released
}

func (s *Subscription) indexOf(id CallbackID) int {
	for i, reg := range s.callbacks {
		if reg.id == id {
			return i
		}
	}
	return -1
}
