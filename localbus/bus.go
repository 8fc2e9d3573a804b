// Package localbus defines the local publish/subscribe collaborator the
// bridge attaches to, and an in-process implementation of it.
package localbus

import (
	"context"
)

// Handler receives a local message
type Handler func(ctx context.Context, payload interface{})

// PeerCountHandler receives the new peer count of a topic
type PeerCountHandler func(count int)

// Token identifies a local subscription
type Token string

// Bus is the local bus as seen by the bridge.
//
// Implementations serialize Handler calls and PeerCountHandler calls for
// the same topic in delivery order; different topics may be delivered
// concurrently.
type Bus interface {
	// Publish delivers payload to the subscribers of topic
	Publish(ctx context.Context, topic, typeName string, payload interface{}) error

	// Subscribe attaches handler to topic and counts it as a peer
	Subscribe(topic, typeName string, handler Handler) (Token, error)

	// Unsubscribe detaches the subscription identified by token
	Unsubscribe(token Token) error

	// OnPeerCountChange registers fn for peer count transitions of topic.
	// The returned function removes the registration.
	OnPeerCountChange(topic string, fn PeerCountHandler) (cancel func())

	// ConnectedPeerCount returns the current number of peers on topic
	ConnectedPeerCount(topic string) int
}
