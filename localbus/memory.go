package localbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrUnknownToken is returned when unsubscribing a token that is not live
	ErrUnknownToken = errors.New("localbus: unknown subscription token")
	// ErrTypeMismatch is returned when a topic is used with two types
	ErrTypeMismatch = errors.New("localbus: topic type mismatch")
)

// MemoryBus is an in-process Bus. Handlers run synchronously on the
// publishing goroutine; peer count handlers run synchronously on the
// goroutine that changed the count, serialized per topic.
type MemoryBus struct {
	logger *slog.Logger

	mu     sync.RWMutex
	topics map[string]*topicState
	tokens map[Token]string
}

type topicState struct {
	// notifyMu serializes peer count notifications of the topic
	notifyMu sync.Mutex

	typeName    string
	subscribers []*subscriber
	listeners   []*peerListener
}

type subscriber struct {
	token   Token
	handler Handler
}

type peerListener struct {
	fn PeerCountHandler
}

var _ Bus = (*MemoryBus)(nil)

// Option configures the bus
type Option func(*MemoryBus)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(b *MemoryBus) {
		b.logger = logger
	}
}

// NewMemoryBus creates an empty bus
func NewMemoryBus(options ...Option) *MemoryBus {
	b := &MemoryBus{
		logger: slog.Default(),
		topics: make(map[string]*topicState),
		tokens: make(map[Token]string),
	}

	for _, opt := range options {
		opt(b)
	}

	return b
}

// Publish delivers payload to every subscriber of topic in subscription
// order. Publishing with no subscribers is not an error.
func (b *MemoryBus) Publish(ctx context.Context, topic, typeName string, payload interface{}) error {
	b.mu.RLock()
	state, ok := b.topics[topic]
	var handlers []Handler
	if ok {
		if err := checkType(topic, state.typeName, typeName); err != nil {
			b.mu.RUnlock()
			return err
		}
		handlers = make([]Handler, len(state.subscribers))
		for i, s := range state.subscribers {
			handlers[i] = s.handler
		}
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, payload)
	}

	b.logger.Debug("local message published", "topic", topic, "subscribers", len(handlers))
	return nil
}

// Subscribe attaches handler to topic
func (b *MemoryBus) Subscribe(topic, typeName string, handler Handler) (Token, error) {
	if topic == "" {
		return "", errors.New("localbus: topic cannot be empty")
	}
	if handler == nil {
		return "", errors.New("localbus: handler cannot be nil")
	}

	b.mu.Lock()
	state := b.topic(topic)
	if err := checkType(topic, state.typeName, typeName); err != nil {
		b.mu.Unlock()
		return "", err
	}
	if state.typeName == "" {
		state.typeName = typeName
	}

	token := Token(uuid.NewString())
	state.subscribers = append(state.subscribers, &subscriber{token: token, handler: handler})
	b.tokens[token] = topic
	b.mu.Unlock()

	b.notify(topic, state)
	return token, nil
}

// Unsubscribe detaches a subscription
func (b *MemoryBus) Unsubscribe(token Token) error {
	b.mu.Lock()
	topic, ok := b.tokens[token]
	if !ok {
		b.mu.Unlock()
		return ErrUnknownToken
	}
	delete(b.tokens, token)

	state := b.topics[topic]
	for i, s := range state.subscribers {
		if s.token == token {
			state.subscribers = append(state.subscribers[:i:i], state.subscribers[i+1:]...)
			break
		}
	}
	b.mu.Unlock()

	b.notify(topic, state)
	return nil
}

// OnPeerCountChange registers fn for peer count transitions of topic.
// fn must not subscribe to or unsubscribe from the same topic.
func (b *MemoryBus) OnPeerCountChange(topic string, fn PeerCountHandler) func() {
	listener := &peerListener{fn: fn}

	b.mu.Lock()
	state := b.topic(topic)
	state.listeners = append(state.listeners, listener)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, l := range state.listeners {
				if l == listener {
					state.listeners = append(state.listeners[:i:i], state.listeners[i+1:]...)
					break
				}
			}
		})
	}
}

// ConnectedPeerCount returns the number of subscribers of topic
func (b *MemoryBus) ConnectedPeerCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if state, ok := b.topics[topic]; ok {
		return len(state.subscribers)
	}
	return 0
}

// topic returns the state of name, creating it; b.mu must be held
func (b *MemoryBus) topic(name string) *topicState {
	state, ok := b.topics[name]
	if !ok {
		state = &topicState{}
		b.topics[name] = state
	}
	return state
}

// notify reports the current peer count of topic to its listeners. The
// count is read under notifyMu so listeners observe counts in order.
func (b *MemoryBus) notify(topic string, state *topicState) {
	state.notifyMu.Lock()
	defer state.notifyMu.Unlock()

	b.mu.RLock()
	count := len(state.subscribers)
	listeners := make([]*peerListener, len(state.listeners))
	copy(listeners, state.listeners)
	b.mu.RUnlock()

	b.logger.Debug("local peer count changed", "topic", topic, "peers", count)
	for _, l := range listeners {
		l.fn(count)
	}
}

func checkType(topic, existing, requested string) error {
	if existing == "" || requested == "" || existing == requested {
		return nil
	}
	return fmt.Errorf("%w: %s is %s, not %s", ErrTypeMismatch, topic, existing, requested)
}
