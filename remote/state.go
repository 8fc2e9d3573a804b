package remote

import (
	"sync"
)

// State tracks the lifecycle of a link: one connect, one loss or close.
// Link implementations embed it.
type State struct {
	mu        sync.RWMutex
	connected bool
	closed    bool
	done      chan struct{}
	err       error
	handler   InboundHandler
}

// NewState creates an unconnected state
func NewState() *State {
	return &State{done: make(chan struct{})}
}

// MarkConnected records a successful connect. A lost or closed state is
// reopened with a fresh Done channel.
func (s *State) MarkConnected() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		s.done = make(chan struct{})
		s.closed = false
		s.err = nil
	}
	s.connected = true
}

// MarkLost records a loss and closes Done. Only the first call has effect.
// A nil err means the link was closed locally.
func (s *State) MarkLost(err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	s.closed = true
	s.connected = false
	s.err = err
	close(s.done)
	return true
}

// IsConnected returns connection status
func (s *State) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// IsClosed reports whether the link was lost or closed
func (s *State) IsClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Done is closed when the link is lost or closed
func (s *State) Done() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.done
}

// Err returns why the link ended
func (s *State) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// OnMessage registers the inbound handler
func (s *State) OnMessage(handler InboundHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
}

// Handler returns the registered inbound handler, nil if none
func (s *State) Handler() InboundHandler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handler
}
