// Package remotetest provides test doubles for the remote control channel:
// an in-memory recording Link and a WebSocket stub Broker.
package remotetest

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/glimte/gdp-bridge/contracts"
	"github.com/glimte/gdp-bridge/remote"
)

// Link is an in-memory remote.Link that records every control frame
type Link struct {
	*remote.State

	mu           sync.Mutex
	address      string
	frames       []contracts.ControlFrame
	connectErr   error
	sendErr      error
	rejectErr    error
	connects     int
	afterConnect func()
}

var _ remote.Link = (*Link)(nil)

// NewLink creates a recording link
func NewLink() *Link {
	return &Link{State: remote.NewState()}
}

// Connect records the address. It fails if FailConnect was called.
func (l *Link) Connect(ctx context.Context, address string) error {
	l.mu.Lock()
	l.address = address
	l.connects++
	err := l.connectErr
	hook := l.afterConnect
	l.mu.Unlock()

	if err != nil {
		return &contracts.ConnectionError{Op: "connect", Address: address, Err: err, Timestamp: time.Now()}
	}
	l.MarkConnected()
	if hook != nil {
		hook()
	}
	return nil
}

// AfterConnect runs fn at the end of every successful Connect; nil clears it
func (l *Link) AfterConnect(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.afterConnect = fn
}

// SendControl records the frame
func (l *Link) SendControl(ctx context.Context, frame contracts.ControlFrame) error {
	if !l.IsConnected() {
		return &contracts.ConnectionError{Op: "send", Address: l.Address(), Err: contracts.ErrNotConnected, Timestamp: time.Now()}
	}
	if err := frame.Validate(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.rejectErr != nil {
		return l.rejectErr
	}
	if l.sendErr != nil {
		return &contracts.ConnectionError{Op: "send", Address: l.address, Err: l.sendErr, Timestamp: time.Now()}
	}
	l.frames = append(l.frames, frame)
	return nil
}

// Close closes the link
func (l *Link) Close() error {
	l.MarkLost(nil)
	return nil
}

// Deliver hands an inbound data frame to the registered handler.
// It reports false when no handler is registered.
func (l *Link) Deliver(ctx context.Context, topic string, msg json.RawMessage) bool {
	handler := l.Handler()
	if handler == nil {
		return false
	}
	handler(ctx, topic, msg)
	return true
}

// Drop simulates the remote end dropping the channel
func (l *Link) Drop(err error) {
	l.MarkLost(&contracts.ConnectionError{Op: "read", Address: l.Address(), Err: err, Timestamp: time.Now()})
}

// FailConnect makes later Connect calls fail with err; nil clears it
func (l *Link) FailConnect(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connectErr = err
}

// FailSends makes later SendControl calls fail with err; nil clears it
func (l *Link) FailSends(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sendErr = err
}

// RejectFrames makes later SendControl calls return err as is, the way a
// broker refusing a frame would; nil clears it
func (l *Link) RejectFrames(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rejectErr = err
}

// Address returns the last connected address
func (l *Link) Address() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.address
}

// Connects returns how many times Connect was called
func (l *Link) Connects() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connects
}

// Frames returns a copy of the recorded frames
func (l *Link) Frames() []contracts.ControlFrame {
	l.mu.Lock()
	defer l.mu.Unlock()

	frames := make([]contracts.ControlFrame, len(l.frames))
	copy(frames, l.frames)
	return frames
}

// Count returns how many frames with op were sent for topic.
// An empty topic counts every topic.
func (l *Link) Count(op contracts.Op, topic string) int {
	return countFrames(l.Frames(), op, topic)
}

// Ops returns the recorded ops for topic in send order
func (l *Link) Ops(topic string) []contracts.Op {
	var ops []contracts.Op
	for _, f := range l.Frames() {
		if f.Topic == topic {
			ops = append(ops, f.Op)
		}
	}
	return ops
}

// Reset forgets the recorded frames
func (l *Link) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.frames = nil
}

func countFrames(frames []contracts.ControlFrame, op contracts.Op, topic string) int {
	n := 0
	for _, f := range frames {
		if f.Op == op && (topic == "" || f.Topic == topic) {
			n++
		}
	}
	return n
}
