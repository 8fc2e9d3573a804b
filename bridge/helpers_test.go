package bridge

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/glimte/gdp-bridge/contracts"
	"github.com/glimte/gdp-bridge/localbus"
	"github.com/glimte/gdp-bridge/remote/remotetest"
)

const stringType = "std_msgs/String"

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestProxy(t *testing.T, routes []RouteConfig, options ...Option) (*Proxy, *remotetest.Link, *localbus.MemoryBus) {
	t.Helper()

	link := remotetest.NewLink()
	bus := localbus.NewMemoryBus(localbus.WithLogger(quietLogger()))
	options = append([]Option{WithLogger(quietLogger())}, options...)

	proxy, err := NewProxy(link, "ws://stub", bus, routes, options...)
	require.NoError(t, err)
	require.NoError(t, proxy.Start(context.Background()))
	t.Cleanup(func() { proxy.Shutdown(context.Background()) })

	return proxy, link, bus
}

func newTestLink(t *testing.T) *remotetest.Link {
	t.Helper()
	return remotetest.NewLink()
}

func subscribeLocal(t *testing.T, bus *localbus.MemoryBus, topic string) (localbus.Token, <-chan interface{}) {
	t.Helper()
	received := make(chan interface{}, 16)
	token, err := bus.Subscribe(topic, stringType, func(ctx context.Context, payload interface{}) {
		received <- payload
	})
	require.NoError(t, err)
	return token, received
}

type recordingMetrics struct {
	NoOpMetrics

	mu        sync.Mutex
	forwarded map[string]int
	dropped   map[DropReason]int
	active    map[string]bool
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		forwarded: make(map[string]int),
		dropped:   make(map[DropReason]int),
		active:    make(map[string]bool),
	}
}

func (m *recordingMetrics) RecordForwarded(route string, direction contracts.Direction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forwarded[route]++
}

func (m *recordingMetrics) RecordDropped(route string, reason DropReason) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped[reason]++
}

func (m *recordingMetrics) SetRouteActive(route string, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active[route] = active
}

func (m *recordingMetrics) droppedFor(reason DropReason) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped[reason]
}

func (m *recordingMetrics) forwardedFor(route string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.forwarded[route]
}

func (m *recordingMetrics) isActive(route string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active[route]
}

func waitFor(t *testing.T, ch <-chan interface{}) interface{} {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}
