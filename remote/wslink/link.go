// Package wslink implements remote.Link over a WebSocket connection.
//
// Every control frame is one JSON text message; WebSocket framing keeps
// frames length delimited. Inbound text messages are decoded as data frames
// and handed to the registered handler in arrival order.
package wslink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/glimte/gdp-bridge/contracts"
	"github.com/glimte/gdp-bridge/remote"
)

const (
	// DefaultSendTimeout bounds a single frame write
	DefaultSendTimeout = 5 * time.Second
	// DefaultPingInterval is the keepalive ping interval
	DefaultPingInterval = 30 * time.Second
)

// Link is a remote.Link over WebSocket
type Link struct {
	*remote.State

	dialer       *websocket.Dialer
	logger       *slog.Logger
	sendTimeout  time.Duration
	pingInterval time.Duration

	writeMu sync.Mutex
	conn    *websocket.Conn
	address string
	closing bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

var _ remote.Link = (*Link)(nil)

// Option configures the link
type Option func(*Link)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(l *Link) {
		l.logger = logger
	}
}

// WithSendTimeout bounds each frame write
func WithSendTimeout(timeout time.Duration) Option {
	return func(l *Link) {
		l.sendTimeout = timeout
	}
}

// WithPingInterval sets the keepalive interval; zero disables pings
func WithPingInterval(interval time.Duration) Option {
	return func(l *Link) {
		l.pingInterval = interval
	}
}

// WithDialer sets a custom dialer
func WithDialer(dialer *websocket.Dialer) Option {
	return func(l *Link) {
		l.dialer = dialer
	}
}

// New creates an unconnected link
func New(options ...Option) *Link {
	l := &Link{
		State:        remote.NewState(),
		dialer:       websocket.DefaultDialer,
		logger:       slog.Default(),
		sendTimeout:  DefaultSendTimeout,
		pingInterval: DefaultPingInterval,
	}

	for _, opt := range options {
		opt(l)
	}

	return l
}

// Connect dials the broker. Calling Connect on a connected link is a no-op.
func (l *Link) Connect(ctx context.Context, address string) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	if l.IsConnected() {
		return nil
	}

	address = normalizeAddress(address)
	conn, _, err := l.dialer.DialContext(ctx, address, nil)
	if err != nil {
		return &contracts.ConnectionError{Op: "connect", Address: address, Err: err, Timestamp: time.Now()}
	}

	readCtx, cancel := context.WithCancel(context.Background())
	l.conn = conn
	l.address = address
	l.closing = false
	l.cancel = cancel
	l.MarkConnected()

	l.wg.Add(1)
	go l.readLoop(readCtx, conn)

	if l.pingInterval > 0 {
		l.wg.Add(1)
		go l.pingLoop(conn, l.Done())
	}

	l.logger.Info("connected to remote broker", "address", address)
	return nil
}

// SendControl writes one frame. A write failure drops the channel and
// returns a *contracts.ConnectionError.
func (l *Link) SendControl(ctx context.Context, frame contracts.ControlFrame) error {
	if err := frame.Validate(); err != nil {
		return err
	}

	body, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("failed to encode %s frame: %w", frame.Op, err)
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	if l.conn == nil || !l.IsConnected() {
		return &contracts.ConnectionError{Op: "send", Address: l.address, Err: contracts.ErrNotConnected, Timestamp: time.Now()}
	}

	deadline := time.Now().Add(l.sendTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := l.conn.SetWriteDeadline(deadline); err != nil {
		return &contracts.ConnectionError{Op: "send", Address: l.address, Err: err, Timestamp: time.Now()}
	}

	if err := l.conn.WriteMessage(websocket.TextMessage, body); err != nil {
		// the read loop observes the close and records the loss
		l.conn.Close()
		return &contracts.ConnectionError{Op: "send", Address: l.address, Err: err, Timestamp: time.Now()}
	}

	l.logger.Debug("sent control frame", "op", frame.Op, "topic", frame.Topic)
	return nil
}

// Close sends a close message and tears the connection down
func (l *Link) Close() error {
	l.writeMu.Lock()
	conn := l.conn
	l.closing = true
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	}
	if l.cancel != nil {
		l.cancel()
	}
	l.writeMu.Unlock()

	l.MarkLost(nil)
	l.wg.Wait()
	return nil
}

func (l *Link) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer l.wg.Done()

	for {
		_, body, err := conn.ReadMessage()
		if err != nil {
			l.lost(conn, err)
			return
		}

		frame, err := contracts.DecodeDataFrame(body)
		if err != nil {
			l.logger.Warn("discarding malformed inbound frame", "error", err)
			continue
		}

		handler := l.Handler()
		if handler == nil {
			l.logger.Debug("no inbound handler, frame dropped", "topic", frame.Topic)
			continue
		}
		handler(ctx, frame.Topic, frame.Msg)
	}
}

func (l *Link) lost(conn *websocket.Conn, err error) {
	l.writeMu.Lock()
	closing := l.closing || l.conn != conn
	address := l.address
	l.writeMu.Unlock()
	conn.Close()

	if closing {
		return
	}

	if l.MarkLost(&contracts.ConnectionError{Op: "read", Address: address, Err: err, Timestamp: time.Now()}) {
		l.logger.Error("control channel lost", "address", address, "error", err)
	}
}

func (l *Link) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	defer l.wg.Done()

	ticker := time.NewTicker(l.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(l.sendTimeout)); err != nil {
				l.logger.Debug("keepalive ping failed", "error", err)
				return
			}
		}
	}
}

func normalizeAddress(address string) string {
	if strings.HasPrefix(address, "ws://") || strings.HasPrefix(address, "wss://") {
		return address
	}
	return "ws://" + address
}
