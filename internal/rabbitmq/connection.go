package rabbitmq

import (
	"context"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ConnectionStateListener receives connection state change notifications
type ConnectionStateListener interface {
	OnConnected()
	OnDisconnected(err error)
}

// ConnectionManager owns a single AMQP connection
type ConnectionManager struct {
	url            string
	conn           *amqp.Connection
	mu             sync.RWMutex
	dialTimeout    time.Duration
	logger         *slog.Logger
	isConnected    bool
	closing        bool
	stateListeners []ConnectionStateListener
	listenersMu    sync.RWMutex
	wg             sync.WaitGroup
}

// ConnectionOption configures the ConnectionManager
type ConnectionOption func(*ConnectionManager)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) ConnectionOption {
	return func(cm *ConnectionManager) {
		cm.logger = logger
	}
}

// WithDialTimeout bounds the initial dial
func WithDialTimeout(timeout time.Duration) ConnectionOption {
	return func(cm *ConnectionManager) {
		cm.dialTimeout = timeout
	}
}

// NewConnectionManager creates a new connection manager
func NewConnectionManager(url string, options ...ConnectionOption) *ConnectionManager {
	cm := &ConnectionManager{
		url:         url,
		dialTimeout: 30 * time.Second,
		logger:      slog.Default(),
	}

	for _, opt := range options {
		opt(cm)
	}

	return cm
}

// Connect establishes the connection
func (cm *ConnectionManager) Connect(ctx context.Context) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.isConnected {
		return nil
	}

	connCtx, cancel := context.WithTimeout(ctx, cm.dialTimeout)
	defer cancel()

	type dialResult struct {
		conn *amqp.Connection
		err  error
	}
	result := make(chan dialResult, 1)

	go func() {
		conn, err := amqp.Dial(cm.url)
		result <- dialResult{conn: conn, err: err}
	}()

	select {
	case r := <-result:
		if r.err != nil {
			return &ConnectionError{
				Op:        "connect",
				URL:       SanitizeURL(cm.url),
				Err:       r.err,
				Timestamp: time.Now(),
			}
		}

		cm.conn = r.conn
		cm.isConnected = true
		cm.closing = false

		notifyClose := make(chan *amqp.Error, 1)
		cm.conn.NotifyClose(notifyClose)

		cm.logger.Info("connected to RabbitMQ", "url", SanitizeURL(cm.url))
		cm.notifyConnected()

		cm.wg.Add(1)
		go cm.watch(r.conn, notifyClose)
		return nil

	case <-connCtx.Done():
		// a late dial result is closed once it arrives
		go func() {
			if r := <-result; r.conn != nil {
				r.conn.Close()
			}
		}()
		return &ConnectionError{
			Op:        "connect",
			URL:       SanitizeURL(cm.url),
			Err:       ErrConnectionTimeout,
			Timestamp: time.Now(),
		}
	}
}

// Channel opens a new channel on the current connection
func (cm *ConnectionManager) Channel() (*amqp.Channel, error) {
	conn, err := cm.GetConnection()
	if err != nil {
		return nil, &ChannelError{Op: "open", Err: err, Timestamp: time.Now()}
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, &ChannelError{Op: "open", Err: err, Timestamp: time.Now()}
	}
	return ch, nil
}

// GetConnection returns the current connection
func (cm *ConnectionManager) GetConnection() (*amqp.Connection, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if !cm.isConnected || cm.conn == nil {
		return nil, ErrConnectionNotReady
	}

	if cm.conn.IsClosed() {
		return nil, ErrConnectionClosed
	}

	return cm.conn, nil
}

// IsConnected returns the connection status
func (cm *ConnectionManager) IsConnected() bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.isConnected
}

// Close closes the connection. Listeners are not told about a local close.
func (cm *ConnectionManager) Close() error {
	cm.mu.Lock()
	if !cm.isConnected {
		cm.mu.Unlock()
		return nil
	}

	cm.isConnected = false
	cm.closing = true
	conn := cm.conn
	cm.conn = nil
	cm.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
	}
	cm.wg.Wait()
	return err
}

// watch waits for the connection to close and reports a remote drop
func (cm *ConnectionManager) watch(conn *amqp.Connection, notifyClose chan *amqp.Error) {
	defer cm.wg.Done()

	amqpErr, ok := <-notifyClose

	cm.mu.Lock()
	closing := cm.closing || cm.conn != conn
	if !closing {
		cm.isConnected = false
		cm.conn = nil
	}
	cm.mu.Unlock()

	if closing {
		return
	}

	var err error = ErrConnectionClosed
	if ok && amqpErr != nil {
		err = amqpErr
	}
	cm.logger.Error("connection closed", "error", err)
	cm.notifyDisconnected(&ConnectionError{
		Op:        "watch",
		URL:       SanitizeURL(cm.url),
		Err:       err,
		Timestamp: time.Now(),
	})
}

// AddStateListener adds a connection state listener
func (cm *ConnectionManager) AddStateListener(listener ConnectionStateListener) {
	cm.listenersMu.Lock()
	defer cm.listenersMu.Unlock()
	cm.stateListeners = append(cm.stateListeners, listener)
}

// RemoveStateListener removes a connection state listener
func (cm *ConnectionManager) RemoveStateListener(listener ConnectionStateListener) {
	cm.listenersMu.Lock()
	defer cm.listenersMu.Unlock()

	for i, l := range cm.stateListeners {
		if l == listener {
			cm.stateListeners = append(cm.stateListeners[:i], cm.stateListeners[i+1:]...)
			break
		}
	}
}

func (cm *ConnectionManager) notifyConnected() {
	cm.listenersMu.RLock()
	defer cm.listenersMu.RUnlock()

	for _, listener := range cm.stateListeners {
		listener.OnConnected()
	}
}

func (cm *ConnectionManager) notifyDisconnected(err error) {
	cm.listenersMu.RLock()
	defer cm.listenersMu.RUnlock()

	for _, listener := range cm.stateListeners {
		listener.OnDisconnected(err)
	}
}
