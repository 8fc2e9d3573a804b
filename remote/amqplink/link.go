// Package amqplink implements remote.Link over an AMQP broker.
//
// Control frames are published as JSON to a control exchange with
// publisher confirms. Each session declares an exclusive reply queue and
// names it in the ReplyTo property; the remote broker delivers data frames
// for subscribed topics to that queue.
package amqplink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/glimte/gdp-bridge/contracts"
	"github.com/glimte/gdp-bridge/internal/rabbitmq"
	"github.com/glimte/gdp-bridge/remote"
)

const (
	// DefaultExchange receives control frames
	DefaultExchange = "gdp.control"
	// DefaultRoutingKey is the routing key of control frames
	DefaultRoutingKey = "control"
	// DefaultSendTimeout bounds the publish and its confirmation
	DefaultSendTimeout = 5 * time.Second

	replyQueuePrefix = "gdp.reply."
	confirmBuffer    = 64
)

// Link is a remote.Link over AMQP
type Link struct {
	*remote.State

	exchange    string
	routingKey  string
	sendTimeout time.Duration
	logger      *slog.Logger

	writeMu    sync.Mutex
	cm         *rabbitmq.ConnectionManager
	ch         *amqp.Channel
	sess       *session
	confirms   *confirmTracker
	nextTag    uint64
	replyQueue string
	address    string
	closing    bool
	wg         sync.WaitGroup
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

// WithExchange sets the control exchange name
func WithExchange(exchange string) Option {
	return func(l *Link) {
		l.exchange = exchange
	}
}

// WithRoutingKey sets the routing key of control frames
func WithRoutingKey(key string) Option {
	return func(l *Link) {
		l.routingKey = key
	}
}

// WithSendTimeout bounds each publish and confirmation
func WithSendTimeout(timeout time.Duration) Option {
	return func(l *Link) {
		l.sendTimeout = timeout
	}
}

// New creates an unconnected link
func New(options ...Option) *Link {
	l := &Link{
		State:       remote.NewState(),
		exchange:    DefaultExchange,
		routingKey:  DefaultRoutingKey,
		sendTimeout: DefaultSendTimeout,
		logger:      slog.Default(),
	}

	for _, opt := range options {
		opt(l)
	}

	return l
}

// Connect dials the AMQP broker, declares the topology and starts
// consuming the reply queue. Calling Connect on a connected link is a no-op.
func (l *Link) Connect(ctx context.Context, address string) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	if l.IsConnected() {
		return nil
	}

	fail := func(op string, err error) error {
		return &contracts.ConnectionError{Op: op, Address: rabbitmq.SanitizeURL(address), Err: err, Timestamp: time.Now()}
	}

	if l.cm != nil {
		l.cm.RemoveStateListener(l.sess)
		l.cm.Close()
		l.cm = nil
	}

	cm := rabbitmq.NewConnectionManager(address, rabbitmq.WithLogger(l.logger))
	if err := cm.Connect(ctx); err != nil {
		return fail("connect", err)
	}

	ch, err := cm.Channel()
	if err != nil {
		cm.Close()
		return fail("connect", err)
	}

	queue, deliveries, err := l.setup(ch)
	if err != nil {
		cm.Close()
		return fail("connect", err)
	}

	l.cm = cm
	l.ch = ch
	l.sess = &session{link: l, ch: ch}
	l.confirms = newConfirmTracker(ch.NotifyPublish(make(chan amqp.Confirmation, confirmBuffer)))
	l.nextTag = 1
	l.replyQueue = queue
	l.address = address
	l.closing = false
	l.MarkConnected()

	cm.AddStateListener(l.sess)

	l.wg.Add(1)
	go l.consume(ch, deliveries)

	l.logger.Info("connected to remote broker",
		"address", rabbitmq.SanitizeURL(address),
		"exchange", l.exchange,
		"replyQueue", queue)
	return nil
}

func (l *Link) setup(ch *amqp.Channel) (string, <-chan amqp.Delivery, error) {
	if err := ch.Confirm(false); err != nil {
		return "", nil, fmt.Errorf("failed to enable confirms: %w", err)
	}

	if err := rabbitmq.DeclareControlExchange(ch, l.exchange); err != nil {
		return "", nil, err
	}

	q, err := rabbitmq.DeclareReplyQueue(ch, replyQueuePrefix+uuid.NewString()[:8])
	if err != nil {
		return "", nil, err
	}

	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return "", nil, fmt.Errorf("failed to consume reply queue: %w", err)
	}

	return q.Name, deliveries, nil
}

// SendControl publishes one frame and waits for the broker confirmation.
// Any failure is reported as a *contracts.ConnectionError.
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

	fail := func(err error) error {
		return &contracts.ConnectionError{Op: "send", Address: rabbitmq.SanitizeURL(l.address), Err: err, Timestamp: time.Now()}
	}

	if l.ch == nil || !l.IsConnected() {
		return fail(contracts.ErrNotConnected)
	}

	sendCtx, cancel := context.WithTimeout(ctx, l.sendTimeout)
	defer cancel()

	tag := l.nextTag
	confirmed := l.confirms.expect(tag)

	err = l.ch.PublishWithContext(sendCtx, l.exchange, l.routingKey, false, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Transient,
		CorrelationId: uuid.NewString(),
		ReplyTo:       l.replyQueue,
		Type:          string(frame.Op),
		Timestamp:     time.Now(),
		Body:          body,
	})
	if err != nil {
		l.confirms.forget(tag)
		return fail(&rabbitmq.PublishError{Exchange: l.exchange, RoutingKey: l.routingKey, Err: err, Timestamp: time.Now()})
	}
	l.nextTag++

	ack, ok, err := l.confirms.wait(sendCtx, tag, confirmed)
	switch {
	case err != nil:
		return fail(fmt.Errorf("%w: %v", rabbitmq.ErrPublishNotConfirmed, err))
	case !ok:
		return fail(rabbitmq.ErrConnectionClosed)
	case !ack:
		return fail(rabbitmq.ErrPublishNotConfirmed)
	}

	l.logger.Debug("sent control frame", "op", frame.Op, "topic", frame.Topic)
	return nil
}

// Close deletes the session and closes the AMQP connection
func (l *Link) Close() error {
	l.writeMu.Lock()
	l.closing = true
	cm := l.cm
	ch := l.ch
	sess := l.sess
	l.ch = nil
	l.writeMu.Unlock()

	l.MarkLost(nil)

	var err error
	if ch != nil {
		ch.Close()
	}
	if cm != nil {
		cm.RemoveStateListener(sess)
		err = cm.Close()
	}
	l.wg.Wait()
	return err
}

// session ties connection state notifications to the channel of one Connect
type session struct {
	link *Link
	ch   *amqp.Channel
}

func (s *session) OnConnected() {}

func (s *session) OnDisconnected(err error) {
	s.link.lost(s.ch, err)
}

func (l *Link) consume(ch *amqp.Channel, deliveries <-chan amqp.Delivery) {
	defer l.wg.Done()

	ctx := context.Background()
	for d := range deliveries {
		frame, err := contracts.DecodeDataFrame(d.Body)
		if err != nil {
			l.logger.Warn("discarding malformed inbound frame", "error", err, "messageId", d.MessageId)
			continue
		}

		handler := l.Handler()
		if handler == nil {
			l.logger.Debug("no inbound handler, frame dropped", "topic", frame.Topic)
			continue
		}
		handler(ctx, frame.Topic, frame.Msg)
	}

	l.lost(ch, rabbitmq.ErrConnectionClosed)
}

// lost marks the link lost unless ch belongs to an earlier session
func (l *Link) lost(ch *amqp.Channel, err error) {
	l.writeMu.Lock()
	stale := l.closing || l.ch != ch
	address := l.address
	l.writeMu.Unlock()

	if stale {
		return
	}

	if l.MarkLost(&contracts.ConnectionError{Op: "read", Address: rabbitmq.SanitizeURL(address), Err: err, Timestamp: time.Now()}) {
		l.logger.Error("control channel lost", "address", rabbitmq.SanitizeURL(address), "error", err)
	}
}
