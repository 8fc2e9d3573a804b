package remotetest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/glimte/gdp-bridge/contracts"
)

// Broker is a stub remote broker speaking the JSON frame protocol over
// WebSocket. It records control frames and echoes every publish frame to
// the sessions subscribed to that topic.
type Broker struct {
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[string]*session
	frames   []contracts.ControlFrame
}

type session struct {
	id      string
	conn    *websocket.Conn
	writeMu sync.Mutex
	topics  map[string]bool
}

func (s *session) send(frame contracts.DataFrame) error {
	body, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, body)
}

// NewBroker starts a stub broker on a local port
func NewBroker() *Broker {
	b := &Broker{
		sessions: make(map[string]*session),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	b.server = httptest.NewServer(http.HandlerFunc(b.handle))
	return b
}

// URL returns the ws:// address of the broker
func (b *Broker) URL() string {
	return "ws" + strings.TrimPrefix(b.server.URL, "http")
}

// Close drops all sessions and stops the server
func (b *Broker) Close() {
	b.DropConnections()
	b.server.Close()
}

// DropConnections closes every open session, simulating a broker failure
func (b *Broker) DropConnections() {
	b.mu.Lock()
	sessions := make([]*session, 0, len(b.sessions))
	for _, s := range b.sessions {
		sessions = append(sessions, s)
	}
	b.mu.Unlock()

	for _, s := range sessions {
		s.conn.Close()
	}
}

// Sessions returns the number of connected sessions
func (b *Broker) Sessions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions)
}

// Frames returns a copy of the recorded control frames
func (b *Broker) Frames() []contracts.ControlFrame {
	b.mu.Lock()
	defer b.mu.Unlock()

	frames := make([]contracts.ControlFrame, len(b.frames))
	copy(frames, b.frames)
	return frames
}

// Count returns how many frames with op were received for topic.
// An empty topic counts every topic.
func (b *Broker) Count(op contracts.Op, topic string) int {
	return countFrames(b.Frames(), op, topic)
}

// Publish sends a data frame to the sessions subscribed to topic and
// returns how many received it
func (b *Broker) Publish(topic string, msg json.RawMessage) int {
	return b.deliver(topic, msg, false)
}

// Broadcast sends a data frame to every session, subscribed or not
func (b *Broker) Broadcast(topic string, msg json.RawMessage) int {
	return b.deliver(topic, msg, true)
}

func (b *Broker) deliver(topic string, msg json.RawMessage, all bool) int {
	b.mu.Lock()
	var targets []*session
	for _, s := range b.sessions {
		if all || s.topics[topic] {
			targets = append(targets, s)
		}
	}
	b.mu.Unlock()

	sent := 0
	for _, s := range targets {
		if err := s.send(contracts.DataFrame{Topic: topic, Msg: msg}); err == nil {
			sent++
		}
	}
	return sent
}

func (b *Broker) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s := &session{id: uuid.NewString(), conn: conn, topics: make(map[string]bool)}
	b.mu.Lock()
	b.sessions[s.id] = s
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.sessions, s.id)
		b.mu.Unlock()
		conn.Close()
	}()

	for {
		_, body, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var frame contracts.ControlFrame
		if err := json.Unmarshal(body, &frame); err != nil {
			continue
		}

		b.mu.Lock()
		b.frames = append(b.frames, frame)
		switch frame.Op {
		case contracts.OpSubscribe:
			s.topics[frame.Topic] = true
		case contracts.OpUnsubscribe:
			delete(s.topics, frame.Topic)
		}
		b.mu.Unlock()

		if frame.Op == contracts.OpPublish {
			b.Publish(frame.Topic, frame.Msg)
		}
	}
}
