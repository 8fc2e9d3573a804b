package amqplink

import (
	"context"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// confirmTracker drains publisher confirmations as they arrive and hands
// each one to the send waiting on its delivery tag. Confirmations nobody
// waits for any more are discarded.
type confirmTracker struct {
	mu      sync.Mutex
	waiting map[uint64]chan bool
	done    chan struct{}
}

func newConfirmTracker(confirms <-chan amqp.Confirmation) *confirmTracker {
	t := &confirmTracker{
		waiting: make(map[uint64]chan bool),
		done:    make(chan struct{}),
	}
	go t.run(confirms)
	return t
}

func (t *confirmTracker) run(confirms <-chan amqp.Confirmation) {
	defer close(t.done)

	for c := range confirms {
		t.mu.Lock()
		if w, ok := t.waiting[c.DeliveryTag]; ok {
			delete(t.waiting, c.DeliveryTag)
			w <- c.Ack
		}
		t.mu.Unlock()
	}
}

// expect registers interest in tag; call it before publishing
func (t *confirmTracker) expect(tag uint64) <-chan bool {
	w := make(chan bool, 1)
	t.mu.Lock()
	t.waiting[tag] = w
	t.mu.Unlock()
	return w
}

func (t *confirmTracker) forget(tag uint64) {
	t.mu.Lock()
	delete(t.waiting, tag)
	t.mu.Unlock()
}

// wait blocks until the confirmation of tag arrives. ok is false when the
// channel closed first; ctx errors are returned as err.
func (t *confirmTracker) wait(ctx context.Context, tag uint64, w <-chan bool) (ack, ok bool, err error) {
	select {
	case ack := <-w:
		return ack, true, nil
	case <-t.done:
		// a confirmation may have been delivered just before close
		select {
		case ack := <-w:
			return ack, true, nil
		default:
			return false, false, nil
		}
	case <-ctx.Done():
		t.forget(tag)
		return false, true, ctx.Err()
	}
}
