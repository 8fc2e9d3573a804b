package rabbitmq

import (
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ControlExchangeType is the exchange kind used for control frames
const ControlExchangeType = "direct"

// DeclareControlExchange declares the durable exchange the broker consumes
// control frames from
func DeclareControlExchange(ch *amqp.Channel, name string) error {
	if err := ch.ExchangeDeclare(name, ControlExchangeType, true, false, false, false, nil); err != nil {
		return &TopologyError{
			Component: "exchange",
			Name:      name,
			Op:        "declare",
			Err:       err,
			Timestamp: time.Now(),
		}
	}
	return nil
}

// DeclareReplyQueue declares an exclusive auto-delete queue that receives
// data frames for one session
func DeclareReplyQueue(ch *amqp.Channel, name string) (amqp.Queue, error) {
	q, err := ch.QueueDeclare(name, false, true, true, false, nil)
	if err != nil {
		return amqp.Queue{}, &TopologyError{
			Component: "queue",
			Name:      name,
			Op:        "declare",
			Err:       fmt.Errorf("%w: %v", ErrTopologyDeclarationFailed, err),
			Timestamp: time.Now(),
		}
	}
	return q, nil
}
