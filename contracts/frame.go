package contracts

import (
	"encoding/json"
	"fmt"
)

// Op is a control channel operation
type Op string

const (
	OpAdvertise   Op = "advertise"
	OpUnadvertise Op = "unadvertise"
	OpSubscribe   Op = "subscribe"
	OpUnsubscribe Op = "unsubscribe"
	OpPublish     Op = "publish"
)

// Valid reports whether op is one of the known control operations
func (o Op) Valid() bool {
	switch o {
	case OpAdvertise, OpUnadvertise, OpSubscribe, OpUnsubscribe, OpPublish:
		return true
	}
	return false
}

// ControlFrame is sent on the control channel to the remote broker.
// Type is set for advertise and subscribe, Msg for publish, ID for
// advertise and unadvertise.
type ControlFrame struct {
	Op    Op              `json:"op"`
	ID    string          `json:"id,omitempty"`
	Topic string          `json:"topic"`
	Type  string          `json:"type,omitempty"`
	Msg   json.RawMessage `json:"msg,omitempty"`
}

// Validate checks the op specific fields of the frame
func (f ControlFrame) Validate() error {
	if !f.Op.Valid() {
		return fmt.Errorf("invalid control op %q", f.Op)
	}
	if f.Topic == "" {
		return fmt.Errorf("%s frame: topic cannot be empty", f.Op)
	}
	switch f.Op {
	case OpAdvertise, OpSubscribe:
		if f.Type == "" {
			return fmt.Errorf("%s frame for %s: type cannot be empty", f.Op, f.Topic)
		}
	case OpPublish:
		if len(f.Msg) == 0 {
			return fmt.Errorf("publish frame for %s: msg cannot be empty", f.Topic)
		}
	}
	return nil
}

// AdvertiseFrame builds an advertise frame
func AdvertiseFrame(id string, topic Topic) ControlFrame {
	return ControlFrame{Op: OpAdvertise, ID: id, Topic: topic.Name, Type: topic.Type}
}

// UnadvertiseFrame builds an unadvertise frame
func UnadvertiseFrame(id string, topic Topic) ControlFrame {
	return ControlFrame{Op: OpUnadvertise, ID: id, Topic: topic.Name}
}

// SubscribeFrame builds a subscribe frame
func SubscribeFrame(topic Topic) ControlFrame {
	return ControlFrame{Op: OpSubscribe, Topic: topic.Name, Type: topic.Type}
}

// UnsubscribeFrame builds an unsubscribe frame
func UnsubscribeFrame(topic Topic) ControlFrame {
	return ControlFrame{Op: OpUnsubscribe, Topic: topic.Name}
}

// PublishFrame builds a publish frame
func PublishFrame(topic Topic, msg json.RawMessage) ControlFrame {
	return ControlFrame{Op: OpPublish, Topic: topic.Name, Msg: msg}
}

// DataFrame is an inbound message from the remote broker
type DataFrame struct {
	Topic string          `json:"topic"`
	Msg   json.RawMessage `json:"msg"`
}

// DecodeDataFrame parses an inbound frame body
func DecodeDataFrame(body []byte) (DataFrame, error) {
	var frame DataFrame
	if err := json.Unmarshal(body, &frame); err != nil {
		return DataFrame{}, fmt.Errorf("failed to decode data frame: %w", err)
	}
	if frame.Topic == "" {
		return DataFrame{}, fmt.Errorf("data frame has no topic")
	}
	return frame, nil
}
