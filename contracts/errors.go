package contracts

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrLinkClosed is returned when the control channel was closed locally
	ErrLinkClosed = errors.New("gdp: control channel is closed")
	// ErrNotConnected is returned when a frame is sent before connect
	ErrNotConnected = errors.New("gdp: control channel not connected")
	// ErrLinkLost is the cause recorded when the remote end drops the channel
	ErrLinkLost = errors.New("gdp: control channel lost")
	// ErrUnknownType is wrapped by ConversionError for unregistered types
	ErrUnknownType = errors.New("gdp: unknown message type")
	// ErrHandleReleased is returned when publishing on a released handle
	ErrHandleReleased = errors.New("gdp: handle already released")
)

// ConnectionError means the control channel is unreachable or dropped.
// It is fatal to the whole bridge.
type ConnectionError struct {
	Op        string    // Operation that failed
	Address   string    // Remote endpoint
	Err       error     // Underlying error
	Timestamp time.Time // When the error occurred
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("gdp connection error: %s %s: %v", e.Op, e.Address, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ConversionError means a single message failed payload translation.
// The message is dropped; route state is unaffected.
type ConversionError struct {
	Direction Direction // Which way the message was travelling
	Type      string    // Type descriptor of the message
	Err       error     // Underlying error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("gdp conversion error: %s message of type %s: %v", e.Direction, e.Type, e.Err)
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

// DoubleReleaseError is returned when a handle or callback is released twice.
// It is surfaced to the caller and treated as a no-op.
type DoubleReleaseError struct {
	Kind  string // "publication" or "subscription"
	Topic string
}

func (e *DoubleReleaseError) Error() string {
	return fmt.Sprintf("gdp: %s for topic %s already released", e.Kind, e.Topic)
}

// UnknownTypeWarning is emitted at route setup when the type registry does
// not know a topic's type descriptor. The route is still created.
type UnknownTypeWarning struct {
	Topic     string
	Type      string
	Direction Direction
}

func (w UnknownTypeWarning) Error() string {
	return fmt.Sprintf("gdp: type %s of %s topic %s could not be found", w.Type, w.Direction, w.Topic)
}

// IsFatal reports whether err takes the whole bridge down
func IsFatal(err error) bool {
	var connErr *ConnectionError
	return errors.As(err, &connErr)
}

// IsDoubleRelease reports whether err is a DoubleReleaseError
func IsDoubleRelease(err error) bool {
	var drErr *DoubleReleaseError
	return errors.As(err, &drErr)
}
