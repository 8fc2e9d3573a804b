package remote

import (
	"context"
	"encoding/json"
	"io"

	"github.com/glimte/gdp-bridge/contracts"
)

// InboundHandler receives every inbound data frame
type InboundHandler func(ctx context.Context, topic string, msg json.RawMessage)

// Link owns the control channel to the remote broker.
//
// All SendControl calls are serialized onto one logical channel; concurrent
// senders never interleave partial frames. SendControl only waits for the
// transport's own round trip, never for a domain level acknowledgment.
type Link interface {
	io.Closer

	// Connect establishes the control channel. It fails with a
	// *contracts.ConnectionError if the endpoint is unreachable.
	Connect(ctx context.Context, address string) error

	// SendControl transmits one control frame
	SendControl(ctx context.Context, frame contracts.ControlFrame) error

	// OnMessage registers the single dispatcher for inbound data frames.
	// A later call replaces the earlier handler.
	OnMessage(handler InboundHandler)

	// Done is closed when the channel is lost or closed
	Done() <-chan struct{}

	// Err returns why Done was closed, nil while connected or after a
	// local Close
	Err() error

	// IsConnected returns connection status
	IsConnected() bool
}
