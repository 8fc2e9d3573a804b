package broker

import (
	"context"
	"encoding/json"
)

// Callback receives inbound messages of a subscribed remote topic.
// Registrations are identified by the CallbackID returned on acquire, so the
// same callback may be registered more than once.
type Callback interface {
	Handle(ctx context.Context, msg json.RawMessage)
}

// FuncCallback adapts a function to Callback
type FuncCallback struct {
	fn func(ctx context.Context, msg json.RawMessage)
}

// NewCallback wraps fn. Each call returns a distinct callback.
func NewCallback(fn func(ctx context.Context, msg json.RawMessage)) *FuncCallback {
	return &FuncCallback{fn: fn}
}

// Handle implements Callback
func (f *FuncCallback) Handle(ctx context.Context, msg json.RawMessage) {
	f.fn(ctx, msg)
}
