// Package transport defines the port for delivering one invocation attempt to an agent.
package transport

import (
	"context"
	"encoding/json"

	"github.com/devusermeta/nubankx-sub000/internal/domain/invocation"
)

// Transport performs one network attempt. Failures must be *invocation.Error
// values so the caller can tell transient from non-retryable ones.
type Transport interface {
	Call(ctx context.Context, endpoint string, payload *invocation.Payload) (json.RawMessage, error)
}

// Func adapts a function to Transport.
type Func func(ctx context.Context, endpoint string, payload *invocation.Payload) (json.RawMessage, error)

// Call implements Transport.
func (f Func) Call(ctx context.Context, endpoint string, payload *invocation.Payload) (json.RawMessage, error) {
	return f(ctx, endpoint, payload)
}
