// Package broadcast defines the port for pushing live events to connected observers.
package broadcast

import "context"

// Event types pushed to observers.
const (
	EventDecisionRecorded = "decision.recorded"
	EventAgentStatus      = "agent.status"
)

// Broadcaster sends real-time events to all connected clients.
type Broadcaster interface {
	// BroadcastEvent sends a typed event to all connected clients.
	BroadcastEvent(ctx context.Context, eventType string, payload any)
}
