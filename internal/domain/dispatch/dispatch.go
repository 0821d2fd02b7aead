// Package dispatch defines the request-scoped dispatch state and the
// outcome returned to callers.
package dispatch

import (
	"encoding/json"
	"errors"

	"github.com/devusermeta/nubankx-sub000/internal/domain/decision"
	"github.com/devusermeta/nubankx-sub000/internal/domain/intent"
)

// ErrNoAgentAvailable is reported when no ACTIVE agent has the capability.
var ErrNoAgentAvailable = errors.New("no agent available")

// Request carries one dispatch through the pipeline.
type Request struct {
	RequestID     string
	CorrelationID string
	UserText      string
	Intent        intent.Label
	Capability    string
	Attempts      int
}

// Outcome mirrors the decision record and carries the agent reply on success.
type Outcome struct {
	RequestID     string           `json:"request_id"`
	CorrelationID string           `json:"correlation_id"`
	Intent        intent.Label     `json:"intent"`
	Capability    string           `json:"capability,omitempty"`
	AgentID       *string          `json:"agent_id"`
	Outcome       decision.Outcome `json:"outcome"`
	Response      json.RawMessage  `json:"response,omitempty"`
	ErrorKind     string           `json:"error_kind,omitempty"`
	Error         string           `json:"error,omitempty"`
	Message       string           `json:"message,omitempty"`
	Attempts      int              `json:"attempts"`
	LatencyMS     int64            `json:"latency_ms"`
}

// OK reports whether the agent answered.
func (o *Outcome) OK() bool {
	return o.Outcome == decision.OutcomeSuccess
}
