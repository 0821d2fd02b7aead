// Package decision defines the append-only audit record written for every dispatch.
package decision

import (
	"cmp"
	"slices"
	"time"
)

// Outcome is the terminal result of a dispatch.
type Outcome string

const (
	OutcomeSuccess          Outcome = "SUCCESS"
	OutcomeFailure          Outcome = "FAILURE"
	OutcomeCircuitOpen      Outcome = "CIRCUIT_OPEN"
	OutcomeNoAgentAvailable Outcome = "NO_AGENT_AVAILABLE"
)

// Record is one routing decision.
type Record struct {
	RequestID        string    `json:"request_id"`
	CorrelationID    string    `json:"correlation_id"`
	Intent           string    `json:"intent"`
	TargetCapability string    `json:"target_capability,omitempty"`
	AgentID          *string   `json:"agent_id"`
	Outcome          Outcome   `json:"outcome"`
	ErrorKind        string    `json:"error_kind,omitempty"`
	Error            string    `json:"error,omitempty"`
	Attempts         int       `json:"attempts"`
	LatencyMS        int64     `json:"latency_ms"`
	Timestamp        time.Time `json:"timestamp"`
}

// SortChronological orders records by timestamp, then request id.
func SortChronological(recs []Record) {
	slices.SortStableFunc(recs, func(a, b Record) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(a.RequestID, b.RequestID)
	})
}
