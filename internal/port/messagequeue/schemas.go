package messagequeue

// HeartbeatPayload is the schema for agents.heartbeat.{agent_id} messages.
// AgentID may be omitted, in which case the subject suffix is used.
type HeartbeatPayload struct {
	AgentID string `json:"agent_id,omitempty"`
}

// RegisterPayload is the schema for agents.register messages.
type RegisterPayload struct {
	AgentID      string   `json:"agent_id"`
	Capabilities []string `json:"capabilities"`
	Endpoint     string   `json:"endpoint"`
}

// DeregisterPayload is the schema for agents.deregister messages.
type DeregisterPayload struct {
	AgentID string `json:"agent_id"`
}

// DecisionRecordedPayload is the schema for decisions.recorded messages.
type DecisionRecordedPayload struct {
	RequestID        string  `json:"request_id"`
	CorrelationID    string  `json:"correlation_id"`
	Intent           string  `json:"intent"`
	TargetCapability string  `json:"target_capability,omitempty"`
	AgentID          *string `json:"agent_id"`
	Outcome          string  `json:"outcome"`
	Attempts         int     `json:"attempts"`
	LatencyMS        int64   `json:"latency_ms"`
}
