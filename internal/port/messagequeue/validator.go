package messagequeue

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Validate checks whether data is valid JSON conforming to the schema
// associated with the given subject. Unknown subjects pass validation.
func Validate(subject string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON on subject %s", subject)
	}

	switch {
	case strings.HasPrefix(subject, SubjectAgentHeartbeat+"."):
		var p HeartbeatPayload
		return decode(subject, data, &p)
	case subject == SubjectAgentRegister:
		var p RegisterPayload
		if err := decode(subject, data, &p); err != nil {
			return err
		}
		if p.AgentID == "" || p.Endpoint == "" || len(p.Capabilities) == 0 {
			return fmt.Errorf("schema validation failed for %s: agent_id, endpoint and capabilities are required", subject)
		}
	case subject == SubjectAgentDeregister:
		var p DeregisterPayload
		if err := decode(subject, data, &p); err != nil {
			return err
		}
		if p.AgentID == "" {
			return fmt.Errorf("schema validation failed for %s: agent_id is required", subject)
		}
	case subject == SubjectDecisionRecorded:
		var p DecisionRecordedPayload
		if err := decode(subject, data, &p); err != nil {
			return err
		}
		if p.RequestID == "" {
			return fmt.Errorf("schema validation failed for %s: request_id is required", subject)
		}
	}
	return nil
}

func decode(subject string, data []byte, target any) error {
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("schema validation failed for %s: %w", subject, err)
	}
	return nil
}

// HeartbeatAgentID returns the agent id addressed by a heartbeat subject.
func HeartbeatAgentID(subject string) (string, bool) {
	id, ok := strings.CutPrefix(subject, SubjectAgentHeartbeat+".")
	return id, ok && id != ""
}
