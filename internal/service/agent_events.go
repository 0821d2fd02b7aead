package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/devusermeta/nubankx-sub000/internal/domain/agent"
	"github.com/devusermeta/nubankx-sub000/internal/port/messagequeue"
)

// AgentEvents applies agent lifecycle messages from the queue to the directory.
type AgentEvents struct {
	queue messagequeue.Queue
	dir   *Directory
}

// NewAgentEvents creates a subscriber feeding dir.
func NewAgentEvents(queue messagequeue.Queue, dir *Directory) *AgentEvents {
	return &AgentEvents{queue: queue, dir: dir}
}

// Start subscribes to heartbeat, register and deregister subjects. The
// returned function cancels every subscription.
func (e *AgentEvents) Start(ctx context.Context) (func(), error) {
	subs := []struct {
		subject string
		handler messagequeue.Handler
	}{
		{messagequeue.SubjectAgentHeartbeat + ".*", e.handleHeartbeat},
		{messagequeue.SubjectAgentRegister, e.handleRegister},
		{messagequeue.SubjectAgentDeregister, e.handleDeregister},
	}

	cancels := make([]func(), 0, len(subs))
	stop := func() {
		for _, c := range cancels {
			c()
		}
	}
	for _, s := range subs {
		cancel, err := e.queue.Subscribe(ctx, s.subject, s.handler)
		if err != nil {
			stop()
			return nil, fmt.Errorf("subscribe %s: %w", s.subject, err)
		}
		cancels = append(cancels, cancel)
	}
	slog.Info("agent event subscriptions started")
	return stop, nil
}

func (e *AgentEvents) handleHeartbeat(ctx context.Context, subject string, data []byte) error {
	if err := messagequeue.Validate(subject, data); err != nil {
		slog.WarnContext(ctx, "dropping invalid heartbeat", "subject", subject, "error", err)
		return nil
	}
	id, ok := messagequeue.HeartbeatAgentID(subject)
	if !ok {
		return nil
	}
	if !e.dir.Heartbeat(id) {
		slog.DebugContext(ctx, "heartbeat rejected", "agent_id", id)
	}
	return nil
}

func (e *AgentEvents) handleRegister(ctx context.Context, subject string, data []byte) error {
	if err := messagequeue.Validate(subject, data); err != nil {
		slog.WarnContext(ctx, "dropping invalid registration", "error", err)
		return nil
	}
	var p messagequeue.RegisterPayload
	_ = json.Unmarshal(data, &p)

	_, err := e.dir.Register(agent.Registration{ID: p.AgentID, Capabilities: p.Capabilities, Endpoint: p.Endpoint})
	switch {
	case errors.Is(err, agent.ErrDuplicate):
		// Agents re-announce on restart; a live record only needs a heartbeat.
		e.dir.Heartbeat(p.AgentID)
	case err != nil:
		slog.WarnContext(ctx, "registration rejected", "agent_id", p.AgentID, "error", err)
	}
	return nil
}

func (e *AgentEvents) handleDeregister(ctx context.Context, subject string, data []byte) error {
	if err := messagequeue.Validate(subject, data); err != nil {
		slog.WarnContext(ctx, "dropping invalid deregistration", "error", err)
		return nil
	}
	var p messagequeue.DeregisterPayload
	_ = json.Unmarshal(data, &p)
	e.dir.Deregister(p.AgentID)
	return nil
}
