package service

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/devusermeta/nubankx-sub000/internal/domain"
	"github.com/devusermeta/nubankx-sub000/internal/domain/agent"
)

// Directory maps capabilities to registered agent endpoints and tracks
// their liveness. Lookups return copies.
type Directory struct {
	mu        sync.RWMutex
	agents    map[string]*agent.Record
	retention time.Duration
	now       func() time.Time
}

// NewDirectory creates an empty directory. REMOVED records are kept for
// retention before the health sweep purges them.
func NewDirectory(retention time.Duration) *Directory {
	return &Directory{
		agents:    make(map[string]*agent.Record),
		retention: retention,
		now:       time.Now,
	}
}

// Register adds an agent as ACTIVE. An id that is already live is rejected
// with agent.ErrDuplicate; a REMOVED record with the same id is replaced.
func (d *Directory) Register(reg agent.Registration) (agent.Record, error) {
	if err := reg.Validate(); err != nil {
		return agent.Record{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if existing, ok := d.agents[reg.ID]; ok && existing.Status != agent.StatusRemoved {
		return agent.Record{}, fmt.Errorf("register %s: %w", reg.ID, agent.ErrDuplicate)
	}

	now := d.now()
	rec := &agent.Record{
		ID:            reg.ID,
		Capabilities:  reg.Capabilities,
		Endpoint:      reg.Endpoint,
		Status:        agent.StatusActive,
		LastHeartbeat: now,
		RegisteredAt:  now,
	}
	d.agents[reg.ID] = rec

	slog.Info("agent registered", "agent_id", rec.ID, "capabilities", rec.Capabilities, "endpoint", rec.Endpoint)
	return rec.Clone(), nil
}

// Deregister marks the agent REMOVED. It reports whether a live record changed;
// unknown or already removed ids are a no-op.
func (d *Directory) Deregister(agentID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, ok := d.agents[agentID]
	if !ok || rec.Status == agent.StatusRemoved {
		slog.Debug("deregister ignored", "agent_id", agentID, "error", agent.ErrUnknown)
		return false
	}
	rec.Status = agent.StatusRemoved
	rec.RemovedAt = d.now()
	slog.Info("agent deregistered", "agent_id", agentID)
	return true
}

// Heartbeat refreshes the agent's liveness and revives a SUSPECTED record.
// It returns false without changing state for unknown or REMOVED agents.
func (d *Directory) Heartbeat(agentID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, ok := d.agents[agentID]
	if !ok || rec.Status == agent.StatusRemoved {
		return false
	}
	rec.LastHeartbeat = d.now()
	if rec.Status == agent.StatusSuspected {
		rec.Status = agent.StatusActive
		slog.Info("agent recovered", "agent_id", agentID)
	}
	return true
}

// Resolve returns the ACTIVE agents advertising capability, oldest
// registration first. The result is empty, not nil-with-error, when none match.
func (d *Directory) Resolve(capability string) []agent.Record {
	d.mu.RLock()
	out := make([]agent.Record, 0, 2)
	for _, rec := range d.agents {
		if rec.Status == agent.StatusActive && rec.HasCapability(capability) {
			out = append(out, rec.Clone())
		}
	}
	d.mu.RUnlock()

	sortByRegistration(out)
	return out
}

// Get returns a live record by id.
func (d *Directory) Get(agentID string) (agent.Record, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rec, ok := d.agents[agentID]
	if !ok || rec.Status == agent.StatusRemoved {
		return agent.Record{}, fmt.Errorf("agent %s: %w", agentID, domain.ErrNotFound)
	}
	return rec.Clone(), nil
}

// List returns every record, REMOVED ones only when includeRemoved is set.
func (d *Directory) List(includeRemoved bool) []agent.Record {
	d.mu.RLock()
	out := make([]agent.Record, 0, len(d.agents))
	for _, rec := range d.agents {
		if includeRemoved || rec.Status != agent.StatusRemoved {
			out = append(out, rec.Clone())
		}
	}
	d.mu.RUnlock()

	sortByRegistration(out)
	return out
}

// Transition describes one liveness change made by a sweep.
type Transition struct {
	AgentID string       `json:"agent_id"`
	From    agent.Status `json:"from"`
	To      agent.Status `json:"to"`
}

// expire applies one timeout step to every record and purges REMOVED records
// past retention. Only the HealthMonitor calls it.
func (d *Directory) expire(soft, hard time.Duration) (changes []Transition, purged int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for id, rec := range d.agents {
		silent := now.Sub(rec.LastHeartbeat)
		switch rec.Status {
		case agent.StatusActive:
			if silent > soft {
				rec.Status = agent.StatusSuspected
				changes = append(changes, Transition{AgentID: id, From: agent.StatusActive, To: agent.StatusSuspected})
			}
		case agent.StatusSuspected:
			if silent > hard {
				rec.Status = agent.StatusRemoved
				rec.RemovedAt = now
				changes = append(changes, Transition{AgentID: id, From: agent.StatusSuspected, To: agent.StatusRemoved})
			}
		case agent.StatusRemoved:
			if d.retention > 0 && now.Sub(rec.RemovedAt) > d.retention {
				delete(d.agents, id)
				purged++
			}
		}
	}
	slices.SortFunc(changes, func(a, b Transition) int { return cmp.Compare(a.AgentID, b.AgentID) })
	return changes, purged
}

func sortByRegistration(recs []agent.Record) {
	slices.SortFunc(recs, func(a, b agent.Record) int {
		if c := a.RegisteredAt.Compare(b.RegisteredAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
