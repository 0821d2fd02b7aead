package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/devusermeta/nubankx-sub000/internal/port/broadcast"
)

// HealthMonitor periodically demotes agents whose heartbeats stopped:
// ACTIVE to SUSPECTED after the soft timeout, SUSPECTED to REMOVED after
// the hard timeout. A record moves at most one step per sweep.
type HealthMonitor struct {
	dir      *Directory
	interval time.Duration
	soft     time.Duration
	hard     time.Duration
	hub      broadcast.Broadcaster
}

// NewHealthMonitor creates a monitor for dir.
func NewHealthMonitor(dir *Directory, interval, soft, hard time.Duration) *HealthMonitor {
	return &HealthMonitor{dir: dir, interval: interval, soft: soft, hard: hard}
}

// SetBroadcaster pushes every liveness transition to live observers.
func (m *HealthMonitor) SetBroadcaster(b broadcast.Broadcaster) { m.hub = b }

// Run sweeps on every tick until ctx is cancelled.
func (m *HealthMonitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	slog.Info("health monitor started", "interval", m.interval, "soft_timeout", m.soft, "hard_timeout", m.hard)
	for {
		select {
		case <-ctx.Done():
			slog.Info("health monitor stopped")
			return nil
		case <-ticker.C:
			m.sweep(ctx)
		}
	}
}

// Sweep performs one pass and returns the transitions it made.
func (m *HealthMonitor) Sweep() []Transition {
	return m.sweep(context.Background())
}

func (m *HealthMonitor) sweep(ctx context.Context) []Transition {
	changes, purged := m.dir.expire(m.soft, m.hard)
	for _, c := range changes {
		slog.InfoContext(ctx, "agent liveness changed", "agent_id", c.AgentID, "from", c.From, "to", c.To)
		if m.hub != nil {
			m.hub.BroadcastEvent(ctx, broadcast.EventAgentStatus, c)
		}
	}
	if purged > 0 {
		slog.Debug("purged removed agents", "count", purged)
	}
	return changes
}
