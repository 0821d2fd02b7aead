package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/devusermeta/nubankx-sub000/internal/domain/decision"
	"github.com/devusermeta/nubankx-sub000/internal/port/broadcast"
	"github.com/devusermeta/nubankx-sub000/internal/port/decisionlog"
)

// DecisionLog is the append-only audit log of routing decisions.
type DecisionLog struct {
	store decisionlog.Store
	feed  *DecisionFeed
	hub   broadcast.Broadcaster
}

// NewDecisionLog creates a log over store.
func NewDecisionLog(store decisionlog.Store) *DecisionLog {
	return &DecisionLog{store: store}
}

// SetFeed attaches the message queue feed.
func (l *DecisionLog) SetFeed(f *DecisionFeed) { l.feed = f }

// SetBroadcaster attaches live observers.
func (l *DecisionLog) SetBroadcaster(b broadcast.Broadcaster) { l.hub = b }

// Record appends rec, then fans it out. Fan-out failures are logged and
// never fail the append.
func (l *DecisionLog) Record(ctx context.Context, rec *decision.Record) error {
	if err := l.store.Append(ctx, rec); err != nil {
		return fmt.Errorf("append decision %s: %w", rec.RequestID, err)
	}
	if l.feed != nil {
		if err := l.feed.Publish(ctx, rec); err != nil {
			slog.WarnContext(ctx, "decision feed publish failed", "request_id", rec.RequestID, "error", err)
		}
	}
	if l.hub != nil {
		l.hub.BroadcastEvent(ctx, broadcast.EventDecisionRecorded, rec)
	}
	return nil
}

// Query returns every decision of a conversation in chronological order.
func (l *DecisionLog) Query(ctx context.Context, correlationID string) ([]decision.Record, error) {
	recs, err := l.store.ListByCorrelation(ctx, correlationID)
	if err != nil {
		return nil, fmt.Errorf("query decisions %s: %w", correlationID, err)
	}
	decision.SortChronological(recs)
	return recs, nil
}
