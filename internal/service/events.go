package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/devusermeta/nubankx-sub000/internal/domain/decision"
	"github.com/devusermeta/nubankx-sub000/internal/port/messagequeue"
)

// ErrFeedUnavailable is returned while the feed breaker is open.
var ErrFeedUnavailable = errors.New("decision feed unavailable")

// DecisionFeed publishes recorded decisions to the message queue. A breaker
// stops publishing while the broker is failing so dispatches do not wait on it.
type DecisionFeed struct {
	queue   messagequeue.Queue
	subject string
	breaker *gobreaker.CircuitBreaker[struct{}]
}

// NewDecisionFeed creates a feed publishing on subject.
func NewDecisionFeed(queue messagequeue.Queue, subject string, maxFailures uint32, cooldown time.Duration) *DecisionFeed {
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "decision-feed",
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return &DecisionFeed{queue: queue, subject: subject, breaker: cb}
}

// Publish sends rec on the feed subject.
func (f *DecisionFeed) Publish(ctx context.Context, rec *decision.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal decision: %w", err)
	}
	_, err = f.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, f.queue.Publish(ctx, f.subject, data)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", ErrFeedUnavailable, err)
	}
	return err
}

// State reports the feed breaker state.
func (f *DecisionFeed) State() gobreaker.State {
	return f.breaker.State()
}
