// Package memory provides an in-process decision log store.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/devusermeta/nubankx-sub000/internal/domain"
	"github.com/devusermeta/nubankx-sub000/internal/domain/decision"
)

// DecisionStore keeps decisions in memory, indexed by correlation id.
type DecisionStore struct {
	mu            sync.RWMutex
	byRequest     map[string]struct{}
	byCorrelation map[string][]decision.Record
}

// NewDecisionStore creates an empty store.
func NewDecisionStore() *DecisionStore {
	return &DecisionStore{
		byRequest:     make(map[string]struct{}),
		byCorrelation: make(map[string][]decision.Record),
	}
}

func cloneDecision(rec *decision.Record) decision.Record {
	c := *rec
	if rec.AgentID != nil {
		id := *rec.AgentID
		c.AgentID = &id
	}
	return c
}

// Append implements decisionlog.Store.
func (s *DecisionStore) Append(_ context.Context, rec *decision.Record) error {
	c := cloneDecision(rec)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.byRequest[c.RequestID]; dup {
		return fmt.Errorf("decision %s: %w", c.RequestID, domain.ErrConflict)
	}
	s.byRequest[c.RequestID] = struct{}{}
	s.byCorrelation[c.CorrelationID] = append(s.byCorrelation[c.CorrelationID], c)
	return nil
}

// ListByCorrelation implements decisionlog.Store.
func (s *DecisionStore) ListByCorrelation(_ context.Context, correlationID string) ([]decision.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	src := s.byCorrelation[correlationID]
	out := make([]decision.Record, len(src))
	for i := range src {
		out[i] = cloneDecision(&src[i])
	}
	return out, nil
}
