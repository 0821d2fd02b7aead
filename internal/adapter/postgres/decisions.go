package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/devusermeta/nubankx-sub000/internal/domain"
	"github.com/devusermeta/nubankx-sub000/internal/domain/decision"
)

// DecisionStore implements decisionlog.Store using PostgreSQL.
type DecisionStore struct {
	pool *pgxpool.Pool
}

// NewDecisionStore creates a DecisionStore backed by the given connection pool.
func NewDecisionStore(pool *pgxpool.Pool) *DecisionStore {
	return &DecisionStore{pool: pool}
}

func (s *DecisionStore) Append(ctx context.Context, rec *decision.Record) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO agent_decisions
		 (request_id, correlation_id, intent, target_capability, agent_id, outcome, error_kind, error, attempts, latency_ms, ts)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.RequestID, rec.CorrelationID, rec.Intent, rec.TargetCapability, rec.AgentID,
		string(rec.Outcome), rec.ErrorKind, rec.Error, rec.Attempts, rec.LatencyMS, rec.Timestamp)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("decision %s: %w", rec.RequestID, domain.ErrConflict)
		}
		return fmt.Errorf("append decision %s: %w", rec.RequestID, err)
	}
	return nil
}

func (s *DecisionStore) ListByCorrelation(ctx context.Context, correlationID string) ([]decision.Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT request_id, correlation_id, intent, target_capability, agent_id, outcome, error_kind, error, attempts, latency_ms, ts
		 FROM agent_decisions WHERE correlation_id = $1 ORDER BY ts, request_id`, correlationID)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer rows.Close()

	out := []decision.Record{}
	for rows.Next() {
		r, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanDecision(row scannable) (decision.Record, error) {
	var (
		r       decision.Record
		outcome string
	)
	if err := row.Scan(&r.RequestID, &r.CorrelationID, &r.Intent, &r.TargetCapability, &r.AgentID,
		&outcome, &r.ErrorKind, &r.Error, &r.Attempts, &r.LatencyMS, &r.Timestamp); err != nil {
		return r, fmt.Errorf("scan decision: %w", err)
	}
	r.Outcome = decision.Outcome(outcome)
	r.Timestamp = r.Timestamp.UTC()
	return r, nil
}
