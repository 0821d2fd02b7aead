// Package sqlite provides an embedded decision log store on modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/devusermeta/nubankx-sub000/internal/config"
	"github.com/devusermeta/nubankx-sub000/internal/domain"
	"github.com/devusermeta/nubankx-sub000/internal/domain/decision"
)

const schema = `CREATE TABLE IF NOT EXISTS agent_decisions (
	request_id        TEXT PRIMARY KEY,
	correlation_id    TEXT NOT NULL,
	intent            TEXT NOT NULL,
	target_capability TEXT NOT NULL,
	agent_id          TEXT,
	outcome           TEXT NOT NULL,
	error_kind        TEXT NOT NULL DEFAULT '',
	error             TEXT NOT NULL DEFAULT '',
	attempts          INTEGER NOT NULL DEFAULT 0,
	latency_ms        INTEGER NOT NULL DEFAULT 0,
	ts                TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_agent_decisions_correlation ON agent_decisions(correlation_id, ts);`

// DecisionStore implements decisionlog.Store on a single SQLite file.
type DecisionStore struct {
	db *sql.DB
}

// Open creates the database file and schema if missing.
func Open(ctx context.Context, cfg config.SQLite) (*DecisionStore, error) {
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := "file:" + cfg.Path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &DecisionStore{db: db}, nil
}

// Close closes the database.
func (s *DecisionStore) Close() error {
	return s.db.Close()
}

// Append implements decisionlog.Store.
func (s *DecisionStore) Append(ctx context.Context, rec *decision.Record) error {
	var agentID any
	if rec.AgentID != nil {
		agentID = *rec.AgentID
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agent_decisions
		 (request_id, correlation_id, intent, target_capability, agent_id, outcome, error_kind, error, attempts, latency_ms, ts)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RequestID, rec.CorrelationID, rec.Intent, rec.TargetCapability, agentID,
		string(rec.Outcome), rec.ErrorKind, rec.Error, rec.Attempts, rec.LatencyMS,
		rec.Timestamp.UTC().Format(time.RFC3339Nano))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("decision %s: %w", rec.RequestID, domain.ErrConflict)
		}
		return fmt.Errorf("append decision %s: %w", rec.RequestID, err)
	}
	return nil
}

// ListByCorrelation implements decisionlog.Store.
func (s *DecisionStore) ListByCorrelation(ctx context.Context, correlationID string) ([]decision.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT request_id, correlation_id, intent, target_capability, agent_id, outcome, error_kind, error, attempts, latency_ms, ts
		 FROM agent_decisions WHERE correlation_id = ? ORDER BY ts, request_id`, correlationID)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer rows.Close()

	out := []decision.Record{}
	for rows.Next() {
		var (
			r       decision.Record
			agentID sql.NullString
			outcome string
			ts      string
		)
		if err := rows.Scan(&r.RequestID, &r.CorrelationID, &r.Intent, &r.TargetCapability, &agentID,
			&outcome, &r.ErrorKind, &r.Error, &r.Attempts, &r.LatencyMS, &ts); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		if agentID.Valid {
			id := agentID.String
			r.AgentID = &id
		}
		r.Outcome = decision.Outcome(outcome)
		if r.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parse timestamp %q: %w", ts, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY || se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}
