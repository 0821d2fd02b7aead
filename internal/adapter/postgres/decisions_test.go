package postgres_test

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/devusermeta/nubankx-sub000/internal/adapter/postgres"
	"github.com/devusermeta/nubankx-sub000/internal/config"
	"github.com/devusermeta/nubankx-sub000/internal/port/decisionlog"
	"github.com/devusermeta/nubankx-sub000/internal/port/decisionlog/storetest"
)

// setupPool connects to DATABASE_URL, runs all migrations, and empties the
// decision table. Skips when no database is configured.
func setupPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	if err := postgres.RunMigrations(ctx, dsn); err != nil {
		t.Fatalf("migrations: %v", err)
	}

	cfg := config.Defaults().Postgres
	cfg.DSN = dsn
	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func TestDecisionStoreCompliance(t *testing.T) {
	pool := setupPool(t)
	run := 0
	storetest.Run(t, func(t *testing.T) decisionlog.Store {
		// TRUNCATE bypasses the append-only trigger, which only guards UPDATE and DELETE.
		if _, err := pool.Exec(context.Background(), "TRUNCATE agent_decisions"); err != nil {
			t.Fatal(err)
		}
		run++
		return postgres.NewDecisionStore(pool)
	})
	if run == 0 {
		t.Fatal("suite never requested a store")
	}
}

func TestDecisionsAreAppendOnly(t *testing.T) {
	pool := setupPool(t)
	ctx := context.Background()
	id := fmt.Sprintf("immutable-%d", os.Getpid())
	if _, err := pool.Exec(ctx,
		`INSERT INTO agent_decisions (request_id, correlation_id, intent, outcome, ts) VALUES ($1, 'c', 'UNKNOWN', 'FAILURE', now())`, id); err != nil {
		t.Fatal(err)
	}
	if _, err := pool.Exec(ctx, `UPDATE agent_decisions SET outcome = 'SUCCESS' WHERE request_id = $1`, id); err == nil {
		t.Fatal("update should be rejected")
	}
	if _, err := pool.Exec(ctx, `DELETE FROM agent_decisions WHERE request_id = $1`, id); err == nil {
		t.Fatal("delete should be rejected")
	}
}

func TestMigrationVersion(t *testing.T) {
	setupPool(t)
	v, err := postgres.MigrationVersion(context.Background(), os.Getenv("DATABASE_URL"))
	if err != nil {
		t.Fatal(err)
	}
	if v < 2 {
		t.Fatalf("expected version >= 2, got %d", v)
	}
}
