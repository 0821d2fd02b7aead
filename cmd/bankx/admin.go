package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	"github.com/devusermeta/nubankx-sub000/internal/adapter/postgres"
	"github.com/devusermeta/nubankx-sub000/internal/adapter/sqlite"
	"github.com/devusermeta/nubankx-sub000/internal/config"
	"github.com/devusermeta/nubankx-sub000/internal/middleware"
	"github.com/devusermeta/nubankx-sub000/internal/port/decisionlog"
)

// runAdmin dispatches admin subcommands (hash-key, decisions, migrate).
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp()
		return nil
	}

	switch args[0] {
	case "hash-key":
		return runAdminHashKey(args[1:])
	case "decisions":
		return runAdminDecisions(args[1:])
	case "migrate":
		return runAdminMigrate(args[1:])
	default:
		printAdminHelp()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp() {
	fmt.Fprintf(os.Stderr, `Usage: bankx admin <command> [options]

Commands:
  hash-key    Print the bcrypt hash to set as auth.api_key_hash
  decisions   List the routing decisions of a conversation
  migrate     Apply, roll back or report PostgreSQL migrations
  help        Show this help message

Examples:
  bankx admin hash-key
  bankx admin decisions --correlation-id conv-42
  bankx admin migrate up
  bankx admin migrate down --steps 1
  bankx admin migrate version
`)
}

func runAdminHashKey(args []string) error {
	fs := flag.NewFlagSet("hash-key", flag.ContinueOnError)
	key := fs.String("key", "", "API key (prompted if not provided)") //nolint:gosec // CLI flag
	if err := fs.Parse(args); err != nil {
		return err
	}

	k := *key
	if k == "" {
		var err error
		k, err = promptSecret("API key: ")
		if err != nil {
			return fmt.Errorf("read key: %w", err)
		}
		confirm, err := promptSecret("Confirm API key: ")
		if err != nil {
			return fmt.Errorf("read key: %w", err)
		}
		if k != confirm {
			return fmt.Errorf("keys do not match")
		}
	}
	if k == "" {
		return fmt.Errorf("key must not be empty")
	}

	hash, err := middleware.HashAPIKey(k)
	if err != nil {
		return fmt.Errorf("hash key: %w", err)
	}
	fmt.Println(hash)
	return nil
}

// openAdminStore opens the persistent store named by the config. The
// in-memory store is per process, so there is nothing to inspect.
func openAdminStore(ctx context.Context, cfg *config.Config) (decisionlog.Store, func(), error) {
	switch cfg.Store.Driver {
	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to database: %w", err)
		}
		return postgres.NewDecisionStore(pool), pool.Close, nil
	case "sqlite":
		s, err := sqlite.Open(ctx, cfg.SQLite)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		return s, func() { _ = s.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("store.driver %q has no persistent decisions", cfg.Store.Driver)
	}
}

func runAdminDecisions(args []string) error {
	fs := flag.NewFlagSet("decisions", flag.ContinueOnError)
	corr := fs.String("correlation-id", "", "conversation id (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *corr == "" {
		return fmt.Errorf("--correlation-id is required")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	ctx := context.Background()
	store, cleanup, err := openAdminStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	recs, err := store.ListByCorrelation(ctx, *corr)
	if err != nil {
		return fmt.Errorf("list decisions: %w", err)
	}
	if len(recs) == 0 {
		fmt.Println("No decisions found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TIMESTAMP\tREQUEST_ID\tINTENT\tCAPABILITY\tAGENT\tOUTCOME\tATTEMPTS\tLATENCY_MS")
	for i := range recs {
		agentID := "-"
		if recs[i].AgentID != nil {
			agentID = *recs[i].AgentID
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%d\t%d\n",
			recs[i].Timestamp.Format(time.RFC3339), recs[i].RequestID, recs[i].Intent,
			recs[i].TargetCapability, agentID, recs[i].Outcome, recs[i].Attempts, recs[i].LatencyMS)
	}
	return w.Flush()
}

func runAdminMigrate(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: bankx admin migrate up|down|version")
	}
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	steps := fs.Int("steps", 1, "migrations to roll back (down only)")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	ctx := context.Background()
	dsn := cfg.Postgres.DSN

	switch args[0] {
	case "up":
		if err := postgres.RunMigrations(ctx, dsn); err != nil {
			return err
		}
	case "down":
		if err := postgres.RollbackMigrations(ctx, dsn, *steps); err != nil {
			return err
		}
	case "version":
	default:
		return fmt.Errorf("unknown migrate command: %s", args[0])
	}

	v, err := postgres.MigrationVersion(ctx, dsn)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, "schema version "+strconv.FormatInt(v, 10))
	return nil
}

// promptSecret reads a secret from the terminal without echoing.
func promptSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(syscall.Stdin)) //nolint:unconvert // int conversion needed on some platforms
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
