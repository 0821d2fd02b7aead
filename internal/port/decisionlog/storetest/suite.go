// Package storetest holds the behavioral suite every decisionlog.Store must pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/devusermeta/nubankx-sub000/internal/domain"
	"github.com/devusermeta/nubankx-sub000/internal/domain/decision"
	"github.com/devusermeta/nubankx-sub000/internal/port/decisionlog"
)

// Run runs the suite against the store returned by newStore. Each subtest
// gets a fresh store.
func Run(t *testing.T, newStore func(t *testing.T) decisionlog.Store) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("AppendAndList", func(t *testing.T) {
		s := newStore(t)
		agentID := "acct-1"
		rec := &decision.Record{
			RequestID:        "req-1",
			CorrelationID:    "conv-1",
			Intent:           "balance_inquiry",
			TargetCapability: "account.balance",
			AgentID:          &agentID,
			Outcome:          decision.OutcomeSuccess,
			Attempts:         1,
			LatencyMS:        42,
			Timestamp:        base,
		}
		if err := s.Append(ctx, rec); err != nil {
			t.Fatal(err)
		}
		got, err := s.ListByCorrelation(ctx, "conv-1")
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 1 {
			t.Fatalf("expected 1 record, got %d", len(got))
		}
		r := got[0]
		if r.RequestID != "req-1" || r.Intent != "balance_inquiry" || r.Outcome != decision.OutcomeSuccess {
			t.Fatalf("unexpected record %+v", r)
		}
		if r.AgentID == nil || *r.AgentID != "acct-1" {
			t.Fatalf("agent id not preserved: %v", r.AgentID)
		}
		if !r.Timestamp.Equal(base) || r.LatencyMS != 42 || r.Attempts != 1 {
			t.Fatalf("numeric fields not preserved: %+v", r)
		}
	})

	t.Run("ListedRecordsAreCopies", func(t *testing.T) {
		s := newStore(t)
		agentID := "acct-1"
		rec := &decision.Record{
			RequestID:     "req-copy",
			CorrelationID: "conv-copy",
			Intent:        "balance_inquiry",
			AgentID:       &agentID,
			Outcome:       decision.OutcomeSuccess,
			Attempts:      1,
			Timestamp:     base,
		}
		if err := s.Append(ctx, rec); err != nil {
			t.Fatal(err)
		}
		agentID = "changed-after-append"

		first, err := s.ListByCorrelation(ctx, "conv-copy")
		if err != nil {
			t.Fatal(err)
		}
		if len(first) != 1 || first[0].AgentID == nil {
			t.Fatalf("unexpected records %+v", first)
		}
		*first[0].AgentID = "changed-by-reader"

		second, err := s.ListByCorrelation(ctx, "conv-copy")
		if err != nil {
			t.Fatal(err)
		}
		if got := *second[0].AgentID; got != "acct-1" {
			t.Fatalf("stored agent id = %q, want acct-1", got)
		}
	})

	t.Run("NullAgentAndError", func(t *testing.T) {
		s := newStore(t)
		rec := &decision.Record{
			RequestID:     "req-2",
			CorrelationID: "conv-2",
			Intent:        "UNKNOWN",
			Outcome:       decision.OutcomeNoAgentAvailable,
			ErrorKind:     "no_agent",
			Error:         "no agent available",
			Timestamp:     base,
		}
		if err := s.Append(ctx, rec); err != nil {
			t.Fatal(err)
		}
		got, err := s.ListByCorrelation(ctx, "conv-2")
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 1 || got[0].AgentID != nil || got[0].Error != "no agent available" || got[0].ErrorKind != "no_agent" {
			t.Fatalf("unexpected record %+v", got)
		}
	})

	t.Run("DuplicateRequestID", func(t *testing.T) {
		s := newStore(t)
		rec := &decision.Record{RequestID: "dup", CorrelationID: "c", Outcome: decision.OutcomeFailure, Timestamp: base}
		if err := s.Append(ctx, rec); err != nil {
			t.Fatal(err)
		}
		err := s.Append(ctx, rec)
		if !errors.Is(err, domain.ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}
	})

	t.Run("FiltersByCorrelation", func(t *testing.T) {
		s := newStore(t)
		for i, c := range []string{"a", "b", "a"} {
			rec := &decision.Record{RequestID: fmt.Sprintf("r%d", i), CorrelationID: c, Outcome: decision.OutcomeSuccess, Timestamp: base}
			if err := s.Append(ctx, rec); err != nil {
				t.Fatal(err)
			}
		}
		got, err := s.ListByCorrelation(ctx, "a")
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 records, got %d", len(got))
		}
		none, err := s.ListByCorrelation(ctx, "missing")
		if err != nil {
			t.Fatal(err)
		}
		if len(none) != 0 {
			t.Fatalf("expected no records, got %d", len(none))
		}
	})

	t.Run("ConcurrentAppend", func(t *testing.T) {
		s := newStore(t)
		const n = 20
		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- s.Append(ctx, &decision.Record{
					RequestID:     fmt.Sprintf("cc-%d", i),
					CorrelationID: "busy",
					Outcome:       decision.OutcomeSuccess,
					Timestamp:     base.Add(time.Duration(i) * time.Millisecond),
				})
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				t.Fatal(err)
			}
		}
		got, err := s.ListByCorrelation(ctx, "busy")
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != n {
			t.Fatalf("expected %d records, got %d", n, len(got))
		}
	})
}
