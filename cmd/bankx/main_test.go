package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/devusermeta/nubankx-sub000/internal/config"
	"github.com/devusermeta/nubankx-sub000/internal/domain/agent"
	"github.com/devusermeta/nubankx-sub000/internal/domain/decision"
)

type fakeAgents int

func (n fakeAgents) List(bool) []agent.Record { return make([]agent.Record, n) }

type fakeBus bool

func (b fakeBus) IsConnected() bool { return bool(b) }

type fakeCache bool

func (c fakeCache) Degraded() bool { return bool(c) }

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name   string
		probes healthProbes
		code   int
		want   healthStatus
	}{
		{
			name:   "standalone",
			probes: healthProbes{Store: "memory", Agents: fakeAgents(2)},
			code:   http.StatusOK,
			want:   healthStatus{Status: "ok", Store: "memory", NATS: "disabled", Cache: "local", Agents: 2},
		},
		{
			name:   "bus down",
			probes: healthProbes{Store: "postgres", Bus: fakeBus(false)},
			code:   http.StatusServiceUnavailable,
			want:   healthStatus{Status: "degraded", Store: "postgres", NATS: "disconnected", Cache: "local"},
		},
		{
			name:   "shared cache lost",
			probes: healthProbes{Store: "sqlite", Bus: fakeBus(true), Cache: fakeCache(true)},
			code:   http.StatusOK,
			want:   healthStatus{Status: "ok", Store: "sqlite", NATS: "connected", Cache: "local_only"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			healthHandler(tt.probes)(rec, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))
			if rec.Code != tt.code {
				t.Fatalf("status = %d, want %d", rec.Code, tt.code)
			}
			var got healthStatus
			if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Fatalf("body = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestOpenStore(t *testing.T) {
	for _, driver := range []string{"memory", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			cfg := config.Defaults()
			cfg.Store.Driver = driver
			cfg.SQLite.Path = filepath.Join(t.TempDir(), "decisions.db")

			store, closeFn, err := openStore(ctx, &cfg)
			if err != nil {
				t.Fatalf("openStore: %v", err)
			}
			defer closeFn()

			rec := &decision.Record{
				RequestID:     "req-1",
				CorrelationID: "conv-1",
				Intent:        "ACCOUNT_BALANCE",
				Outcome:       decision.OutcomeSuccess,
				Timestamp:     time.Now().UTC(),
			}
			if err := store.Append(ctx, rec); err != nil {
				t.Fatalf("append: %v", err)
			}
			got, err := store.ListByCorrelation(ctx, "conv-1")
			if err != nil || len(got) != 1 || got[0].RequestID != "req-1" {
				t.Fatalf("list = %+v, %v", got, err)
			}
		})
	}
}
