package a2a

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/devusermeta/nubankx-sub000/internal/config"
)

func TestBuildSupervisorCard(t *testing.T) {
	table, err := config.LoadRouting("")
	if err != nil {
		t.Fatal(err)
	}
	card := BuildSupervisorCard(config.Defaults().A2A, table)

	if card.Name != "BankX Supervisor" || card.URL != "http://localhost:8080/api/v1/dispatch" {
		t.Fatalf("unexpected card header %q %q", card.Name, card.URL)
	}
	if len(card.Skills) != 1 {
		t.Fatalf("expected one skill, got %d", len(card.Skills))
	}
	tags := card.Skills[0].Tags
	if !slices.Contains(tags, "account.balance") || !slices.Contains(tags, "escalation.ticket") {
		t.Fatalf("missing capability tags: %v", tags)
	}
	if !slices.IsSorted(tags) || len(slices.Compact(slices.Clone(tags))) != len(tags) {
		t.Fatalf("tags should be sorted and unique: %v", tags)
	}
}

func TestResolverFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != WellKnownPath {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(a2a.AgentCard{
			Name: "Account Agent",
			URL:  "http://acct:9000/invoke",
			Skills: []a2a.AgentSkill{
				{ID: "account.balance", Tags: []string{"account.details"}},
			},
		})
	}))
	defer srv.Close()

	card, err := NewResolver(srv.Client()).Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if card.URL != "http://acct:9000/invoke" {
		t.Fatalf("unexpected url %s", card.URL)
	}
	if got := Capabilities(card, false); !slices.Equal(got, []string{"account.balance"}) {
		t.Fatalf("capabilities = %v", got)
	}
	if got := Capabilities(card, true); len(got) != 2 {
		t.Fatalf("capabilities with tags = %v", got)
	}
}

func TestResolverFetchErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/nourl.json":
			_, _ = w.Write([]byte(`{"name":"x"}`))
		case "/garbage.json":
			_, _ = w.Write([]byte(`{`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	res := NewResolver(srv.Client())

	for _, u := range []string{srv.URL + "/missing", srv.URL + "/nourl.json", srv.URL + "/garbage.json"} {
		if _, err := res.Fetch(context.Background(), u); err == nil {
			t.Errorf("%s: expected error", u)
		}
	}
}
