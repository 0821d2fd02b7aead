package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/go-chi/chi/v5"

	"github.com/devusermeta/nubankx-sub000/internal/adapter/memory"
	"github.com/devusermeta/nubankx-sub000/internal/config"
	"github.com/devusermeta/nubankx-sub000/internal/domain/agent"
	"github.com/devusermeta/nubankx-sub000/internal/domain/decision"
	"github.com/devusermeta/nubankx-sub000/internal/domain/dispatch"
	"github.com/devusermeta/nubankx-sub000/internal/domain/invocation"
	"github.com/devusermeta/nubankx-sub000/internal/port/transport"
	"github.com/devusermeta/nubankx-sub000/internal/resilience"
	"github.com/devusermeta/nubankx-sub000/internal/service"
)

type staticCards struct{ card *a2a.AgentCard }

func (s staticCards) Fetch(context.Context, string) (*a2a.AgentCard, error) { return s.card, nil }

func newTestRouter(t *testing.T, tr transport.Transport) (http.Handler, *service.Directory) {
	t.Helper()
	table, err := config.LoadRouting("")
	if err != nil {
		t.Fatal(err)
	}
	classifier, err := service.NewClassifier(table)
	if err != nil {
		t.Fatal(err)
	}
	dir := service.NewDirectory(time.Hour)
	breakers := service.NewAgentBreakers(5, time.Minute)
	inv := service.NewInvoker(breakers, map[string]transport.Transport{"http": tr}, service.InvokerConfig{
		Retry:          resilience.Policy{MaxAttempts: 1},
		AttemptTimeout: time.Second,
	})
	log := service.NewDecisionLog(memory.NewDecisionStore())

	h := &Handlers{
		Directory: dir,
		Discovery: service.NewDiscovery(staticCards{card: &a2a.AgentCard{
			Name:   "cards-agent",
			URL:    "http://cards/invoke",
			Skills: []a2a.AgentSkill{{ID: "card.block", Name: "Block card"}},
		}}, dir),
		Dispatcher: service.NewDispatcher(classifier, dir, inv, log, service.DispatcherConfig{MaxInFlight: 4, FallbackMessage: "sorry"}),
		Decisions:  log,
		Breakers:   breakers,
		Card:       func() a2a.AgentCard { return a2a.AgentCard{Name: "BankX Supervisor"} },
	}
	r := chi.NewRouter()
	MountRoutes(r, h, RouteConfig{})
	return r, dir
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func okTransport() transport.Transport {
	return transport.Func(func(context.Context, string, *invocation.Payload) (json.RawMessage, error) {
		return json.RawMessage(`{"balance":"10 EUR"}`), nil
	})
}

func TestRegisterAndGetAgent(t *testing.T) {
	r, _ := newTestRouter(t, okTransport())

	rec := do(t, r, http.MethodPost, "/api/v1/agents",
		`{"agent_id":"acct-1","capabilities":["account.balance"],"endpoint":"http://acct/invoke"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, r, http.MethodGet, "/api/v1/agents/acct-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", rec.Code)
	}
	var got agent.Record
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.ID != "acct-1" || got.Status != agent.StatusActive {
		t.Fatalf("unexpected record %+v", got)
	}
}

func TestRegisterErrors(t *testing.T) {
	r, _ := newTestRouter(t, okTransport())
	body := `{"agent_id":"acct-1","capabilities":["account.balance"],"endpoint":"http://acct/invoke"}`
	do(t, r, http.MethodPost, "/api/v1/agents", body)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"duplicate", body, http.StatusConflict},
		{"missing capabilities", `{"agent_id":"x","endpoint":"http://x"}`, http.StatusBadRequest},
		{"malformed", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := do(t, r, http.MethodPost, "/api/v1/agents", tt.body); rec.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestGetUnknownAgent(t *testing.T) {
	r, _ := newTestRouter(t, okTransport())
	if rec := do(t, r, http.MethodGet, "/api/v1/agents/ghost", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestDeregisterIsIdempotent(t *testing.T) {
	r, dir := newTestRouter(t, okTransport())
	if _, err := dir.Register(agent.Registration{ID: "a", Capabilities: []string{"c"}, Endpoint: "http://a"}); err != nil {
		t.Fatal(err)
	}
	for range 2 {
		if rec := do(t, r, http.MethodDelete, "/api/v1/agents/a", ""); rec.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", rec.Code)
		}
	}
	if rec := do(t, r, http.MethodDelete, "/api/v1/agents/never", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("unknown id: expected 204, got %d", rec.Code)
	}

	rec := do(t, r, http.MethodGet, "/api/v1/agents?include_removed=true", "")
	var all []agent.Record
	if err := json.NewDecoder(rec.Body).Decode(&all); err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 || all[0].Status != agent.StatusRemoved {
		t.Fatalf("expected one removed record, got %+v", all)
	}
}

func TestHeartbeat(t *testing.T) {
	r, dir := newTestRouter(t, okTransport())
	if _, err := dir.Register(agent.Registration{ID: "a", Capabilities: []string{"c"}, Endpoint: "http://a"}); err != nil {
		t.Fatal(err)
	}

	rec := do(t, r, http.MethodPost, "/api/v1/agents/a/heartbeat", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"accepted":true`) {
		t.Fatalf("expected accepted heartbeat, got %d %s", rec.Code, rec.Body.String())
	}
	rec = do(t, r, http.MethodPost, "/api/v1/agents/ghost/heartbeat", "")
	if rec.Code != http.StatusNotFound || !strings.Contains(rec.Body.String(), `"accepted":false`) {
		t.Fatalf("expected rejected heartbeat, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestResolveCapability(t *testing.T) {
	r, dir := newTestRouter(t, okTransport())
	for _, id := range []string{"a", "b"} {
		if _, err := dir.Register(agent.Registration{ID: id, Capabilities: []string{"account.balance"}, Endpoint: "http://" + id}); err != nil {
			t.Fatal(err)
		}
	}
	rec := do(t, r, http.MethodGet, "/api/v1/capabilities/account.balance/agents", "")
	var got []agent.Record
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Fatalf("expected registration order, got %+v", got)
	}

	rec = do(t, r, http.MethodGet, "/api/v1/capabilities/none/agents", "")
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("expected empty list, got %s", rec.Body.String())
	}
}

func TestDiscoverAgent(t *testing.T) {
	r, _ := newTestRouter(t, okTransport())

	rec := do(t, r, http.MethodPost, "/api/v1/agents/discover", `{"card_url":"http://cards"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var got agent.Record
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.ID != "cards-agent" || got.Endpoint != "http://cards/invoke" {
		t.Fatalf("unexpected record %+v", got)
	}

	if rec := do(t, r, http.MethodPost, "/api/v1/agents/discover", `{}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing card_url: expected 400, got %d", rec.Code)
	}
}

func TestDispatchAndDecisions(t *testing.T) {
	r, dir := newTestRouter(t, okTransport())
	if _, err := dir.Register(agent.Registration{ID: "acct-1", Capabilities: []string{"account.balance"}, Endpoint: "http://acct/invoke"}); err != nil {
		t.Fatal(err)
	}

	rec := do(t, r, http.MethodPost, "/api/v1/dispatch", `{"user_text":"what is my balance","correlation_id":"conv-1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var out dispatch.Outcome
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Outcome != decision.OutcomeSuccess || out.CorrelationID != "conv-1" {
		t.Fatalf("unexpected outcome %+v", out)
	}

	rec = do(t, r, http.MethodGet, "/api/v1/decisions?correlation_id=conv-1", "")
	var recs []decision.Record
	if err := json.NewDecoder(rec.Body).Decode(&recs); err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].RequestID != out.RequestID {
		t.Fatalf("expected the dispatch decision, got %+v", recs)
	}

	if rec := do(t, r, http.MethodGet, "/api/v1/decisions", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing correlation_id: expected 400, got %d", rec.Code)
	}
	rec = do(t, r, http.MethodGet, "/api/v1/decisions?correlation_id=none", "")
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("expected empty list, got %s", rec.Body.String())
	}
}

func TestDispatchNoAgentIsStillOK(t *testing.T) {
	r, _ := newTestRouter(t, okTransport())
	rec := do(t, r, http.MethodPost, "/api/v1/dispatch", `{"user_text":"what is my balance"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var out dispatch.Outcome
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Outcome != decision.OutcomeNoAgentAvailable || out.Message != "sorry" || out.CorrelationID == "" {
		t.Fatalf("unexpected outcome %+v", out)
	}
}

func TestClassify(t *testing.T) {
	r, _ := newTestRouter(t, okTransport())
	rec := do(t, r, http.MethodPost, "/api/v1/classify", `{"user_text":"show my recent transactions"}`)
	var got classifyResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Intent != "transaction_history" || got.Capability != "transaction.history" {
		t.Fatalf("unexpected classification %+v", got)
	}
}

func TestCircuitsAndCard(t *testing.T) {
	r, _ := newTestRouter(t, okTransport())
	if rec := do(t, r, http.MethodGet, "/api/v1/circuits", ""); rec.Code != http.StatusOK {
		t.Fatalf("circuits: expected 200, got %d", rec.Code)
	}
	rec := do(t, r, http.MethodGet, "/.well-known/agent.json", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "BankX Supervisor") {
		t.Fatalf("card: unexpected %d %s", rec.Code, rec.Body.String())
	}
}

func TestMutationsRequireAPIKey(t *testing.T) {
	table, _ := config.LoadRouting("")
	classifier, _ := service.NewClassifier(table)
	dir := service.NewDirectory(time.Hour)
	h := &Handlers{Directory: dir, Dispatcher: service.NewDispatcher(classifier, dir, nil, nil, service.DispatcherConfig{})}
	r := chi.NewRouter()
	MountRoutes(r, h, RouteConfig{APIKeyHash: "$2a$04$invalidhashinvalidhashinvalidhashinvalidhashinvali"})

	rec := do(t, r, http.MethodPost, "/api/v1/agents", `{"agent_id":"a","capabilities":["c"],"endpoint":"http://a"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", rec.Code)
	}
	if rec := do(t, r, http.MethodGet, "/api/v1/agents", ""); rec.Code != http.StatusOK {
		t.Fatalf("reads stay open, got %d", rec.Code)
	}
}
