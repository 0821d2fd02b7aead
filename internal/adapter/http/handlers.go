package http

import (
	"errors"
	"net/http"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/devusermeta/nubankx-sub000/internal/domain"
	"github.com/devusermeta/nubankx-sub000/internal/domain/agent"
	"github.com/devusermeta/nubankx-sub000/internal/domain/decision"
	"github.com/devusermeta/nubankx-sub000/internal/resilience"
	"github.com/devusermeta/nubankx-sub000/internal/service"
)

const defaultBodyLimit = 1 << 20

// Handlers serves the supervisor API.
type Handlers struct {
	Directory  *service.Directory
	Discovery  *service.Discovery
	Dispatcher *service.Dispatcher
	Decisions  *service.DecisionLog
	Breakers   *resilience.BreakerSet
	// Card builds the supervisor's agent card from the live routing table.
	Card      func() a2a.AgentCard
	BodyLimit int64
}

func (h *Handlers) bodyLimit() int64 {
	if h.BodyLimit > 0 {
		return h.BodyLimit
	}
	return defaultBodyLimit
}

// --- Agents ---

// RegisterAgent handles POST /api/v1/agents.
func (h *Handlers) RegisterAgent(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[agent.Registration](w, r, h.bodyLimit())
	if !ok {
		return
	}
	rec, err := h.Directory.Register(req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

type discoverRequest struct {
	AgentID string `json:"agent_id"`
	CardURL string `json:"card_url"`
}

// DiscoverAgent handles POST /api/v1/agents/discover.
func (h *Handlers) DiscoverAgent(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[discoverRequest](w, r, h.bodyLimit())
	if !ok {
		return
	}
	if !requireField(w, req.CardURL, "card_url") {
		return
	}
	rec, err := h.Discovery.Discover(r.Context(), req.AgentID, req.CardURL)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) || errors.Is(err, domain.ErrValidation) {
			writeDomainError(w, r, err)
			return
		}
		// A card that cannot be fetched is the caller's problem, not ours.
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// ListAgents handles GET /api/v1/agents.
func (h *Handlers) ListAgents(w http.ResponseWriter, r *http.Request) {
	includeRemoved := r.URL.Query().Get("include_removed") == "true"
	writeJSON(w, http.StatusOK, h.Directory.List(includeRemoved))
}

// GetAgent handles GET /api/v1/agents/{id}.
func (h *Handlers) GetAgent(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Directory.Get(urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// DeregisterAgent handles DELETE /api/v1/agents/{id}. Unknown ids are a no-op.
func (h *Handlers) DeregisterAgent(w http.ResponseWriter, r *http.Request) {
	h.Directory.Deregister(urlParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

type heartbeatResponse struct {
	Accepted bool `json:"accepted"`
}

// Heartbeat handles POST /api/v1/agents/{id}/heartbeat.
func (h *Handlers) Heartbeat(w http.ResponseWriter, r *http.Request) {
	if !h.Directory.Heartbeat(urlParam(r, "id")) {
		writeJSON(w, http.StatusNotFound, heartbeatResponse{Accepted: false})
		return
	}
	writeJSON(w, http.StatusOK, heartbeatResponse{Accepted: true})
}

// ResolveCapability handles GET /api/v1/capabilities/{name}/agents.
func (h *Handlers) ResolveCapability(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Directory.Resolve(urlParam(r, "name")))
}

// --- Dispatch ---

type dispatchRequest struct {
	UserText      string `json:"user_text"`
	CorrelationID string `json:"correlation_id"`
}

// Dispatch handles POST /api/v1/dispatch. Agent failures are reported in
// the body with status 200; only a misconfigured routing table yields 500.
func (h *Handlers) Dispatch(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[dispatchRequest](w, r, h.bodyLimit())
	if !ok {
		return
	}
	if req.CorrelationID == "" {
		req.CorrelationID = r.Header.Get("X-Correlation-ID")
	}
	out, err := h.Dispatcher.Dispatch(r.Context(), req.UserText, req.CorrelationID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, out)
		return
	}
	w.Header().Set("X-Correlation-ID", out.CorrelationID)
	writeJSON(w, http.StatusOK, out)
}

type classifyRequest struct {
	UserText string `json:"user_text"`
}

type classifyResponse struct {
	Intent     string `json:"intent"`
	Capability string `json:"capability"`
}

// Classify handles POST /api/v1/classify.
func (h *Handlers) Classify(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[classifyRequest](w, r, h.bodyLimit())
	if !ok {
		return
	}
	label, capability := h.Dispatcher.Classify(req.UserText)
	writeJSON(w, http.StatusOK, classifyResponse{Intent: string(label), Capability: capability})
}

// --- Audit & inspection ---

// ListDecisions handles GET /api/v1/decisions?correlation_id=.
func (h *Handlers) ListDecisions(w http.ResponseWriter, r *http.Request) {
	corr := r.URL.Query().Get("correlation_id")
	if !requireField(w, corr, "correlation_id") {
		return
	}
	recs, err := h.Decisions.Query(r.Context(), corr)
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	if recs == nil {
		recs = []decision.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// ListCircuits handles GET /api/v1/circuits.
func (h *Handlers) ListCircuits(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Breakers.Snapshots())
}

// AgentCard handles GET /.well-known/agent.json.
func (h *Handlers) AgentCard(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Card())
}
