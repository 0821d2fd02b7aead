package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/devusermeta/nubankx-sub000/internal/middleware"
	"github.com/devusermeta/nubankx-sub000/internal/port/cache"
)

// RouteConfig carries the cross-cutting guards applied per route group.
type RouteConfig struct {
	// APIKeyHash guards mutating agent routes. Empty disables the check.
	APIKeyHash string
	// APIKeyHashFunc, when set, is consulted per request instead of APIKeyHash.
	APIKeyHashFunc func() string
	// Idempotency stores dispatch replies keyed by Idempotency-Key. Nil disables replay.
	Idempotency    cache.Cache
	IdempotencyTTL time.Duration
}

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers, cfg RouteConfig) {
	r.Get("/.well-known/agent.json", h.AgentCard)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"1.0.0"}`))
		})

		// Agents
		r.Group(func(r chi.Router) {
			if cfg.APIKeyHashFunc != nil {
				r.Use(middleware.APIKeyAuthFunc(cfg.APIKeyHashFunc))
			} else {
				r.Use(middleware.APIKeyAuth(cfg.APIKeyHash))
			}
			r.Post("/agents", h.RegisterAgent)
			r.Post("/agents/discover", h.DiscoverAgent)
			r.Delete("/agents/{id}", h.DeregisterAgent)
		})
		r.Get("/agents", h.ListAgents)
		r.Get("/agents/{id}", h.GetAgent)
		r.Post("/agents/{id}/heartbeat", h.Heartbeat)
		r.Get("/capabilities/{name}/agents", h.ResolveCapability)

		// Dispatch
		r.Group(func(r chi.Router) {
			if cfg.Idempotency != nil {
				r.Use(middleware.Idempotency(cfg.Idempotency, cfg.IdempotencyTTL))
			}
			r.Post("/dispatch", h.Dispatch)
		})
		r.Post("/classify", h.Classify)

		// Audit
		r.Get("/decisions", h.ListDecisions)
		r.Get("/circuits", h.ListCircuits)
	})
}
