package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all public API routes mounted.
// authMW resolves the request owner; sseHandler, if non-nil, is mounted at
// GET /events behind the same middleware.
func NewRouter(h *Handler, authMW func(http.Handler) http.Handler, sseHandler http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMW)
	r.Use(limitBody(1 << 20))

	r.Get("/kpis", h.KPIs)

	r.Get("/tasks", h.ListTasks)
	r.Post("/tasks", h.CreateTask)
	r.Post("/tasks/{id}/action", h.TaskAction)

	r.Get("/summaries", h.ListSummaries)

	r.Get("/settings/integrations", h.ListIntegrations)
	r.Post("/settings/sync", h.Sync)

	r.Post("/agent/chat", h.Chat)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
