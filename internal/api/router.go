package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/ansuz/internal/review"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *review.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Review session.
	r.Get("/decks", h.ListDecks)
	r.Post("/queue/build", h.BuildQueue)
	r.Get("/queue/next", h.NextItem)
	r.Get("/queue/status", h.QueueStatus)

	// Items.
	r.Get("/items/{id}", h.GetItem)
	r.Get("/items/{id}/preview", h.PreviewItem)
	r.Post("/items/{id}/review", h.ReviewItem)

	// Maintenance.
	r.Get("/algorithm", h.GetAlgorithm)
	r.Post("/algorithm", h.SwitchAlgorithm)
	r.Post("/prune", h.Prune)
	r.Get("/schedule", h.ExportSchedule)
	r.Post("/schedule", h.ApplySchedule)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
