package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/ansuz/internal/item"
	"github.com/starford/ansuz/internal/review"
)

// Handler holds API route handlers.
type Handler struct {
	svc *review.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *review.Service) *Handler {
	return &Handler{svc: svc}
}

// itemID extracts the numeric {id} URL parameter.
func itemID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id < 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid item id"))
		return 0, false
	}
	return id, true
}

// ListDecks handles GET /api/decks.
//
//	@Summary		List decks with their queued new and due counts
//	@Tags			review
//	@Produce		json
//	@Success		200	{object}	DecksResponse
//	@Security		BearerAuth
//	@Router			/decks [get]
func (h *Handler) ListDecks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, DecksResponse{Decks: h.svc.Decks()})
}

// BuildQueue handles POST /api/queue/build.
//
//	@Summary		Refresh the day's review queue
//	@Tags			review
//	@Produce		json
//	@Success		200	{object}	queue.BuildReport
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/queue/build [post]
func (h *Handler) BuildQueue(w http.ResponseWriter, r *http.Request) {
	rep, err := h.svc.BuildQueue(r.Context())
	if err != nil {
		writeError(w, "build queue", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// NextItem handles GET /api/queue/next.
//
//	@Summary		Get the next item to review
//	@Tags			review
//	@Produce		json
//	@Param			deck	query		string	false	"Restrict to one deck"
//	@Success		200		{object}	NextResponse
//	@Security		BearerAuth
//	@Router			/queue/next [get]
func (h *Handler) NextItem(w http.ResponseWriter, r *http.Request) {
	next, ok, err := h.svc.Next(r.URL.Query().Get("deck"))
	if err != nil {
		writeError(w, "next item", err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, NextResponse{Done: true})
		return
	}
	writeJSON(w, http.StatusOK, NextResponse{Next: &next})
}

// QueueStatus handles GET /api/queue/status.
//
//	@Summary		Queue counters
//	@Tags			review
//	@Produce		json
//	@Success		200	{object}	queue.Status
//	@Security		BearerAuth
//	@Router			/queue/status [get]
func (h *Handler) QueueStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Status())
}

// GetItem handles GET /api/items/{id}.
//
//	@Summary		Get a single repetition item
//	@Tags			items
//	@Produce		json
//	@Param			id	path		int	true	"Item ID"
//	@Success		200	{object}	models.ItemView
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/items/{id} [get]
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(w, r)
	if !ok {
		return
	}
	v, err := h.svc.Item(id)
	if err != nil {
		writeError(w, "get item", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// PreviewItem handles GET /api/items/{id}/preview.
//
//	@Summary		Interval every response option would schedule
//	@Tags			items
//	@Produce		json
//	@Param			id	path		int	true	"Item ID"
//	@Success		200	{object}	PreviewResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/items/{id}/preview [get]
func (h *Handler) PreviewItem(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(w, r)
	if !ok {
		return
	}
	opts, err := h.svc.Preview(id)
	if err != nil {
		writeError(w, "preview item", err)
		return
	}
	writeJSON(w, http.StatusOK, PreviewResponse{Options: opts})
}

// ReviewItem handles POST /api/items/{id}/review.
//
//	@Summary		Answer an item with a response option
//	@Tags			items
//	@Accept			json
//	@Produce		json
//	@Param			id		path		int				true	"Item ID"
//	@Param			body	body		ReviewRequest	true	"Chosen option"
//	@Success		200		{object}	queue.ReviewOutcome
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/items/{id}/review [post]
func (h *Handler) ReviewItem(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(w, r)
	if !ok {
		return
	}
	var req ReviewRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	out, err := h.svc.Review(r.Context(), id, req.Option)
	if err != nil {
		writeError(w, "review item", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// GetAlgorithm handles GET /api/algorithm.
//
//	@Summary		Active algorithm and its response options
//	@Tags			algorithm
//	@Produce		json
//	@Success		200	{object}	AlgorithmResponse
//	@Security		BearerAuth
//	@Router			/algorithm [get]
func (h *Handler) GetAlgorithm(w http.ResponseWriter, r *http.Request) {
	kind, opts := h.svc.Algorithm()
	writeJSON(w, http.StatusOK, AlgorithmResponse{Active: kind, Options: opts})
}

// SwitchAlgorithm handles POST /api/algorithm.
//
//	@Summary		Convert every item and activate another algorithm
//	@Tags			algorithm
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SwitchRequest	true	"Target algorithm"
//	@Success		200		{object}	migrate.Outcome
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Failure		500		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/algorithm [post]
func (h *Handler) SwitchAlgorithm(w http.ResponseWriter, r *http.Request) {
	var req SwitchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	out, err := h.svc.Switch(r.Context(), req.To)
	if err != nil {
		writeError(w, "switch algorithm", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// Prune handles POST /api/prune.
//
//	@Summary		Delete tombstoned items and reclaim empty file slots
//	@Tags			algorithm
//	@Produce		json
//	@Success		200	{object}	store.PruneReport
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/prune [post]
func (h *Handler) Prune(w http.ResponseWriter, r *http.Request) {
	rep, err := h.svc.Prune(r.Context())
	if err != nil {
		writeError(w, "prune", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// ExportSchedule handles GET /api/schedule.
//
//	@Summary		Export the schedule of every reviewed item
//	@Tags			schedule
//	@Produce		json
//	@Param			numeric	query		bool	false	"Due as epoch millis instead of a date"
//	@Success		200		{object}	ScheduleResponse
//	@Security		BearerAuth
//	@Router			/schedule [get]
func (h *Handler) ExportSchedule(w http.ResponseWriter, r *http.Request) {
	numeric, _ := strconv.ParseBool(r.URL.Query().Get("numeric"))
	tuples := h.svc.Schedule(numeric)
	if tuples == nil {
		tuples = []item.SchedTuple{}
	}
	writeJSON(w, http.StatusOK, ScheduleResponse{Tuples: tuples})
}

// ApplySchedule handles POST /api/schedule.
//
//	@Summary		Apply exported schedule tuples
//	@Tags			schedule
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ScheduleRequest	true	"Tuples to apply"
//	@Success		200		{object}	ApplyResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/schedule [post]
func (h *Handler) ApplySchedule(w http.ResponseWriter, r *http.Request) {
	var req ScheduleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	n, err := h.svc.ApplySchedule(r.Context(), req.Tuples)
	if err != nil {
		writeError(w, "apply schedule", err)
		return
	}
	writeJSON(w, http.StatusOK, ApplyResponse{Applied: n})
}
