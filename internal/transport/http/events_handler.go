// Package http exposes the core over a JSON API. Write endpoints are for
// collectors; the dashboard consumes only the score, market and label reads.
package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	apperrors "crisispulse/internal/errors"
	"crisispulse/internal/eventstore"
	"crisispulse/internal/services"
)

// EventsHandler handles observation ingestion and queries.
type EventsHandler struct {
	service      *services.CoreService
	validate     *validator.Validate
	logger       *slog.Logger
	errorHandler *apperrors.Handler
}

// NewEventsHandler creates an events handler.
func NewEventsHandler(service *services.CoreService, logger *slog.Logger, errorHandler *apperrors.Handler) *EventsHandler {
	return &EventsHandler{
		service:      service,
		validate:     validator.New(),
		logger:       logger.With(slog.String("handler", "events")),
		errorHandler: errorHandler,
	}
}

// Routes returns the event routes.
func (h *EventsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))
	r.Post("/", h.Ingest)
	r.Get("/", h.Query)
	return r
}

type ingestRequest struct {
	Type        string          `json:"type"`
	EntityID    string          `json:"entity_id,omitempty"`
	SourceID    string          `json:"source_id" validate:"required"`
	PublishedAt *time.Time      `json:"published_at,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// Ingest handles POST /api/events.
func (h *EventsHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorHandler.HandleError(w, r, apperrors.NewValidation("body", "invalid JSON body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.errorHandler.HandleError(w, r, apperrors.NewValidation("source_id", "source_id is required"))
		return
	}

	res, err := h.service.Ingest(r.Context(), eventstore.IngestRequest{
		Type:        eventstore.EventType(req.Type),
		EntityID:    req.EntityID,
		SourceID:    req.SourceID,
		PublishedAt: req.PublishedAt,
		Payload:     req.Payload,
	})
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	if res.WasDuplicate {
		render.Status(r, http.StatusOK)
	} else {
		render.Status(r, http.StatusCreated)
	}
	render.JSON(w, r, res)
}

// Query handles GET /api/events with entity_id, type, source_id, max_tier and
// limit query parameters.
func (h *EventsHandler) Query(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := eventstore.Filter{
		EntityID: q.Get("entity_id"),
		Type:     eventstore.EventType(q.Get("type")),
		SourceID: q.Get("source_id"),
	}
	if v := q.Get("max_tier"); v != "" {
		tier, err := strconv.Atoi(v)
		if err != nil || tier < 1 || tier > 3 {
			h.errorHandler.HandleError(w, r, apperrors.NewValidation("max_tier", "max_tier must be 1-3"))
			return
		}
		f.MaxTier = tier
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			h.errorHandler.HandleError(w, r, apperrors.NewValidation("limit", "limit must be a positive integer"))
			return
		}
		f.Limit = limit
	}

	events, err := h.service.QueryEvents(r.Context(), f)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{"events": events, "count": len(events)})
}
