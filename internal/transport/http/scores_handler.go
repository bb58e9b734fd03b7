package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apperrors "crisispulse/internal/errors"
	"crisispulse/internal/scoring"
	"crisispulse/internal/services"
)

// ScoresHandler serves the read-only dashboard surface: entity scores,
// market scores and label resolution.
type ScoresHandler struct {
	service      *services.ScoreService
	logger       *slog.Logger
	errorHandler *apperrors.Handler
}

// NewScoresHandler creates a scores handler.
func NewScoresHandler(service *services.ScoreService, logger *slog.Logger, errorHandler *apperrors.Handler) *ScoresHandler {
	return &ScoresHandler{
		service:      service,
		logger:       logger.With(slog.String("handler", "scores")),
		errorHandler: errorHandler,
	}
}

// Routes returns the score routes.
func (h *ScoresHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))
	r.Get("/{entityID}/{date}", h.GetEntityScore)
	r.Post("/recompute", h.Recompute)
	return r
}

// DateCtx validates the date URL parameter.
func dateParam(r *http.Request) (string, error) {
	date := chi.URLParam(r, "date")
	if _, err := time.Parse(scoring.DateLayout, date); err != nil {
		return "", apperrors.NewValidation("date", "date must be YYYY-MM-DD")
	}
	return date, nil
}

// GetEntityScore handles GET /api/scores/{entityID}/{date}; the score is
// computed and cached on first request.
func (h *ScoresHandler) GetEntityScore(w http.ResponseWriter, r *http.Request) {
	date, err := dateParam(r)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	score, err := h.service.GetEntityScore(r.Context(), chi.URLParam(r, "entityID"), date)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, score)
}

type recomputeRequest struct {
	EntityID string `json:"entity_id,omitempty"`
	Date     string `json:"date"`
}

// Recompute handles POST /api/scores/recompute. With an entity_id it rebuilds
// one entity score; without, the whole market rollup for the date.
func (h *ScoresHandler) Recompute(w http.ResponseWriter, r *http.Request) {
	var req recomputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorHandler.HandleError(w, r, apperrors.NewValidation("body", "invalid JSON body"))
		return
	}
	if _, err := time.Parse(scoring.DateLayout, req.Date); err != nil {
		h.errorHandler.HandleError(w, r, apperrors.NewValidation("date", "date must be YYYY-MM-DD"))
		return
	}

	if req.EntityID != "" {
		score, err := h.service.RecomputeEntityScore(r.Context(), req.EntityID, req.Date)
		if err != nil {
			h.errorHandler.HandleError(w, r, err)
			return
		}
		render.JSON(w, r, score)
		return
	}

	market, err := h.service.RecomputeMarketScore(r.Context(), req.Date)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, market)
}

// MarketHandler serves market rollups.
type MarketHandler struct {
	service      *services.ScoreService
	logger       *slog.Logger
	errorHandler *apperrors.Handler
}

// NewMarketHandler creates a market handler.
func NewMarketHandler(service *services.ScoreService, logger *slog.Logger, errorHandler *apperrors.Handler) *MarketHandler {
	return &MarketHandler{
		service:      service,
		logger:       logger.With(slog.String("handler", "market")),
		errorHandler: errorHandler,
	}
}

// Routes returns the market routes.
func (h *MarketHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))
	r.Get("/{date}", h.GetMarketScore)
	return r
}

// GetMarketScore handles GET /api/market/{date}.
func (h *MarketHandler) GetMarketScore(w http.ResponseWriter, r *http.Request) {
	date, err := dateParam(r)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	score, err := h.service.GetMarketScore(r.Context(), date)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, score)
}

// LabelsHandler resolves composite scores to label bands.
type LabelsHandler struct {
	service      *services.ScoreService
	errorHandler *apperrors.Handler
}

// NewLabelsHandler creates a labels handler.
func NewLabelsHandler(service *services.ScoreService, errorHandler *apperrors.Handler) *LabelsHandler {
	return &LabelsHandler{service: service, errorHandler: errorHandler}
}

// Routes returns the label routes.
func (h *LabelsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))
	r.Get("/resolve", h.Resolve)
	r.Get("/bands", h.Bands)
	return r
}

// Resolve handles GET /api/labels/resolve?score=x.
func (h *LabelsHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("score")
	score, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		h.errorHandler.HandleError(w, r, apperrors.NewValidation("score", "score must be a number"))
		return
	}
	band, err := h.service.ResolveLabel(score)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{"label": band.Label, "color": band.Color})
}

// Bands handles GET /api/labels/bands, returning the full lookup table.
func (h *LabelsHandler) Bands(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]any{"bands": scoring.Bands()})
}
