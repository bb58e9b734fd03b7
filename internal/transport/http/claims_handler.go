package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"crisispulse/internal/claims"
	"crisispulse/internal/corroborate"
	apperrors "crisispulse/internal/errors"
	"crisispulse/internal/services"
)

// ClaimsHandler handles claim lifecycle and corroboration endpoints.
type ClaimsHandler struct {
	service      *services.CoreService
	validate     *validator.Validate
	logger       *slog.Logger
	errorHandler *apperrors.Handler
}

// NewClaimsHandler creates a claims handler.
func NewClaimsHandler(service *services.CoreService, logger *slog.Logger, errorHandler *apperrors.Handler) *ClaimsHandler {
	return &ClaimsHandler{
		service:      service,
		validate:     validator.New(),
		logger:       logger.With(slog.String("handler", "claims")),
		errorHandler: errorHandler,
	}
}

// Routes returns the claim routes.
func (h *ClaimsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))
	r.Post("/", h.Create)
	r.Route("/{claimID}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Post("/transition", h.Transition)
		r.Get("/corroborations", h.ListCorroborations)
	})
	return r
}

type createClaimRequest struct {
	EntityID    string          `json:"entity_id,omitempty"`
	SourceID    string          `json:"source_id" validate:"required"`
	Type        string          `json:"type"`
	Content     string          `json:"content" validate:"required"`
	Author      string          `json:"author,omitempty"`
	URL         string          `json:"url,omitempty"`
	Engagement  json.RawMessage `json:"engagement,omitempty"`
	Credibility float64         `json:"credibility" validate:"gte=0,lte=100"`
}

// Create handles POST /api/claims.
func (h *ClaimsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorHandler.HandleError(w, r, apperrors.NewValidation("body", "invalid JSON body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.errorHandler.HandleError(w, r, apperrors.NewValidation("body", err.Error()))
		return
	}

	c, err := h.service.CreateClaim(r.Context(), claims.CreateRequest{
		EntityID:    req.EntityID,
		SourceID:    req.SourceID,
		Type:        claims.ClaimType(req.Type),
		Content:     req.Content,
		Author:      req.Author,
		URL:         req.URL,
		Engagement:  req.Engagement,
		Credibility: req.Credibility,
	})
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, c)
}

// Get handles GET /api/claims/{claimID}.
func (h *ClaimsHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.GetClaim(r.Context(), chi.URLParam(r, "claimID"))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, c)
}

type transitionRequest struct {
	Target string `json:"target" validate:"required"`
	Reason string `json:"reason" validate:"required"`
}

// Transition handles POST /api/claims/{claimID}/transition.
func (h *ClaimsHandler) Transition(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorHandler.HandleError(w, r, apperrors.NewValidation("body", "invalid JSON body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.errorHandler.HandleError(w, r, apperrors.NewValidation("body", "target and reason are required"))
		return
	}

	c, err := h.service.TransitionClaim(r.Context(), chi.URLParam(r, "claimID"),
		claims.Status(req.Target), req.Reason)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, c)
}

// ListCorroborations handles GET /api/claims/{claimID}/corroborations.
func (h *ClaimsHandler) ListCorroborations(w http.ResponseWriter, r *http.Request) {
	claimID := chi.URLParam(r, "claimID")
	if _, err := h.service.GetClaim(r.Context(), claimID); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	list, err := h.service.ListCorroborations(r.Context(), claimID)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{"corroborations": list, "count": len(list)})
}

// CorroborationsHandler handles corroboration submission.
type CorroborationsHandler struct {
	service      *services.CoreService
	validate     *validator.Validate
	logger       *slog.Logger
	errorHandler *apperrors.Handler
}

// NewCorroborationsHandler creates a corroborations handler.
func NewCorroborationsHandler(service *services.CoreService, logger *slog.Logger, errorHandler *apperrors.Handler) *CorroborationsHandler {
	return &CorroborationsHandler{
		service:      service,
		validate:     validator.New(),
		logger:       logger.With(slog.String("handler", "corroborations")),
		errorHandler: errorHandler,
	}
}

// Routes returns the corroboration routes.
func (h *CorroborationsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))
	r.Post("/", h.Submit)
	return r
}

type submitCorroborationRequest struct {
	ClaimID     string  `json:"claim_id" validate:"required"`
	EventID     string  `json:"event_id" validate:"required"`
	Confidence  float64 `json:"confidence" validate:"gte=0,lte=1"`
	Contradicts bool    `json:"contradicts,omitempty"`
	Rationale   string  `json:"rationale,omitempty"`
	MatchedBy   string  `json:"matched_by,omitempty"`
}

// Submit handles POST /api/corroborations. Submission is idempotent on the
// (claim, event) pair.
func (h *CorroborationsHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitCorroborationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorHandler.HandleError(w, r, apperrors.NewValidation("body", "invalid JSON body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.errorHandler.HandleError(w, r, apperrors.NewValidation("body", err.Error()))
		return
	}

	res, err := h.service.SubmitCorroboration(r.Context(), corroborate.SubmitRequest{
		ClaimID:     req.ClaimID,
		EventID:     req.EventID,
		Confidence:  req.Confidence,
		Contradicts: req.Contradicts,
		Rationale:   req.Rationale,
		MatchedBy:   req.MatchedBy,
	})
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, res)
}
