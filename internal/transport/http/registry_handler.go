package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	apperrors "crisispulse/internal/errors"
	"crisispulse/internal/registry"
	"crisispulse/internal/services"
)

// RegistryHandler handles entity and source reference data.
type RegistryHandler struct {
	service      *services.RegistryService
	validate     *validator.Validate
	logger       *slog.Logger
	errorHandler *apperrors.Handler
}

// NewRegistryHandler creates a registry handler.
func NewRegistryHandler(service *services.RegistryService, logger *slog.Logger, errorHandler *apperrors.Handler) *RegistryHandler {
	return &RegistryHandler{
		service:      service,
		validate:     validator.New(),
		logger:       logger.With(slog.String("handler", "registry")),
		errorHandler: errorHandler,
	}
}

// EntityRoutes returns the entity routes.
func (h *RegistryHandler) EntityRoutes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))
	r.Post("/", h.CreateEntity)
	r.Get("/", h.ListEntities)
	r.Route("/{entityID}", func(r chi.Router) {
		r.Get("/", h.GetEntity)
		r.Post("/aliases", h.AppendAliases)
	})
	return r
}

// SourceRoutes returns the source routes.
func (h *RegistryHandler) SourceRoutes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))
	r.Post("/", h.CreateSource)
	r.Get("/", h.ListSources)
	r.Put("/{sourceID}/health", h.UpdateSourceHealth)
	return r
}

type createEntityRequest struct {
	Type        string   `json:"type"`
	DisplayName string   `json:"display_name" validate:"required"`
	Aliases     []string `json:"aliases,omitempty"`
	Identifiers []string `json:"identifiers,omitempty"`
	Tickers     []string `json:"tickers,omitempty"`
}

// CreateEntity handles POST /api/entities.
func (h *RegistryHandler) CreateEntity(w http.ResponseWriter, r *http.Request) {
	var req createEntityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorHandler.HandleError(w, r, apperrors.NewValidation("body", "invalid JSON body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.errorHandler.HandleError(w, r, apperrors.NewValidation("display_name", "display_name is required"))
		return
	}

	e, err := h.service.CreateEntity(r.Context(), registry.Entity{
		Type:        registry.EntityType(req.Type),
		DisplayName: req.DisplayName,
		Aliases:     req.Aliases,
		Identifiers: req.Identifiers,
		Tickers:     req.Tickers,
	})
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, e)
}

// ListEntities handles GET /api/entities.
func (h *RegistryHandler) ListEntities(w http.ResponseWriter, r *http.Request) {
	entities, err := h.service.ListEntities(r.Context())
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{"entities": entities, "count": len(entities)})
}

// GetEntity handles GET /api/entities/{entityID}.
func (h *RegistryHandler) GetEntity(w http.ResponseWriter, r *http.Request) {
	e, err := h.service.GetEntity(r.Context(), chi.URLParam(r, "entityID"))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, e)
}

type appendAliasesRequest struct {
	Aliases []string `json:"aliases" validate:"required,min=1"`
}

// AppendAliases handles POST /api/entities/{entityID}/aliases.
func (h *RegistryHandler) AppendAliases(w http.ResponseWriter, r *http.Request) {
	var req appendAliasesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorHandler.HandleError(w, r, apperrors.NewValidation("body", "invalid JSON body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.errorHandler.HandleError(w, r, apperrors.NewValidation("aliases", "at least one alias is required"))
		return
	}
	e, err := h.service.AppendAliases(r.Context(), chi.URLParam(r, "entityID"), req.Aliases)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, e)
}

type createSourceRequest struct {
	Name      string `json:"name" validate:"required"`
	Kind      string `json:"kind,omitempty"`
	TrustTier int    `json:"trust_tier" validate:"required,gte=1,lte=3"`
}

// CreateSource handles POST /api/sources.
func (h *RegistryHandler) CreateSource(w http.ResponseWriter, r *http.Request) {
	var req createSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorHandler.HandleError(w, r, apperrors.NewValidation("body", "invalid JSON body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.errorHandler.HandleError(w, r, apperrors.NewValidation("body", err.Error()))
		return
	}

	src, err := h.service.CreateSource(r.Context(), registry.Source{
		Name:      req.Name,
		Kind:      registry.SourceKind(req.Kind),
		TrustTier: req.TrustTier,
	})
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, src)
}

// ListSources handles GET /api/sources.
func (h *RegistryHandler) ListSources(w http.ResponseWriter, r *http.Request) {
	sources, err := h.service.ListSources(r.Context())
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{"sources": sources, "count": len(sources)})
}

type sourceHealthRequest struct {
	Active       bool `json:"active"`
	FailureCount int  `json:"failure_count" validate:"gte=0"`
}

// UpdateSourceHealth handles PUT /api/sources/{sourceID}/health. The failure
// counter is owned by the external collector; this endpoint just records it.
func (h *RegistryHandler) UpdateSourceHealth(w http.ResponseWriter, r *http.Request) {
	var req sourceHealthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorHandler.HandleError(w, r, apperrors.NewValidation("body", "invalid JSON body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.errorHandler.HandleError(w, r, apperrors.NewValidation("failure_count", "failure_count must be non-negative"))
		return
	}
	if err := h.service.UpdateSourceHealth(r.Context(), chi.URLParam(r, "sourceID"), req.Active, req.FailureCount); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{"success": true})
}
