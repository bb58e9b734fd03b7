package http

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"
)

// HealthHandler reports service liveness and database reachability.
type HealthHandler struct {
	db      *sql.DB
	logger  *slog.Logger
	started time.Time
	version string
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(db *sql.DB, version string, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		db:      db,
		logger:  logger.With(slog.String("handler", "health")),
		started: time.Now(),
		version: version,
	}
}

// HealthCheck handles GET /api/health.
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK
	if err := h.db.PingContext(r.Context()); err != nil {
		h.logger.ErrorContext(r.Context(), "database ping failed", slog.String("error", err.Error()))
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	render.Status(r, code)
	render.JSON(w, r, map[string]any{
		"status":  status,
		"version": h.version,
		"uptime":  time.Since(h.started).String(),
	})
}
