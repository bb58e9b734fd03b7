package errors

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

// Problem type URIs following RFC 7807
const (
	TypeValidation = "/errors/validation"
	TypeNotFound   = "/errors/not-found"
	TypeConflict   = "/errors/conflict"
	TypeTransition = "/errors/claim/invalid-transition"
	TypeReference  = "/errors/missing-reference"
	TypeTimeout    = "/errors/timeout"
	TypeInternal   = "/errors/internal"
)

// ProblemDetails is an RFC 7807 problem response body.
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	Extensions map[string]interface{} `json:"-"`
}

// Render implements the render.Renderer interface.
func (pd *ProblemDetails) Render(w http.ResponseWriter, r *http.Request) error {
	w.Header().Set("Content-Type", "application/problem+json")
	render.Status(r, pd.Status)
	return nil
}

// MarshalJSON flattens extensions into the problem object.
func (pd *ProblemDetails) MarshalJSON() ([]byte, error) {
	data := map[string]interface{}{
		"type":   pd.Type,
		"title":  pd.Title,
		"status": pd.Status,
	}
	if pd.Detail != "" {
		data["detail"] = pd.Detail
	}
	if pd.Instance != "" {
		data["instance"] = pd.Instance
	}
	for k, v := range pd.Extensions {
		data[k] = v
	}
	return json.Marshal(data)
}

// WithExtension adds a custom field to the problem response.
func (pd *ProblemDetails) WithExtension(key string, value interface{}) *ProblemDetails {
	if pd.Extensions == nil {
		pd.Extensions = make(map[string]interface{})
	}
	pd.Extensions[key] = value
	return pd
}

// NewProblemDetails creates a problem response.
func NewProblemDetails(status int, problemType, title, detail, instance string) *ProblemDetails {
	return &ProblemDetails{
		Type:     problemType,
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	}
}

// Handler converts domain errors to problem responses and logs them.
type Handler struct {
	logger *slog.Logger
}

// NewHandler creates an error handler.
func NewHandler(logger *slog.Logger) *Handler {
	return &Handler{logger: logger.With(slog.String("component", "error_handler"))}
}

// HandleError logs err and writes the matching problem response.
func (h *Handler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}

	reqID := middleware.GetReqID(r.Context())

	h.logger.ErrorContext(r.Context(), "request failed",
		slog.String("error", err.Error()),
		slog.String("request_id", reqID),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)

	problem := h.ErrorToProblem(err, r)
	problem.WithExtension("trace_id", reqID)
	render.Render(w, r, problem)
}

// ErrorToProblem maps a domain error to RFC 7807 problem details.
func (h *Handler) ErrorToProblem(err error, r *http.Request) *ProblemDetails {
	instance := ""
	if r != nil {
		instance = r.URL.Path
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewProblemDetails(http.StatusGatewayTimeout, TypeTimeout,
			"Request Timeout", "The request took too long to process and was cancelled", instance)
	}

	var te *TransitionError
	if errors.As(err, &te) {
		return NewProblemDetails(http.StatusConflict, TypeTransition,
			"Invalid Claim Transition", te.Error(), instance).
			WithExtension("current_status", te.Current).
			WithExtension("requested_status", te.Requested)
	}

	var ce *ConflictError
	if errors.As(err, &ce) {
		return NewProblemDetails(http.StatusConflict, TypeConflict,
			"Concurrent Update Conflict", ce.Error(), instance)
	}

	var re *ReferenceError
	if errors.As(err, &re) {
		return NewProblemDetails(http.StatusUnprocessableEntity, TypeReference,
			"Missing Reference", re.Error(), instance)
	}

	var ve *ValidationError
	if errors.As(err, &ve) {
		return NewProblemDetails(http.StatusBadRequest, TypeValidation,
			"Validation Failed", ve.Error(), instance).
			WithExtension("field", ve.Field)
	}

	var nf *NotFoundError
	if errors.As(err, &nf) {
		return NewProblemDetails(http.StatusNotFound, TypeNotFound,
			"Not Found", nf.Error(), instance)
	}

	return NewProblemDetails(http.StatusInternalServerError, TypeInternal,
		"Internal Server Error", "An unexpected error occurred", instance)
}
