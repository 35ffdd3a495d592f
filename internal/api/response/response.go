// Package response writes JSON success and RFC 7807 problem responses, and
// owns the single place where typed service errors become HTTP statuses.
package response

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apperrors "github.com/finki-hub/finki-chat-bot/internal/errors"
	"github.com/finki-hub/finki-chat-bot/internal/repository"
)

// ProblemDetails is an RFC 7807 Problem Details error body.
type ProblemDetails struct {
	Type   string        `json:"type,omitempty"`
	Title  string        `json:"title"`
	Status int           `json:"status"`
	Detail string        `json:"detail,omitempty"`
	Errors []ErrorDetail `json:"errors,omitempty"`
}

// ErrorDetail is one field-level entry in a validation problem response.
type ErrorDetail struct {
	Location string `json:"location"`
	Message  string `json:"message"`
	Value    any    `json:"value,omitempty"`
}

// RespondJSON writes v as JSON with the given status.
func RespondJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response failed", "error", err)
	}
}

// RespondError writes an RFC 7807 Problem Details error response.
func RespondError(w http.ResponseWriter, statusCode int, title, detail string) {
	problem := ProblemDetails{
		Type:   "about:blank",
		Title:  title,
		Status: statusCode,
		Detail: detail,
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(problem); err != nil {
		slog.Error("encode error response failed", "error", err)
	}
}

// RespondBadRequest writes a 400 Bad Request error response.
func RespondBadRequest(w http.ResponseWriter, detail string) {
	RespondError(w, http.StatusBadRequest, "Bad Request", detail)
}

// RespondUnauthorized writes a 401 Unauthorized error response.
func RespondUnauthorized(w http.ResponseWriter, detail string) {
	RespondError(w, http.StatusUnauthorized, "Unauthorized", detail)
}

// RespondNotFound writes a 404 Not Found error response.
func RespondNotFound(w http.ResponseWriter, detail string) {
	RespondError(w, http.StatusNotFound, "Not Found", detail)
}

// RespondFromError translates a typed error into its HTTP status. This is the
// single translation point: services return typed errors, handlers call this.
func RespondFromError(w http.ResponseWriter, err error) {
	var maxBytes *http.MaxBytesError

	switch {
	case errors.Is(err, apperrors.ErrUnsupportedModel):
		RespondError(w, http.StatusBadRequest, "Unsupported Model", err.Error())
	case errors.Is(err, apperrors.ErrModelNotReady):
		RespondError(w, http.StatusServiceUnavailable, "Model Not Ready", err.Error())
	case errors.Is(err, apperrors.ErrRetrieval):
		RespondError(w, http.StatusServiceUnavailable, "Retrieval Unavailable", err.Error())
	case errors.Is(err, apperrors.ErrProviderUnavailable):
		RespondError(w, http.StatusGatewayTimeout, "Provider Unavailable", err.Error())
	case errors.Is(err, apperrors.ErrNotFound),
		errors.Is(err, repository.ErrQuestionNotFound),
		errors.Is(err, repository.ErrLinkNotFound):
		RespondNotFound(w, err.Error())
	case errors.Is(err, repository.ErrDuplicateName):
		RespondError(w, http.StatusConflict, "Conflict", err.Error())
	case errors.As(err, &maxBytes):
		RespondError(w, http.StatusRequestEntityTooLarge, "Request Entity Too Large", "request body exceeds maximum allowed size")
	default:
		RespondError(w, http.StatusInternalServerError, "Internal Server Error", "an unexpected error occurred")
	}
}
