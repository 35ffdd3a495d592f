package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/finki-hub/finki-chat-bot/internal/api/response"
)

const healthCheckTimeout = 2 * time.Second

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves GET /health.
type HealthHandler struct {
	db     Pinger
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(db Pinger, logger *slog.Logger) *HealthHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &HealthHandler{db: db, logger: logger}
}

// Health reports service liveness and database reachability.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		h.logger.ErrorContext(r.Context(), "health check: database unreachable", "error", err)
		response.RespondError(w, http.StatusServiceUnavailable, "Service Unavailable", "database unreachable")

		return
	}

	response.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
