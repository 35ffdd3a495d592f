package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/finki-hub/finki-chat-bot/internal/api/response"
	"github.com/finki-hub/finki-chat-bot/internal/api/validation"
	"github.com/finki-hub/finki-chat-bot/internal/models"
)

// LinksManager is the service surface the handler needs.
type LinksManager interface {
	List(ctx context.Context) ([]models.Link, error)
	ListNames(ctx context.Context) ([]string, error)
	GetByName(ctx context.Context, name string) (*models.Link, error)
	Create(ctx context.Context, req models.CreateLinkRequest) (*models.Link, error)
	Update(ctx context.Context, name string, req models.UpdateLinkRequest) (*models.Link, error)
	Delete(ctx context.Context, name string) error
}

// LinksHandler serves the link CRUD routes.
type LinksHandler struct {
	links  LinksManager
	logger *slog.Logger
}

// NewLinksHandler creates a LinksHandler.
func NewLinksHandler(links LinksManager, logger *slog.Logger) *LinksHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &LinksHandler{links: links, logger: logger}
}

// List handles GET /links/list.
func (h *LinksHandler) List(w http.ResponseWriter, r *http.Request) {
	links, err := h.links.List(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list links failed", "error", err)
		response.RespondFromError(w, err)

		return
	}

	response.RespondJSON(w, http.StatusOK, links)
}

// ListNames handles GET /links/names.
func (h *LinksHandler) ListNames(w http.ResponseWriter, r *http.Request) {
	names, err := h.links.ListNames(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list link names failed", "error", err)
		response.RespondFromError(w, err)

		return
	}

	response.RespondJSON(w, http.StatusOK, names)
}

// GetByName handles GET /links/name/{name}.
func (h *LinksHandler) GetByName(w http.ResponseWriter, r *http.Request) {
	link, err := h.links.GetByName(r.Context(), r.PathValue("name"))
	if err != nil {
		response.RespondFromError(w, err)

		return
	}

	response.RespondJSON(w, http.StatusOK, link)
}

// Create handles POST /links/create.
func (h *LinksHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.RespondBadRequest(w, "invalid JSON body: "+err.Error())

		return
	}

	if err := validation.ValidateStruct(&req); err != nil {
		validation.RespondValidationError(w, err)

		return
	}

	link, err := h.links.Create(r.Context(), req)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "create link failed", "name", req.Name, "error", err)
		response.RespondFromError(w, err)

		return
	}

	response.RespondJSON(w, http.StatusCreated, link)
}

// Update handles PUT /links/update/{name}.
func (h *LinksHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.RespondBadRequest(w, "invalid JSON body: "+err.Error())

		return
	}

	if err := validation.ValidateStruct(&req); err != nil {
		validation.RespondValidationError(w, err)

		return
	}

	link, err := h.links.Update(r.Context(), r.PathValue("name"), req)
	if err != nil {
		response.RespondFromError(w, err)

		return
	}

	response.RespondJSON(w, http.StatusOK, link)
}

// Delete handles DELETE /links/delete/{name}.
func (h *LinksHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.links.Delete(r.Context(), r.PathValue("name")); err != nil {
		response.RespondFromError(w, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}
