package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/finki-hub/finki-chat-bot/internal/api/response"
	"github.com/finki-hub/finki-chat-bot/internal/api/validation"
	"github.com/finki-hub/finki-chat-bot/internal/models"
	"github.com/finki-hub/finki-chat-bot/internal/service"
)

// QuestionsManager is the service surface the handler needs.
type QuestionsManager interface {
	List(ctx context.Context) ([]models.Question, error)
	ListNames(ctx context.Context) ([]string, error)
	GetByName(ctx context.Context, name string) (*models.Question, error)
	GetNth(ctx context.Context, n int) (*models.Question, error)
	Create(ctx context.Context, req models.CreateQuestionRequest) (*models.Question, error)
	Update(ctx context.Context, name string, req models.UpdateQuestionRequest) (*models.Question, error)
	Delete(ctx context.Context, name string) error
	FillEmbeddings(ctx context.Context, model models.Model, all bool) (<-chan service.BackfillEvent, error)
}

// QuestionsHandler serves the question CRUD and backfill routes.
type QuestionsHandler struct {
	questions QuestionsManager
	logger    *slog.Logger
}

// NewQuestionsHandler creates a QuestionsHandler.
func NewQuestionsHandler(questions QuestionsManager, logger *slog.Logger) *QuestionsHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &QuestionsHandler{questions: questions, logger: logger}
}

// List handles GET /questions/list.
func (h *QuestionsHandler) List(w http.ResponseWriter, r *http.Request) {
	questions, err := h.questions.List(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list questions failed", "error", err)
		response.RespondFromError(w, err)

		return
	}

	response.RespondJSON(w, http.StatusOK, questions)
}

// ListNames handles GET /questions/names.
func (h *QuestionsHandler) ListNames(w http.ResponseWriter, r *http.Request) {
	names, err := h.questions.ListNames(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list question names failed", "error", err)
		response.RespondFromError(w, err)

		return
	}

	response.RespondJSON(w, http.StatusOK, names)
}

// GetByName handles GET /questions/name/{name}.
func (h *QuestionsHandler) GetByName(w http.ResponseWriter, r *http.Request) {
	q, err := h.questions.GetByName(r.Context(), r.PathValue("name"))
	if err != nil {
		response.RespondFromError(w, err)

		return
	}

	response.RespondJSON(w, http.StatusOK, q)
}

// GetNth handles GET /questions/nth/{n}.
func (h *QuestionsHandler) GetNth(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(r.PathValue("n"))
	if err != nil || n < 0 {
		response.RespondBadRequest(w, "n must be a non-negative integer")

		return
	}

	q, err := h.questions.GetNth(r.Context(), n)
	if err != nil {
		response.RespondFromError(w, err)

		return
	}

	response.RespondJSON(w, http.StatusOK, q)
}

// Create handles POST /questions/create.
func (h *QuestionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateQuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.RespondBadRequest(w, "invalid JSON body: "+err.Error())

		return
	}

	if err := validation.ValidateStruct(&req); err != nil {
		validation.RespondValidationError(w, err)

		return
	}

	q, err := h.questions.Create(r.Context(), req)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "create question failed", "name", req.Name, "error", err)
		response.RespondFromError(w, err)

		return
	}

	response.RespondJSON(w, http.StatusCreated, q)
}

// Update handles PUT /questions/update/{name}.
func (h *QuestionsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateQuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.RespondBadRequest(w, "invalid JSON body: "+err.Error())

		return
	}

	if err := validation.ValidateStruct(&req); err != nil {
		validation.RespondValidationError(w, err)

		return
	}

	q, err := h.questions.Update(r.Context(), r.PathValue("name"), req)
	if err != nil {
		response.RespondFromError(w, err)

		return
	}

	response.RespondJSON(w, http.StatusOK, q)
}

// Delete handles DELETE /questions/delete/{name}.
func (h *QuestionsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.questions.Delete(r.Context(), r.PathValue("name")); err != nil {
		response.RespondFromError(w, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// backfillParams are the decoded query parameters of the backfill endpoint.
type backfillParams struct {
	Model models.Model `form:"model"`
	All   bool         `form:"all"`
}

// FillEmbeddings handles POST /questions/fill-embeddings?model=M&all=bool,
// streaming one SSE frame per processed question and a final summary frame.
func (h *QuestionsHandler) FillEmbeddings(w http.ResponseWriter, r *http.Request) {
	var params backfillParams
	if err := validation.ValidateAndDecodeQueryParams(r, &params); err != nil {
		validation.RespondValidationError(w, err)

		return
	}

	if params.Model == "" {
		params.Model = models.DefaultEmbeddingsModel
	}

	ctx := r.Context()

	events, err := h.questions.FillEmbeddings(ctx, params.Model, params.All)
	if err != nil {
		h.logger.ErrorContext(ctx, "backfill failed to start", "model", params.Model, "error", err)
		response.RespondFromError(w, err)

		return
	}

	sse, err := newSSEWriter(w)
	if err != nil {
		response.RespondFromError(w, err)

		return
	}

	for ev := range events {
		if err := sse.WriteData(formatBackfillEvent(ev)); err != nil {
			h.logger.DebugContext(ctx, "backfill stream client disconnected", "error", err)

			return
		}
	}
}

// formatBackfillEvent renders one backfill frame as human-readable progress.
func formatBackfillEvent(ev service.BackfillEvent) string {
	if ev.Summary != nil {
		return fmt.Sprintf("done: %d total, %d succeeded, %d failed in %s",
			ev.Summary.Total, ev.Summary.Succeeded, ev.Summary.Failed, ev.Summary.Duration.Round(time.Millisecond))
	}

	p := ev.Progress
	if p.Err != nil {
		return fmt.Sprintf("[%d/%d] %s: ERROR: %v", p.Index, p.Total, p.Name, p.Err)
	}

	return fmt.Sprintf("[%d/%d] %s: ok", p.Index, p.Total, p.Name)
}
