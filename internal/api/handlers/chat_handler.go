package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/finki-hub/finki-chat-bot/internal/api/response"
	"github.com/finki-hub/finki-chat-bot/internal/api/validation"
	"github.com/finki-hub/finki-chat-bot/internal/models"
	"github.com/finki-hub/finki-chat-bot/internal/service"
)

// streamErrorMessage is shown to the user when generation dies after output
// has already begun; the real error goes to the log.
const streamErrorMessage = "Настана грешка при генерирање на одговорот. Обидете се повторно."

// ChatStarter starts the retrieval-augmented chat pipeline.
type ChatStarter interface {
	Chat(ctx context.Context, req models.ChatRequest) (*service.ChatStream, error)
}

// ChatHandler serves POST /chat as an SSE stream.
type ChatHandler struct {
	chat   ChatStarter
	logger *slog.Logger
}

// NewChatHandler creates a ChatHandler.
func NewChatHandler(chat ChatStarter, logger *slog.Logger) *ChatHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &ChatHandler{chat: chat, logger: logger}
}

// Chat decodes the request, runs the pipeline, and streams the answer.
// Pipeline failures before the first token come back as structured errors;
// once streaming has begun, a failure ends the stream with one in-band error
// frame because partial output has already been delivered.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			response.RespondFromError(w, err)

			return
		}

		response.RespondBadRequest(w, "invalid JSON body: "+err.Error())

		return
	}

	req.ApplyDefaults()

	if err := validation.ValidateStruct(&req); err != nil {
		validation.RespondValidationError(w, err)

		return
	}

	ctx := r.Context()

	stream, err := h.chat.Chat(ctx, req)
	if err != nil {
		h.logger.WarnContext(ctx, "chat request failed",
			"inference_model", req.InferenceModel,
			"embeddings_model", req.EmbeddingsModel,
			"error", err,
		)
		response.RespondFromError(w, err)

		return
	}

	h.logger.InfoContext(ctx, "chat stream started",
		"inference_model", req.InferenceModel,
		"mode", stream.Mode,
		"fallback_reason", stream.FallbackReason,
		"documents", stream.Documents,
		"rerank_applied", stream.RerankApplied,
	)

	sse, err := newSSEWriter(w)
	if err != nil {
		response.RespondFromError(w, err)

		return
	}

	for ev := range stream.Events {
		if ev.Err != nil {
			h.logger.ErrorContext(ctx, "chat stream failed mid-generation",
				"inference_model", req.InferenceModel,
				"error", ev.Err,
			)

			_ = sse.WriteData(streamErrorMessage)

			return
		}

		if err := sse.WriteData(ev.Text); err != nil {
			// Client went away; cancellation via ctx stops the producer.
			h.logger.DebugContext(ctx, "chat stream client disconnected", "error", err)

			return
		}
	}
}
