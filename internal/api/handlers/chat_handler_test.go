package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/finki-hub/finki-chat-bot/internal/errors"
	"github.com/finki-hub/finki-chat-bot/internal/llm"
	"github.com/finki-hub/finki-chat-bot/internal/models"
	"github.com/finki-hub/finki-chat-bot/internal/service"
)

type stubChat struct {
	stream *service.ChatStream
	err    error
	gotReq models.ChatRequest
}

func (s *stubChat) Chat(_ context.Context, req models.ChatRequest) (*service.ChatStream, error) {
	s.gotReq = req

	return s.stream, s.err
}

func chatStreamOf(events ...llm.Event) *service.ChatStream {
	ch := make(chan llm.Event, len(events))
	for _, ev := range events {
		ch <- ev
	}

	close(ch)

	return &service.ChatStream{Events: ch, Mode: llm.ModeDirect}
}

func postChat(t *testing.T, h *ChatHandler, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Chat(rec, req)

	return rec
}

func TestChatHandler(t *testing.T) {
	t.Run("streams tokens as SSE frames", func(t *testing.T) {
		stub := &stubChat{stream: chatStreamOf(llm.Event{Text: "Здраво"}, llm.Event{Text: ", свету"})}
		h := NewChatHandler(stub, nil)

		rec := postChat(t, h, `{"prompt":"Кога е сесијата?"}`)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/event-stream; charset=utf-8", rec.Header().Get("Content-Type"))
		assert.Equal(t, "data: Здраво\n\ndata: , свету\n\n", rec.Body.String())
	})

	t.Run("defaults applied before the service sees the request", func(t *testing.T) {
		stub := &stubChat{stream: chatStreamOf()}
		h := NewChatHandler(stub, nil)

		postChat(t, h, `{"prompt":"п"}`)

		assert.Equal(t, models.DefaultEmbeddingsModel, stub.gotReq.EmbeddingsModel)
		assert.Equal(t, models.DefaultInferenceModel, stub.gotReq.InferenceModel)
		require.NotNil(t, stub.gotReq.UseAgent)
		assert.True(t, *stub.gotReq.UseAgent)
	})

	t.Run("invalid JSON is 400", func(t *testing.T) {
		h := NewChatHandler(&stubChat{}, nil)

		rec := postChat(t, h, `{`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	})

	t.Run("missing prompt is 400", func(t *testing.T) {
		h := NewChatHandler(&stubChat{}, nil)

		rec := postChat(t, h, `{}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unsupported model is 400 with problem body", func(t *testing.T) {
		stub := &stubChat{err: apperrors.NewUnsupportedModelError("bge-m3:latest", "inference")}
		h := NewChatHandler(stub, nil)

		rec := postChat(t, h, `{"prompt":"п","inference_model":"bge-m3:latest"}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "bge-m3:latest")
	})

	t.Run("model not ready is 503", func(t *testing.T) {
		stub := &stubChat{err: apperrors.NewModelNotReadyError("bge-m3:latest")}
		h := NewChatHandler(stub, nil)

		rec := postChat(t, h, `{"prompt":"п"}`)

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("provider unavailable is 504 with zero SSE output", func(t *testing.T) {
		stub := &stubChat{err: apperrors.NewProviderUnavailableError("ollama", errors.New("refused"))}
		h := NewChatHandler(stub, nil)

		rec := postChat(t, h, `{"prompt":"п"}`)

		assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
		assert.NotContains(t, rec.Body.String(), "data:")
	})

	t.Run("mid-stream failure ends with one in-band error frame", func(t *testing.T) {
		stub := &stubChat{stream: chatStreamOf(
			llm.Event{Text: "дел од одговорот"},
			llm.Event{Err: errors.New("backend died")},
		)}
		h := NewChatHandler(stub, nil)

		rec := postChat(t, h, `{"prompt":"п"}`)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t,
			"data: дел од одговорот\n\ndata: "+streamErrorMessage+"\n\n",
			rec.Body.String())
		assert.NotContains(t, rec.Body.String(), "backend died")
	})
}
