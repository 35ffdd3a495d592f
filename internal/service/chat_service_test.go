package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finki-hub/finki-chat-bot/internal/embeddings"
	apperrors "github.com/finki-hub/finki-chat-bot/internal/errors"
	"github.com/finki-hub/finki-chat-bot/internal/llm"
	"github.com/finki-hub/finki-chat-bot/internal/models"
)

type stubRetriever struct {
	candidates []models.RetrievalCandidate
	err        error

	gotLimit     int
	gotThreshold float64
	calls        int
}

func (s *stubRetriever) Nearest(
	_ context.Context, _ []float32, _ models.Model, limit int, threshold float64,
) ([]models.RetrievalCandidate, error) {
	s.calls++
	s.gotLimit = limit
	s.gotThreshold = threshold

	return s.candidates, s.err
}

// countingEmbedder wraps the deterministic mock and counts embed calls.
type countingEmbedder struct {
	inner *embeddings.MockClient
	calls int
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls++

	return c.inner.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return c.inner.EmbedBatch(ctx, texts)
}

type failingEmbedder struct {
	err error
}

func (f failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, f.err
}

func (f failingEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, f.err
}

type capturingProvider struct {
	gotPrompt llm.Prompt
	reply     string
}

func (p *capturingProvider) Stream(_ context.Context, pr llm.Prompt) (<-chan llm.Event, error) {
	p.gotPrompt = pr

	out := make(chan llm.Event, 1)
	out <- llm.Event{Text: p.reply}
	close(out)

	return out, nil
}

type chatFixture struct {
	service   *ChatService
	retriever *stubRetriever
	embedder  *countingEmbedder
	provider  *capturingProvider
}

func newChatFixture(t *testing.T, retriever *stubRetriever) *chatFixture {
	t.Helper()

	embedder := &countingEmbedder{inner: embeddings.NewMockClient()}
	registry := embeddings.NewRegistry()
	registry.Register(models.ModelBGEM3, embedder)

	provider := &capturingProvider{reply: "одговор"}

	llmRegistry, err := llm.NewRegistry(func(context.Context, llm.Params) (llm.StreamingProvider, error) {
		return provider, nil
	})
	require.NoError(t, err)

	svc := NewChatService(ChatServiceParams{
		Questions:      retriever,
		Embeddings:     registry,
		Transformer:    NewQueryTransformer(nil, nil),
		Reranker:       NewReranker(nil, nil),
		Dispatcher:     llm.NewDispatcher(llmRegistry, nil, nil),
		Settings:       RetrievalSettings{Threshold: 0.5, InitialK: 30, TopK: 10},
		QueryCacheSize: 16,
	})

	return &chatFixture{service: svc, retriever: retriever, embedder: embedder, provider: provider}
}

func chatRequest(prompt string) models.ChatRequest {
	req := models.ChatRequest{Prompt: prompt}
	req.ApplyDefaults()

	return req
}

func candidatesNamed(names ...string) []models.RetrievalCandidate {
	out := make([]models.RetrievalCandidate, len(names))
	for i, name := range names {
		out[i] = models.RetrievalCandidate{
			Question: models.Question{Name: name, Content: "содржина за " + name},
			Distance: float64(i) / 100,
		}
	}

	return out
}

func TestChatPipeline(t *testing.T) {
	t.Run("retrieved context reaches the prompt", func(t *testing.T) {
		fx := newChatFixture(t, &stubRetriever{candidates: candidatesNamed("испитна сесија")})

		stream, err := fx.service.Chat(context.Background(), chatRequest("Кога е сесијата?"))
		require.NoError(t, err)
		assert.Equal(t, 1, stream.Documents)
		assert.Equal(t, llm.ModeDirect, stream.Mode)

		assert.Contains(t, fx.provider.gotPrompt.User, "испитна сесија")
		assert.Contains(t, fx.provider.gotPrompt.User, "Кога е сесијата?")

		// Retrieval window comes from settings.
		assert.Equal(t, 30, fx.retriever.gotLimit)
		assert.InDelta(t, 0.5, fx.retriever.gotThreshold, 1e-9)
	})

	t.Run("no candidates yields the fallback context", func(t *testing.T) {
		fx := newChatFixture(t, &stubRetriever{})

		stream, err := fx.service.Chat(context.Background(), chatRequest("Нешто сосема несврзано"))
		require.NoError(t, err)
		assert.Zero(t, stream.Documents)
		assert.Contains(t, fx.provider.gotPrompt.User, "Не беа пронајдени релевантни информации")
	})

	t.Run("pool is truncated to top K", func(t *testing.T) {
		names := make([]string, 30)
		for i := range names {
			names[i] = fmt.Sprintf("прашање-%d", i)
		}

		fx := newChatFixture(t, &stubRetriever{candidates: candidatesNamed(names...)})

		stream, err := fx.service.Chat(context.Background(), chatRequest("Кога е сесијата?"))
		require.NoError(t, err)
		assert.Equal(t, 10, stream.Documents)
		assert.Contains(t, fx.provider.gotPrompt.User, "прашање-9")
		assert.NotContains(t, fx.provider.gotPrompt.User, "прашање-10")
	})

	t.Run("repeated query hits the embedding cache", func(t *testing.T) {
		fx := newChatFixture(t, &stubRetriever{candidates: candidatesNamed("а")})

		req := chatRequest("Кога е сесијата?")

		_, err := fx.service.Chat(context.Background(), req)
		require.NoError(t, err)
		_, err = fx.service.Chat(context.Background(), req)
		require.NoError(t, err)

		assert.Equal(t, 1, fx.embedder.calls)
		assert.Equal(t, 2, fx.retriever.calls)
	})

	t.Run("custom system prompt overrides the default", func(t *testing.T) {
		fx := newChatFixture(t, &stubRetriever{})

		req := chatRequest("прашање")
		system := "Одговарај само со да или не."
		req.SystemPrompt = &system

		_, err := fx.service.Chat(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, system, fx.provider.gotPrompt.System)
	})
}

func TestContextBlock(t *testing.T) {
	questions := []models.Question{
		{Name: "испитна сесија", Content: "Сесијата почнува во јуни."},
		{Name: "консултации", Content: "Консултациите се по договор."},
	}

	t.Run("distance ordering uses the list form", func(t *testing.T) {
		got := contextBlock(questions, false)
		assert.Contains(t, got, "- Наслов: испитна сесија")
		assert.NotContains(t, got, "---")
	})

	t.Run("reranked set keeps document formatting with separators", func(t *testing.T) {
		got := contextBlock(questions, true)
		assert.Contains(t, got, "Наслов: испитна сесија\nСодржина: Сесијата почнува во јуни.")
		assert.Contains(t, got, "\n\n---\n\n")
	})
}

func TestChatErrors(t *testing.T) {
	t.Run("non-inference model rejected", func(t *testing.T) {
		fx := newChatFixture(t, &stubRetriever{})

		req := chatRequest("прашање")
		req.InferenceModel = models.ModelBGEM3

		_, err := fx.service.Chat(context.Background(), req)

		var unsupported *apperrors.UnsupportedModelError

		require.ErrorAs(t, err, &unsupported)
	})

	t.Run("unregistered embeddings model rejected", func(t *testing.T) {
		fx := newChatFixture(t, &stubRetriever{})

		req := chatRequest("прашање")
		req.EmbeddingsModel = models.ModelTextEmb3SM

		_, err := fx.service.Chat(context.Background(), req)

		var unsupported *apperrors.UnsupportedModelError

		require.ErrorAs(t, err, &unsupported)
	})

	t.Run("loading embedding model passes through as not-ready", func(t *testing.T) {
		fx := newChatFixture(t, &stubRetriever{})

		registry := embeddings.NewRegistry()
		registry.Register(models.ModelBGEM3, failingEmbedder{err: apperrors.NewModelNotReadyError(string(models.ModelBGEM3))})
		fx.service.embeddings = registry

		_, err := fx.service.Chat(context.Background(), chatRequest("прашање"))

		var notReady *apperrors.ModelNotReadyError

		require.ErrorAs(t, err, &notReady)
	})

	t.Run("embedding failure becomes RetrievalError", func(t *testing.T) {
		fx := newChatFixture(t, &stubRetriever{})

		registry := embeddings.NewRegistry()
		registry.Register(models.ModelBGEM3, failingEmbedder{err: errors.New("connection refused")})
		fx.service.embeddings = registry

		_, err := fx.service.Chat(context.Background(), chatRequest("прашање"))

		var retrieval *apperrors.RetrievalError

		require.ErrorAs(t, err, &retrieval)
	})

	t.Run("retrieval failure becomes RetrievalError", func(t *testing.T) {
		fx := newChatFixture(t, &stubRetriever{err: errors.New("connection refused")})

		_, err := fx.service.Chat(context.Background(), chatRequest("прашање"))

		var retrieval *apperrors.RetrievalError

		require.ErrorAs(t, err, &retrieval)
	})
}
