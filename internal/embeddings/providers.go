package embeddings

import (
	"context"

	"github.com/finki-hub/finki-chat-bot/internal/googleai"
	"github.com/finki-hub/finki-chat-bot/internal/gpuapi"
	"github.com/finki-hub/finki-chat-bot/internal/models"
	"github.com/finki-hub/finki-chat-bot/internal/ollama"
	"github.com/finki-hub/finki-chat-bot/internal/openai"
)

// OllamaClient serves embeddings from a co-hosted Ollama server.
type OllamaClient struct {
	client *ollama.Client
	model  models.Model
}

// NewOllamaClient creates an embedding client for the given Ollama-hosted model.
func NewOllamaClient(client *ollama.Client, model models.Model) *OllamaClient {
	return &OllamaClient{client: client, model: model}
}

func (c *OllamaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}

	return vectors[0], nil
}

func (c *OllamaClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return c.client.CreateEmbeddings(ctx, texts, string(c.model))
}

// GPUClient serves embeddings from the remote GPU worker.
type GPUClient struct {
	client *gpuapi.Client
	model  models.Model
}

// NewGPUClient creates an embedding client for the given GPU-worker-hosted model.
func NewGPUClient(client *gpuapi.Client, model models.Model) *GPUClient {
	return &GPUClient{client: client, model: model}
}

func (c *GPUClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}

	return vectors[0], nil
}

func (c *GPUClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return c.client.CreateEmbeddings(ctx, texts, string(c.model))
}

// OpenAIClient serves embeddings from the OpenAI API.
type OpenAIClient struct {
	client *openai.Client
	model  models.Model
}

// NewOpenAIClient creates an embedding client for the given OpenAI model.
func NewOpenAIClient(client *openai.Client, model models.Model) *OpenAIClient {
	return &OpenAIClient{client: client, model: model}
}

func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}

	return vectors[0], nil
}

func (c *OpenAIClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return c.client.CreateEmbeddings(ctx, texts, string(c.model), c.model.EmbeddingDimensions())
}

// GoogleClient serves embeddings from the Gemini API.
type GoogleClient struct {
	client *googleai.Client
	model  models.Model
}

// NewGoogleClient creates an embedding client for the given Gemini model.
func NewGoogleClient(client *googleai.Client, model models.Model) *GoogleClient {
	return &GoogleClient{client: client, model: model}
}

func (c *GoogleClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}

	return vectors[0], nil
}

func (c *GoogleClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return c.client.CreateEmbeddings(ctx, texts, string(c.model), c.model.EmbeddingDimensions())
}

var (
	_ Client = (*OllamaClient)(nil)
	_ Client = (*GPUClient)(nil)
	_ Client = (*OpenAIClient)(nil)
	_ Client = (*GoogleClient)(nil)
)
