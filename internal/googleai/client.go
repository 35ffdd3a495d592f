// Package googleai provides a thin wrapper around the Google Gen AI SDK for
// embeddings and streaming chat (Gemini API).
package googleai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"google.golang.org/genai"
)

var (
	// ErrEmptyInput is returned when an embedding or chat call is made with empty text.
	ErrEmptyInput = errors.New("googleai: input text is empty")
	// ErrInvalidDims is returned when dimensions is not positive.
	ErrInvalidDims = errors.New("googleai: embedding dimensions must be positive")
	// ErrNoEmbeddingInResponse is returned when the API response contains no embedding data.
	ErrNoEmbeddingInResponse = errors.New("googleai: no embedding in response")
	// ErrDimensionMismatch is returned when the response embedding length does not match the requested dimensions.
	ErrDimensionMismatch = errors.New("googleai: embedding dimension mismatch")
)

// Client calls the Gemini API via the Google Gen AI SDK.
type Client struct {
	client *genai.Client
}

// NewClient creates a Gemini client.
func NewClient(ctx context.Context, apiKey string) (*Client, error) {
	genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("googleai client: %w", err)
	}

	return &Client{client: genaiClient}, nil
}

// CreateEmbeddings returns one vector per input text, order-preserving, with
// the requested output dimensionality.
func (c *Client) CreateEmbeddings(ctx context.Context, inputs []string, model string, dimensions int) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, ErrEmptyInput
	}

	if dimensions <= 0 || dimensions > math.MaxInt32 {
		return nil, ErrInvalidDims
	}

	contents := make([]*genai.Content, 0, len(inputs))

	for _, in := range inputs {
		if strings.TrimSpace(in) == "" {
			return nil, ErrEmptyInput
		}

		contents = append(contents, genai.NewContentFromText(in, genai.RoleUser))
	}

	//nolint:gosec // G115: dimensions is bounded above by math.MaxInt32
	dimInt32 := int32(dimensions)

	resp, err := c.client.Models.EmbedContent(ctx, model, contents, &genai.EmbedContentConfig{
		OutputDimensionality: &dimInt32,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini embeddings: %w", err)
	}

	if len(resp.Embeddings) != len(inputs) {
		return nil, fmt.Errorf("%w: got %d vectors for %d inputs", ErrNoEmbeddingInResponse, len(resp.Embeddings), len(inputs))
	}

	out := make([][]float32, len(resp.Embeddings))

	for i, emb := range resp.Embeddings {
		if len(emb.Values) != dimensions {
			return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(emb.Values), dimensions)
		}

		out[i] = emb.Values
	}

	return out, nil
}

// ChatParams carries one chat call's prompt and sampling configuration.
type ChatParams struct {
	Model        string
	SystemPrompt string
	UserPrompt   string
	Temperature  float64
	TopP         float64
	MaxTokens    int
}

// Delta is one increment of a streamed chat response. Err, when set, is the
// terminal event; the channel closes right after.
type Delta struct {
	Text string
	Err  error
}

// StreamChat starts a streaming chat call. Deltas arrive on the returned
// channel as the model produces them; the channel closes when the stream ends.
func (c *Client) StreamChat(ctx context.Context, p ChatParams) <-chan Delta {
	out := make(chan Delta)

	go func() {
		defer close(out)

		temperature := float32(p.Temperature)
		topP := float32(p.TopP)

		cfg := &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(p.SystemPrompt, genai.RoleUser),
			Temperature:       &temperature,
			TopP:              &topP,
			//nolint:gosec // G115: max_tokens is validated to a small positive range upstream
			MaxOutputTokens: int32(p.MaxTokens),
		}

		contents := []*genai.Content{genai.NewContentFromText(p.UserPrompt, genai.RoleUser)}

		for resp, err := range c.client.Models.GenerateContentStream(ctx, p.Model, contents, cfg) {
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					select {
					case out <- Delta{Err: fmt.Errorf("gemini stream: %w", err)}:
					case <-ctx.Done():
					}
				}

				return
			}

			text := resp.Text()
			if text == "" {
				continue
			}

			select {
			case out <- Delta{Text: text}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}
