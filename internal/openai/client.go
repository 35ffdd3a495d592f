// Package openai provides a thin wrapper around the official OpenAI Go SDK for
// embeddings, one-shot completions, and streaming chat.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
)

var (
	// ErrEmptyInput is returned when an embedding or completion is requested for empty text.
	ErrEmptyInput = errors.New("openai: input text is empty")
	// ErrNoEmbeddingInResponse is returned when the API response contains no embedding data.
	ErrNoEmbeddingInResponse = errors.New("openai: no embedding in response")
	// ErrDimensionMismatch is returned when the response embedding length does not match the requested dimensions.
	ErrDimensionMismatch = errors.New("openai: embedding dimension mismatch")
	// ErrNoCompletionInResponse is returned when a completion response has no choices.
	ErrNoCompletionInResponse = errors.New("openai: no completion in response")
)

// Client calls the OpenAI API via the official SDK. One Client serves all
// OpenAI model identifiers; sampling parameters travel per call.
type Client struct {
	sdk openaisdk.Client
}

// NewClient creates an OpenAI client using the official SDK.
func NewClient(apiKey string) *Client {
	return &Client{sdk: openaisdk.NewClient(option.WithAPIKey(apiKey))}
}

// CreateEmbeddings returns one vector per input text, order-preserving.
// dimensions must match the storage column for the model.
func (c *Client) CreateEmbeddings(ctx context.Context, inputs []string, model string, dimensions int) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, ErrEmptyInput
	}

	for _, in := range inputs {
		if strings.TrimSpace(in) == "" {
			return nil, ErrEmptyInput
		}
	}

	resp, err := c.sdk.Embeddings.New(ctx, openaisdk.EmbeddingNewParams{
		Input: openaisdk.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: inputs,
		},
		Model:      openaisdk.EmbeddingModel(model),
		Dimensions: param.NewOpt(int64(dimensions)),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}

	if len(resp.Data) != len(inputs) {
		return nil, fmt.Errorf("%w: got %d vectors for %d inputs", ErrNoEmbeddingInResponse, len(resp.Data), len(inputs))
	}

	out := make([][]float32, len(resp.Data))

	for i, data := range resp.Data {
		if len(data.Embedding) != dimensions {
			return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(data.Embedding), dimensions)
		}

		vec := make([]float32, len(data.Embedding))
		for j, v := range data.Embedding {
			vec[j] = float32(v)
		}

		out[i] = vec
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

func (p ChatParams) toRequest() openaisdk.ChatCompletionNewParams {
	return openaisdk.ChatCompletionNewParams{
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.SystemMessage(p.SystemPrompt),
			openaisdk.UserMessage(p.UserPrompt),
		},
		Model:               p.Model,
		Temperature:         param.NewOpt(p.Temperature),
		TopP:                param.NewOpt(p.TopP),
		MaxCompletionTokens: param.NewOpt(int64(p.MaxTokens)),
	}
}

// Complete performs a one-shot (non-streaming) chat completion and returns the text.
func (c *Client) Complete(ctx context.Context, p ChatParams) (string, error) {
	if strings.TrimSpace(p.UserPrompt) == "" {
		return "", ErrEmptyInput
	}

	resp, err := c.sdk.Chat.Completions.New(ctx, p.toRequest())
	if err != nil {
		return "", fmt.Errorf("openai completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrNoCompletionInResponse
	}

	return resp.Choices[0].Message.Content, nil
}

// Delta is one increment of a streamed chat response. Err, when set, is the
// terminal event; the channel closes right after.
type Delta struct {
	Text string
	Err  error
}

// StreamChat starts a streaming chat completion. Deltas arrive on the returned
// channel as the model produces them; the channel closes when the stream ends.
// Cancelling ctx stops the stream and closes the underlying connection.
func (c *Client) StreamChat(ctx context.Context, p ChatParams) <-chan Delta {
	out := make(chan Delta)

	go func() {
		defer close(out)

		stream := c.sdk.Chat.Completions.NewStreaming(ctx, p.toRequest())
		defer stream.Close()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}

			text := chunk.Choices[0].Delta.Content
			if text == "" {
				continue
			}

			select {
			case out <- Delta{Text: text}:
			case <-ctx.Done():
				return
			}
		}

		if err := stream.Err(); err != nil && !errors.Is(err, context.Canceled) {
			select {
			case out <- Delta{Err: fmt.Errorf("openai stream: %w", err)}:
			case <-ctx.Done():
			}
		}
	}()

	return out
}
