// Package ollama provides an HTTP client for a co-hosted Ollama server,
// covering embeddings and NDJSON streaming chat.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

var (
	// ErrEmptyInput is returned when an embedding or chat call is made with empty text.
	ErrEmptyInput = errors.New("ollama: input text is empty")
	// ErrModelLoading is returned when the server reports the model is still loading (HTTP 503).
	ErrModelLoading = errors.New("ollama: model is still loading")
	// ErrNoEmbeddingInResponse is returned when the response carries no vectors.
	ErrNoEmbeddingInResponse = errors.New("ollama: no embedding in response")
)

// ClientOptions configures the Ollama client.
type ClientOptions struct {
	// BaseURL is the server base URL (default: "http://localhost:11434").
	BaseURL string
	// RetryMax is the maximum number of retries for non-streaming calls (default: 3).
	RetryMax int
	// Timeout bounds non-streaming calls (default: 120s; local embedding of long texts is slow).
	Timeout time.Duration
}

// Client talks to one Ollama server. Streaming calls use a plain http.Client
// with no overall timeout so long generations are not cut off; cancellation
// comes from the request context.
type Client struct {
	baseURL      string
	httpClient   *retryablehttp.Client
	streamClient *http.Client
}

// NewClient creates an Ollama client with default settings.
func NewClient(baseURL string) *Client {
	return NewClientWithOptions(ClientOptions{BaseURL: baseURL})
}

// NewClientWithOptions creates an Ollama client with custom options.
func NewClientWithOptions(opts ClientOptions) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = "http://localhost:11434"
	}

	if opts.Timeout == 0 {
		opts.Timeout = 120 * time.Second
	}

	if opts.RetryMax == 0 {
		opts.RetryMax = 3
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = opts.RetryMax
	retryClient.HTTPClient.Timeout = opts.Timeout
	retryClient.Logger = nil
	// A 503 means the model is still loading; retrying immediately will not
	// help, so surface it to the caller instead.
	retryClient.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if resp != nil && resp.StatusCode == http.StatusServiceUnavailable {
			return false, nil
		}

		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}

	return &Client{
		baseURL:      opts.BaseURL,
		httpClient:   retryClient,
		streamClient: &http.Client{},
	}
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// CreateEmbeddings returns one vector per input text, order-preserving.
func (c *Client) CreateEmbeddings(ctx context.Context, inputs []string, model string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, ErrEmptyInput
	}

	body, err := json.Marshal(embedRequest{Model: model, Input: inputs})
	if err != nil {
		return nil, fmt.Errorf("encode embed request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusServiceUnavailable {
		return nil, ErrModelLoading
	}

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

		return nil, fmt.Errorf("ollama embed: status %d: %s", resp.StatusCode, detail)
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}

	if len(parsed.Embeddings) != len(inputs) {
		return nil, fmt.Errorf("%w: got %d vectors for %d inputs", ErrNoEmbeddingInResponse, len(parsed.Embeddings), len(inputs))
	}

	return parsed.Embeddings, nil
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

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	NumPredict  int     `json:"num_predict"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  chatOptions   `json:"options"`
}

type chatChunk struct {
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
	Error   string      `json:"error,omitempty"`
}

type generateRequest struct {
	Model   string      `json:"model"`
	Prompt  string      `json:"prompt"`
	Stream  bool        `json:"stream"`
	Options chatOptions `json:"options"`
}

type generateChunk struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
	Error   string      `json:"error,omitempty"`
}

// Complete performs a one-shot (non-streaming) chat call and returns the text.
func (c *Client) Complete(ctx context.Context, p ChatParams) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: p.Model,
		Messages: []chatMessage{
			{Role: "system", Content: p.SystemPrompt},
			{Role: "user", Content: p.UserPrompt},
		},
		Stream: false,
		Options: chatOptions{
			Temperature: p.Temperature,
			TopP:        p.TopP,
			NumPredict:  p.MaxTokens,
		},
	})
	if err != nil {
		return "", fmt.Errorf("encode chat request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusServiceUnavailable {
		return "", ErrModelLoading
	}

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

		return "", fmt.Errorf("ollama chat: status %d: %s", resp.StatusCode, detail)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}

	if parsed.Error != "" {
		return "", fmt.Errorf("ollama chat: %s", parsed.Error)
	}

	return parsed.Message.Content, nil
}

// StreamChat starts a streaming chat call against /api/chat. Ollama frames the
// stream as one JSON object per line; each line's message content becomes one
// Delta. The channel closes when the server sends done or the context is cancelled.
func (c *Client) StreamChat(ctx context.Context, p ChatParams) <-chan Delta {
	payload := chatRequest{
		Model: p.Model,
		Messages: []chatMessage{
			{Role: "system", Content: p.SystemPrompt},
			{Role: "user", Content: p.UserPrompt},
		},
		Stream: true,
		Options: chatOptions{
			Temperature: p.Temperature,
			TopP:        p.TopP,
			NumPredict:  p.MaxTokens,
		},
	}

	return c.stream(ctx, "/api/chat", payload, func(line []byte) (string, bool, error) {
		var chunk chatChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			return "", false, fmt.Errorf("decode chat chunk: %w", err)
		}

		if chunk.Error != "" {
			return "", false, fmt.Errorf("ollama chat: %s", chunk.Error)
		}

		return chunk.Message.Content, chunk.Done, nil
	})
}

// StreamGenerate starts a streaming completion against /api/generate, for
// models that take a single prompt instead of role-tagged messages. The
// system prompt must already be folded into Prompt by the caller.
func (c *Client) StreamGenerate(ctx context.Context, p GenerateParams) <-chan Delta {
	payload := generateRequest{
		Model:  p.Model,
		Prompt: p.Prompt,
		Stream: true,
		Options: chatOptions{
			Temperature: p.Temperature,
			TopP:        p.TopP,
			NumPredict:  p.MaxTokens,
		},
	}

	return c.stream(ctx, "/api/generate", payload, func(line []byte) (string, bool, error) {
		var chunk generateChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			return "", false, fmt.Errorf("decode generate chunk: %w", err)
		}

		if chunk.Error != "" {
			return "", false, fmt.Errorf("ollama generate: %s", chunk.Error)
		}

		return chunk.Response, chunk.Done, nil
	})
}

// GenerateParams carries one raw-prompt completion call's configuration.
type GenerateParams struct {
	Model       string
	Prompt      string
	Temperature float64
	TopP        float64
	MaxTokens   int
}

// stream posts payload to path and turns the NDJSON response into Deltas.
// extract pulls the text increment and done flag out of one raw line.
func (c *Client) stream(ctx context.Context, path string, payload any, extract func([]byte) (string, bool, error)) <-chan Delta {
	out := make(chan Delta)

	go func() {
		defer close(out)

		fail := func(err error) {
			select {
			case out <- Delta{Err: err}:
			case <-ctx.Done():
			}
		}

		body, err := json.Marshal(payload)
		if err != nil {
			fail(fmt.Errorf("encode request: %w", err))

			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			fail(fmt.Errorf("build request: %w", err))

			return
		}

		req.Header.Set("Content-Type", "application/json")

		resp, err := c.streamClient.Do(req)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				fail(fmt.Errorf("ollama %s: %w", path, err))
			}

			return
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusServiceUnavailable {
			fail(ErrModelLoading)

			return
		}

		if resp.StatusCode != http.StatusOK {
			detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			fail(fmt.Errorf("ollama %s: status %d: %s", path, resp.StatusCode, detail))

			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			text, done, err := extract(scanner.Bytes())
			if err != nil {
				fail(err)

				return
			}

			if text != "" {
				select {
				case out <- Delta{Text: text}:
				case <-ctx.Done():
					return
				}
			}

			if done {
				return
			}
		}

		if err := scanner.Err(); err != nil && !errors.Is(err, context.Canceled) {
			fail(fmt.Errorf("read stream: %w", err))
		}
	}()

	return out
}
