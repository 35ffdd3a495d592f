// Package gpuapi provides an HTTP client for the GPU worker service that
// hosts the heavyweight embedding and cross-encoder reranking models.
package gpuapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	apperrors "github.com/finki-hub/finki-chat-bot/internal/errors"
)

// ErrEmptyInput is returned when an embed call is made with no texts.
var ErrEmptyInput = errors.New("gpuapi: input text is empty")

// ClientOptions configures the GPU API client.
type ClientOptions struct {
	// BaseURL is the worker base URL (default: "http://localhost:8888").
	BaseURL string
	// RetryMax is the maximum number of retries (default: 2).
	RetryMax int
	// Timeout bounds each call (default: 60s).
	Timeout time.Duration
}

// Client talks to one GPU worker instance.
type Client struct {
	baseURL    string
	httpClient *retryablehttp.Client
}

// NewClient creates a GPU API client with default settings.
func NewClient(baseURL string) *Client {
	return NewClientWithOptions(ClientOptions{BaseURL: baseURL})
}

// NewClientWithOptions creates a GPU API client with custom options.
func NewClientWithOptions(opts ClientOptions) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = "http://localhost:8888"
	}

	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}

	if opts.RetryMax == 0 {
		opts.RetryMax = 2
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = opts.RetryMax
	retryClient.HTTPClient.Timeout = opts.Timeout
	retryClient.Logger = nil
	// A 503 from the worker means the model is still loading into VRAM; retrying
	// immediately will not help, so surface it to the caller instead.
	retryClient.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if resp != nil && resp.StatusCode == http.StatusServiceUnavailable {
			return false, nil
		}

		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}

	return &Client{
		baseURL:    opts.BaseURL,
		httpClient: retryClient,
	}
}

type embedRequest struct {
	Input           []string `json:"input"`
	EmbeddingsModel string   `json:"embeddings_model"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// CreateEmbeddings embeds the inputs on the GPU worker, order-preserving.
// Returns ModelNotReadyError while the worker is still loading the model.
func (c *Client) CreateEmbeddings(ctx context.Context, inputs []string, model string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, ErrEmptyInput
	}

	var parsed embedResponse
	if err := c.post(ctx, "/embeddings/embed", embedRequest{Input: inputs, EmbeddingsModel: model}, model, &parsed); err != nil {
		return nil, err
	}

	if len(parsed.Embeddings) != len(inputs) {
		return nil, fmt.Errorf("gpuapi embed: got %d vectors for %d inputs", len(parsed.Embeddings), len(inputs))
	}

	return parsed.Embeddings, nil
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type rerankResponse struct {
	RerankedDocuments []string `json:"reranked_documents"`
}

// Rerank orders documents by cross-encoder relevance to the query, most
// relevant first. The result is a permutation of the input.
func (c *Client) Rerank(ctx context.Context, query string, documents []string) ([]string, error) {
	if query == "" || len(documents) == 0 {
		return documents, nil
	}

	var parsed rerankResponse
	if err := c.post(ctx, "/rerank/", rerankRequest{Query: query, Documents: documents}, "", &parsed); err != nil {
		return nil, err
	}

	if len(parsed.RerankedDocuments) != len(documents) {
		return nil, fmt.Errorf("gpuapi rerank: got %d documents for %d inputs", len(parsed.RerankedDocuments), len(documents))
	}

	return parsed.RerankedDocuments, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, model string, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gpuapi %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusServiceUnavailable {
		return apperrors.NewModelNotReadyError(model)
	}

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

		return fmt.Errorf("gpuapi %s: status %d: %s", path, resp.StatusCode, detail)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
