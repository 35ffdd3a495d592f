// Package mcp implements a minimal JSON-RPC 2.0 client for HTTP tool servers
// speaking the Model Context Protocol: tools/list and tools/call.
package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// ErrToolFailed is returned when the server executed the tool and reported failure.
var ErrToolFailed = errors.New("mcp: tool execution failed")

// Tool describes one callable tool exposed by a server.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// Client talks to one MCP tool server over HTTP.
type Client struct {
	endpoint   string
	httpClient *http.Client
	nextID     atomic.Int64
}

// NewClient creates a client for the given server endpoint.
func NewClient(endpoint string) *Client {
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// Endpoint returns the server URL this client talks to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("mcp: rpc error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

func (c *Client) call(ctx context.Context, method string, params, out any) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("encode %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("mcp %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

		return fmt.Errorf("mcp %s: status %d: %s", method, resp.StatusCode, detail)
	}

	var parsed rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}

	if parsed.Error != nil {
		return parsed.Error
	}

	if out != nil {
		if err := json.Unmarshal(parsed.Result, out); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
	}

	return nil
}

// ListTools returns the tools the server exposes.
func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	var result struct {
		Tools []Tool `json:"tools"`
	}

	if err := c.call(ctx, "tools/list", struct{}{}, &result); err != nil {
		return nil, err
	}

	return result.Tools, nil
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// CallTool invokes a tool and returns its text output. Non-text content
// blocks are skipped; a server-side tool failure yields ErrToolFailed.
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]any) (string, error) {
	params := struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}{Name: name, Arguments: arguments}

	var result struct {
		Content []contentBlock `json:"content"`
		IsError bool           `json:"isError"`
	}

	if err := c.call(ctx, "tools/call", params, &result); err != nil {
		return "", err
	}

	var sb strings.Builder

	for _, block := range result.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	if result.IsError {
		return "", fmt.Errorf("%w: %s: %s", ErrToolFailed, name, sb.String())
	}

	return sb.String(), nil
}
