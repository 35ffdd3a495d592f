package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finki-hub/finki-chat-bot/internal/llm"
	"github.com/finki-hub/finki-chat-bot/internal/mcp"
	"github.com/finki-hub/finki-chat-bot/internal/models"
)

// toolServer serves tools/list with the given tool names.
func toolServer(t *testing.T, names ...string) *mcp.Client {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     int64  `json:"id"`
			Method string `json:"method"`
		}

		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "tools/list", req.Method)

		tools := make([]map[string]any, len(names))
		for i, name := range names {
			tools[i] = map[string]any{
				"name":        name,
				"description": "опис",
				"inputSchema": map[string]any{"type": "object"},
			}
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0", "id": req.ID,
			"result": map[string]any{"tools": tools},
		})
	}))
	t.Cleanup(srv.Close)

	return mcp.NewClient(srv.URL)
}

// downServer refuses every request.
func downServer(t *testing.T) *mcp.Client {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	return mcp.NewClient(srv.URL)
}

func TestCollectTools(t *testing.T) {
	t.Run("tools gathered across servers", func(t *testing.T) {
		r := NewRunner(Options{Servers: []*mcp.Client{
			toolServer(t, "get_course_info"),
			toolServer(t, "get_schedule"),
		}})

		bound := r.collectTools(context.Background())
		assert.Len(t, bound, 2)
		assert.Contains(t, bound, "get_course_info")
		assert.Contains(t, bound, "get_schedule")
	})

	t.Run("duplicate names resolve to the first server", func(t *testing.T) {
		first := toolServer(t, "get_course_info")
		second := toolServer(t, "get_course_info")

		r := NewRunner(Options{Servers: []*mcp.Client{first, second}})

		bound := r.collectTools(context.Background())
		require.Len(t, bound, 1)
		assert.Same(t, first, bound["get_course_info"].server)
	})

	t.Run("unreachable server is skipped", func(t *testing.T) {
		r := NewRunner(Options{Servers: []*mcp.Client{
			downServer(t),
			toolServer(t, "get_schedule"),
		}})

		bound := r.collectTools(context.Background())
		assert.Len(t, bound, 1)
		assert.Contains(t, bound, "get_schedule")
	})
}

func TestStreamRefusals(t *testing.T) {
	prompt := llm.Prompt{System: "с", User: "п"}
	params := llm.Params{Model: models.ModelLlama33_70B}

	t.Run("no servers", func(t *testing.T) {
		r := NewRunner(Options{})

		_, err := r.Stream(context.Background(), params, prompt)
		require.ErrorIs(t, err, ErrNoToolServers)
	})

	t.Run("servers up but no tools", func(t *testing.T) {
		r := NewRunner(Options{Servers: []*mcp.Client{toolServer(t)}})

		_, err := r.Stream(context.Background(), params, prompt)
		require.ErrorIs(t, err, ErrNoTools)
	})

	t.Run("google models have no tool-calling endpoint", func(t *testing.T) {
		r := NewRunner(Options{Servers: []*mcp.Client{toolServer(t, "алатка")}})

		_, err := r.Stream(context.Background(), llm.Params{Model: models.ModelGemini25Flash}, prompt)
		require.ErrorIs(t, err, ErrUnsupportedAgentModel)
	})
}
