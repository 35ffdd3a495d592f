package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seenRequest is one decoded JSON-RPC request as the server received it.
type seenRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// rpcHandler answers JSON-RPC requests by method, recording what arrived.
func rpcHandler(t *testing.T, results map[string]any) (*httptest.Server, *[]seenRequest) {
	t.Helper()

	var seen []seenRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req seenRequest

		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		seen = append(seen, req)

		result, ok := results[req.Method]
		if !ok {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"jsonrpc": "2.0", "id": req.ID,
				"error": map[string]any{"code": -32601, "message": "method not found"},
			})

			return
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0", "id": req.ID, "result": result,
		})
	}))
	t.Cleanup(srv.Close)

	return srv, &seen
}

func TestListTools(t *testing.T) {
	srv, seen := rpcHandler(t, map[string]any{
		"tools/list": map[string]any{
			"tools": []map[string]any{
				{
					"name":        "get_course_info",
					"description": "Информации за предмет",
					"inputSchema": map[string]any{"type": "object"},
				},
			},
		},
	})

	client := NewClient(srv.URL)

	tools, err := client.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "get_course_info", tools[0].Name)
	assert.JSONEq(t, `{"type":"object"}`, string(tools[0].InputSchema))

	require.Len(t, *seen, 1)
	assert.Equal(t, "2.0", (*seen)[0].JSONRPC)
	assert.Equal(t, "tools/list", (*seen)[0].Method)
}

func TestCallTool(t *testing.T) {
	t.Run("text blocks are concatenated", func(t *testing.T) {
		srv, seen := rpcHandler(t, map[string]any{
			"tools/call": map[string]any{
				"content": []map[string]any{
					{"type": "text", "text": "Предметот има "},
					{"type": "image", "data": "игнорирано"},
					{"type": "text", "text": "6 кредити."},
				},
			},
		})

		client := NewClient(srv.URL)

		out, err := client.CallTool(context.Background(), "get_course_info", map[string]any{"course": "ВИС"})
		require.NoError(t, err)
		assert.Equal(t, "Предметот има 6 кредити.", out)

		require.Len(t, *seen, 1)

		var params struct {
			Name      string         `json:"name"`
			Arguments map[string]any `json:"arguments"`
		}

		require.NoError(t, json.Unmarshal((*seen)[0].Params, &params))
		assert.Equal(t, "get_course_info", params.Name)
		assert.Equal(t, "ВИС", params.Arguments["course"])
	})

	t.Run("isError yields ErrToolFailed", func(t *testing.T) {
		srv, _ := rpcHandler(t, map[string]any{
			"tools/call": map[string]any{
				"content": []map[string]any{{"type": "text", "text": "нема таков предмет"}},
				"isError": true,
			},
		})

		client := NewClient(srv.URL)

		_, err := client.CallTool(context.Background(), "get_course_info", nil)
		require.ErrorIs(t, err, ErrToolFailed)
		assert.Contains(t, err.Error(), "нема таков предмет")
	})

	t.Run("rpc error surfaces code and message", func(t *testing.T) {
		srv, _ := rpcHandler(t, nil)

		client := NewClient(srv.URL)

		_, err := client.CallTool(context.Background(), "unknown", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "-32601")
	})

	t.Run("request ids increment", func(t *testing.T) {
		srv, seen := rpcHandler(t, map[string]any{
			"tools/list": map[string]any{"tools": []map[string]any{}},
		})

		client := NewClient(srv.URL)

		_, err := client.ListTools(context.Background())
		require.NoError(t, err)
		_, err = client.ListTools(context.Background())
		require.NoError(t, err)

		require.Len(t, *seen, 2)
		assert.Equal(t, (*seen)[0].ID+1, (*seen)[1].ID)
	})
}

func TestCallHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "internal", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(srv.URL)

	_, err := client.ListTools(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}
