package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finki-hub/finki-chat-bot/internal/models"
	"github.com/finki-hub/finki-chat-bot/internal/ollama"
)

// The transform call is a short rewrite, but it must not accidentally pin the
// sampler: top_p stays at the chat default instead of the zero value.
func TestOllamaCompleterSamplingParams(t *testing.T) {
	var got struct {
		Options struct {
			TopP       float64 `json:"top_p"`
			NumPredict int     `json:"num_predict"`
		} `json:"options"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"испитна сесија"}}`))
	}))
	defer srv.Close()

	completer := ollamaCompleter{client: ollama.NewClient(srv.URL), model: models.ModelVezilkaLLM}

	out, err := completer.Complete(context.Background(), "систем", "Кога е сесијата?")
	require.NoError(t, err)
	assert.Equal(t, "испитна сесија", out)

	assert.InDelta(t, models.DefaultTopP, got.Options.TopP, 1e-9)
	assert.Equal(t, transformMaxTokens, got.Options.NumPredict)
}
