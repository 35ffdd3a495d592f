package gpuapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/finki-hub/finki-chat-bot/internal/errors"
)

func TestGPUCreateEmbeddings(t *testing.T) {
	t.Run("vectors returned in input order", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/embeddings/embed", r.URL.Path)

			var req embedRequest

			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "bge-m3:latest", req.EmbeddingsModel)
			assert.Equal(t, []string{"прво", "второ"}, req.Input)

			_ = json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float32{{0.1}, {0.2}}})
		}))
		t.Cleanup(srv.Close)

		client := NewClient(srv.URL)

		vectors, err := client.CreateEmbeddings(context.Background(), []string{"прво", "второ"}, "bge-m3:latest")
		require.NoError(t, err)
		assert.Equal(t, [][]float32{{0.1}, {0.2}}, vectors)
	})

	t.Run("503 becomes model-not-ready without retry", func(t *testing.T) {
		calls := 0

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls++

			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		t.Cleanup(srv.Close)

		client := NewClient(srv.URL)

		_, err := client.CreateEmbeddings(context.Background(), []string{"текст"}, "bge-m3:latest")

		var notReady *apperrors.ModelNotReadyError

		require.ErrorAs(t, err, &notReady)
		assert.Equal(t, 1, calls)
	})

	t.Run("vector count mismatch rejected", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float32{{0.1}}})
		}))
		t.Cleanup(srv.Close)

		client := NewClient(srv.URL)

		_, err := client.CreateEmbeddings(context.Background(), []string{"а", "б"}, "bge-m3:latest")
		require.Error(t, err)
	})
}

func TestGPURerank(t *testing.T) {
	t.Run("reordered documents returned", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/rerank/", r.URL.Path)

			var req rerankRequest

			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "сесија", req.Query)

			// Most relevant last in the input, first in the output.
			_ = json.NewEncoder(w).Encode(rerankResponse{
				RerankedDocuments: []string{req.Documents[1], req.Documents[0]},
			})
		}))
		t.Cleanup(srv.Close)

		client := NewClient(srv.URL)

		out, err := client.Rerank(context.Background(), "сесија", []string{"док а", "док б"})
		require.NoError(t, err)
		assert.Equal(t, []string{"док б", "док а"}, out)
	})

	t.Run("empty inputs skip the call", func(t *testing.T) {
		client := NewClient("http://127.0.0.1:1")

		out, err := client.Rerank(context.Background(), "", []string{"док"})
		require.NoError(t, err)
		assert.Equal(t, []string{"док"}, out)

		out, err = client.Rerank(context.Background(), "сесија", nil)
		require.NoError(t, err)
		assert.Empty(t, out)
	})

	t.Run("document count mismatch rejected", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(rerankResponse{RerankedDocuments: []string{"само еден"}})
		}))
		t.Cleanup(srv.Close)

		client := NewClient(srv.URL)

		_, err := client.Rerank(context.Background(), "сесија", []string{"а", "б"})
		require.Error(t, err)
	})
}
