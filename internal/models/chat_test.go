package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatRequestApplyDefaults(t *testing.T) {
	t.Run("empty request gets all defaults", func(t *testing.T) {
		req := ChatRequest{Prompt: "Кога е испитната сесија?"}
		req.ApplyDefaults()

		assert.Equal(t, DefaultEmbeddingsModel, req.EmbeddingsModel)
		assert.Equal(t, DefaultInferenceModel, req.InferenceModel)
		assert.InDelta(t, DefaultTemperature, req.Temperature, 1e-9)
		assert.InDelta(t, DefaultTopP, req.TopP, 1e-9)
		assert.Equal(t, DefaultMaxTokens, req.MaxTokens)
		require.NotNil(t, req.UseAgent)
		assert.True(t, *req.UseAgent)
		require.NotNil(t, req.RerankDocuments)
		assert.True(t, *req.RerankDocuments)
	})

	t.Run("explicit false flags survive", func(t *testing.T) {
		f := false
		req := ChatRequest{Prompt: "п", UseAgent: &f, RerankDocuments: &f}
		req.ApplyDefaults()

		assert.False(t, *req.UseAgent)
		assert.False(t, *req.RerankDocuments)
	})

	t.Run("set fields untouched", func(t *testing.T) {
		req := ChatRequest{
			Prompt:          "п",
			EmbeddingsModel: ModelTextEmb3SM,
			InferenceModel:  ModelGPT4oMini,
			Temperature:     0.2,
			TopP:            0.9,
			MaxTokens:       64,
		}
		req.ApplyDefaults()

		assert.Equal(t, ModelTextEmb3SM, req.EmbeddingsModel)
		assert.Equal(t, ModelGPT4oMini, req.InferenceModel)
		assert.InDelta(t, 0.2, req.Temperature, 1e-9)
		assert.InDelta(t, 0.9, req.TopP, 1e-9)
		assert.Equal(t, 64, req.MaxTokens)
	})
}
