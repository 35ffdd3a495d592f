// Package models holds the domain types shared across repositories, services, and handlers.
package models

import "fmt"

// Model identifies an embedding or inference backend. The set is closed: every
// identifier maps to exactly one provider adapter, and embedding-capable
// identifiers additionally map to one storage column with a fixed dimensionality.
type Model string

const (
	// Local models served by Ollama.
	ModelLlama33_70B  Model = "llama3.3:70b"
	ModelMistral      Model = "mistral"
	ModelDeepseekR1   Model = "deepseek-r1:70b"
	ModelQwen25_72B   Model = "qwen2.5:72b"
	ModelDomesticYak  Model = "domestic-yak:8b"
	ModelVezilkaLLM   Model = "vezilkallm"
	ModelBGEM3        Model = "bge-m3:latest"

	// Hosted OpenAI models.
	ModelGPT4oMini  Model = "gpt-4o-mini"
	ModelGPT41Mini  Model = "gpt-4.1-mini"
	ModelGPT41Nano  Model = "gpt-4.1-nano"
	ModelTextEmb3SM Model = "text-embedding-3-small"

	// Hosted Google models.
	ModelGemini25Flash   Model = "gemini-2.5-flash"
	ModelGeminiEmbedding Model = "gemini-embedding-001"
)

// Defaults used when a chat request leaves the model fields empty.
const (
	DefaultEmbeddingsModel = ModelBGEM3
	DefaultInferenceModel  = ModelLlama33_70B
)

// Provider names a backend family. Dispatch to an adapter is by provider,
// selection of the adapter instance is by the full model identifier.
type Provider string

const (
	ProviderOllama Provider = "ollama"
	ProviderOpenAI Provider = "openai"
	ProviderGoogle Provider = "google"
)

var modelProviders = map[Model]Provider{
	ModelLlama33_70B:     ProviderOllama,
	ModelMistral:         ProviderOllama,
	ModelDeepseekR1:      ProviderOllama,
	ModelQwen25_72B:      ProviderOllama,
	ModelDomesticYak:     ProviderOllama,
	ModelVezilkaLLM:      ProviderOllama,
	ModelBGEM3:           ProviderOllama,
	ModelGPT4oMini:       ProviderOpenAI,
	ModelGPT41Mini:       ProviderOpenAI,
	ModelGPT41Nano:       ProviderOpenAI,
	ModelTextEmb3SM:      ProviderOpenAI,
	ModelGemini25Flash:   ProviderGoogle,
	ModelGeminiEmbedding: ProviderGoogle,
}

// embeddingColumn maps each embedding-capable model to its vector column on the
// question table. Column names are fixed by the migration; dimensionality is
// fixed by the model checkpoint.
type embeddingColumn struct {
	column     string
	dimensions int
}

var embeddingColumns = map[Model]embeddingColumn{
	ModelLlama33_70B:     {column: "embedding_llama3_3_70b", dimensions: 8192},
	ModelBGEM3:           {column: "embedding_bge_m3", dimensions: 1024},
	ModelTextEmb3SM:      {column: "embedding_text_embedding_3_small", dimensions: 1536},
	ModelGeminiEmbedding: {column: "embedding_gemini_embedding_001", dimensions: 1536},
}

var inferenceModels = map[Model]struct{}{
	ModelLlama33_70B:   {},
	ModelMistral:       {},
	ModelDeepseekR1:    {},
	ModelQwen25_72B:    {},
	ModelDomesticYak:   {},
	ModelVezilkaLLM:    {},
	ModelGPT4oMini:     {},
	ModelGPT41Mini:     {},
	ModelGPT41Nano:     {},
	ModelGemini25Flash: {},
}

// queryPrefixes lists embedding models trained with an instruction prefix on
// search queries. The prefix goes on the query only, never on stored documents.
var queryPrefixes = map[Model]string{
	ModelBGEM3:       "пребарување: ",
	ModelLlama33_70B: "пребарување: ",
}

// stitchedPromptModels are fine-tunes published without a chat template; they
// take a single prompt with inline role markers instead of role-tagged messages.
var stitchedPromptModels = map[Model]struct{}{
	ModelDomesticYak: {},
	ModelVezilkaLLM:  {},
}

// Provider returns the backend family serving the model. Known returns false
// for identifiers outside the closed set.
func (m Model) Provider() (Provider, bool) {
	p, ok := modelProviders[m]

	return p, ok
}

// IsInferenceCapable reports whether the model can generate chat responses.
func (m Model) IsInferenceCapable() bool {
	_, ok := inferenceModels[m]

	return ok
}

// IsEmbeddingCapable reports whether the model produces stored embeddings.
func (m Model) IsEmbeddingCapable() bool {
	_, ok := embeddingColumns[m]

	return ok
}

// EmbeddingColumn returns the question-table column holding this model's vectors.
func (m Model) EmbeddingColumn() (string, error) {
	c, ok := embeddingColumns[m]
	if !ok {
		return "", fmt.Errorf("model %q has no embedding column", m)
	}

	return c.column, nil
}

// EmbeddingDimensions returns the fixed vector size for this model, or 0 when
// the model is not embedding-capable.
func (m Model) EmbeddingDimensions() int {
	return embeddingColumns[m].dimensions
}

// RequiresStitchedPrompt reports whether the model takes a single stitched
// prompt instead of separate system and user messages.
func (m Model) RequiresStitchedPrompt() bool {
	_, ok := stitchedPromptModels[m]

	return ok
}

// QueryPrefix returns the instruction prefix this model expects on search
// queries, or "" when the model takes raw text.
func (m Model) QueryPrefix() string {
	return queryPrefixes[m]
}

// EmbeddingModels returns all embedding-capable identifiers, for backfill tooling.
func EmbeddingModels() []Model {
	out := make([]Model, 0, len(embeddingColumns))
	for m := range embeddingColumns {
		out = append(out, m)
	}

	return out
}
