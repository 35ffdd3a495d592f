package models

// Chat request defaults. MaxTokens leans generous because answers quote
// retrieved context back at the user.
const (
	DefaultTemperature = 0.7
	DefaultTopP        = 1.0
	DefaultMaxTokens   = 2048
)

// ChatRequest is the inbound body for POST /chat. It is constructed once per
// request, consumed by the chat service, and discarded when the stream ends.
type ChatRequest struct {
	Prompt          string  `json:"prompt"            validate:"required"`
	EmbeddingsModel Model   `json:"embeddings_model"`
	InferenceModel  Model   `json:"inference_model"`
	Temperature     float64 `json:"temperature"       validate:"gte=0,lte=1"`
	TopP            float64 `json:"top_p"             validate:"gte=0,lte=1"`
	MaxTokens       int     `json:"max_tokens"        validate:"min=1"`
	SystemPrompt    *string `json:"system_prompt,omitempty"`
	UseAgent        *bool   `json:"use_agent,omitempty"`
	RerankDocuments *bool   `json:"rerank_documents,omitempty"`
}

// ApplyDefaults fills zero-valued fields with the documented defaults.
// UseAgent and RerankDocuments default to true, so they are pointers to
// distinguish "absent" from "false".
func (r *ChatRequest) ApplyDefaults() {
	if r.EmbeddingsModel == "" {
		r.EmbeddingsModel = DefaultEmbeddingsModel
	}

	if r.InferenceModel == "" {
		r.InferenceModel = DefaultInferenceModel
	}

	if r.Temperature == 0 {
		r.Temperature = DefaultTemperature
	}

	if r.TopP == 0 {
		r.TopP = DefaultTopP
	}

	if r.MaxTokens == 0 {
		r.MaxTokens = DefaultMaxTokens
	}

	if r.UseAgent == nil {
		t := true
		r.UseAgent = &t
	}

	if r.RerankDocuments == nil {
		t := true
		r.RerankDocuments = &t
	}
}
