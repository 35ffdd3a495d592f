package llm

import (
	"context"

	"github.com/finki-hub/finki-chat-bot/internal/googleai"
	"github.com/finki-hub/finki-chat-bot/internal/ollama"
	"github.com/finki-hub/finki-chat-bot/internal/openai"
	"github.com/finki-hub/finki-chat-bot/internal/prompt"
)

// pipe converts a provider-specific delta channel into an Event channel.
// The forwarding goroutine exits when ctx is cancelled even if the consumer
// stopped reading, so a disconnected client never strands it.
func pipe[T any](ctx context.Context, in <-chan T, conv func(T) Event) <-chan Event {
	out := make(chan Event)

	go func() {
		defer close(out)

		for {
			select {
			case d, ok := <-in:
				if !ok {
					return
				}

				select {
				case out <- conv(d):
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

// OllamaProvider streams from a co-hosted Ollama server. Models without a chat
// template get the system prompt stitched into a single raw prompt.
type OllamaProvider struct {
	client *ollama.Client
	params Params
}

// NewOllamaProvider creates a provider instance bound to one model and sampling configuration.
func NewOllamaProvider(client *ollama.Client, params Params) *OllamaProvider {
	return &OllamaProvider{client: client, params: params}
}

func (p *OllamaProvider) Stream(ctx context.Context, pr Prompt) (<-chan Event, error) {
	var deltas <-chan ollama.Delta

	if p.params.Model.RequiresStitchedPrompt() {
		deltas = p.client.StreamGenerate(ctx, ollama.GenerateParams{
			Model:       string(p.params.Model),
			Prompt:      prompt.StitchSystemUser(pr.System, pr.User),
			Temperature: p.params.Temperature,
			TopP:        p.params.TopP,
			MaxTokens:   p.params.MaxTokens,
		})
	} else {
		deltas = p.client.StreamChat(ctx, ollama.ChatParams{
			Model:        string(p.params.Model),
			SystemPrompt: pr.System,
			UserPrompt:   pr.User,
			Temperature:  p.params.Temperature,
			TopP:         p.params.TopP,
			MaxTokens:    p.params.MaxTokens,
		})
	}

	return pipe(ctx, deltas, func(d ollama.Delta) Event { return Event{Text: d.Text, Err: d.Err} }), nil
}

// OpenAIProvider streams from the OpenAI API.
type OpenAIProvider struct {
	client *openai.Client
	params Params
}

// NewOpenAIProvider creates a provider instance bound to one model and sampling configuration.
func NewOpenAIProvider(client *openai.Client, params Params) *OpenAIProvider {
	return &OpenAIProvider{client: client, params: params}
}

func (p *OpenAIProvider) Stream(ctx context.Context, pr Prompt) (<-chan Event, error) {
	deltas := p.client.StreamChat(ctx, openai.ChatParams{
		Model:        string(p.params.Model),
		SystemPrompt: pr.System,
		UserPrompt:   pr.User,
		Temperature:  p.params.Temperature,
		TopP:         p.params.TopP,
		MaxTokens:    p.params.MaxTokens,
	})

	return pipe(ctx, deltas, func(d openai.Delta) Event { return Event{Text: d.Text, Err: d.Err} }), nil
}

// GoogleProvider streams from the Gemini API.
type GoogleProvider struct {
	client *googleai.Client
	params Params
}

// NewGoogleProvider creates a provider instance bound to one model and sampling configuration.
func NewGoogleProvider(client *googleai.Client, params Params) *GoogleProvider {
	return &GoogleProvider{client: client, params: params}
}

func (p *GoogleProvider) Stream(ctx context.Context, pr Prompt) (<-chan Event, error) {
	deltas := p.client.StreamChat(ctx, googleai.ChatParams{
		Model:        string(p.params.Model),
		SystemPrompt: pr.System,
		UserPrompt:   pr.User,
		Temperature:  p.params.Temperature,
		TopP:         p.params.TopP,
		MaxTokens:    p.params.MaxTokens,
	})

	return pipe(ctx, deltas, func(d googleai.Delta) Event { return Event{Text: d.Text, Err: d.Err} }), nil
}

var (
	_ StreamingProvider = (*OllamaProvider)(nil)
	_ StreamingProvider = (*OpenAIProvider)(nil)
	_ StreamingProvider = (*GoogleProvider)(nil)
)
