// Package llm routes chat generation to the configured inference backend and
// exposes generation as a stream of events.
package llm

import (
	"context"

	"github.com/finki-hub/finki-chat-bot/internal/models"
)

// Event is one increment of a generation stream. Text carries a token batch;
// Err, when set, is the terminal event and the channel closes right after it.
type Event struct {
	Text string
	Err  error
}

// Prompt is the fully assembled input for one generation call.
type Prompt struct {
	System string
	User   string
}

// Params identify one configured provider instance. Instances are cached per
// distinct Params value, so two requests with the same model and sampling
// settings share a client.
type Params struct {
	Model       models.Model
	Temperature float64
	TopP        float64
	MaxTokens   int
}

// StreamingProvider generates a response as a stream of events. A non-nil
// error from Stream means generation could not start at all; failures after
// the first event arrive in-band as a terminal Event.Err.
type StreamingProvider interface {
	Stream(ctx context.Context, prompt Prompt) (<-chan Event, error)
}
