package llm

import (
	"context"
	"errors"
	"log/slog"

	apperrors "github.com/finki-hub/finki-chat-bot/internal/errors"
	"github.com/finki-hub/finki-chat-bot/internal/ollama"
)

// Mode records which generation path produced a stream.
type Mode string

const (
	ModeDirect Mode = "direct"
	ModeAgent  Mode = "agent"
)

// AgentStreamer runs tool-augmented generation. Implementations live outside
// this package; the dispatcher only needs the stream contract.
type AgentStreamer interface {
	Stream(ctx context.Context, params Params, prompt Prompt) (<-chan Event, error)
}

// StreamResult is a started generation stream. FallbackReason is set only when
// the agent path was requested but the stream came from the direct path.
type StreamResult struct {
	Events         <-chan Event
	Mode           Mode
	FallbackReason string
}

// Dispatcher picks the generation path for a request: the agent when requested
// and available, the plain provider otherwise. Agent failures before the first
// token fall back to the direct path without surfacing an error.
type Dispatcher struct {
	registry *Registry
	agent    AgentStreamer
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher. agent may be nil when no tool servers
// are configured; agent requests then silently use the direct path.
func NewDispatcher(registry *Registry, agent AgentStreamer, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}

	return &Dispatcher{registry: registry, agent: agent, logger: logger}
}

// Dispatch starts generation and waits for the first event before returning,
// so a backend that fails outright yields a typed error and zero streamed
// output. Failures after the first event arrive in-band on the channel.
func (d *Dispatcher) Dispatch(ctx context.Context, params Params, prompt Prompt, useAgent bool) (*StreamResult, error) {
	if !params.Model.IsInferenceCapable() {
		return nil, apperrors.NewUnsupportedModelError(string(params.Model), "inference")
	}

	var fallbackReason string

	if useAgent {
		if d.agent == nil {
			fallbackReason = "no tool servers configured"
		} else {
			events, err := d.agent.Stream(ctx, params, prompt)
			if err == nil {
				var replay <-chan Event

				replay, err = peek(ctx, events)
				if err == nil {
					return &StreamResult{Events: replay, Mode: ModeAgent}, nil
				}
			}

			d.logger.WarnContext(ctx, "agent generation failed, falling back to direct",
				"model", params.Model,
				"error", err,
			)

			fallbackReason = err.Error()
		}
	}

	provider, err := d.registry.Acquire(ctx, params)
	if err != nil {
		return nil, err
	}

	providerName := "unknown"
	if p, ok := params.Model.Provider(); ok {
		providerName = string(p)
	}

	events, err := provider.Stream(ctx, prompt)
	if err != nil {
		return nil, d.classify(providerName, params, err)
	}

	replay, err := peek(ctx, events)
	if err != nil {
		return nil, d.classify(providerName, params, err)
	}

	return &StreamResult{Events: replay, Mode: ModeDirect, FallbackReason: fallbackReason}, nil
}

// classify maps a pre-stream failure to its typed error category.
func (d *Dispatcher) classify(providerName string, params Params, err error) error {
	if errors.Is(err, ollama.ErrModelLoading) {
		return apperrors.NewModelNotReadyError(string(params.Model))
	}

	return apperrors.NewProviderUnavailableError(providerName, err)
}

// peek blocks until the first event, then returns a channel replaying it
// followed by the rest of the stream. An error as the first event is returned
// directly; an immediately closed stream yields a closed channel.
func peek(ctx context.Context, events <-chan Event) (<-chan Event, error) {
	var first Event

	select {
	case ev, ok := <-events:
		if !ok {
			closed := make(chan Event)
			close(closed)

			return closed, nil
		}

		if ev.Err != nil {
			return nil, ev.Err
		}

		first = ev
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	out := make(chan Event)

	go func() {
		defer close(out)

		select {
		case out <- first:
		case <-ctx.Done():
			return
		}

		for ev := range events {
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}
