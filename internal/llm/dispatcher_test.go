package llm

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/finki-hub/finki-chat-bot/internal/errors"
	"github.com/finki-hub/finki-chat-bot/internal/models"
)

type stubProvider struct {
	events []Event
	err    error
}

func (s stubProvider) Stream(context.Context, Prompt) (<-chan Event, error) {
	if s.err != nil {
		return nil, s.err
	}

	out := make(chan Event, len(s.events))
	for _, ev := range s.events {
		out <- ev
	}

	close(out)

	return out, nil
}

type stubAgent struct {
	events []Event
	err    error
	called bool
}

func (s *stubAgent) Stream(context.Context, Params, Prompt) (<-chan Event, error) {
	s.called = true

	if s.err != nil {
		return nil, s.err
	}

	out := make(chan Event, len(s.events))
	for _, ev := range s.events {
		out <- ev
	}

	close(out)

	return out, nil
}

func newTestDispatcher(t *testing.T, provider StreamingProvider, providerErr error, agent AgentStreamer) *Dispatcher {
	t.Helper()

	registry, err := NewRegistry(func(context.Context, Params) (StreamingProvider, error) {
		if providerErr != nil {
			return nil, providerErr
		}

		return provider, nil
	})
	require.NoError(t, err)

	return NewDispatcher(registry, agent, slog.Default())
}

func collect(t *testing.T, events <-chan Event) []string {
	t.Helper()

	var texts []string

	for ev := range events {
		require.NoError(t, ev.Err)
		texts = append(texts, ev.Text)
	}

	return texts
}

func TestDispatchDirect(t *testing.T) {
	params := Params{Model: models.ModelLlama33_70B, Temperature: 0.7, TopP: 1, MaxTokens: 128}

	d := newTestDispatcher(t, stubProvider{events: []Event{{Text: "Здраво"}, {Text: " свету"}}}, nil, nil)

	res, err := d.Dispatch(context.Background(), params, Prompt{User: "п"}, false)
	require.NoError(t, err)
	assert.Equal(t, ModeDirect, res.Mode)
	assert.Empty(t, res.FallbackReason)
	assert.Equal(t, []string{"Здраво", " свету"}, collect(t, res.Events))
}

func TestDispatchUnsupportedModel(t *testing.T) {
	d := newTestDispatcher(t, stubProvider{}, nil, nil)

	_, err := d.Dispatch(context.Background(), Params{Model: models.ModelBGEM3}, Prompt{User: "п"}, false)

	var unsupported *apperrors.UnsupportedModelError

	require.ErrorAs(t, err, &unsupported)
}

func TestDispatchPreStreamFailure(t *testing.T) {
	params := Params{Model: models.ModelLlama33_70B}

	t.Run("stream start error becomes typed with zero events", func(t *testing.T) {
		d := newTestDispatcher(t, stubProvider{err: errors.New("connection refused")}, nil, nil)

		res, err := d.Dispatch(context.Background(), params, Prompt{User: "п"}, false)
		assert.Nil(t, res)

		var unavailable *apperrors.ProviderUnavailableError

		require.ErrorAs(t, err, &unavailable)
	})

	t.Run("error as first event becomes typed", func(t *testing.T) {
		d := newTestDispatcher(t, stubProvider{events: []Event{{Err: errors.New("boom")}}}, nil, nil)

		res, err := d.Dispatch(context.Background(), params, Prompt{User: "п"}, false)
		assert.Nil(t, res)
		require.Error(t, err)
	})

	t.Run("factory error passes through", func(t *testing.T) {
		factoryErr := apperrors.NewProviderUnavailableError("openai", errors.New("no key"))
		d := newTestDispatcher(t, nil, factoryErr, nil)

		_, err := d.Dispatch(context.Background(), Params{Model: models.ModelGPT4oMini}, Prompt{User: "п"}, false)

		var unavailable *apperrors.ProviderUnavailableError

		require.ErrorAs(t, err, &unavailable)
	})
}

func TestDispatchAgent(t *testing.T) {
	params := Params{Model: models.ModelLlama33_70B}

	t.Run("agent stream is used when it starts", func(t *testing.T) {
		agent := &stubAgent{events: []Event{{Text: "одговор"}}}
		d := newTestDispatcher(t, stubProvider{events: []Event{{Text: "директно"}}}, nil, agent)

		res, err := d.Dispatch(context.Background(), params, Prompt{User: "п"}, true)
		require.NoError(t, err)
		assert.Equal(t, ModeAgent, res.Mode)
		assert.Equal(t, []string{"одговор"}, collect(t, res.Events))
	})

	t.Run("agent failure falls back to direct with reason", func(t *testing.T) {
		agent := &stubAgent{err: errors.New("no tools")}
		d := newTestDispatcher(t, stubProvider{events: []Event{{Text: "директно"}}}, nil, agent)

		res, err := d.Dispatch(context.Background(), params, Prompt{User: "п"}, true)
		require.NoError(t, err)
		assert.True(t, agent.called)
		assert.Equal(t, ModeDirect, res.Mode)
		assert.Contains(t, res.FallbackReason, "no tools")
		assert.Equal(t, []string{"директно"}, collect(t, res.Events))
	})

	t.Run("agent error before first token falls back", func(t *testing.T) {
		agent := &stubAgent{events: []Event{{Err: errors.New("tool server down")}}}
		d := newTestDispatcher(t, stubProvider{events: []Event{{Text: "директно"}}}, nil, agent)

		res, err := d.Dispatch(context.Background(), params, Prompt{User: "п"}, true)
		require.NoError(t, err)
		assert.Equal(t, ModeDirect, res.Mode)
		assert.Contains(t, res.FallbackReason, "tool server down")
	})

	t.Run("nil agent uses direct path silently", func(t *testing.T) {
		d := newTestDispatcher(t, stubProvider{events: []Event{{Text: "директно"}}}, nil, nil)

		res, err := d.Dispatch(context.Background(), params, Prompt{User: "п"}, true)
		require.NoError(t, err)
		assert.Equal(t, ModeDirect, res.Mode)
		assert.NotEmpty(t, res.FallbackReason)
	})

	t.Run("agent not consulted for direct requests", func(t *testing.T) {
		agent := &stubAgent{events: []Event{{Text: "одговор"}}}
		d := newTestDispatcher(t, stubProvider{events: []Event{{Text: "директно"}}}, nil, agent)

		res, err := d.Dispatch(context.Background(), params, Prompt{User: "п"}, false)
		require.NoError(t, err)
		assert.False(t, agent.called)
		assert.Equal(t, ModeDirect, res.Mode)
	})
}

func TestDispatchEmptyStream(t *testing.T) {
	d := newTestDispatcher(t, stubProvider{}, nil, nil)

	res, err := d.Dispatch(context.Background(), Params{Model: models.ModelLlama33_70B}, Prompt{User: "п"}, false)
	require.NoError(t, err)

	_, open := <-res.Events
	assert.False(t, open)
}

func TestRegistryCachesProviders(t *testing.T) {
	builds := 0

	registry, err := NewRegistry(func(context.Context, Params) (StreamingProvider, error) {
		builds++

		return stubProvider{}, nil
	})
	require.NoError(t, err)

	params := Params{Model: models.ModelLlama33_70B, Temperature: 0.7}

	_, err = registry.Acquire(context.Background(), params)
	require.NoError(t, err)
	_, err = registry.Acquire(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, 1, builds)

	// Different sampling settings are a different instance.
	other := params
	other.Temperature = 0.2
	_, err = registry.Acquire(context.Background(), other)
	require.NoError(t, err)
	assert.Equal(t, 2, builds)
}
