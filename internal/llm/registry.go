package llm

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	apperrors "github.com/finki-hub/finki-chat-bot/internal/errors"
)

// defaultCacheSize bounds the number of distinct (model, sampling) provider
// instances kept alive at once.
const defaultCacheSize = 64

// Factory builds a provider instance for the given params. The composition
// root supplies one that knows which backend clients exist.
type Factory func(ctx context.Context, params Params) (StreamingProvider, error)

// Registry caches provider instances keyed by their full generation params.
// Construction is deduplicated so concurrent first requests for the same
// params build a single instance.
type Registry struct {
	factory Factory
	cache   *lru.Cache[Params, StreamingProvider]
	group   singleflight.Group
}

// NewRegistry creates a registry backed by the given factory.
func NewRegistry(factory Factory) (*Registry, error) {
	cache, err := lru.New[Params, StreamingProvider](defaultCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create provider cache: %w", err)
	}

	return &Registry{factory: factory, cache: cache}, nil
}

// Acquire returns the provider instance for params, building it on first use.
// An unknown or non-inference model yields UnsupportedModelError.
func (r *Registry) Acquire(ctx context.Context, params Params) (StreamingProvider, error) {
	if !params.Model.IsInferenceCapable() {
		return nil, apperrors.NewUnsupportedModelError(string(params.Model), "inference")
	}

	if provider, ok := r.cache.Get(params); ok {
		return provider, nil
	}

	key := fmt.Sprintf("%s|%g|%g|%d", params.Model, params.Temperature, params.TopP, params.MaxTokens)

	v, err, _ := r.group.Do(key, func() (any, error) {
		if provider, ok := r.cache.Get(params); ok {
			return provider, nil
		}

		provider, err := r.factory(ctx, params)
		if err != nil {
			return nil, err
		}

		r.cache.Add(params, provider)

		return provider, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(StreamingProvider), nil
}
