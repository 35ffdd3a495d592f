package embeddings

import (
	apperrors "github.com/finki-hub/finki-chat-bot/internal/errors"
	"github.com/finki-hub/finki-chat-bot/internal/models"
)

// Registry resolves an embedding-capable model to the client that serves it.
// It is built once at startup and read-only afterwards.
type Registry struct {
	clients map[models.Model]Client
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[models.Model]Client)}
}

// Register binds a model to a client, replacing any previous binding.
func (r *Registry) Register(model models.Model, client Client) {
	r.clients[model] = client
}

// ForModel returns the client serving model, or UnsupportedModelError when no
// backend is registered for it.
func (r *Registry) ForModel(model models.Model) (Client, error) {
	client, ok := r.clients[model]
	if !ok {
		return nil, apperrors.NewUnsupportedModelError(string(model), "embeddings")
	}

	return client, nil
}

// Models returns the registered models in unspecified order.
func (r *Registry) Models() []models.Model {
	out := make([]models.Model, 0, len(r.clients))
	for m := range r.clients {
		out = append(out, m)
	}

	return out
}
