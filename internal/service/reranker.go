package service

import (
	"context"
	"log/slog"

	"github.com/finki-hub/finki-chat-bot/internal/models"
	"github.com/finki-hub/finki-chat-bot/internal/prompt"
)

// DocumentReranker orders documents by relevance to a query. Implemented by
// the GPU worker client.
type DocumentReranker interface {
	Rerank(ctx context.Context, query string, documents []string) ([]string, error)
}

// RerankResult is the outcome of a rerank pass. Questions always holds a
// usable ordering; Applied is false when the distance ordering was kept, with
// Reason saying why.
type RerankResult struct {
	Questions []models.Question
	Applied   bool
	Reason    string
}

// Reranker reorders retrieved questions with a cross-encoder. Like the query
// transform it never fails: any problem keeps the distance ordering.
type Reranker struct {
	backend DocumentReranker
	logger  *slog.Logger
}

// NewReranker creates a reranker. backend may be nil, in which case every
// pass keeps the incoming order.
func NewReranker(backend DocumentReranker, logger *slog.Logger) *Reranker {
	if logger == nil {
		logger = slog.Default()
	}

	return &Reranker{backend: backend, logger: logger}
}

// Rerank reorders questions by cross-encoder relevance to query. The result
// is always a permutation of the input; empty input or query passes through.
func (r *Reranker) Rerank(ctx context.Context, query string, questions []models.Question) RerankResult {
	if query == "" || len(questions) == 0 {
		return RerankResult{Questions: questions, Reason: "nothing to rerank"}
	}

	if r.backend == nil {
		return RerankResult{Questions: questions, Reason: "no rerank backend configured"}
	}

	docs := make([]string, len(questions))
	byDoc := make(map[string]models.Question, len(questions))

	for i, q := range questions {
		doc := prompt.Document(q.Name, q.Content)
		docs[i] = doc
		byDoc[doc] = q
	}

	reranked, err := r.backend.Rerank(ctx, query, docs)
	if err != nil {
		r.logger.WarnContext(ctx, "rerank failed, keeping distance order", "error", err)

		return RerankResult{Questions: questions, Reason: err.Error()}
	}

	out := make([]models.Question, 0, len(questions))
	seen := make(map[string]bool, len(reranked))

	for _, doc := range reranked {
		q, ok := byDoc[doc]
		if !ok || seen[doc] {
			continue
		}

		seen[doc] = true
		out = append(out, q)
	}

	// Documents the backend dropped or mangled keep their original position
	// at the tail, so the result stays a permutation of the input.
	for _, doc := range docs {
		if !seen[doc] {
			seen[doc] = true
			out = append(out, byDoc[doc])
		}
	}

	return RerankResult{Questions: out, Applied: true}
}
