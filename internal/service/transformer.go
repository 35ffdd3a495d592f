package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/finki-hub/finki-chat-bot/internal/prompt"
)

// maxTransformedQueryLen caps the rewrite; anything longer means the model
// rambled instead of producing a search query.
const maxTransformedQueryLen = 512

// Completer performs a one-shot completion. Implemented by the backend clients.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// TransformResult is the outcome of a query rewrite. Query always holds a
// usable retrieval query; Transformed is false when the original text was
// kept, with Reason saying why.
type TransformResult struct {
	Query       string
	Transformed bool
	Reason      string
}

// QueryTransformer rewrites a conversational prompt into a short retrieval
// query. It never fails: any problem keeps the original prompt, degrading
// retrieval quality instead of breaking the request.
type QueryTransformer struct {
	completer Completer
	logger    *slog.Logger
}

// NewQueryTransformer creates a transformer. completer may be nil, in which
// case every query passes through unchanged.
func NewQueryTransformer(completer Completer, logger *slog.Logger) *QueryTransformer {
	if logger == nil {
		logger = slog.Default()
	}

	return &QueryTransformer{completer: completer, logger: logger}
}

// Transform rewrites query for retrieval.
func (t *QueryTransformer) Transform(ctx context.Context, query string) TransformResult {
	if t.completer == nil {
		return TransformResult{Query: query, Reason: "no transform backend configured"}
	}

	out, err := t.completer.Complete(ctx, prompt.DefaultQueryTransformSystemPrompt, query)
	if err != nil {
		t.logger.WarnContext(ctx, "query transform failed, using original prompt", "error", err)

		return TransformResult{Query: query, Reason: err.Error()}
	}

	out = strings.TrimSpace(out)
	if out == "" || len(out) > maxTransformedQueryLen {
		t.logger.WarnContext(ctx, "query transform produced unusable output, using original prompt",
			"output_len", len(out),
		)

		return TransformResult{Query: query, Reason: "unusable transform output"}
	}

	return TransformResult{Query: out, Transformed: true}
}
