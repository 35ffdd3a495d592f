// Package workers provides River job workers for the async embedding pipeline.
package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/finki-hub/finki-chat-bot/internal/embeddings"
	"github.com/finki-hub/finki-chat-bot/internal/models"
	"github.com/finki-hub/finki-chat-bot/internal/observability"
	"github.com/finki-hub/finki-chat-bot/internal/prompt"
	"github.com/finki-hub/finki-chat-bot/internal/repository"
	"github.com/finki-hub/finki-chat-bot/internal/service"
	"github.com/finki-hub/finki-chat-bot/pkg/vectors"
)

const questionEmbeddingTimeout = 60 * time.Second

// questionEmbeddingRepo is the minimal persistence interface the worker needs.
type questionEmbeddingRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Question, error)
	SetEmbedding(ctx context.Context, id uuid.UUID, model models.Model, embedding []float32) error
}

// QuestionEmbeddingWorker generates and stores one question's vector for one model.
type QuestionEmbeddingWorker struct {
	river.WorkerDefaults[service.QuestionEmbeddingArgs]

	repo       questionEmbeddingRepo
	embeddings *embeddings.Registry
	metrics    observability.EmbeddingMetrics
	logger     *slog.Logger
}

// NewQuestionEmbeddingWorker creates the worker. metrics may be nil when metrics are disabled.
func NewQuestionEmbeddingWorker(
	repo questionEmbeddingRepo,
	registry *embeddings.Registry,
	metrics observability.EmbeddingMetrics,
	logger *slog.Logger,
) *QuestionEmbeddingWorker {
	if logger == nil {
		logger = slog.Default()
	}

	return &QuestionEmbeddingWorker{
		repo:       repo,
		embeddings: registry,
		metrics:    metrics,
		logger:     logger,
	}
}

// Timeout limits how long a single embedding job can run.
func (w *QuestionEmbeddingWorker) Timeout(*river.Job[service.QuestionEmbeddingArgs]) time.Duration {
	return questionEmbeddingTimeout
}

// Work loads the question, generates the vector, and persists it. A deleted
// question or an unregistered model completes the job without retrying;
// transient embed and store failures are retried by River.
func (w *QuestionEmbeddingWorker) Work(ctx context.Context, job *river.Job[service.QuestionEmbeddingArgs]) error {
	args := job.Args
	start := time.Now()

	outcome := func(status string) {
		if w.metrics != nil {
			w.metrics.RecordJobOutcome(ctx, string(args.Model), status)
			w.metrics.RecordJobDuration(ctx, time.Since(start), status)
		}
	}

	client, err := w.embeddings.ForModel(args.Model)
	if err != nil {
		w.logger.WarnContext(ctx, "embedding job: model has no backend, skipping",
			"model", args.Model,
			"question_id", args.QuestionID,
		)
		outcome("skipped")

		return nil
	}

	q, err := w.repo.GetByID(ctx, args.QuestionID)
	if err != nil {
		if errors.Is(err, repository.ErrQuestionNotFound) {
			// Deleted between enqueue and run.
			outcome("skipped")

			return nil
		}

		if w.metrics != nil {
			w.metrics.RecordWorkerError(ctx, "get_question_failed")
		}
		outcome(retryStatus(job))

		return fmt.Errorf("get question %s: %w", args.QuestionID, err)
	}

	vec, err := client.Embed(ctx, prompt.Document(q.Name, q.Content))
	if err != nil {
		if w.metrics != nil {
			w.metrics.RecordWorkerError(ctx, "embed_failed")
		}
		outcome(retryStatus(job))

		return fmt.Errorf("embed question %s with %s: %w", args.QuestionID, args.Model, err)
	}

	vectors.NormalizeL2(vec)

	if err := w.repo.SetEmbedding(ctx, q.ID, args.Model, vec); err != nil {
		if w.metrics != nil {
			w.metrics.RecordWorkerError(ctx, "store_failed")
		}
		outcome(retryStatus(job))

		return fmt.Errorf("store embedding for %s: %w", args.QuestionID, err)
	}

	outcome("stored")

	return nil
}

// retryStatus reports whether River will run this job again.
func retryStatus(job *river.Job[service.QuestionEmbeddingArgs]) string {
	if job.Attempt >= job.MaxAttempts {
		return "failed_final"
	}

	return "retry"
}
