package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/finki-hub/finki-chat-bot/internal/embeddings"
	"github.com/finki-hub/finki-chat-bot/internal/models"
	"github.com/finki-hub/finki-chat-bot/internal/observability"
	"github.com/finki-hub/finki-chat-bot/internal/prompt"
	"github.com/finki-hub/finki-chat-bot/internal/repository"
	"github.com/finki-hub/finki-chat-bot/pkg/vectors"
)

// QuestionsRepo provides the persistence operations the service needs.
type QuestionsRepo interface {
	List(ctx context.Context) ([]models.Question, error)
	ListNames(ctx context.Context) ([]string, error)
	GetByName(ctx context.Context, name string) (*models.Question, error)
	GetNth(ctx context.Context, n int) (*models.Question, error)
	Create(ctx context.Context, req models.CreateQuestionRequest) (*models.Question, error)
	Update(ctx context.Context, name string, req models.UpdateQuestionRequest) (*models.Question, error)
	Delete(ctx context.Context, name string) error
	ListMissingEmbeddings(ctx context.Context, model models.Model, all bool) ([]models.Question, error)
	SetEmbedding(ctx context.Context, id uuid.UUID, model models.Model, embedding []float32) error
}

// BackfillProgress reports one processed question during a backfill run.
type BackfillProgress struct {
	Name  string
	Index int
	Total int
	Err   error
}

// BackfillSummary closes a backfill run.
type BackfillSummary struct {
	Total     int
	Succeeded int
	Failed    int
	Duration  time.Duration
}

// BackfillEvent is one frame of the backfill stream: exactly one of Progress
// or Summary is set, and Summary is always the final event.
type BackfillEvent struct {
	Progress *BackfillProgress
	Summary  *BackfillSummary
}

// QuestionsService owns the question knowledge base: CRUD, synchronous
// embedding backfill, and async embedding jobs on writes.
type QuestionsService struct {
	repo          QuestionsRepo
	embeddings    *embeddings.Registry
	jobs          EmbeddingJobInserter
	metrics       observability.EmbeddingMetrics
	logger        *slog.Logger
	maxConcurrent int
	embedRate     rate.Limit
}

// QuestionsServiceParams configures QuestionsService. Jobs and Metrics may be
// nil (no async embedding / no metrics).
type QuestionsServiceParams struct {
	Repo       QuestionsRepo
	Embeddings *embeddings.Registry
	Jobs       EmbeddingJobInserter
	Metrics    observability.EmbeddingMetrics
	Logger     *slog.Logger
	// MaxConcurrent bounds parallel embed calls during backfill (default 4).
	MaxConcurrent int
	// EmbedRate bounds embed calls per second during backfill (default 5).
	EmbedRate float64
}

// NewQuestionsService creates a QuestionsService.
func NewQuestionsService(p QuestionsServiceParams) *QuestionsService {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	maxConcurrent := p.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}

	embedRate := p.EmbedRate
	if embedRate <= 0 {
		embedRate = 5
	}

	return &QuestionsService{
		repo:          p.Repo,
		embeddings:    p.Embeddings,
		jobs:          p.Jobs,
		metrics:       p.Metrics,
		logger:        logger,
		maxConcurrent: maxConcurrent,
		embedRate:     rate.Limit(embedRate),
	}
}

// List returns all questions in name order.
func (s *QuestionsService) List(ctx context.Context) ([]models.Question, error) {
	return s.repo.List(ctx)
}

// ListNames returns all question names in name order.
func (s *QuestionsService) ListNames(ctx context.Context) ([]string, error) {
	return s.repo.ListNames(ctx)
}

// GetByName returns one question by its name slug.
func (s *QuestionsService) GetByName(ctx context.Context, name string) (*models.Question, error) {
	return s.repo.GetByName(ctx, name)
}

// GetNth returns the question at ordinal position n in name order.
func (s *QuestionsService) GetNth(ctx context.Context, n int) (*models.Question, error) {
	return s.repo.GetNth(ctx, n)
}

// Create inserts a question and enqueues embedding jobs for every
// embedding-capable model.
func (s *QuestionsService) Create(ctx context.Context, req models.CreateQuestionRequest) (*models.Question, error) {
	q, err := s.repo.Create(ctx, req)
	if err != nil {
		return nil, err
	}

	s.enqueueEmbeddingJobs(ctx, q.ID)

	return q, nil
}

// Update modifies a question. A content change invalidates all stored vectors,
// so fresh embedding jobs are enqueued.
func (s *QuestionsService) Update(ctx context.Context, name string, req models.UpdateQuestionRequest) (*models.Question, error) {
	q, err := s.repo.Update(ctx, name, req)
	if err != nil {
		return nil, err
	}

	if req.Content != nil {
		s.enqueueEmbeddingJobs(ctx, q.ID)
	}

	return q, nil
}

// Delete removes a question by name.
func (s *QuestionsService) Delete(ctx context.Context, name string) error {
	return s.repo.Delete(ctx, name)
}

// enqueueEmbeddingJobs inserts one job per embedding-capable model. Enqueue
// failures are logged, not surfaced: the write already succeeded and the
// backfill endpoint can repair missing vectors.
func (s *QuestionsService) enqueueEmbeddingJobs(ctx context.Context, id uuid.UUID) {
	if s.jobs == nil {
		return
	}

	var enqueued int64

	for _, model := range models.EmbeddingModels() {
		_, err := s.jobs.Insert(ctx, QuestionEmbeddingArgs{QuestionID: id, Model: model}, &river.InsertOpts{
			Queue:      EmbeddingsQueueName,
			UniqueOpts: river.UniqueOpts{ByArgs: true},
		})
		if err != nil {
			s.logger.ErrorContext(ctx, "enqueue embedding job failed",
				"question_id", id,
				"model", model,
				"error", err,
			)

			continue
		}

		enqueued++
	}

	if enqueued > 0 && s.metrics != nil {
		s.metrics.RecordJobsEnqueued(ctx, enqueued)
	}
}

// FillEmbeddings regenerates stored vectors for model: questions missing a
// vector, or every question when all is true. It returns a stream of per-row
// progress events ending with a summary. A failed row never stops the run.
func (s *QuestionsService) FillEmbeddings(ctx context.Context, model models.Model, all bool) (<-chan BackfillEvent, error) {
	client, err := s.embeddings.ForModel(model)
	if err != nil {
		return nil, err
	}

	questions, err := s.repo.ListMissingEmbeddings(ctx, model, all)
	if err != nil {
		return nil, fmt.Errorf("list questions for backfill: %w", err)
	}

	out := make(chan BackfillEvent)

	go func() {
		defer close(out)

		start := time.Now()
		limiter := rate.NewLimiter(s.embedRate, 1)

		var succeeded, failed atomic.Int64

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.maxConcurrent)

		for i, q := range questions {
			g.Go(func() error {
				if err := limiter.Wait(gctx); err != nil {
					//nolint:wrapcheck // context cancellation ends the whole run
					return err
				}

				embedErr := s.embedAndStore(gctx, client, model, q)
				if embedErr == nil {
					succeeded.Add(1)
				} else {
					failed.Add(1)
					s.logger.WarnContext(gctx, "backfill: question failed",
						"name", q.Name,
						"model", model,
						"error", embedErr,
					)
				}

				select {
				case out <- BackfillEvent{Progress: &BackfillProgress{
					Name:  q.Name,
					Index: i + 1,
					Total: len(questions),
					Err:   embedErr,
				}}:
				case <-gctx.Done():
					return gctx.Err()
				}

				return nil
			})
		}

		err := g.Wait()

		// Counted explicitly so rows never attempted (cancellation) are
		// neither succeeded nor failed.
		summary := BackfillSummary{
			Total:     len(questions),
			Succeeded: int(succeeded.Load()),
			Failed:    int(failed.Load()),
			Duration:  time.Since(start),
		}

		if err != nil {
			// Cancelled mid-run; the summary covers what was attempted.
			s.logger.WarnContext(ctx, "backfill interrupted", "model", model, "error", err)
		}

		select {
		case out <- BackfillEvent{Summary: &summary}:
		case <-ctx.Done():
		}
	}()

	return out, nil
}

// embedAndStore generates and persists one question's vector.
func (s *QuestionsService) embedAndStore(
	ctx context.Context, client embeddings.Client, model models.Model, q models.Question,
) error {
	vec, err := client.Embed(ctx, prompt.Document(q.Name, q.Content))
	if err != nil {
		return fmt.Errorf("embed question %q: %w", q.Name, err)
	}

	vectors.NormalizeL2(vec)

	if err := s.repo.SetEmbedding(ctx, q.ID, model, vec); err != nil {
		return fmt.Errorf("store embedding for %q: %w", q.Name, err)
	}

	return nil
}

var _ QuestionsRepo = (*repository.QuestionsRepository)(nil)
