package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finki-hub/finki-chat-bot/internal/embeddings"
	apperrors "github.com/finki-hub/finki-chat-bot/internal/errors"
	"github.com/finki-hub/finki-chat-bot/internal/models"
)

// fakeQuestionsRepo is an in-memory QuestionsRepo covering what the tests use.
type fakeQuestionsRepo struct {
	mu        sync.Mutex
	questions []models.Question
	vectors   map[uuid.UUID][]float32
	storeErr  map[string]error
	storeHook func(name string)
}

func newFakeQuestionsRepo(names ...string) *fakeQuestionsRepo {
	repo := &fakeQuestionsRepo{
		vectors:  make(map[uuid.UUID][]float32),
		storeErr: make(map[string]error),
	}
	for _, name := range names {
		repo.questions = append(repo.questions, models.Question{
			ID:      uuid.Must(uuid.NewV7()),
			Name:    name,
			Content: "содржина за " + name,
		})
	}

	return repo
}

func (f *fakeQuestionsRepo) List(context.Context) ([]models.Question, error) {
	return f.questions, nil
}

func (f *fakeQuestionsRepo) ListNames(context.Context) ([]string, error) { return nil, nil }

func (f *fakeQuestionsRepo) GetByName(context.Context, string) (*models.Question, error) {
	return nil, nil
}

func (f *fakeQuestionsRepo) GetNth(context.Context, int) (*models.Question, error) {
	return nil, nil
}

func (f *fakeQuestionsRepo) Create(_ context.Context, req models.CreateQuestionRequest) (*models.Question, error) {
	q := models.Question{ID: uuid.Must(uuid.NewV7()), Name: req.Name, Content: req.Content}
	f.questions = append(f.questions, q)

	return &q, nil
}

func (f *fakeQuestionsRepo) Update(_ context.Context, name string, req models.UpdateQuestionRequest) (*models.Question, error) {
	for i := range f.questions {
		if f.questions[i].Name == name {
			if req.Content != nil {
				f.questions[i].Content = *req.Content
			}

			return &f.questions[i], nil
		}
	}

	return nil, errors.New("not found")
}

func (f *fakeQuestionsRepo) Delete(context.Context, string) error { return nil }

func (f *fakeQuestionsRepo) ListMissingEmbeddings(_ context.Context, _ models.Model, _ bool) ([]models.Question, error) {
	return f.questions, nil
}

func (f *fakeQuestionsRepo) SetEmbedding(_ context.Context, id uuid.UUID, _ models.Model, vec []float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, q := range f.questions {
		if q.ID == id {
			if f.storeHook != nil {
				f.storeHook(q.Name)
			}

			if err := f.storeErr[q.Name]; err != nil {
				return err
			}
		}
	}

	f.vectors[id] = vec

	return nil
}

// recordingInserter captures enqueued River jobs.
type recordingInserter struct {
	mu   sync.Mutex
	args []QuestionEmbeddingArgs
}

func (r *recordingInserter) Insert(_ context.Context, args river.JobArgs, _ *river.InsertOpts) (*rivertype.JobInsertResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.args = append(r.args, args.(QuestionEmbeddingArgs))

	return &rivertype.JobInsertResult{}, nil
}

func newBackfillService(repo *fakeQuestionsRepo, jobs EmbeddingJobInserter) *QuestionsService {
	registry := embeddings.NewRegistry()
	registry.Register(models.ModelBGEM3, embeddings.NewMockClient())

	return NewQuestionsService(QuestionsServiceParams{
		Repo:       repo,
		Embeddings: registry,
		Jobs:       jobs,
		EmbedRate:  1000,
	})
}

func TestFillEmbeddings(t *testing.T) {
	t.Run("embeds and stores every question", func(t *testing.T) {
		repo := newFakeQuestionsRepo("упис", "сесија", "стипендии")
		svc := newBackfillService(repo, nil)

		events, err := svc.FillEmbeddings(context.Background(), models.ModelBGEM3, false)
		require.NoError(t, err)

		var progress, failures int

		var summary *BackfillSummary

		for ev := range events {
			switch {
			case ev.Progress != nil:
				progress++

				if ev.Progress.Err != nil {
					failures++
				}
			case ev.Summary != nil:
				summary = ev.Summary
			}
		}

		assert.Equal(t, 3, progress)
		assert.Zero(t, failures)
		require.NotNil(t, summary)
		assert.Equal(t, 3, summary.Total)
		assert.Equal(t, 3, summary.Succeeded)
		assert.Len(t, repo.vectors, 3)
	})

	t.Run("one failed row does not stop the run", func(t *testing.T) {
		repo := newFakeQuestionsRepo("упис", "сесија")
		repo.storeErr["сесија"] = errors.New("disk full")
		svc := newBackfillService(repo, nil)

		events, err := svc.FillEmbeddings(context.Background(), models.ModelBGEM3, false)
		require.NoError(t, err)

		var summary *BackfillSummary

		for ev := range events {
			if ev.Summary != nil {
				summary = ev.Summary
			}
		}

		require.NotNil(t, summary)
		assert.Equal(t, 1, summary.Succeeded)
		assert.Equal(t, 1, summary.Failed)
		assert.Len(t, repo.vectors, 1)
	})

	t.Run("cancellation leaves unattempted rows out of the counts", func(t *testing.T) {
		repo := newFakeQuestionsRepo("упис", "сесија", "стипендии")

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		repo.storeHook = func(name string) {
			if name == "сесија" {
				cancel()
			}
		}

		registry := embeddings.NewRegistry()
		registry.Register(models.ModelBGEM3, embeddings.NewMockClient())

		svc := NewQuestionsService(QuestionsServiceParams{
			Repo:          repo,
			Embeddings:    registry,
			EmbedRate:     1000,
			MaxConcurrent: 1,
		})

		events, err := svc.FillEmbeddings(ctx, models.ModelBGEM3, false)
		require.NoError(t, err)

		var summary *BackfillSummary

		for ev := range events {
			if ev.Summary != nil {
				summary = ev.Summary
			}
		}

		assert.Len(t, repo.vectors, 2)

		// The summary frame can be lost to the cancelled context; when it
		// arrives it must only count rows that were actually attempted.
		if summary != nil {
			assert.Equal(t, 3, summary.Total)
			assert.Equal(t, 2, summary.Succeeded)
			assert.Zero(t, summary.Failed)
		}
	})

	t.Run("unregistered model fails before streaming", func(t *testing.T) {
		svc := newBackfillService(newFakeQuestionsRepo("упис"), nil)

		_, err := svc.FillEmbeddings(context.Background(), models.ModelTextEmb3SM, false)

		var unsupported *apperrors.UnsupportedModelError

		require.ErrorAs(t, err, &unsupported)
	})
}

func TestQuestionWritesEnqueueEmbeddingJobs(t *testing.T) {
	t.Run("create enqueues one job per embedding model", func(t *testing.T) {
		inserter := &recordingInserter{}
		svc := newBackfillService(newFakeQuestionsRepo(), inserter)

		q, err := svc.Create(context.Background(), models.CreateQuestionRequest{Name: "упис", Content: "септември"})
		require.NoError(t, err)

		require.Len(t, inserter.args, len(models.EmbeddingModels()))

		for _, args := range inserter.args {
			assert.Equal(t, q.ID, args.QuestionID)
			assert.True(t, args.Model.IsEmbeddingCapable())
		}
	})

	t.Run("content update re-enqueues", func(t *testing.T) {
		inserter := &recordingInserter{}
		repo := newFakeQuestionsRepo("упис")
		svc := newBackfillService(repo, inserter)

		content := "нов термин"

		_, err := svc.Update(context.Background(), "упис", models.UpdateQuestionRequest{Content: &content})
		require.NoError(t, err)
		assert.Len(t, inserter.args, len(models.EmbeddingModels()))
	})

	t.Run("rename without content change does not enqueue", func(t *testing.T) {
		inserter := &recordingInserter{}
		repo := newFakeQuestionsRepo("упис")
		svc := newBackfillService(repo, inserter)

		name := "упис-нов"

		_, err := svc.Update(context.Background(), "упис", models.UpdateQuestionRequest{Name: &name})
		require.NoError(t, err)
		assert.Empty(t, inserter.args)
	})
}
