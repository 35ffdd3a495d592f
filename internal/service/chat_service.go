package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/finki-hub/finki-chat-bot/internal/embeddings"
	apperrors "github.com/finki-hub/finki-chat-bot/internal/errors"
	"github.com/finki-hub/finki-chat-bot/internal/llm"
	"github.com/finki-hub/finki-chat-bot/internal/models"
	"github.com/finki-hub/finki-chat-bot/internal/observability"
	"github.com/finki-hub/finki-chat-bot/internal/prompt"
	"github.com/finki-hub/finki-chat-bot/pkg/cache"
	"github.com/finki-hub/finki-chat-bot/pkg/vectors"
)

const queryEmbeddingCacheName = "query_embedding"

// queryKey identifies one cached query embedding.
type queryKey struct {
	model models.Model
	text  string
}

// QuestionsRetriever provides the vector search the chat pipeline needs.
type QuestionsRetriever interface {
	Nearest(ctx context.Context, queryEmbedding []float32, model models.Model, limit int, threshold float64) ([]models.RetrievalCandidate, error)
}

// RetrievalSettings tune the enlarge-then-narrow retrieval window.
type RetrievalSettings struct {
	// Threshold is the maximum cosine distance for a candidate to count as relevant.
	Threshold float64
	// InitialK is the candidate pool size handed to the reranker.
	InitialK int
	// TopK is the number of documents that reach the prompt.
	TopK int
}

// ChatStream is a started chat response: the token stream plus what the
// pipeline did to produce it.
type ChatStream struct {
	Events         <-chan llm.Event
	Mode           llm.Mode
	FallbackReason string

	// RetrievalQuery is the query actually embedded, after the rewrite.
	RetrievalQuery string
	// Documents is how many documents made it into the prompt.
	Documents int
	// RerankApplied reports whether the cross-encoder ordering was used.
	RerankApplied bool
}

// ChatService runs the retrieval-augmented chat pipeline end to end:
// transform, embed, retrieve, rerank, build the prompt, dispatch generation.
type ChatService struct {
	questions   QuestionsRetriever
	embeddings  *embeddings.Registry
	transformer *QueryTransformer
	reranker    *Reranker
	dispatcher  *llm.Dispatcher
	settings    RetrievalSettings

	queryCache *cache.LoaderCache[queryKey, []float32]

	chatMetrics  observability.ChatMetrics
	cacheMetrics observability.CacheMetrics
	logger       *slog.Logger
}

// ChatServiceParams configures ChatService. ChatMetrics and CacheMetrics may
// be nil (no metrics); QueryCacheSize 0 disables query embedding caching.
type ChatServiceParams struct {
	Questions   QuestionsRetriever
	Embeddings  *embeddings.Registry
	Transformer *QueryTransformer
	Reranker    *Reranker
	Dispatcher  *llm.Dispatcher
	Settings    RetrievalSettings
	// QueryCacheSize is the max number of cached query embeddings.
	QueryCacheSize int
	ChatMetrics    observability.ChatMetrics
	CacheMetrics   observability.CacheMetrics
	Logger         *slog.Logger
}

// NewChatService creates a ChatService.
func NewChatService(p ChatServiceParams) *ChatService {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var queryCache *cache.LoaderCache[queryKey, []float32]
	if p.QueryCacheSize > 0 {
		queryCache, _ = cache.NewLoaderCache[queryKey, []float32](p.QueryCacheSize, func(k queryKey) string {
			return fmt.Sprintf("%s|%s", k.model, k.text)
		})
	}

	return &ChatService{
		questions:    p.Questions,
		embeddings:   p.Embeddings,
		transformer:  p.Transformer,
		reranker:     p.Reranker,
		dispatcher:   p.Dispatcher,
		settings:     p.Settings,
		queryCache:   queryCache,
		chatMetrics:  p.ChatMetrics,
		cacheMetrics: p.CacheMetrics,
		logger:       logger,
	}
}

// Chat runs the pipeline for one request. req must already have defaults
// applied and be validated. The returned stream has produced its first event;
// failures before that point come back as typed errors and nothing is streamed.
func (s *ChatService) Chat(ctx context.Context, req models.ChatRequest) (*ChatStream, error) {
	stream, err := s.chat(ctx, req)

	if s.chatMetrics != nil {
		mode := ""
		if stream != nil {
			mode = string(stream.Mode)
		}

		s.chatMetrics.RecordRequest(ctx, string(req.InferenceModel), mode, chatStatus(err))
	}

	return stream, err
}

func (s *ChatService) chat(ctx context.Context, req models.ChatRequest) (*ChatStream, error) {
	if !req.InferenceModel.IsInferenceCapable() {
		return nil, apperrors.NewUnsupportedModelError(string(req.InferenceModel), "inference")
	}

	embedder, err := s.embeddings.ForModel(req.EmbeddingsModel)
	if err != nil {
		return nil, err
	}

	transform := s.timedTransform(ctx, req.Prompt)

	questions, rerank, err := s.retrieve(ctx, embedder, req, transform.Query)
	if err != nil {
		return nil, err
	}

	if s.chatMetrics != nil {
		s.chatMetrics.RecordDocumentsRetrieved(ctx, len(questions))
	}

	useAgent := req.UseAgent != nil && *req.UseAgent

	system := prompt.DefaultSystemPrompt
	if useAgent {
		system = prompt.DefaultAgentSystemPrompt
	}

	if req.SystemPrompt != nil && *req.SystemPrompt != "" {
		system = *req.SystemPrompt
	}

	docsContext := contextBlock(questions, rerank.Applied)
	if docsContext == "" {
		docsContext = prompt.NoContextFallback
	}

	result, err := s.dispatcher.Dispatch(ctx,
		llm.Params{
			Model:       req.InferenceModel,
			Temperature: req.Temperature,
			TopP:        req.TopP,
			MaxTokens:   req.MaxTokens,
		},
		llm.Prompt{
			System: system,
			User:   prompt.BuildUserPrompt(docsContext, req.Prompt),
		},
		useAgent,
	)
	if err != nil {
		return nil, err
	}

	if result.FallbackReason != "" && s.chatMetrics != nil {
		s.chatMetrics.RecordAgentFallback(ctx, "agent_failed")
	}

	return &ChatStream{
		Events:         result.Events,
		Mode:           result.Mode,
		FallbackReason: result.FallbackReason,
		RetrievalQuery: transform.Query,
		Documents:      len(questions),
		RerankApplied:  rerank.Applied,
	}, nil
}

// contextBlock renders the retrieved questions for the user prompt. A reranked
// set keeps the document formatting the reranker scored, separated so the model
// sees source boundaries; the distance ordering uses the compact list form.
func contextBlock(questions []models.Question, reranked bool) string {
	if !reranked {
		return prompt.BuildContext(questions)
	}

	docs := make([]string, len(questions))
	for i, q := range questions {
		docs[i] = prompt.Document(q.Name, q.Content)
	}

	return prompt.JoinDocuments(docs)
}

// retrieve embeds the query and narrows the candidate pool to the prompt set.
func (s *ChatService) retrieve(
	ctx context.Context, embedder embeddings.Client, req models.ChatRequest, query string,
) ([]models.Question, RerankResult, error) {
	vector, err := s.embedQuery(ctx, embedder, req.EmbeddingsModel, query)
	if err != nil {
		if errors.Is(err, apperrors.ErrModelNotReady) {
			return nil, RerankResult{}, err
		}

		return nil, RerankResult{}, apperrors.NewRetrievalError("embed", err)
	}

	start := time.Now()

	candidates, err := s.questions.Nearest(ctx, vector, req.EmbeddingsModel, s.settings.InitialK, s.settings.Threshold)
	if err != nil {
		return nil, RerankResult{}, apperrors.NewRetrievalError("retrieve", err)
	}

	if s.chatMetrics != nil {
		s.chatMetrics.RecordStageDuration(ctx, observability.StageRetrieve, time.Since(start))
	}

	pool := make([]models.Question, len(candidates))
	for i, c := range candidates {
		pool[i] = c.Question
	}

	rerank := RerankResult{Questions: pool, Reason: "rerank disabled"}

	if req.RerankDocuments == nil || *req.RerankDocuments {
		rerankStart := time.Now()
		rerank = s.reranker.Rerank(ctx, query, pool)

		if s.chatMetrics != nil {
			s.chatMetrics.RecordStageDuration(ctx, observability.StageRerank, time.Since(rerankStart))
		}
	}

	questions := rerank.Questions
	if len(questions) > s.settings.TopK {
		questions = questions[:s.settings.TopK]
	}

	return questions, rerank, nil
}

func (s *ChatService) timedTransform(ctx context.Context, query string) TransformResult {
	start := time.Now()
	result := s.transformer.Transform(ctx, query)

	if s.chatMetrics != nil {
		s.chatMetrics.RecordStageDuration(ctx, observability.StageTransform, time.Since(start))
	}

	return result
}

// embedQuery embeds the retrieval query with the model's instruction prefix,
// caching per (model, query) and collapsing concurrent identical loads.
func (s *ChatService) embedQuery(
	ctx context.Context, embedder embeddings.Client, model models.Model, query string,
) ([]float32, error) {
	text := model.QueryPrefix() + query

	start := time.Now()
	defer func() {
		if s.chatMetrics != nil {
			s.chatMetrics.RecordStageDuration(ctx, observability.StageEmbed, time.Since(start))
		}
	}()

	if s.queryCache == nil {
		vec, err := embedder.Embed(ctx, text)
		if err != nil {
			return nil, err
		}

		vectors.NormalizeL2(vec)

		return vec, nil
	}

	vec, hit, err := s.queryCache.GetWithStats(ctx, queryKey{model: model, text: text},
		func(ctx context.Context, k queryKey) ([]float32, error) {
			loaded, loadErr := embedder.Embed(ctx, k.text)
			if loadErr != nil {
				return nil, loadErr
			}

			vectors.NormalizeL2(loaded)

			return loaded, nil
		})
	if err != nil {
		return nil, fmt.Errorf("query embedding: %w", err)
	}

	if s.cacheMetrics != nil {
		if hit {
			s.cacheMetrics.RecordHit(ctx, queryEmbeddingCacheName)
		} else {
			s.cacheMetrics.RecordMiss(ctx, queryEmbeddingCacheName)
		}
	}

	return vec, nil
}

// chatStatus maps an error to the bounded status label for metrics.
func chatStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, apperrors.ErrUnsupportedModel):
		return "unsupported_model"
	case errors.Is(err, apperrors.ErrModelNotReady):
		return "model_not_ready"
	case errors.Is(err, apperrors.ErrRetrieval):
		return "retrieval_failed"
	case errors.Is(err, apperrors.ErrProviderUnavailable):
		return "provider_unavailable"
	default:
		return "error"
	}
}
