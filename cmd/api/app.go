package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/finki-hub/finki-chat-bot/internal/agent"
	"github.com/finki-hub/finki-chat-bot/internal/api/handlers"
	"github.com/finki-hub/finki-chat-bot/internal/api/middleware"
	"github.com/finki-hub/finki-chat-bot/internal/config"
	"github.com/finki-hub/finki-chat-bot/internal/embeddings"
	apperrors "github.com/finki-hub/finki-chat-bot/internal/errors"
	"github.com/finki-hub/finki-chat-bot/internal/googleai"
	"github.com/finki-hub/finki-chat-bot/internal/gpuapi"
	"github.com/finki-hub/finki-chat-bot/internal/llm"
	"github.com/finki-hub/finki-chat-bot/internal/mcp"
	"github.com/finki-hub/finki-chat-bot/internal/models"
	"github.com/finki-hub/finki-chat-bot/internal/observability"
	"github.com/finki-hub/finki-chat-bot/internal/ollama"
	"github.com/finki-hub/finki-chat-bot/internal/openai"
	"github.com/finki-hub/finki-chat-bot/internal/repository"
	"github.com/finki-hub/finki-chat-bot/internal/service"
	"github.com/finki-hub/finki-chat-bot/internal/workers"
)

// App holds all server dependencies and coordinates startup and shutdown.
type App struct {
	cfg            *config.Config
	db             *pgxpool.Pool
	server         *http.Server
	river          *river.Client[pgx.Tx]
	meterProvider  observability.MeterProviderShutdown
	tracerProvider *sdktrace.TracerProvider
	logger         *slog.Logger
}

const (
	queryEmbeddingCacheSize = 1000
	maxRequestBodyBytes     = 1 << 20
	transformMaxTokens      = 128
)

var errAPIKeyNotConfigured = errors.New("provider API key not configured")

// openaiCompleter adapts the OpenAI client to the query transformer.
type openaiCompleter struct {
	client *openai.Client
	model  models.Model
}

func (c openaiCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	return c.client.Complete(ctx, openai.ChatParams{
		Model:        string(c.model),
		SystemPrompt: system,
		UserPrompt:   user,
		TopP:         models.DefaultTopP,
		MaxTokens:    transformMaxTokens,
	})
}

// ollamaCompleter adapts the Ollama client to the query transformer.
type ollamaCompleter struct {
	client *ollama.Client
	model  models.Model
}

func (c ollamaCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	return c.client.Complete(ctx, ollama.ChatParams{
		Model:        string(c.model),
		SystemPrompt: system,
		UserPrompt:   user,
		TopP:         models.DefaultTopP,
		MaxTokens:    transformMaxTokens,
	})
}

// NewApp builds and wires all components. It does not start the HTTP server or
// River; call Run to start and block until shutdown or failure.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool) (*App, error) {
	meterProvider, metricsHandler, meter, err := observability.NewMeterProvider(ctx, observability.MeterProviderConfig{
		Exporter: cfg.OtelMetricsExporter,
	})
	if err != nil {
		return nil, fmt.Errorf("create meter provider: %w", err)
	}

	if meterProvider == nil {
		logger.Warn("metrics not enabled (OTEL_METRICS_EXPORTER empty or unset)")
	}

	tracerProvider, err := observability.NewTracerProvider(ctx, "", cfg.OtelTracesExporter)
	if err != nil {
		if err2 := observability.ShutdownMeterProvider(context.Background(), meterProvider); err2 != nil {
			logger.Error("shutdown meter provider after tracer provider error", "error", err2)
		}

		return nil, fmt.Errorf("create tracer provider: %w", err)
	}

	if tracerProvider != nil {
		otel.SetTracerProvider(tracerProvider)
	}

	var (
		chatMetrics      observability.ChatMetrics
		cacheMetrics     observability.CacheMetrics
		embeddingMetrics observability.EmbeddingMetrics
	)

	if meter != nil {
		if chatMetrics, err = observability.NewChatMetrics(meter); err != nil {
			return nil, fmt.Errorf("create chat metrics: %w", err)
		}

		if cacheMetrics, err = observability.NewCacheMetrics(meter); err != nil {
			return nil, fmt.Errorf("create cache metrics: %w", err)
		}

		if embeddingMetrics, err = observability.NewEmbeddingMetrics(meter); err != nil {
			return nil, fmt.Errorf("create embedding metrics: %w", err)
		}
	}

	// Backend clients. Ollama and the GPU worker are always reachable by URL;
	// hosted providers exist only when their key is configured.
	ollamaClient := ollama.NewClient(cfg.OllamaURL)
	gpuClient := gpuapi.NewClient(cfg.GPUAPIURL)

	var openaiClient *openai.Client
	if cfg.OpenAIAPIKey != "" {
		openaiClient = openai.NewClient(cfg.OpenAIAPIKey)
	} else {
		logger.Info("OpenAI models disabled (OPENAI_API_KEY not set)")
	}

	var googleClient *googleai.Client

	if cfg.GoogleAPIKey != "" {
		googleClient, err = googleai.NewClient(ctx, cfg.GoogleAPIKey)
		if err != nil {
			return nil, fmt.Errorf("create google client: %w", err)
		}
	} else {
		logger.Info("Google models disabled (GOOGLE_API_KEY not set)")
	}

	embeddingRegistry := buildEmbeddingRegistry(ollamaClient, gpuClient, openaiClient, googleClient)

	llmRegistry, err := llm.NewRegistry(providerFactory(ollamaClient, openaiClient, googleClient))
	if err != nil {
		return nil, fmt.Errorf("create llm registry: %w", err)
	}

	var agentStreamer llm.AgentStreamer

	if len(cfg.MCPURLs) > 0 {
		servers := make([]*mcp.Client, 0, len(cfg.MCPURLs))
		for _, u := range cfg.MCPURLs {
			servers = append(servers, mcp.NewClient(u))
		}

		agentStreamer = agent.NewRunner(agent.Options{
			Servers:       servers,
			OpenAIAPIKey:  cfg.OpenAIAPIKey,
			OllamaBaseURL: cfg.OllamaURL,
			Logger:        logger,
		})
		logger.Info("agent mode enabled", "tool_servers", len(cfg.MCPURLs))
	} else {
		logger.Info("agent mode disabled (MCP_URLS not set), agent requests use direct generation")
	}

	dispatcher := llm.NewDispatcher(llmRegistry, agentStreamer, logger)

	// The query rewrite runs on a cheap hosted model when a key is available,
	// otherwise on the default local model.
	var completer service.Completer
	if openaiClient != nil {
		completer = openaiCompleter{client: openaiClient, model: models.ModelGPT41Nano}
	} else {
		completer = ollamaCompleter{client: ollamaClient, model: models.DefaultInferenceModel}
	}

	transformer := service.NewQueryTransformer(completer, logger)
	reranker := service.NewReranker(gpuClient, logger)

	questionsRepo := repository.NewQuestionsRepository(db)
	linksRepo := repository.NewLinksRepository(db)

	chatService := service.NewChatService(service.ChatServiceParams{
		Questions:   questionsRepo,
		Embeddings:  embeddingRegistry,
		Transformer: transformer,
		Reranker:    reranker,
		Dispatcher:  dispatcher,
		Settings: service.RetrievalSettings{
			Threshold: cfg.RetrievalThreshold,
			InitialK:  cfg.RetrievalInitialK,
			TopK:      cfg.RetrievalTopK,
		},
		QueryCacheSize: queryEmbeddingCacheSize,
		ChatMetrics:    chatMetrics,
		CacheMetrics:   cacheMetrics,
		Logger:         logger,
	})

	riverWorkers := river.NewWorkers()
	river.AddWorker(riverWorkers, workers.NewQuestionEmbeddingWorker(questionsRepo, embeddingRegistry, embeddingMetrics, logger))

	riverClient, err := river.NewClient(riverpgxv5.New(db), &river.Config{
		Queues: map[string]river.QueueConfig{
			service.EmbeddingsQueueName: {MaxWorkers: cfg.EmbeddingMaxConcurrent},
		},
		Workers:     riverWorkers,
		MaxAttempts: cfg.EmbeddingMaxAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("create River client: %w", err)
	}

	questionsService := service.NewQuestionsService(service.QuestionsServiceParams{
		Repo:          questionsRepo,
		Embeddings:    embeddingRegistry,
		Jobs:          riverClient,
		Metrics:       embeddingMetrics,
		Logger:        logger,
		MaxConcurrent: cfg.EmbeddingMaxConcurrent,
	})
	linksService := service.NewLinksService(linksRepo, logger)

	chatHandler := handlers.NewChatHandler(chatService, logger)
	questionsHandler := handlers.NewQuestionsHandler(questionsService, logger)
	linksHandler := handlers.NewLinksHandler(linksService, logger)
	healthHandler := handlers.NewHealthHandler(db, logger)

	server := newHTTPServer(
		cfg, logger,
		healthHandler, chatHandler, questionsHandler, linksHandler,
		metricsHandler, tracerProvider,
	)

	return &App{
		cfg:            cfg,
		db:             db,
		server:         server,
		river:          riverClient,
		meterProvider:  meterProvider,
		tracerProvider: tracerProvider,
		logger:         logger,
	}, nil
}

// buildEmbeddingRegistry maps each embedding-capable model to the client that
// serves it. bge-m3 lives on the GPU worker; llama embeddings come straight
// from Ollama; hosted models register only when their provider is configured.
func buildEmbeddingRegistry(
	ollamaClient *ollama.Client,
	gpuClient *gpuapi.Client,
	openaiClient *openai.Client,
	googleClient *googleai.Client,
) *embeddings.Registry {
	registry := embeddings.NewRegistry()
	registry.Register(models.ModelBGEM3, embeddings.NewGPUClient(gpuClient, models.ModelBGEM3))
	registry.Register(models.ModelLlama33_70B, embeddings.NewOllamaClient(ollamaClient, models.ModelLlama33_70B))

	if openaiClient != nil {
		registry.Register(models.ModelTextEmb3SM, embeddings.NewOpenAIClient(openaiClient, models.ModelTextEmb3SM))
	}

	if googleClient != nil {
		registry.Register(models.ModelGeminiEmbedding, embeddings.NewGoogleClient(googleClient, models.ModelGeminiEmbedding))
	}

	return registry
}

// providerFactory builds generation providers on demand, one per distinct
// model and sampling configuration. Requests for a hosted provider without a
// configured key fail as provider-unavailable.
func providerFactory(
	ollamaClient *ollama.Client,
	openaiClient *openai.Client,
	googleClient *googleai.Client,
) llm.Factory {
	return func(_ context.Context, params llm.Params) (llm.StreamingProvider, error) {
		provider, ok := params.Model.Provider()
		if !ok {
			return nil, apperrors.NewUnsupportedModelError(string(params.Model), "inference")
		}

		switch provider {
		case models.ProviderOllama:
			return llm.NewOllamaProvider(ollamaClient, params), nil
		case models.ProviderOpenAI:
			if openaiClient == nil {
				return nil, apperrors.NewProviderUnavailableError(string(provider), errAPIKeyNotConfigured)
			}

			return llm.NewOpenAIProvider(openaiClient, params), nil
		case models.ProviderGoogle:
			if googleClient == nil {
				return nil, apperrors.NewProviderUnavailableError(string(provider), errAPIKeyNotConfigured)
			}

			return llm.NewGoogleProvider(googleClient, params), nil
		default:
			return nil, apperrors.NewUnsupportedModelError(string(params.Model), "inference")
		}
	}
}

// newHTTPServer builds the HTTP server and muxes (no auth on /health and
// /metrics, API key on everything else). Handler chain:
// RequestID -> otelhttp(Logging(mux)) so access logs get trace_id/span_id from context.
func newHTTPServer(
	cfg *config.Config,
	logger *slog.Logger,
	health *handlers.HealthHandler,
	chat *handlers.ChatHandler,
	questions *handlers.QuestionsHandler,
	links *handlers.LinksHandler,
	metricsHandler http.Handler,
	tracerProvider *sdktrace.TracerProvider,
) *http.Server {
	public := http.NewServeMux()
	public.HandleFunc("GET /health", health.Health)

	if metricsHandler != nil {
		public.Handle("GET /metrics", metricsHandler)
	}

	protected := http.NewServeMux()
	protected.HandleFunc("POST /chat", chat.Chat)

	protected.HandleFunc("GET /questions/list", questions.List)
	protected.HandleFunc("GET /questions/names", questions.ListNames)
	protected.HandleFunc("GET /questions/name/{name}", questions.GetByName)
	protected.HandleFunc("GET /questions/nth/{n}", questions.GetNth)
	protected.HandleFunc("POST /questions/create", questions.Create)
	protected.HandleFunc("PUT /questions/update/{name}", questions.Update)
	protected.HandleFunc("DELETE /questions/delete/{name}", questions.Delete)
	protected.HandleFunc("POST /questions/fill-embeddings", questions.FillEmbeddings)

	protected.HandleFunc("GET /links/list", links.List)
	protected.HandleFunc("GET /links/names", links.ListNames)
	protected.HandleFunc("GET /links/name/{name}", links.GetByName)
	protected.HandleFunc("POST /links/create", links.Create)
	protected.HandleFunc("PUT /links/update/{name}", links.Update)
	protected.HandleFunc("DELETE /links/delete/{name}", links.Delete)

	var protectedHandler http.Handler = protected
	protectedHandler = middleware.MaxBody(maxRequestBodyBytes)(protectedHandler)
	protectedHandler = middleware.Auth(cfg.APIKey)(protectedHandler)

	mux := http.NewServeMux()
	mux.Handle("/chat", protectedHandler)
	mux.Handle("/questions/", protectedHandler)
	mux.Handle("/links/", protectedHandler)
	mux.Handle("/", public)

	otelOpts := []otelhttp.Option{
		// Skip tracing and HTTP metrics for health checks to reduce noise.
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/health" && r.URL.Path != "/metrics"
		}),
	}
	if tracerProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithTracerProvider(tracerProvider))
	}

	// Logging runs inside otelhttp so r.Context() has the span when we log.
	inner := middleware.Logging(logger)(mux)
	handler := otelhttp.NewHandler(inner, "chat-api", otelOpts...)
	handler = middleware.RequestID(handler)

	const (
		readHeaderTimeout = 5 * time.Second
		readTimeout       = 15 * time.Second
		idleTimeout       = 60 * time.Second
	)

	return &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		// No WriteTimeout: chat and backfill responses stream for as long as
		// generation runs.
		IdleTimeout: idleTimeout,
	}
}

// Run starts the HTTP server and River, then blocks until ctx is cancelled
// (e.g. signal) or a component fails. Caller should then call Shutdown.
func (a *App) Run(ctx context.Context) error {
	runErr := make(chan error, 1)

	riverCtx, cancelRiver := context.WithCancel(ctx)
	defer cancelRiver()

	go func() {
		if err := a.river.Start(riverCtx); err != nil && !errors.Is(err, context.Canceled) {
			select {
			case runErr <- fmt.Errorf("river: %w", err):
			default:
			}
		}
	}()

	go func() {
		a.logger.Info("Starting server", "port", a.cfg.Port)

		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case runErr <- fmt.Errorf("server: %w", err):
			default:
			}
		}
	}()

	select {
	case err := <-runErr:
		cancelRiver()

		return err
	case <-ctx.Done():
		cancelRiver()

		return nil
	}
}

// shutdownObservability shuts down tracer and meter providers. Logs secondary
// errors, returns the first.
func (a *App) shutdownObservability(ctx context.Context) error {
	var first error

	if a.tracerProvider != nil {
		if err := observability.ShutdownTracerProvider(ctx, a.tracerProvider); err != nil {
			first = err
		}
	}

	if err := observability.ShutdownMeterProvider(ctx, a.meterProvider); err != nil {
		if first == nil {
			first = err
		} else {
			a.logger.Error("shutdown meter provider", "error", err)
		}
	}

	return first
}

// Shutdown stops the server and River in order, then observability. Call
// after Run returns.
func (a *App) Shutdown(ctx context.Context) (err error) {
	defer func() {
		obsErr := a.shutdownObservability(ctx)
		if err == nil {
			err = obsErr
		} else if obsErr != nil {
			a.logger.Error("shutdown observability", "error", obsErr)
		}
	}()

	if err = a.server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		if stopErr := a.river.Stop(ctx); stopErr != nil {
			a.logger.Error("river stop during server shutdown", "error", stopErr)
		}

		return fmt.Errorf("server shutdown: %w", err)
	}

	if err = a.river.Stop(ctx); err != nil {
		return fmt.Errorf("river stop: %w", err)
	}

	return nil
}
