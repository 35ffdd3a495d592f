// backfill-embeddings generates and stores question vectors for one embedding
// model, synchronously, printing per-question progress. Run it after importing
// questions or after changing an embedding model; the API server stays
// untouched. With -all every vector is regenerated, otherwise only missing
// ones.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/finki-hub/finki-chat-bot/internal/config"
	"github.com/finki-hub/finki-chat-bot/internal/embeddings"
	"github.com/finki-hub/finki-chat-bot/internal/googleai"
	"github.com/finki-hub/finki-chat-bot/internal/gpuapi"
	"github.com/finki-hub/finki-chat-bot/internal/models"
	"github.com/finki-hub/finki-chat-bot/internal/observability"
	"github.com/finki-hub/finki-chat-bot/internal/ollama"
	"github.com/finki-hub/finki-chat-bot/internal/openai"
	"github.com/finki-hub/finki-chat-bot/internal/repository"
	"github.com/finki-hub/finki-chat-bot/internal/service"
	"github.com/finki-hub/finki-chat-bot/pkg/database"
)

const (
	exitSuccess = 0
	exitFailure = 1
)

func main() {
	os.Exit(run())
}

func run() int {
	modelFlag := flag.String("model", string(models.DefaultEmbeddingsModel), "embedding model to backfill")
	allFlag := flag.Bool("all", false, "regenerate every vector, not just missing ones")
	flag.Parse()

	// Load .env for consistency with the API server.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env file", "error", err)
	}

	// API_KEY is unused here but config.Load requires it; any value works for
	// a local run.
	if os.Getenv("API_KEY") == "" {
		os.Setenv("API_KEY", "backfill")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)

		return exitFailure
	}

	logger := observability.NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	model := models.Model(*modelFlag)
	if !model.IsEmbeddingCapable() {
		logger.Error("model is not embedding-capable", "model", *modelFlag)

		return exitFailure
	}

	ctx := context.Background()

	db, err := database.NewPostgresPool(ctx, cfg.DatabaseURL, database.WithVectorTypes())
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)

		return exitFailure
	}
	defer db.Close()

	registry := embeddings.NewRegistry()

	switch provider, _ := model.Provider(); provider {
	case models.ProviderOllama:
		if model == models.ModelBGEM3 {
			registry.Register(model, embeddings.NewGPUClient(gpuapi.NewClient(cfg.GPUAPIURL), model))
		} else {
			registry.Register(model, embeddings.NewOllamaClient(ollama.NewClient(cfg.OllamaURL), model))
		}
	case models.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			logger.Error("OPENAI_API_KEY is required for this model", "model", model)

			return exitFailure
		}

		registry.Register(model, embeddings.NewOpenAIClient(openai.NewClient(cfg.OpenAIAPIKey), model))
	case models.ProviderGoogle:
		if cfg.GoogleAPIKey == "" {
			logger.Error("GOOGLE_API_KEY is required for this model", "model", model)

			return exitFailure
		}

		googleClient, err := googleai.NewClient(ctx, cfg.GoogleAPIKey)
		if err != nil {
			logger.Error("Failed to create Google client", "error", err)

			return exitFailure
		}

		registry.Register(model, embeddings.NewGoogleClient(googleClient, model))
	}

	questionsService := service.NewQuestionsService(service.QuestionsServiceParams{
		Repo:          repository.NewQuestionsRepository(db),
		Embeddings:    registry,
		Logger:        logger,
		MaxConcurrent: cfg.EmbeddingMaxConcurrent,
	})

	events, err := questionsService.FillEmbeddings(ctx, model, *allFlag)
	if err != nil {
		logger.Error("Backfill failed to start", "error", err)

		return exitFailure
	}

	failed := 0

	for ev := range events {
		switch {
		case ev.Progress != nil:
			if ev.Progress.Err != nil {
				failed++

				fmt.Printf("[%d/%d] %s: ERROR: %v\n", ev.Progress.Index, ev.Progress.Total, ev.Progress.Name, ev.Progress.Err)
			} else {
				fmt.Printf("[%d/%d] %s: ok\n", ev.Progress.Index, ev.Progress.Total, ev.Progress.Name)
			}
		case ev.Summary != nil:
			fmt.Printf("done: %d total, %d succeeded, %d failed in %s\n",
				ev.Summary.Total, ev.Summary.Succeeded, ev.Summary.Failed, ev.Summary.Duration.Round(time.Millisecond))
		}
	}

	if failed > 0 {
		return exitFailure
	}

	return exitSuccess
}
