package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adamstz/organize-mail-sub001/internal/config"
	"github.com/adamstz/organize-mail-sub001/internal/core/ports"
	"github.com/adamstz/organize-mail-sub001/internal/core/usecase"
	"github.com/adamstz/organize-mail-sub001/internal/infrastructure/llm/ollama"
	"github.com/adamstz/organize-mail-sub001/internal/infrastructure/queue/nats"
	"github.com/adamstz/organize-mail-sub001/internal/infrastructure/repository/postgres"
	"github.com/adamstz/organize-mail-sub001/internal/infrastructure/resilience"
	"github.com/adamstz/organize-mail-sub001/internal/infrastructure/vector/qdrant"
)

// App wires the infrastructure adapters into the use cases shared by the api
// and worker binaries.
type App struct {
	Config config.Config

	Queue        ports.MessageQueue
	ChatStore    ports.ChatStore
	QueryService ports.QueryService
	Ingestor     ports.MessageIngestService
	Indexer      ports.MessageIndexer

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	messages := postgres.NewMessageRepository(db)
	if err := messages.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure messages schema: %w", err)
	}
	chats := postgres.NewChatRepository(db)
	if err := chats.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure conversations schema: %w", err)
	}

	exec := resilience.NewExecutor(resilience.DefaultConfig())

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: exec,
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, exec)
	embedder := ollama.NewEmbedder(ollamaClient)
	generator := ollama.NewGenerator(ollamaClient)

	vectors := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection)

	queryService := usecase.NewQueryOrchestrator(messages, vectors, embedder, generator, usecase.QueryConfig{
		TopK:            cfg.RetrievalTopK,
		ScoreThreshold:  cfg.RetrievalThreshold,
		KeywordWeight:   cfg.FusionKeywordWeight,
		VectorWeight:    cfg.FusionVectorWeight,
		RRFK:            cfg.FusionRRFK,
		ContextMaxItems: cfg.ContextMaxItems,
		LLMTimeout:      time.Duration(cfg.LLMTimeoutSeconds) * time.Second,
	}, logger)
	indexer := usecase.NewMessageEmbedder(messages, vectors, embedder, logger)
	ingestor := usecase.NewMessageIngestor(messages, queue, logger)

	return &App{
		Config: cfg,

		Queue:        queue,
		ChatStore:    chats,
		QueryService: queryService,
		Ingestor:     ingestor,
		Indexer:      indexer,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
