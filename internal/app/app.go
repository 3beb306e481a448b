package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/respondeo/internal/common"
	"github.com/ternarybob/respondeo/internal/handlers"
	"github.com/ternarybob/respondeo/internal/interfaces"
	"github.com/ternarybob/respondeo/internal/services/agent"
	"github.com/ternarybob/respondeo/internal/services/embeddings"
	"github.com/ternarybob/respondeo/internal/services/index"
	"github.com/ternarybob/respondeo/internal/services/ingest"
	"github.com/ternarybob/respondeo/internal/services/llm"
	"github.com/ternarybob/respondeo/internal/services/tools"
	badgerstorage "github.com/ternarybob/respondeo/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	ctx       context.Context
	cancelCtx context.CancelFunc

	StorageManager interfaces.StorageManager

	// LLM and retrieval services
	ChatLLM          interfaces.LLMService
	EmbedLLM         interfaces.LLMService
	EmbeddingService interfaces.EmbeddingService
	VectorIndex      *index.VectorIndex

	// Ingestion
	IngestService *ingest.Service
	Scheduler     *ingest.Scheduler

	// Agent
	AgentService interfaces.AgentService

	// HTTP handlers
	AskHandler      *handlers.AskHandler
	DocumentHandler *handlers.DocumentHandler
	WSHandler       *handlers.WebSocketHandler
	APIHandler      *handlers.APIHandler
}

// New creates the application, wiring storage, LLM providers, the vector
// index, ingestion, and the agent loop in dependency order.
func New(config *common.Config, logger arbor.ILogger) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		Config:    config,
		Logger:    logger,
		ctx:       ctx,
		cancelCtx: cancel,
	}

	// Storage
	storageManager, err := badgerstorage.NewManager(logger, &config.Storage.Badger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.StorageManager = storageManager

	// LLM providers (API keys resolve from KV storage first, config second)
	chatLLM, embedLLM, err := llm.NewLLMServices(config, storageManager.KeyValueStorage(), logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize LLM services: %w", err)
	}
	a.ChatLLM = chatLLM
	a.EmbedLLM = embedLLM

	a.EmbeddingService = embeddings.NewService(
		embedLLM,
		config.LLM.Gemini.EmbedModel,
		config.LLM.EmbedDimension,
		logger,
	)

	// Vector index, warmed from persisted embeddings
	a.VectorIndex = index.NewVectorIndex(storageManager.PassageStorage(), logger)
	if err := a.VectorIndex.Load(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to load vector index: %w", err)
	}

	// Ingestion pipeline and reembed scheduler
	a.IngestService = ingest.NewService(
		&config.Ingest,
		a.EmbeddingService,
		storageManager,
		a.VectorIndex,
		logger,
	)
	a.Scheduler = ingest.NewScheduler(a.IngestService, &config.Ingest, logger)

	// Retrieval tools
	semantic := tools.NewSemanticTool(a.EmbeddingService, a.VectorIndex, config.Agent.SimilarityThreshold, logger)
	multiQuery := tools.NewMultiQueryTool(chatLLM, semantic, config.Agent.MaxSubQueries, logger)
	exact := tools.NewExactMatchTool(storageManager.PassageStorage(), logger)

	// Agent loop
	a.AgentService = agent.NewController(
		&config.Agent,
		agent.NewRouter(config.Agent.TopKResults, logger),
		[]tools.Tool{semantic, multiQuery, exact},
		agent.NewSynthesizer(chatLLM, logger),
		agent.NewEvaluator(chatLLM, config.Agent.MinGrounding, config.Agent.MinCompleteness, logger),
		chatLLM,
		logger,
	)

	// HTTP handlers
	a.AskHandler = handlers.NewAskHandler(a.AgentService, logger)
	a.DocumentHandler = handlers.NewDocumentHandler(a.IngestService, storageManager.DocumentStorage(), logger)
	a.WSHandler = handlers.NewWebSocketHandler(a.AgentService, logger)
	a.APIHandler = handlers.NewAPIHandler(a.AgentService, storageManager, a.VectorIndex, logger)

	logger.Info().
		Str("provider", string(config.LLM.Provider)).
		Int("embed_dimension", config.LLM.EmbedDimension).
		Msg("Application initialized")

	return a, nil
}

// Start begins background work (the reembed scheduler)
func (a *App) Start() error {
	if err := a.Scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	return nil
}

// Close releases all application resources in reverse dependency order
func (a *App) Close() {
	a.cancelCtx()

	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	if a.ChatLLM != nil {
		if err := a.ChatLLM.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close chat LLM service")
		}
	}
	if a.EmbedLLM != nil && a.EmbedLLM != a.ChatLLM {
		if err := a.EmbedLLM.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close embedding LLM service")
		}
	}
	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close storage")
		}
	}

	a.Logger.Info().Msg("Application closed")
}
