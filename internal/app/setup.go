package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stationmind/stationmind/db"
	"github.com/stationmind/stationmind/internal/chitchat"
	"github.com/stationmind/stationmind/internal/config"
	"github.com/stationmind/stationmind/internal/conversation"
	"github.com/stationmind/stationmind/internal/intent"
	"github.com/stationmind/stationmind/internal/llm"
	"github.com/stationmind/stationmind/internal/orchestrator"
	"github.com/stationmind/stationmind/internal/retrieval"
	"github.com/stationmind/stationmind/internal/session"
	"github.com/stationmind/stationmind/internal/tool"
)

// Setup creates and initializes the application. On error everything
// already initialized is released; on success call Close().
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	pool, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.DBPool = pool

	g, err := provideGenkit(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	embedder := provideEmbedder(g, cfg)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found for provider %q", cfg.EmbedderModel, cfg.Provider)
	}
	a.Embedder = embedder

	client, err := llm.NewClient(llm.Config{
		Genkit:    g,
		ModelName: cfg.FullModelName(),
		Logger:    logger.With("component", "llm"),
	})
	if err != nil {
		return nil, fmt.Errorf("creating model client: %w", err)
	}

	intents := provideIntentMap(cfg)
	classifier := llm.NewClassifier(client, intents, logger.With("component", "classifier"))

	documents, err := retrieval.NewDocumentStore(pool, embedder, logger.With("component", "documents"))
	if err != nil {
		return nil, fmt.Errorf("creating document store: %w", err)
	}
	a.Documents = documents

	a.Sessions, err = provideSessionStore(cfg, pool, logger)
	if err != nil {
		return nil, err
	}

	registry := provideToolRegistry(cfg, logger)
	executor := tool.NewExecutor(registry, client, cfg.Limits.MaxToolIterations,
		logger.With("component", "executor"))

	handlers := map[intent.Branch]orchestrator.Handler{
		intent.BranchBusiness: orchestrator.NewBusinessHandler(intents, executor,
			cfg.Intents.ConfirmTools, logger.With("component", "business")),
		intent.BranchRetrieval: orchestrator.NewRetrievalHandler(
			retrieval.NewResponder(documents, client, cfg.Retrieval.TopK,
				cfg.Retrieval.ScoreThreshold, logger.With("component", "retrieval"))),
		intent.BranchChitChat: orchestrator.NewChitChatHandler(
			chitchat.NewResponder(client, logger.With("component", "chitchat"))),
	}

	a.Orchestrator, err = orchestrator.New(orchestrator.Config{
		Classifier: classifier,
		Store:      a.Sessions,
		Handlers:   handlers,
		TrimLimits: conversation.TrimLimits{
			MaxMessages:   cfg.Limits.MaxHistoryMessages,
			MaxTokens:     cfg.Limits.MaxContextTokens,
			IncludeSystem: true,
		},
		TurnTimeout: time.Duration(cfg.Limits.TurnTimeoutSeconds) * time.Second,
		Logger:      logger.With("component", "orchestrator"),
	})
	if err != nil {
		return nil, fmt.Errorf("creating orchestrator: %w", err)
	}

	return a, nil
}

// provideDBPool runs migrations and creates the PostgreSQL pool. Both the
// session store (postgres backend) and the document store share it.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

// provideGenkit initializes Genkit with the configured provider plugin.
func provideGenkit(ctx context.Context, cfg *config.Config) (*genkit.Genkit, error) {
	var g *genkit.Genkit

	switch cfg.Provider {
	case config.ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g = genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama requires explicit model registration (no auto-discovery).
		ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		ollamaPlugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)
		slog.Info("initialized Genkit with ollama provider",
			"model", cfg.ModelName, "host", cfg.OllamaHost)

	case config.ProviderOpenAI:
		g = genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with openai provider")
		}
		slog.Info("initialized Genkit with openai provider", "model", cfg.ModelName)

	default: // gemini / googleai
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with gemini provider")
		}
		slog.Info("initialized Genkit with gemini provider", "model", cfg.ModelName)
	}

	return g, nil
}

// provideEmbedder looks up the embedder registered by the provider plugin.
func provideEmbedder(g *genkit.Genkit, cfg *config.Config) ai.Embedder {
	switch cfg.Provider {
	case config.ProviderOllama:
		// Ollama embedders are keyed by server address.
		return ollama.Embedder(g, cfg.OllamaHost)
	case config.ProviderOpenAI:
		return genkit.LookupEmbedder(g, api.NewName("openai", cfg.EmbedderModel))
	default:
		return googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	}
}

// provideIntentMap returns the configured intent map, falling back to the
// built-in fleet-operations intents.
func provideIntentMap(cfg *config.Config) *intent.Map {
	if len(cfg.Intents.Phrases) > 0 {
		return intent.NewMap(cfg.Intents.Phrases, cfg.Intents.Tools)
	}
	return intent.DefaultMap()
}

// provideSessionStore creates the configured session store.
func provideSessionStore(cfg *config.Config, pool *pgxpool.Pool, logger *slog.Logger) (session.Store, error) {
	switch cfg.SessionBackend {
	case config.SessionBackendMemory:
		return session.NewMemoryStore(), nil
	case config.SessionBackendPostgres:
		return session.NewPostgresStore(pool, logger.With("component", "sessions"))
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.SessionBackend)
	}
}

// provideToolRegistry registers the business API tools and marks the
// credentialed ones.
func provideToolRegistry(cfg *config.Config, logger *slog.Logger) *tool.Registry {
	backend := tool.NewBusinessAPI(cfg.BusinessAPI.BaseURL,
		time.Duration(cfg.BusinessAPI.TimeoutSeconds)*time.Second,
		logger.With("component", "business_api"))

	registry := tool.NewRegistry()
	registry.Register(tool.UptimeReport(backend))
	registry.Register(tool.StationInfo(backend))
	registry.RequireAuth(cfg.Intents.AuthTools...)
	return registry
}
