package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/rag-query-rewriter/internal/config"
	"github.com/kirillkom/rag-query-rewriter/internal/core/domain"
	"github.com/kirillkom/rag-query-rewriter/internal/core/ports"
	"github.com/kirillkom/rag-query-rewriter/internal/core/usecase"
	"github.com/kirillkom/rag-query-rewriter/internal/infrastructure/conversation"
	"github.com/kirillkom/rag-query-rewriter/internal/infrastructure/llm/offline"
	"github.com/kirillkom/rag-query-rewriter/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/rag-query-rewriter/internal/infrastructure/llm/openai"
	"github.com/kirillkom/rag-query-rewriter/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/rag-query-rewriter/internal/infrastructure/repository/sqlite"
	"github.com/kirillkom/rag-query-rewriter/internal/infrastructure/resilience"
	"github.com/kirillkom/rag-query-rewriter/internal/infrastructure/search/memory"
	"github.com/kirillkom/rag-query-rewriter/internal/infrastructure/textnorm"
	"github.com/kirillkom/rag-query-rewriter/internal/infrastructure/vector/qdrant"
	"github.com/kirillkom/rag-query-rewriter/internal/observability/metrics"
)

// Options carries process-level collaborators that differ per entrypoint.
type Options struct {
	Service string
	Logger  *slog.Logger
	// Registerer receives pipeline metrics. Nil disables them.
	Registerer prometheus.Registerer
	Now        func() time.Time
}

type App struct {
	Config   config.Config
	Logger   *slog.Logger
	Rewriter *usecase.RewriteUseCase
	Executor *resilience.Executor

	closeFns []func()
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	service := opts.Service
	if service == "" {
		service = "rewriter"
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	pipelineOpts, err := cfg.PipelineOptions()
	if err != nil {
		return nil, err
	}

	app := &App{Config: cfg, Logger: logger}
	executor := resilience.NewExecutor(cfg.ResilienceConfig(), logger)
	app.Executor = executor

	var observer ports.PipelineObserver
	if opts.Registerer != nil {
		pipelineMetrics := metrics.NewPipelineMetrics(opts.Registerer, service)
		executor.OnStateChange(func(operation string, _, to gobreaker.State) {
			pipelineMetrics.ObserveBreaker(operation, to.String())
		})
		observer = pipelineMetrics
	}

	generator, err := newGenerator(cfg, executor)
	if err != nil {
		return nil, err
	}
	retriever, err := app.newRetriever(ctx, cfg, executor)
	if err != nil {
		app.Close()
		return nil, err
	}
	normalizer, err := newNormalizer(cfg, now)
	if err != nil {
		app.Close()
		return nil, err
	}

	rewriter, err := usecase.NewRewriteUseCase(
		generator,
		retriever,
		normalizer,
		conversation.NewResolver(),
		pipelineOpts,
		logger,
	)
	if err != nil {
		app.Close()
		return nil, err
	}
	rewriter.SetObserver(observer)
	app.Rewriter = rewriter

	logger.Info("bootstrap_ready",
		"llm_provider", cfg.LLMProvider,
		"retriever_backend", cfg.RetrieverBackend,
		"max_queries", pipelineOpts.MaxQueries,
	)
	return app, nil
}

func (a *App) Close() {
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		a.closeFns[i]()
	}
	a.closeFns = nil
}

func (a *App) onClose(fn func()) {
	a.closeFns = append(a.closeFns, fn)
}

func newGenerator(cfg config.Config, executor *resilience.Executor) (ports.TextGenerator, error) {
	switch cfg.LLMProvider {
	case "", "ollama":
		client := ollama.New(
			cfg.OllamaURL,
			cfg.OllamaGenModel,
			cfg.OllamaEmbedModel,
			time.Duration(cfg.LLMTimeoutSeconds)*time.Second,
			executor,
		)
		return ollama.NewGenerator(client), nil
	case "openai":
		generator, err := openai.NewGenerator(openai.Config{
			APIKey:      cfg.OpenAIAPIKey,
			BaseURL:     cfg.OpenAIBaseURL,
			Model:       cfg.OpenAIModel,
			Temperature: cfg.OpenAITemperature,
			Timeout:     time.Duration(cfg.LLMTimeoutSeconds) * time.Second,
		}, executor)
		if err != nil {
			return nil, err
		}
		return generator, nil
	case "offline":
		return offline.NewGenerator(), nil
	default:
		return nil, domain.WrapError(domain.ErrInvalidConfig, "bootstrap", fmt.Errorf("unknown LLM_PROVIDER %q", cfg.LLMProvider))
	}
}

func (a *App) newRetriever(ctx context.Context, cfg config.Config, executor *resilience.Executor) (ports.Retriever, error) {
	switch cfg.RetrieverBackend {
	case "", "memory":
		docs, err := memory.LoadCorpus(cfg.CorpusPath)
		if err != nil {
			return nil, fmt.Errorf("load corpus: %w", err)
		}
		index, err := memory.NewIndex(docs)
		if err != nil {
			return nil, fmt.Errorf("build memory index: %w", err)
		}
		a.onClose(func() { _ = index.Close() })
		return index, nil

	case "postgres":
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		a.onClose(func() { _ = db.Close() })
		repo := postgres.NewSearchRepository(db, cfg.PostgresTable, cfg.PostgresTSConfig)
		if err := repo.CheckTable(ctx); err != nil {
			return nil, err
		}
		return repo, nil

	case "sqlite":
		db, err := sqlite.OpenDB(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		a.onClose(func() { _ = db.Close() })
		repo := sqlite.NewSearchRepository(db)
		if err := repo.CheckTable(ctx); err != nil {
			return nil, err
		}
		return repo, nil

	case "qdrant":
		ollamaClient := ollama.New(
			cfg.OllamaURL,
			cfg.OllamaGenModel,
			cfg.OllamaEmbedModel,
			time.Duration(cfg.LLMTimeoutSeconds)*time.Second,
			executor,
		)
		embedder, err := qdrant.NewCachedEmbedder(ollama.NewEmbedder(ollamaClient), cfg.EmbedCacheSize)
		if err != nil {
			return nil, fmt.Errorf("init embedding cache: %w", err)
		}
		client := qdrant.New(qdrant.Config{
			URL:        cfg.QdrantURL,
			Collection: cfg.QdrantCollection,
			Hybrid:     cfg.QdrantHybrid,
		}, executor)
		return qdrant.NewRetriever(client, embedder), nil

	default:
		return nil, domain.WrapError(domain.ErrInvalidConfig, "bootstrap", fmt.Errorf("unknown RETRIEVER_BACKEND %q", cfg.RetrieverBackend))
	}
}

func newNormalizer(cfg config.Config, now func() time.Time) (*textnorm.Normalizer, error) {
	opts := textnorm.Options{
		CaseFold:      cfg.NormalizerCaseFold,
		PunctTrim:     cfg.NormalizerPunctTrim,
		DateNormalize: cfg.NormalizerDateNormalize,
	}
	if cfg.NormalizerAliasesPath != "" {
		aliases, err := textnorm.LoadAliases(cfg.NormalizerAliasesPath)
		if err != nil {
			return nil, err
		}
		opts.Aliases = aliases
	}
	return textnorm.New(opts, now), nil
}
