package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/tools"

	"github.com/smallnest/researchchat/agent"
	"github.com/smallnest/researchchat/config"
	"github.com/smallnest/researchchat/conversation"
	"github.com/smallnest/researchchat/extract"
	"github.com/smallnest/researchchat/intent"
	"github.com/smallnest/researchchat/llms/gemini"
	"github.com/smallnest/researchchat/llms/openaicompat"
	"github.com/smallnest/researchchat/log"
	"github.com/smallnest/researchchat/metrics"
	"github.com/smallnest/researchchat/quiz"
	"github.com/smallnest/researchchat/rag"
	"github.com/smallnest/researchchat/report"
	"github.com/smallnest/researchchat/research"
	"github.com/smallnest/researchchat/store"
	"github.com/smallnest/researchchat/store/memory"
	"github.com/smallnest/researchchat/store/postgres"
	"github.com/smallnest/researchchat/store/redis"
	"github.com/smallnest/researchchat/store/sqlite"
	"github.com/smallnest/researchchat/tool"
)

// app holds the wired components of one process.
type app struct {
	cfg      *config.Config
	logger   log.Logger
	metrics  *metrics.Metrics
	pool     *agent.Pool
	store    store.Store
	registry *conversation.Registry

	closers []io.Closer
}

func newLogger(level string) log.Logger {
	l := log.New(log.ParseLevel(level), os.Stderr)
	log.SetDefaultLogger(l)
	return l
}

// newApp builds every component from cfg.
func newApp(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger, metrics: metrics.New()}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	model, embedClient, err := a.newModel(ctx)
	if err != nil {
		return nil, err
	}

	a.pool = agent.NewPool(cfg.Workers.PoolSize,
		agent.WithJobTimeout(cfg.Workers.WorkflowTimeout),
		agent.WithTimeoutRetries(cfg.Workers.TimeoutRetries),
		agent.WithPoolLogger(log.Named(logger, "pool")),
	)
	a.metrics.WatchPool(a.pool)

	if a.store, err = a.newStore(ctx); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.store)

	var indexes *rag.Manager
	if cfg.RAG.Enabled {
		embedder, err := gemini.NewEmbedder(embedClient)
		if err != nil {
			return nil, err
		}
		indexes, err = a.newIndexes(embedder)
		if err != nil {
			return nil, err
		}
	}

	temp, tokens := cfg.LLM.Temperature, cfg.LLM.MaxTokens

	pipeline := extract.NewPipeline(model, a.pool,
		extract.WithMaxRetries(cfg.Workers.ExtractionRetries),
		extract.WithRetryDelay(cfg.Workers.RetryDelay),
		extract.WithLogger(log.Named(logger, "extract")),
		extract.WithGeneration(temp, tokens),
	)
	coordinator := research.NewCoordinator(model, a.pool, pipeline, append(a.researchTools(),
		research.WithStore(report.NewStore(cfg.Research.Dir)),
		research.WithLogger(log.Named(logger, "research")),
		research.WithGeneration(temp, tokens),
	)...)
	quizzes := quiz.NewGenerator(model, a.pool,
		quiz.WithMaxRetries(cfg.Workers.ExtractionRetries),
		quiz.WithRetryDelay(cfg.Workers.RetryDelay),
		quiz.WithLogger(log.Named(logger, "quiz")),
		quiz.WithGeneration(temp, tokens),
	)

	orch, err := conversation.NewOrchestrator(model,
		conversation.WithRouter(intent.NewRouter(
			intent.WithRAG(cfg.RAG.Enabled),
			intent.WithResearchConfirmation(cfg.Chat.ConfirmResearch),
		)),
		conversation.WithResearcher(coordinator),
		conversation.WithQuizWriter(quizzes),
		conversation.WithGeneration(temp, tokens),
		conversation.WithMaxHistory(cfg.Chat.MaxHistory),
		conversation.WithMaxInvalidReplies(cfg.Chat.MaxInvalidReplies),
		conversation.WithTopK(cfg.RAG.TopK),
		conversation.WithModelRetry(cfg.LLM.MaxRetries, cfg.LLM.RetryDelay),
		conversation.WithWorkflowTimeout(cfg.Workers.RunTimeout),
		conversation.WithObserver(a.metrics),
		conversation.WithLogger(log.Named(logger, "conversation")),
	)
	if err != nil {
		return nil, err
	}
	a.registry = conversation.NewRegistry(orch, a.store, indexes, logger)
	return a, nil
}

// newModel returns the chat model and the client used for embeddings.
func (a *app) newModel(ctx context.Context) (llms.Model, embeddings.EmbedderClient, error) {
	c := a.cfg.LLM
	switch c.Provider {
	case config.ProviderOpenAI:
		m, err := openaicompat.New(
			openaicompat.WithAPIKey(c.OpenAIAPIKey),
			openaicompat.WithBaseURL(c.OpenAIBaseURL),
			openaicompat.WithModel(c.Model),
			openaicompat.WithEmbeddingModel(c.EmbeddingModel),
		)
		if err != nil {
			return nil, nil, err
		}
		return m, m, nil
	default:
		m, err := gemini.New(ctx, gemini.Config{
			APIKey:         c.GoogleAPIKey,
			Model:          c.Model,
			EmbeddingModel: c.EmbeddingModel,
			Temperature:    c.Temperature,
			MaxTokens:      c.MaxTokens,
		})
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, m)
		return m, m, nil
	}
}

func (a *app) newStore(ctx context.Context) (store.Store, error) {
	c := a.cfg.Store
	switch c.Backend {
	case config.StoreMemory:
		return memory.New(), nil
	case config.StorePostgres:
		return postgres.New(ctx, postgres.Options{ConnString: c.PostgresURL, TablePrefix: c.PostgresPrefix})
	case config.StoreRedis:
		s := redis.New(redis.Options{
			Addr:     c.RedisAddr,
			Password: c.RedisPassword,
			DB:       c.RedisDB,
			Prefix:   c.RedisPrefix,
			TTL:      c.RedisTTL,
		})
		return s, nil
	case config.StoreSQLite:
		return sqlite.New(ctx, sqlite.Options{Path: c.SQLitePath})
	}
	return nil, fmt.Errorf("unknown store backend %q", c.Backend)
}

func (a *app) newIndexes(embedder embeddings.Embedder) (*rag.Manager, error) {
	c := a.cfg.RAG
	return rag.NewManager(c.IndexDir, c.OpenIndexes, embedder, log.Named(a.logger, "rag"),
		rag.WithChunking(c.ChunkSize, c.ChunkOverlap),
		rag.WithTopK(c.TopK),
		rag.WithThreshold(float32(c.Threshold)),
		rag.WithMaxFileSize(c.MaxFileSize),
	)
}

// researchTools returns the tool options for the research crew. Missing
// API keys leave the matching researcher without tools.
func (a *app) researchTools() []research.Option {
	c := a.cfg.Research
	var opts []research.Option

	web := []tools.Tool{tool.NewWebPage(0)}
	if search, err := tool.WebSearch(c.SerperAPIKey, c.BraveAPIKey); err == nil {
		web = append([]tools.Tool{search}, web...)
	} else {
		a.logger.Warn("web search disabled: %v", err)
	}
	opts = append(opts, research.WithWebTools(web...))

	var video []tools.Tool
	if s, err := tool.NewYouTubeSearch(c.YouTubeAPIKey); err == nil {
		video = append(video, s)
	}
	if v, err := tool.NewYouTubeVideo(c.YouTubeAPIKey); err == nil {
		video = append(video, v)
	}
	if len(video) == 0 {
		a.logger.Warn("video research disabled: YOUTUBE_API_KEY not set")
	}
	opts = append(opts, research.WithVideoTools(video...))
	return opts
}

// Close releases the store, the document indexes and the model client.
func (a *app) Close() error {
	var errs []error
	if a.registry != nil {
		errs = append(errs, a.registry.Close())
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	return errors.Join(errs...)
}
