package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/simonepiga/synthpanel/internal/behavior"
	"github.com/simonepiga/synthpanel/internal/config"
	"github.com/simonepiga/synthpanel/internal/convo"
	"github.com/simonepiga/synthpanel/internal/httpapi"
	"github.com/simonepiga/synthpanel/internal/observability"
	"github.com/simonepiga/synthpanel/internal/orchestrator"
	"github.com/simonepiga/synthpanel/internal/persona"
	"github.com/simonepiga/synthpanel/internal/provider"
	"github.com/simonepiga/synthpanel/internal/stream"
)

type BuildResult struct {
	Config        config.Config
	API           *httpapi.Server
	Orchestrator  *orchestrator.Orchestrator
	Agents        persona.Store
	Conversations convo.Store
	Streams       *stream.Registry
	Metrics       *observability.Metrics
	Stages        *observability.StageWindow

	// Cleanup should be called on shutdown to release external resources
	// (connection pools, redis clients).
	Cleanup func() error
}

// Build wires the whole service from config: stores, provider gateway,
// behavior engine, orchestrator, and the HTTP surface.
func Build(ctx context.Context, cfg config.Config, log *zap.Logger) (*BuildResult, error) {
	if log == nil {
		log = zap.NewNop()
	}
	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	stages := observability.NewStageWindow(256)

	var pool *pgxpool.Pool
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		var err error
		pool, err = pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("postgres pool init failed: %w", err)
		}
		log.Info("postgres storage enabled")
	}

	var rdb *redis.Client
	if strings.TrimSpace(cfg.RedisAddr) != "" && pool == nil {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		log.Info("redis conversation storage enabled", zap.String("addr", cfg.RedisAddr))
	}

	agents, err := persona.NewStore(ctx, pool)
	if err != nil {
		closePool(pool)
		return nil, fmt.Errorf("agent store init failed: %w", err)
	}

	convos, err := convo.NewStore(ctx, pool, rdb)
	if err != nil {
		_ = agents.Close()
		closePool(pool)
		return nil, fmt.Errorf("conversation store init failed: %w", err)
	}

	llm, err := provider.New(provider.Config{
		Kind:             cfg.LLMProvider,
		Timeout:          cfg.ProviderTimeout,
		OpenAIAPIKey:     cfg.OpenAIAPIKey,
		OpenAIBaseURL:    cfg.OpenAIBaseURL,
		OpenAIModel:      cfg.OpenAIModel,
		AnthropicAPIKey:  cfg.AnthropicAPIKey,
		AnthropicBaseURL: cfg.AnthropicBaseURL,
		AnthropicModel:   cfg.AnthropicModel,
	})
	if err != nil {
		_ = convos.Close()
		_ = agents.Close()
		closePool(pool)
		return nil, fmt.Errorf("provider init failed: %w", err)
	}
	log.Info("llm provider selected", zap.String("provider", llm.Name()))

	engine := behavior.NewEngine(nil, behavior.AllToggles())
	streams := stream.NewRegistry(cfg.StreamQueueSize)

	orch := orchestrator.New(agents, convos, llm, engine, streams, metrics, stages, log, orchestrator.Config{
		FanoutDeadline: cfg.FanoutDeadline,
		HistoryLimit:   cfg.HistoryLimit,
		RetryMax:       cfg.RetryMax,
		RetryBase:      cfg.RetryBase,
		RetryCap:       cfg.RetryCap,
	})

	api := httpapi.New(cfg, agents, convos, orch, streams, metrics, stages, log)

	cleanup := func() error {
		var errs []string
		if err := convos.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if err := agents.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		closePool(pool)
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}

	return &BuildResult{
		Config:        cfg,
		API:           api,
		Orchestrator:  orch,
		Agents:        agents,
		Conversations: convos,
		Streams:       streams,
		Metrics:       metrics,
		Stages:        stages,
		Cleanup:       cleanup,
	}, nil
}

func closePool(pool *pgxpool.Pool) {
	if pool != nil {
		pool.Close()
	}
}
