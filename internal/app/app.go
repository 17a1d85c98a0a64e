// Package app assembles the extraction stack from configuration.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/diysmart/productinfo/config"
	"github.com/diysmart/productinfo/internal/agent"
	"github.com/diysmart/productinfo/internal/domain"
	"github.com/diysmart/productinfo/internal/infrastructure/database"
	"github.com/diysmart/productinfo/internal/infrastructure/fetcher"
	"github.com/diysmart/productinfo/internal/infrastructure/llm"
	"github.com/diysmart/productinfo/internal/infrastructure/logger"
	"github.com/diysmart/productinfo/internal/infrastructure/metrics"
	"github.com/diysmart/productinfo/internal/infrastructure/productstore"
	"github.com/diysmart/productinfo/internal/infrastructure/quotastore"
	"github.com/diysmart/productinfo/internal/usecase"
)

// App holds the constructed services and whatever must be closed on shutdown
type App struct {
	Coordinator *usecase.Coordinator
	Service     *usecase.ExtractionService
	Agents      *agent.Manager
	Metrics     *metrics.Metrics

	closers []func() error
	logger  logger.Logger
}

// Build wires every component described by cfg
func Build(ctx context.Context, cfg *config.Config, log logger.Logger) (*App, error) {
	a := &App{Metrics: metrics.New(), logger: log}

	llmClient, err := llm.New(llm.Config{
		Provider:          cfg.LLM.Provider,
		APIKey:            cfg.LLM.APIKey,
		BaseURL:           cfg.LLM.BaseURL,
		Model:             cfg.LLM.Model,
		MaxTokens:         cfg.LLM.MaxTokens,
		RequestsPerSecond: cfg.LLM.RequestsPerSecond,
		Burst:             cfg.LLM.Burst,
		MaxRetries:        cfg.LLM.MaxRetries,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("llm client: %w", err)
	}
	if _, disabled := llmClient.(llm.DisabledClient); disabled {
		log.Warn("LLM provider not configured; vision extraction disabled")
	}

	pageFetcher, err := fetcher.NewCollyFetcher(fetcher.Config{
		MaxBodySize:    cfg.Scraper.MaxBodyBytes,
		Parallelism:    cfg.Scraper.Parallelism,
		RandomDelay:    cfg.Scraper.RandomDelay,
		RequestTimeout: cfg.Extraction.HTTPTimeout,
	}, log, a.Metrics)
	if err != nil {
		return nil, fmt.Errorf("page fetcher: %w", err)
	}

	a.Coordinator = usecase.NewCoordinator(
		usecase.NewLLMStrategy(llmClient),
		usecase.NewScrapeStrategy(pageFetcher, cfg.Scraper.UserAgents),
		usecase.NewHeuristicStrategy(),
		log,
		a.Metrics,
		usecase.CoordinatorConfig{
			LLMTimeout:     cfg.Extraction.LLMTimeout,
			HTTPTimeout:    cfg.Extraction.HTTPTimeout,
			OverallTimeout: cfg.Extraction.OverallTimeout,
		},
	)

	store, err := a.quotaStore(ctx, cfg.Quota)
	if err != nil {
		a.Close()
		return nil, err
	}
	gate := usecase.NewQuotaGate(store, log, a.Metrics, usecase.QuotaGateConfig{
		FreeLimit:    cfg.Quota.Free,
		ProLimit:     cfg.Quota.Pro,
		PremiumLimit: cfg.Quota.Premium,
	})

	a.Agents, err = agent.NewManager(log, a.Metrics, agent.ManagerConfig{HistorySize: cfg.Agent.HistorySize})
	if err != nil {
		a.Close()
		return nil, err
	}
	if err := a.Agents.Register(usecase.NewProductInfoAgent(a.Coordinator)); err != nil {
		a.Close()
		return nil, err
	}

	if cfg.Catalog.DSN != "" {
		repo, err := a.productRepository(ctx, cfg.Catalog.DSN)
		if err != nil {
			a.Close()
			return nil, err
		}
		if err := a.Agents.Register(usecase.NewProductSaveAgent(repo)); err != nil {
			a.Close()
			return nil, err
		}
	}

	a.Service = usecase.NewExtractionService(gate, a.Agents)
	return a, nil
}

func (a *App) quotaStore(ctx context.Context, cfg config.QuotaConfig) (domain.QuotaStore, error) {
	switch cfg.Store {
	case "redis":
		client, err := quotastore.NewRedisClient(quotastore.RedisConfig{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, fmt.Errorf("quota store: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		a.logger.Info("quota store ready", logger.String("store", "redis"))
		return quotastore.NewRedisStore(client), nil
	case "postgres":
		db, err := a.openDB(cfg.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("quota store: %w", err)
		}
		store := quotastore.NewPostgresStore(db)
		if err := store.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("quota store: %w", err)
		}
		a.logger.Info("quota store ready", logger.String("store", "postgres"))
		return store, nil
	default:
		store := quotastore.NewMemoryStore()
		a.closers = append(a.closers, store.Close)
		a.logger.Info("quota store ready", logger.String("store", "memory"))
		return store, nil
	}
}

func (a *App) productRepository(ctx context.Context, dsn string) (domain.ProductRepository, error) {
	db, err := a.openDB(dsn)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	repo := productstore.NewPostgresRepository(db)
	if err := repo.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	a.logger.Info("catalog ready; product_save agent enabled")
	return repo, nil
}

func (a *App) openDB(dsn string) (*sqlx.DB, error) {
	db, err := database.Connect(dsn)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, db.Close)
	return db, nil
}

// Close releases store connections in reverse order of acquisition
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
