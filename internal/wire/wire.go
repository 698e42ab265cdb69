// Package wire 提供依赖装配
// 组件按配置开关装配：Postgres、Redis、Milvus 任一缺席时，
// 对应能力降级（无归档、无缓存限流、无上下文检索），服务仍可启动。
package wire

import (
	"context"
	"fmt"

	"inkwell-ai-api/internal/application/credit"
	"inkwell-ai-api/internal/application/orchestrator"
	"inkwell-ai-api/internal/application/pipeline"
	appprovider "inkwell-ai-api/internal/application/provider"
	"inkwell-ai-api/internal/config"
	"inkwell-ai-api/internal/domain/repository"
	infraprovider "inkwell-ai-api/internal/infrastructure/provider"
	"inkwell-ai-api/internal/infrastructure/persistence/milvus"
	"inkwell-ai-api/internal/infrastructure/persistence/postgres"
	"inkwell-ai-api/internal/infrastructure/persistence/redis"
	"inkwell-ai-api/internal/interfaces/http/handler"
	"inkwell-ai-api/internal/interfaces/http/middleware"
	"inkwell-ai-api/internal/interfaces/http/router"
	"inkwell-ai-api/pkg/logger"
)

// App 装配完成的应用
type App struct {
	Router       *router.Router
	Orchestrator *orchestrator.Orchestrator
}

// InitializeApp 装配应用，返回清理函数
func InitializeApp(ctx context.Context, cfg *config.Config) (*App, func(), error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	// 数据层
	var (
		pgClient    *postgres.Client
		redisClient *redis.Client
		cache       *redis.Cache
		rateLimiter middleware.RateLimiter
		mvClient    *milvus.Client
	)

	if cfg.Database.Postgres.Enabled {
		client, err := postgres.NewClient(&cfg.Database.Postgres)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to init postgres: %w", err)
		}
		if err := client.AutoMigrate(); err != nil {
			client.Close()
			cleanup()
			return nil, nil, fmt.Errorf("failed to migrate schema: %w", err)
		}
		pgClient = client
		cleanups = append(cleanups, func() { _ = client.Close() })
	}

	if cfg.Cache.Redis.Enabled {
		client, err := redis.NewClient(&cfg.Cache.Redis)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to init redis: %w", err)
		}
		redisClient = client
		cache = redis.NewCache(client)
		rateLimiter = redis.NewRateLimiter(client)
		cleanups = append(cleanups, func() { _ = client.Close() })
	}

	if cfg.Vector.Milvus.Enabled {
		client, err := milvus.NewClient(ctx, &cfg.Vector.Milvus)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to init milvus: %w", err)
		}
		mvClient = client
		cleanups = append(cleanups, func() { _ = client.Close() })
	}

	// 供应商适配
	providerClient := infraprovider.NewClient(&cfg.Provider)

	// 故事圣经检索
	var source pipeline.ContextSource
	if mvClient != nil {
		repo := milvus.NewRepository(mvClient)
		if err := repo.EnsureBibleCollection(ctx); err != nil {
			logger.Warn(ctx, "failed to ensure bible collection, context retrieval degraded",
				"error", err.Error())
		} else {
			source = milvus.NewContextSource(repo, providerClient)
		}
	}

	// 额度账本
	var creditStore repository.CreditStore
	var archive repository.ArchiveRepository
	if pgClient != nil {
		creditStore = postgres.NewCreditRepository(pgClient)
		archive = postgres.NewArchiveRepository(pgClient)
	}
	ledger := credit.NewLedger(cfg.Credits.DefaultLimit, creditStore)
	if err := ledger.LoadFromStore(ctx); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to load credit accounts: %w", err)
	}

	// 流水线与编排器
	var text appprovider.TextGenerator = providerClient
	var image appprovider.ImageSynthesizer = providerClient
	factory := pipeline.NewFactory(text, image, source, cfg.Orchestrator.ContextTokenBudget)

	orch := orchestrator.New(ledger, factory, archive, orchestrator.Options{
		MaxConcurrent:    cfg.Orchestrator.MaxConcurrent,
		HistoryLimit:     cfg.Orchestrator.HistoryLimit,
		SubscriberBuffer: cfg.Orchestrator.SubscriberBuffer,
		StageTimeout:     cfg.Orchestrator.StageTimeout,
		GenerateTimeout:  cfg.Orchestrator.GenerateTimeout,
	})

	// HTTP 层
	handlers := router.Handlers{
		Health:     handler.NewHealthHandler(pgClient, redisClient, mvClient),
		Generation: handler.NewGenerationHandler(orch, archive, cache),
		Stream:     handler.NewStreamHandler(orch),
		Credit:     handler.NewCreditHandler(orch),
	}
	r := router.New(cfg, handlers, rateLimiter)

	return &App{
		Router:       r,
		Orchestrator: orch,
	}, cleanup, nil
}
