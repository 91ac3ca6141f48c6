package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"jan-server/services/orchestrator-api/internal/config"
	"jan-server/services/orchestrator-api/internal/domain/audit"
	"jan-server/services/orchestrator-api/internal/domain/guard"
	"jan-server/services/orchestrator-api/internal/domain/llm"
	"jan-server/services/orchestrator-api/internal/domain/model"
	"jan-server/services/orchestrator-api/internal/domain/orchestrator"
	"jan-server/services/orchestrator-api/internal/domain/stream"
	"jan-server/services/orchestrator-api/internal/domain/token"
	"jan-server/services/orchestrator-api/internal/domain/tool"
	"jan-server/services/orchestrator-api/internal/domain/usage"
	"jan-server/services/orchestrator-api/internal/infrastructure/auth"
	"jan-server/services/orchestrator-api/internal/infrastructure/cache"
	"jan-server/services/orchestrator-api/internal/infrastructure/crontab"
	"jan-server/services/orchestrator-api/internal/infrastructure/database"
	"jan-server/services/orchestrator-api/internal/infrastructure/mcp"
	"jan-server/services/orchestrator-api/internal/infrastructure/memory"
	"jan-server/services/orchestrator-api/internal/infrastructure/metrics"
	"jan-server/services/orchestrator-api/internal/infrastructure/persistence"
	"jan-server/services/orchestrator-api/internal/infrastructure/provider"
	"jan-server/services/orchestrator-api/internal/interfaces/httpserver"
	"jan-server/services/orchestrator-api/internal/interfaces/httpserver/handlers"
	"jan-server/services/orchestrator-api/internal/interfaces/httpserver/middlewares"
)

const mcpDiscoveryTimeout = 10 * time.Second

// storage groups the quota, usage and audit backends selected by QUOTA_BACKEND.
type storage struct {
	quotas   usage.QuotaStore
	recorder usage.UsageRecorder
	audits   audit.Repository
	checks   []httpserver.ReadinessCheck
	closers  []func() error
}

func (s *storage) close(log zerolog.Logger) {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			log.Warn().Err(err).Msg("close storage")
		}
	}
}

// buildApplication assembles the service by hand. wire.go describes the same
// graph for the wire generator.
func buildApplication(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Application, func(), error) {
	store, err := newStorage(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() { store.close(log) }

	authValidator, err := auth.NewValidator(ctx, cfg, log)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("initialize auth validator: %w", err)
	}

	models, err := newModelRegistry(cfg)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	estimator := newEstimator(cfg, log)
	tools := newToolRegistry(ctx, cfg, log)
	recorder := metrics.NewRecorder()

	meter := usage.NewMeter(store.quotas, store.recorder, models, log)
	memoryClient, err := newMemoryRetriever(cfg, log)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	service := orchestrator.NewService(orchestrator.Dependencies{
		Guard: guard.New(guard.Config{
			MaxInputLength:  cfg.GuardMaxInputLength,
			BlockedPatterns: cfg.GuardBlockedPatterns,
		}, log),
		Meter:     meter,
		Models:    models,
		Providers: newProviderDispatcher(cfg, models, estimator, log),
		Loop: tool.NewLoop(tool.LoopConfig{
			Registry:  tools,
			Timeouts:  newToolTimeouts(cfg),
			Estimator: estimator,
			Observer:  recorder,
		}, log),
		Tools:     tools,
		Emitter:   stream.NewEmitter(),
		Estimator: estimator,
		Memory:    memoryClient,
		Audit:     newAuditRecorder(cfg, store.audits),
		Observer:  recorder,
	}, newOrchestratorConfig(cfg), log)

	limiter, err := middlewares.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, cfg.RateLimitCacheSize)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("initialize rate limiter: %w", err)
	}

	handlerProvider := handlers.NewProvider(service, meter, store.audits, models, tools, log)
	httpServer := httpserver.New(cfg, log, handlerProvider, authValidator, limiter, store.checks)
	cron := crontab.NewCrontab(meter, cfg.QuotaResetCron, log)

	return NewApplication(httpServer, cron, log), cleanup, nil
}

func newStorage(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*storage, error) {
	if cfg.QuotaBackend == config.QuotaBackendMemory {
		log.Warn().Msg("using in-memory quota store; quotas are lost on restart")
		mem := persistence.NewMemoryStore()
		return &storage{quotas: mem, recorder: mem, audits: mem}, nil
	}

	db, err := newGormDB(ctx, newDatabaseConfig(cfg), log)
	if err != nil {
		return nil, err
	}
	s := &storage{
		quotas:   persistence.NewQuotaRepository(db),
		recorder: persistence.NewUsageRepository(db),
		audits:   persistence.NewAuditRepository(db),
		checks: []httpserver.ReadinessCheck{{
			Name:  "database",
			Check: func(context.Context) error { return database.Ping(db) },
		}},
		closers: []func() error{func() error { return database.Close(db) }},
	}

	if cfg.QuotaBackend == config.QuotaBackendRedis {
		redisStore, err := cache.NewRedisQuotaStore(ctx, cfg.RedisURL, cfg.QuotaLockTTL, log)
		if err != nil {
			s.close(log)
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		s.quotas = redisStore
		s.checks = append(s.checks, httpserver.ReadinessCheck{Name: "redis", Check: redisStore.HealthCheck})
		s.closers = append(s.closers, redisStore.Close)
	}
	return s, nil
}

func newDatabaseConfig(cfg *config.Config) database.Config {
	return database.Config{
		DSN:             cfg.DatabaseURL,
		ReadDSN:         cfg.DatabaseReadURL,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		ConnMaxLifetime: cfg.DBConnLifetime,
		LogLevel:        gormlogger.Warn,
	}
}

func newGormDB(ctx context.Context, cfg database.Config, log zerolog.Logger) (*gorm.DB, error) {
	db, err := database.Connect(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := database.AutoMigrate(ctx, db, log); err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return db, nil
}

func newModelRegistry(cfg *config.Config) (*model.Registry, error) {
	if cfg.ModelRegistryFile == "" {
		return model.NewDefaultRegistry(), nil
	}
	return model.LoadRegistryFile(cfg.ModelRegistryFile)
}

func newEstimator(cfg *config.Config, log zerolog.Logger) token.Estimator {
	if cfg.TokenEstimator != "tiktoken" {
		return token.Default
	}
	estimator := token.NewTiktokenEstimator(token.DefaultEncoding)
	if err := estimator.Load(); err != nil {
		log.Warn().Err(err).Msg("tiktoken unavailable, estimating with the heuristic")
	}
	return estimator
}

func newToolTimeouts(cfg *config.Config) tool.Timeouts {
	return tool.Timeouts{
		Lookup:  cfg.ToolTimeoutLookup,
		Search:  cfg.ToolTimeoutSearch,
		Compute: cfg.ToolTimeoutCompute,
	}
}

// newToolRegistry registers the built-in tools plus whatever the MCP tools
// service advertises. An unreachable MCP service only costs its tools.
func newToolRegistry(ctx context.Context, cfg *config.Config, log zerolog.Logger) *tool.Registry {
	all := tool.Builtins(time.Now)

	if cfg.MCPToolsURL != "" {
		discoverCtx, cancel := context.WithTimeout(ctx, mcpDiscoveryTimeout)
		remote, err := mcp.NewClient(cfg.MCPToolsURL, cfg.ToolTimeoutSearch).Tools(discoverCtx)
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("url", cfg.MCPToolsURL).Msg("MCP tool discovery failed")
		} else {
			builtin := make(map[string]struct{}, len(all))
			for _, t := range all {
				builtin[t.Descriptor.Name] = struct{}{}
			}
			for _, t := range remote {
				if _, clash := builtin[t.Descriptor.Name]; clash {
					log.Warn().Str("tool", t.Descriptor.Name).Msg("MCP tool shadows a built-in, skipping")
					continue
				}
				all = append(all, t)
			}
		}
	}

	registry, err := tool.NewRegistry(all...)
	if err != nil {
		log.Error().Err(err).Msg("tool registry invalid, serving built-ins only")
		registry, _ = tool.NewRegistry(tool.Builtins(time.Now)...)
	}
	log.Info().Strs("tools", registry.Names()).Msg("tool registry ready")
	return registry
}

func newMemoryRetriever(cfg *config.Config, log zerolog.Logger) (orchestrator.MemoryRetriever, error) {
	if cfg.MemoryToolsURL == "" {
		return nil, nil
	}
	client, err := memory.NewClient(memory.Config{
		BaseURL:   cfg.MemoryToolsURL,
		Timeout:   cfg.MemoryTimeout,
		CacheSize: cfg.MemoryCacheSize,
		CacheTTL:  cfg.MemoryCacheTTL,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("initialize memory client: %w", err)
	}
	return client, nil
}

// newProviderDispatcher maps every provider named by the model registry to an
// adapter. With PROVIDER_ECHO all of them answer offline.
func newProviderDispatcher(cfg *config.Config, models *model.Registry, estimator token.Estimator, log zerolog.Logger) *provider.Dispatcher {
	adapters := make(map[string]llm.Provider)
	if cfg.ProviderEcho {
		echo := provider.NewEchoAdapter(estimator)
		for _, name := range models.Providers() {
			adapters[name] = echo
		}
		log.Warn().Strs("providers", models.Providers()).Msg("serving every provider with the echo adapter")
		return provider.NewDispatcher(adapters)
	}

	adapters["openai"] = provider.NewOpenAIAdapter(provider.OpenAIConfig{
		Name:    "openai",
		BaseURL: cfg.ProviderOpenAIBaseURL,
		APIKey:  cfg.ProviderOpenAIAPIKey,
		Timeout: cfg.ProviderTimeout,
	})
	if cfg.ProviderLocalBaseURL != "" {
		adapters["local"] = provider.NewOpenAIAdapter(provider.OpenAIConfig{
			Name:    "local",
			BaseURL: cfg.ProviderLocalBaseURL,
			APIKey:  cfg.ProviderLocalAPIKey,
			Timeout: cfg.ProviderTimeout,
		})
	}
	dispatcher := provider.NewDispatcher(adapters)
	for _, name := range models.Providers() {
		if _, err := dispatcher.Resolve(name); err != nil {
			log.Warn().Str("provider", name).Msg("models reference a provider with no adapter; requests to them fail over")
		}
	}
	return dispatcher
}

func newOrchestratorConfig(cfg *config.Config) orchestrator.Config {
	return orchestrator.Config{
		DefaultModel:      cfg.DefaultModel,
		MaxContextTokens:  cfg.MaxContextTokens,
		DefaultMaxTokens:  cfg.DefaultMaxTokens,
		MaxToolIterations: cfg.MaxToolIterations,
		MemoryTimeout:     cfg.MemoryTimeout,
	}
}

// newAuditRecorder masks personal data in stored trails unless disabled.
func newAuditRecorder(cfg *config.Config, next audit.Recorder) audit.Recorder {
	if !cfg.AuditRedactPII {
		return next
	}
	return audit.NewRedactingRecorder(next, audit.NewRedactor(cfg.AuditRedactSalt))
}
