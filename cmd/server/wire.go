//go:build wireinject

package main

import (
	"context"

	"github.com/google/wire"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"jan-server/services/orchestrator-api/internal/config"
	"jan-server/services/orchestrator-api/internal/domain/audit"
	"jan-server/services/orchestrator-api/internal/domain/guard"
	"jan-server/services/orchestrator-api/internal/domain/model"
	"jan-server/services/orchestrator-api/internal/domain/orchestrator"
	"jan-server/services/orchestrator-api/internal/domain/stream"
	"jan-server/services/orchestrator-api/internal/domain/token"
	"jan-server/services/orchestrator-api/internal/domain/tool"
	"jan-server/services/orchestrator-api/internal/domain/usage"
	"jan-server/services/orchestrator-api/internal/infrastructure/auth"
	"jan-server/services/orchestrator-api/internal/infrastructure/crontab"
	"jan-server/services/orchestrator-api/internal/infrastructure/database"
	"jan-server/services/orchestrator-api/internal/infrastructure/logger"
	"jan-server/services/orchestrator-api/internal/infrastructure/metrics"
	"jan-server/services/orchestrator-api/internal/infrastructure/persistence"
	"jan-server/services/orchestrator-api/internal/infrastructure/provider"
	"jan-server/services/orchestrator-api/internal/interfaces/httpserver"
	"jan-server/services/orchestrator-api/internal/interfaces/httpserver/handlers"
	"jan-server/services/orchestrator-api/internal/interfaces/httpserver/middlewares"
)

var storageSet = wire.NewSet(
	newDatabaseConfig,
	newGormDB,
	persistence.NewQuotaRepository,
	wire.Bind(new(usage.QuotaStore), new(*persistence.QuotaRepository)),
	persistence.NewUsageRepository,
	wire.Bind(new(usage.UsageRecorder), new(*persistence.UsageRepository)),
	persistence.NewAuditRepository,
	wire.Bind(new(audit.Repository), new(*persistence.AuditRepository)),
	newReadinessChecks,
)

var orchestratorSet = wire.NewSet(
	newModelRegistry,
	wire.Bind(new(usage.Pricer), new(*model.Registry)),
	newEstimator,
	newToolRegistry,
	newToolTimeouts,
	newGuard,
	newLoop,
	newMemoryRetriever,
	newProviderDispatcher,
	metrics.NewRecorder,
	usage.NewMeter,
	stream.NewEmitter,
	newDependencies,
	newOrchestratorConfig,
	orchestrator.NewService,
	wire.Bind(new(handlers.ChatService), new(*orchestrator.Service)),
	wire.Bind(new(handlers.UsageService), new(*usage.Meter)),
	wire.Bind(new(crontab.QuotaResetter), new(*usage.Meter)),
)

// BuildApplication assembles the Postgres backed service with Wire.
func BuildApplication(ctx context.Context) (*Application, error) {
	wire.Build(
		config.Load,
		logger.New,
		storageSet,
		orchestratorSet,
		auth.NewValidator,
		newRateLimiter,
		handlers.NewProvider,
		httpserver.New,
		newCrontab,
		NewApplication,
	)
	return nil, nil
}

func newReadinessChecks(db *gorm.DB) []httpserver.ReadinessCheck {
	return []httpserver.ReadinessCheck{{
		Name:  "database",
		Check: func(context.Context) error { return database.Ping(db) },
	}}
}

func newGuard(cfg *config.Config, log zerolog.Logger) *guard.Guard {
	return guard.New(guard.Config{
		MaxInputLength:  cfg.GuardMaxInputLength,
		BlockedPatterns: cfg.GuardBlockedPatterns,
	}, log)
}

func newLoop(tools *tool.Registry, timeouts tool.Timeouts, estimator token.Estimator, recorder *metrics.Recorder, log zerolog.Logger) *tool.Loop {
	return tool.NewLoop(tool.LoopConfig{
		Registry:  tools,
		Timeouts:  timeouts,
		Estimator: estimator,
		Observer:  recorder,
	}, log)
}

func newDependencies(
	cfg *config.Config,
	g *guard.Guard,
	meter *usage.Meter,
	models *model.Registry,
	providers *provider.Dispatcher,
	loop *tool.Loop,
	tools *tool.Registry,
	emitter *stream.Emitter,
	estimator token.Estimator,
	memory orchestrator.MemoryRetriever,
	audits audit.Repository,
	recorder *metrics.Recorder,
) orchestrator.Dependencies {
	return orchestrator.Dependencies{
		Guard:     g,
		Meter:     meter,
		Models:    models,
		Providers: providers,
		Loop:      loop,
		Tools:     tools,
		Emitter:   emitter,
		Estimator: estimator,
		Memory:    memory,
		Audit:     newAuditRecorder(cfg, audits),
		Observer:  recorder,
	}
}

func newRateLimiter(cfg *config.Config) (*middlewares.RateLimiter, error) {
	return middlewares.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, cfg.RateLimitCacheSize)
}

func newCrontab(resetter crontab.QuotaResetter, cfg *config.Config, log zerolog.Logger) *crontab.Crontab {
	return crontab.NewCrontab(resetter, cfg.QuotaResetCron, log)
}
