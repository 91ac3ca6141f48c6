package handlers

import (
	"github.com/rs/zerolog"

	"jan-server/services/orchestrator-api/internal/domain/audit"
	"jan-server/services/orchestrator-api/internal/domain/model"
	"jan-server/services/orchestrator-api/internal/domain/tool"
)

// Provider wires all HTTP handlers for dependency injection.
type Provider struct {
	Chat    *ChatHandler
	Catalog *CatalogHandler
	Usage   *UsageHandler
}

// NewProvider constructs the handler provider with domain services.
func NewProvider(chat ChatService, usage UsageService, audits audit.Repository, models *model.Registry, tools *tool.Registry, log zerolog.Logger) *Provider {
	return &Provider{
		Chat:    NewChatHandler(chat, log),
		Catalog: NewCatalogHandler(models, tools),
		Usage:   NewUsageHandler(usage, audits, log),
	}
}
