package routes

import (
	"github.com/gin-gonic/gin"

	"jan-server/services/orchestrator-api/internal/interfaces/httpserver/handlers"
	v1 "jan-server/services/orchestrator-api/internal/interfaces/httpserver/routes/v1"
)

// Provider coordinates all route registrations.
type Provider struct {
	V1 *v1.Routes
}

// NewProvider constructs the route provider.
func NewProvider(handlerProvider *handlers.Provider, adminKey string) *Provider {
	return &Provider{
		V1: v1.NewRoutes(handlerProvider, adminKey),
	}
}

// RegisterAdmin attaches operator routes that bypass user auth.
func (p *Provider) RegisterAdmin(engine *gin.Engine) {
	p.V1.RegisterAdmin(engine)
}

// Register attaches all available routes to the gin engine.
func (p *Provider) Register(engine *gin.Engine) {
	p.V1.Register(engine)
}
