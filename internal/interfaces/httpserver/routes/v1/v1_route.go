package v1

import (
	"github.com/gin-gonic/gin"

	"jan-server/services/orchestrator-api/internal/interfaces/httpserver/handlers"
	"jan-server/services/orchestrator-api/internal/interfaces/httpserver/middlewares"
)

// Routes encapsulates versioned route registration.
type Routes struct {
	handlers *handlers.Provider
	adminKey string
}

// NewRoutes builds the v1 route registrar. An empty adminKey leaves the admin
// routes unregistered.
func NewRoutes(handlerProvider *handlers.Provider, adminKey string) *Routes {
	return &Routes{
		handlers: handlerProvider,
		adminKey: adminKey,
	}
}

// RegisterAdmin attaches /v1/admin. It is called before user auth is applied;
// the admin key is the only credential these routes take.
func (r *Routes) RegisterAdmin(engine *gin.Engine) {
	if r.adminKey == "" {
		return
	}
	group := engine.Group("/v1/admin", middlewares.AdminKey(r.adminKey))
	registerAdminRoutes(group, r.handlers.Usage)
}

// Register attaches all user facing v1 routes under /v1 prefix.
func (r *Routes) Register(engine *gin.Engine) {
	group := engine.Group("/v1")
	registerChatRoutes(group, r.handlers.Chat)
	registerCatalogRoutes(group, r.handlers.Catalog)
	registerUsageRoutes(group, r.handlers.Usage)
}
