package v1

import (
	"github.com/gin-gonic/gin"

	"jan-server/services/orchestrator-api/internal/interfaces/httpserver/handlers"
)

func registerUsageRoutes(router gin.IRoutes, handler *handlers.UsageHandler) {
	router.GET("/usage", handler.Summary)
}

func registerAdminRoutes(router gin.IRoutes, handler *handlers.UsageHandler) {
	router.PUT("/quotas/:user_id", handler.SetTier)
	router.POST("/quotas/reset", handler.ResetExpired)
	router.GET("/audit", handler.ListAudit)
}
