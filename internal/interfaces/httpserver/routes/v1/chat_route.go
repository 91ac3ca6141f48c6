package v1

import (
	"github.com/gin-gonic/gin"

	"jan-server/services/orchestrator-api/internal/interfaces/httpserver/handlers"
)

func registerChatRoutes(router gin.IRoutes, handler *handlers.ChatHandler) {
	router.POST("/chat/completions", handler.Create)
}

func registerCatalogRoutes(router gin.IRoutes, handler *handlers.CatalogHandler) {
	router.GET("/models", handler.ListModels)
	router.GET("/tools", handler.ListTools)
}
