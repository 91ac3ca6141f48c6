package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"jan-server/services/orchestrator-api/internal/domain/model"
	"jan-server/services/orchestrator-api/internal/domain/tool"
	"jan-server/services/orchestrator-api/internal/interfaces/httpserver/responses"
)

// CatalogHandler lists models and tools.
type CatalogHandler struct {
	models *model.Registry
	tools  *tool.Registry
}

func NewCatalogHandler(models *model.Registry, tools *tool.Registry) *CatalogHandler {
	return &CatalogHandler{models: models, tools: tools}
}

// ListModels handles GET /v1/models
// @Summary List models
// @Description Lists the routable models with their context windows, prices and fallback targets
// @Tags Catalog
// @Produce json
// @Success 200 {object} responses.ModelList
// @Router /v1/models [get]
func (h *CatalogHandler) ListModels(c *gin.Context) {
	c.JSON(http.StatusOK, responses.NewModelList(h.models))
}

// ListTools handles GET /v1/tools
// @Summary List tools
// @Description Lists the tools a request may offer to the model
// @Tags Catalog
// @Produce json
// @Success 200 {object} map[string]any
// @Router /v1/tools [get]
func (h *CatalogHandler) ListTools(c *gin.Context) {
	descriptors := h.tools.Descriptors()
	if descriptors == nil {
		descriptors = []tool.Descriptor{}
	}
	c.JSON(http.StatusOK, gin.H{"object": "list", "data": descriptors})
}
