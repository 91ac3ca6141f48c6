package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"jan-server/services/orchestrator-api/internal/domain/audit"
	"jan-server/services/orchestrator-api/internal/domain/usage"
	"jan-server/services/orchestrator-api/internal/infrastructure/auth"
	"jan-server/services/orchestrator-api/internal/interfaces/httpserver/requests"
	"jan-server/services/orchestrator-api/internal/interfaces/httpserver/responses"
	"jan-server/services/orchestrator-api/internal/utils/platformerrors"
)

// UsageService is the slice of the usage meter the HTTP layer needs.
type UsageService interface {
	Summary(ctx context.Context, userID string) (*usage.Summary, error)
	SetTier(ctx context.Context, userID string, tier usage.Tier) (*usage.Quota, error)
	ResetExpired(ctx context.Context) (int64, error)
}

// UsageHandler serves quota views and operator actions.
type UsageHandler struct {
	usage    UsageService
	audits   audit.Repository
	validate *validator.Validate
	log      zerolog.Logger
}

// NewUsageHandler builds the handler. audits may be nil.
func NewUsageHandler(service UsageService, audits audit.Repository, log zerolog.Logger) *UsageHandler {
	return &UsageHandler{
		usage:    service,
		audits:   audits,
		validate: requests.NewValidator(),
		log:      log.With().Str("handler", "usage").Logger(),
	}
}

// Summary handles GET /v1/usage
// @Summary Current usage and bill
// @Description Returns the caller's token usage for the current period and the resulting bill
// @Tags Usage
// @Produce json
// @Success 200 {object} responses.UsageSummary
// @Failure 404 {object} platformerrors.HTTPErrorResponse
// @Router /v1/usage [get]
func (h *UsageHandler) Summary(c *gin.Context) {
	ctx := c.Request.Context()
	summary, err := h.usage.Summary(ctx, auth.UserID(c))
	if err != nil {
		platformerrors.WriteHTTPError(c, toPlatformError(ctx, err), h.log)
		return
	}
	c.JSON(http.StatusOK, responses.NewUsageSummary(summary))
}

// SetTier handles PUT /v1/admin/quotas/:user_id
// @Summary Set a user's tier
// @Description Creates or updates the quota of a user. Usage in the current period is kept.
// @Tags Admin
// @Accept json
// @Produce json
// @Param user_id path string true "User ID"
// @Param request body requests.SetTierRequest true "Tier"
// @Success 200 {object} responses.QuotaResponse
// @Failure 400 {object} platformerrors.HTTPErrorResponse
// @Router /v1/admin/quotas/{user_id} [put]
func (h *UsageHandler) SetTier(c *gin.Context) {
	var req requests.SetTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		platformerrors.WriteValidationError(c, "invalid request body: "+err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		platformerrors.WriteValidationError(c, requests.ValidationMessage(err))
		return
	}
	tier, _ := usage.ParseTier(req.Tier)

	ctx := c.Request.Context()
	quota, err := h.usage.SetTier(ctx, c.Param("user_id"), tier)
	if err != nil {
		platformerrors.WriteHTTPError(c, toPlatformError(ctx, err), h.log)
		return
	}
	h.log.Info().Str("user_id", quota.UserID).Str("tier", string(quota.Tier)).Msg("quota tier updated")
	c.JSON(http.StatusOK, responses.NewQuotaResponse(quota))
}

// ResetExpired handles POST /v1/admin/quotas/reset
// @Summary Reset expired quotas
// @Description Starts a new period for every quota whose period has ended
// @Tags Admin
// @Produce json
// @Success 200 {object} responses.ResetResponse
// @Router /v1/admin/quotas/reset [post]
func (h *UsageHandler) ResetExpired(c *gin.Context) {
	ctx := c.Request.Context()
	n, err := h.usage.ResetExpired(ctx)
	if err != nil {
		platformerrors.WriteHTTPError(c, toPlatformError(ctx, err), h.log)
		return
	}
	c.JSON(http.StatusOK, responses.ResetResponse{Reset: n})
}

// ListAudit handles GET /v1/admin/audit
// @Summary List audit entries
// @Description Lists the newest audit entries of a user, including tool call traces
// @Tags Admin
// @Produce json
// @Param user_id query string true "User ID"
// @Param limit query int false "Limit" default(50)
// @Success 200 {object} responses.AuditList
// @Failure 400 {object} platformerrors.HTTPErrorResponse
// @Router /v1/admin/audit [get]
func (h *UsageHandler) ListAudit(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		platformerrors.WriteValidationError(c, "user_id is required")
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 0 {
		platformerrors.WriteValidationError(c, "limit must be a non-negative integer")
		return
	}
	if h.audits == nil {
		platformerrors.WriteHTTPError(c, toPlatformError(c.Request.Context(), usage.ErrUnsupported), h.log)
		return
	}

	ctx := c.Request.Context()
	entries, err := h.audits.ListByUser(ctx, userID, limit)
	if err != nil {
		platformerrors.WriteHTTPError(c, toPlatformError(ctx, err), h.log)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	c.JSON(http.StatusOK, responses.AuditList{Object: "list", Data: entries})
}
