package middlewares

import (
	"strings"

	"github.com/gin-gonic/gin"

	"jan-server/services/orchestrator-api/internal/utils/idgen"
	"jan-server/services/orchestrator-api/internal/utils/requestctx"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// RequestID ensures every request has an id bound to its context.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader(RequestIDHeader))
		if requestID == "" || len(requestID) > 128 {
			requestID = idgen.NewRequestID()
		}
		c.Request = c.Request.WithContext(requestctx.WithRequestID(c.Request.Context(), requestID))
		c.Header(RequestIDHeader, requestID)
		c.Next()
	}
}
