package middlewares

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"

	"jan-server/services/orchestrator-api/internal/utils/platformerrors"
)

// AdminKeyHeader carries the operator key on admin routes.
const AdminKeyHeader = "X-Admin-Key"

// AdminKey guards operator routes with a static key.
func AdminKey(key string) gin.HandlerFunc {
	expected := []byte(strings.TrimSpace(key))
	return func(c *gin.Context) {
		given := []byte(strings.TrimSpace(c.GetHeader(AdminKeyHeader)))
		if len(expected) == 0 || subtle.ConstantTimeCompare(given, expected) != 1 {
			platformerrors.WriteUnauthorized(c, "invalid admin key")
			return
		}
		c.Next()
	}
}
