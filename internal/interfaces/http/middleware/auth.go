// internal/interfaces/http/middleware/auth.go
package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/minishop/storefront-backend/internal/config"
)

// UserIDHeader carries the chat-client user id. The mini-app platform
// authenticates the user before the request reaches us; this layer only
// resolves the identity it forwarded.
const UserIDHeader = "X-Chat-User-Id"

// IdentityMiddleware resolves the chat-client user id header into the
// request context
func IdentityMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(UserIDHeader)
		if raw == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "user identity header required",
			})
			c.Abort()
			return
		}

		userID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || userID <= 0 {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "invalid user identity header",
			})
			c.Abort()
			return
		}

		c.Set("user_id", userID)
		c.Set("is_admin", cfg.IsAdmin(userID))

		c.Next()
	}
}

// AdminMiddleware ensures the user is in the admin allowlist
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		isAdmin, exists := c.Get("is_admin")
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication required",
			})
			c.Abort()
			return
		}

		if !isAdmin.(bool) {
			c.JSON(http.StatusForbidden, gin.H{
				"error": "Admin access required",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// GetUserIDFromContext extracts user ID from gin context
func GetUserIDFromContext(c *gin.Context) (int64, bool) {
	userID, exists := c.Get("user_id")
	if !exists {
		return 0, false
	}
	return userID.(int64), true
}

// IsAdminFromContext checks if user is admin from gin context
func IsAdminFromContext(c *gin.Context) bool {
	isAdmin, exists := c.Get("is_admin")
	if !exists {
		return false
	}
	return isAdmin.(bool)
}
