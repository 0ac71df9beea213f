// internal/interfaces/http/middleware/auth_test.go
package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/minishop/storefront-backend/internal/config"
)

func identityRouter(adminIDs []int64, admin bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{Security: config.SecurityConfig{AdminIDs: adminIDs}}

	r := gin.New()
	group := r.Group("/", IdentityMiddleware(cfg))
	if admin {
		group.Use(AdminMiddleware())
	}
	group.GET("/ping", func(c *gin.Context) {
		userID, ok := GetUserIDFromContext(c)
		if !ok {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "identity missing"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"user_id": userID, "is_admin": IsAdminFromContext(c)})
	})
	return r
}

func TestIdentityMiddleware(t *testing.T) {
	router := identityRouter([]int64{101}, false)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"valid id", "42", http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"non-numeric", "abc", http.StatusUnauthorized},
		{"zero", "0", http.StatusUnauthorized},
		{"negative", "-5", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			if tt.header != "" {
				req.Header.Set(UserIDHeader, tt.header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestAdminMiddleware(t *testing.T) {
	router := identityRouter([]int64{101}, true)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(UserIDHeader, "101")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(UserIDHeader, "42")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
