package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/printlink/print-platform/internal/auth"
	"github.com/printlink/print-platform/internal/common"
)

const (
	UserIDKey   = "user_id"
	UserRoleKey = "user_role"
)

// AuthRequired validates the bearer token and stores identity and role in
// the request context.
func AuthRequired(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		token := strings.TrimPrefix(h, "Bearer ")
		if token == "" || token == h {
			common.Fail(c, http.StatusUnauthorized, 40101, "authorization required")
			c.Abort()
			return
		}

		claims, err := auth.ParseJWT(token, jwtSecret)
		if err != nil {
			common.Fail(c, http.StatusUnauthorized, 40102, "invalid token")
			c.Abort()
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Set(UserRoleKey, claims.Role)
		c.Next()
	}
}

// RequireRole rejects callers whose role is not in the allow list. Admin
// always passes.
func RequireRole(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(c *gin.Context) {
		role := c.GetString(UserRoleKey)
		if role == auth.RoleAdmin || allowed[role] {
			c.Next()
			return
		}
		common.Fail(c, http.StatusForbidden, 40301, "insufficient permissions")
		c.Abort()
	}
}

func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				common.Fail(c, http.StatusInternalServerError, 50000, "internal error")
				c.Abort()
			}
		}()
		c.Next()
	}
}
