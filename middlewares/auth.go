package middlewares

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"shop-service/models"
	"shop-service/utils"
)

const (
	ContextUserID = "userID"
	ContextRole   = "role"
)

// Auth validates the Bearer token and stores the caller's identity in the
// request context.
func Auth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"status": "error", "message": "authorization header required",
			})
			return
		}
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"status": "error", "message": "authorization header must be a bearer token",
			})
			return
		}

		userID, role, err := utils.ParseToken(tokenString, jwtSecret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"status": "error", "message": "invalid or expired token",
			})
			return
		}

		c.Set(ContextUserID, userID)
		c.Set(ContextRole, role)
		c.Next()
	}
}

// OptionalAuth resolves the caller's identity when a valid token is present
// but lets anonymous requests through; carts work for guests too.
func OptionalAuth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if tokenString, ok := strings.CutPrefix(header, "Bearer "); ok {
			if userID, role, err := utils.ParseToken(tokenString, jwtSecret); err == nil {
				c.Set(ContextUserID, userID)
				c.Set(ContextRole, role)
			}
		}
		c.Next()
	}
}

// AdminOnly gates admin routes; it must run after Auth.
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ContextRole) != models.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"status": "error", "message": "admin access required",
			})
			return
		}
		c.Next()
	}
}

// UserID returns the authenticated caller's ID from the context.
func UserID(c *gin.Context) int64 {
	return c.GetInt64(ContextUserID)
}

// IsAdmin reports whether the authenticated caller has the admin role.
func IsAdmin(c *gin.Context) bool {
	return c.GetString(ContextRole) == models.RoleAdmin
}
