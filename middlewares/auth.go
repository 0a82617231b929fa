package middlewares

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"settlement-service/utils"
)

const (
	TenantKey     = "tenantID"
	StaffAliasKey = "staffAlias"
	RoleKey       = "role"
)

// TenantMiddleware resolves the tenant from the :tenant path segment. Every
// handler reads it from the context instead of the URL.
func TenantMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := strings.TrimSpace(c.Param("tenant"))
		if tenantID == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Tenant is required"})
			return
		}
		c.Set(TenantKey, tenantID)
		c.Next()
	}
}

// AuthMiddleware requires a staff bearer token issued for the request's tenant.
// WebSocket clients cannot set headers, so a token query parameter is also accepted.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization required"})
			return
		}
		claims, err := utils.ParseToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}
		if claims.TenantID != c.GetString(TenantKey) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Token is not valid for this restaurant"})
			return
		}
		c.Set(StaffAliasKey, claims.StaffAlias)
		c.Set(RoleKey, claims.Role)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return c.Query("token")
}
