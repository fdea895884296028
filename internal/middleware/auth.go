package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"librarium/api/internal/config"
	"librarium/api/internal/security"
)

const (
	ContextClaims = "access_claims"
	ContextUserID = "user_id"
	ContextRole   = "user_role"
)

// Auth validates the bearer access token. Validation is purely cryptographic;
// no session or user lookup happens here.
func Auth(cfg *config.AppConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing_token"})
			return
		}

		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")

		claims, err := security.ParseAccessToken(tokenStr, cfg.Security.JWTAccessSecret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
			return
		}

		c.Set(ContextClaims, *claims)
		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextRole, claims.Role)

		c.Next()
	}
}

// CurrentClaims returns the claims attached by Auth.
func CurrentClaims(c *gin.Context) (security.AccessClaims, bool) {
	val, exists := c.Get(ContextClaims)
	if !exists {
		return security.AccessClaims{}, false
	}
	claims, ok := val.(security.AccessClaims)
	return claims, ok
}
