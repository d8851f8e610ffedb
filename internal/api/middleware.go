package api

import (
	"net/http"

	"invoice-service/internal/auth"

	"github.com/gin-gonic/gin"
)

const principalKey = "principal"

// AuthRequired rejects requests without a valid token and stores the
// principal in the gin context
func AuthRequired(tokens Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Access denied. No token provided."})
			return
		}

		principal, err := tokens.Authenticate(header)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token."})
			return
		}

		c.Set(principalKey, principal)
		c.Next()
	}
}

// RequireRole allows only principals holding exactly roleID
func RequireRole(roleID int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := principalFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Access denied. No token provided."})
			return
		}

		if err := auth.Authorize(principal, roleID); err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Access denied."})
			return
		}
		c.Next()
	}
}

func principalFrom(c *gin.Context) (*auth.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil, false
	}
	p, ok := v.(*auth.Principal)
	return p, ok
}
