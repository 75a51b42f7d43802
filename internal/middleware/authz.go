package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequireRoles must run after Authenticate. The role comes from the freshly
// loaded account, not from the token.
func RequireRoles(allowed ...string) gin.HandlerFunc {
	allowedSet := map[string]struct{}{}
	for _, r := range allowed {
		allowedSet[r] = struct{}{}
	}
	return func(c *gin.Context) {
		acc, ok := CurrentAccount(c)
		if !ok {
			unauthorized(c, "no account in context")
			return
		}
		if _, ok := allowedSet[acc.Role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"status": "error", "message": "forbidden"})
			return
		}
		c.Next()
	}
}
