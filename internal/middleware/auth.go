package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"storefront/internal/models"
	"storefront/internal/services"
)

const (
	ctxAccount   = "account"
	ctxAccountID = "account_id"
	ctxRole      = "role"
)

type TokenVerifier interface {
	Verify(token string) (*services.Claims, error)
}

type AccountLoader interface {
	GetByID(ctx context.Context, id string) (*models.Account, error)
}

func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"status": "error", "message": msg})
}

func bearerToken(c *gin.Context) string {
	authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// Authenticate restores the caller from the bearer token. The account is
// re-read on every request so a block takes effect on already issued tokens.
func Authenticate(tokens TokenVerifier, accounts AccountLoader, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// preflight пропускаем
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		tokenStr := bearerToken(c)
		if tokenStr == "" {
			unauthorized(c, "Missing or invalid Authorization header")
			return
		}

		claims, err := tokens.Verify(tokenStr)
		if err != nil {
			msg := "Invalid token"
			if errors.Is(err, services.ErrTokenExpired) {
				msg = "Token expired"
			}
			unauthorized(c, msg)
			return
		}

		acc, err := accounts.GetByID(c.Request.Context(), claims.ID)
		if err != nil {
			if !errors.Is(err, services.ErrNotFound) {
				log.Errorf("[auth][middleware] load account id=%s err=%v", claims.ID, err)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "Internal server error"})
				return
			}
			unauthorized(c, "Account not found")
			return
		}
		if !acc.IsActive() {
			unauthorized(c, "Account is not active")
			return
		}

		c.Set(ctxAccount, acc)
		c.Set(ctxAccountID, acc.ID)
		c.Set(ctxRole, acc.Role)
		c.Next()
	}
}

// CurrentAccount returns the account set by Authenticate.
func CurrentAccount(c *gin.Context) (*models.Account, bool) {
	v, ok := c.Get(ctxAccount)
	if !ok {
		return nil, false
	}
	acc, ok := v.(*models.Account)
	return acc, ok && acc != nil
}
