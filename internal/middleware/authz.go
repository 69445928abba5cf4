package middleware

import (
	"context"
	"strings"

	"kaaj/internal/apperrors"
	"kaaj/internal/services"

	"github.com/gin-gonic/gin"
)

const (
	userIDKey    = "user_id"
	sessionIDKey = "session_id"
)

type TokenVerifier interface {
	Parse(token string) (*services.Claims, error)
	Active(ctx context.Context, sid string) (bool, error)
}

// Authenticate requires a valid bearer access token of a live session and
// stores the caller's user and session ids on the context.
func Authenticate(tokens TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			AbortWithError(c, apperrors.New(apperrors.KindNotAuthenticated))
			return
		}

		tokenStr, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || tokenStr == "" {
			AbortWithError(c, apperrors.New(apperrors.KindNotAuthenticated))
			return
		}

		claims, err := tokens.Parse(tokenStr)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		active, err := tokens.Active(c.Request.Context(), claims.SessionID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if !active {
			AbortWithError(c, apperrors.New(apperrors.KindNotAuthenticated))
			return
		}

		c.Set(userIDKey, claims.Subject)
		c.Set(sessionIDKey, claims.SessionID)
		c.Next()
	}
}

func UserID(c *gin.Context) string { return c.GetString(userIDKey) }

func SessionID(c *gin.Context) string { return c.GetString(sessionIDKey) }
