package middleware

import (
	"net/http"
	"runtime/debug"

	"kaaj/internal/apperrors"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
)

// RecoveryWithLog turns a handler panic into a 500 and logs the stack.
func RecoveryWithLog(logger *log.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, recovered any) {
		logger.Error("panic recovered", "path", c.Request.URL.Path, "panic", recovered, "stack", string(debug.Stack()))
		_, body := Body(apperrors.New(apperrors.KindInternal))
		c.AbortWithStatusJSON(http.StatusInternalServerError, body)
	})
}
