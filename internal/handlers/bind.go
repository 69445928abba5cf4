package handlers

import (
	"kaaj/internal/apperrors"
	"kaaj/internal/middleware"

	"github.com/gin-gonic/gin"
)

// bindJSON decodes the body into dst, answering 400 validation_failed when
// it cannot.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		middleware.WriteError(c, apperrors.Wrap(apperrors.KindValidation, err))
		return false
	}
	return true
}
