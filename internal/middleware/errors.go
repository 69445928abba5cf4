package middleware

import (
	"errors"

	"kaaj/internal/apperrors"

	"github.com/gin-gonic/gin"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Body builds the response body for err. Foreign errors are reported as
// internal without leaking their text.
func Body(err error) (int, ErrorBody) {
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		appErr = apperrors.New(apperrors.KindInternal)
	}
	return appErr.Kind.HTTPStatus(), ErrorBody{Error: appErr.Kind.Code(), Message: appErr.Message}
}

// WriteError answers the request with err.
func WriteError(c *gin.Context, err error) {
	status, body := Body(err)
	_ = c.Error(err)
	c.JSON(status, body)
}

// AbortWithError answers with err and stops the handler chain.
func AbortWithError(c *gin.Context, err error) {
	status, body := Body(err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, body)
}
