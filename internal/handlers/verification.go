package handlers

import (
	"net/http"

	"kaaj/internal/apperrors"
	"kaaj/internal/middleware"
	"kaaj/internal/services"

	"github.com/gin-gonic/gin"
)

type VerificationHandler struct {
	authService services.AuthService
}

type VerifyRequest struct {
	Token string `json:"token" form:"token" binding:"required"`
}

func NewVerificationHandler(authService services.AuthService) *VerificationHandler {
	return &VerificationHandler{authService: authService}
}

func (h *VerificationHandler) Send(c *gin.Context) {
	if err := h.authService.SendVerification(c.Request.Context(), middleware.UserID(c)); err != nil {
		middleware.WriteError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

// Verify accepts the token as JSON or, for mailed links, as a query parameter.
func (h *VerificationHandler) Verify(c *gin.Context) {
	var req VerifyRequest
	if err := c.ShouldBind(&req); err != nil {
		middleware.WriteError(c, apperrors.Wrap(apperrors.KindValidation, err))
		return
	}

	ident, err := h.authService.Verify(c.Request.Context(), req.Token)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, ident)
}
