package handlers

import (
	"net/http"

	"kaaj/internal/middleware"
	"kaaj/internal/services"

	"github.com/gin-gonic/gin"
)

type RefreshHandler struct {
	authService services.AuthService
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

func NewRefreshHandler(authService services.AuthService) *RefreshHandler {
	return &RefreshHandler{authService: authService}
}

func (h *RefreshHandler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if !bindJSON(c, &req) {
		return
	}

	creds, err := h.authService.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, creds)
}
