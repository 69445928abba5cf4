package handlers

import (
	"net/http"

	"kaaj/internal/middleware"
	"kaaj/internal/services"

	"github.com/gin-gonic/gin"
)

type LogoutHandler struct {
	authService services.AuthService
}

func NewLogoutHandler(authService services.AuthService) *LogoutHandler {
	return &LogoutHandler{authService: authService}
}

// SignOut revokes the session of the refresh token. The refresh token is
// the proof, so an expired access token does not prevent signing out.
func (h *LogoutHandler) SignOut(c *gin.Context) {
	var req RefreshRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.authService.SignOut(c.Request.Context(), req.RefreshToken); err != nil {
		middleware.WriteError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
