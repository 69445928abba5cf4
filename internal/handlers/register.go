package handlers

import (
	"net/http"

	"kaaj/internal/middleware"
	"kaaj/internal/services"

	"github.com/gin-gonic/gin"
)

type RegisterHandler struct {
	authService services.AuthService
}

// CredentialsRequest is the body of signup and signin.
type CredentialsRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func NewRegisterHandler(authService services.AuthService) *RegisterHandler {
	return &RegisterHandler{authService: authService}
}

func (h *RegisterHandler) SignUp(c *gin.Context) {
	var req CredentialsRequest
	if !bindJSON(c, &req) {
		return
	}

	creds, err := h.authService.SignUp(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, creds)
}
