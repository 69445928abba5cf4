package handlers

import (
	"net/http"

	"kaaj/internal/backend"
	"kaaj/internal/middleware"
	"kaaj/internal/services"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	authService services.AuthService
}

type PasswordRequest struct {
	Password string `json:"password" binding:"required"`
}

func NewAuthHandler(authService services.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

func (h *AuthHandler) SignIn(c *gin.Context) {
	var req CredentialsRequest
	if !bindJSON(c, &req) {
		return
	}

	creds, err := h.authService.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, creds)
}

func (h *AuthHandler) Me(c *gin.Context) {
	ident, err := h.authService.Me(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, ident)
}

func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	var change backend.ProfileChange
	if !bindJSON(c, &change) {
		return
	}

	ident, err := h.authService.UpdateProfile(c.Request.Context(), middleware.UserID(c), middleware.SessionID(c), change)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, ident)
}

func (h *AuthHandler) Reauthenticate(c *gin.Context) {
	var req PasswordRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.authService.Reauthenticate(c.Request.Context(), middleware.UserID(c), req.Password); err != nil {
		middleware.WriteError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AuthHandler) UpdatePassword(c *gin.Context) {
	var req PasswordRequest
	if !bindJSON(c, &req) {
		return
	}

	err := h.authService.UpdatePassword(c.Request.Context(), middleware.UserID(c), middleware.SessionID(c), req.Password)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
