package handlers

import (
	"net/http"

	"kaaj/internal/middleware"
	"kaaj/internal/models"
	"kaaj/internal/services"

	"github.com/gin-gonic/gin"
)

type ProfileHandler struct {
	profileService services.ProfileService
}

func NewProfileHandler(profileService services.ProfileService) *ProfileHandler {
	return &ProfileHandler{profileService: profileService}
}

func (h *ProfileHandler) Get(c *gin.Context) {
	p, err := h.profileService.Get(c.Request.Context(), middleware.UserID(c), c.Param("uid"))
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *ProfileHandler) Merge(c *gin.Context) {
	var update models.ProfileUpdate
	if !bindJSON(c, &update) {
		return
	}

	p, err := h.profileService.Merge(c.Request.Context(), middleware.UserID(c), c.Param("uid"), update)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}
