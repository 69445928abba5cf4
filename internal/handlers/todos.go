package handlers

import (
	"net/http"

	"kaaj/internal/middleware"
	"kaaj/internal/models"
	"kaaj/internal/services"

	"github.com/gin-gonic/gin"
)

type TodoHandler struct {
	todoService services.TodoService
}

func NewTodoHandler(todoService services.TodoService) *TodoHandler {
	return &TodoHandler{todoService: todoService}
}

// List answers the todos of ?owner=, which defaults to the caller.
func (h *TodoHandler) List(c *gin.Context) {
	caller := middleware.UserID(c)
	owner := c.DefaultQuery("owner", caller)

	todos, err := h.todoService.List(c.Request.Context(), caller, owner)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, todos)
}

func (h *TodoHandler) Create(c *gin.Context) {
	var todo models.Todo
	if !bindJSON(c, &todo) {
		return
	}

	created, err := h.todoService.Create(c.Request.Context(), middleware.UserID(c), todo)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *TodoHandler) Get(c *gin.Context) {
	todo, err := h.todoService.Get(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, todo)
}

func (h *TodoHandler) Update(c *gin.Context) {
	var patch models.TodoPatch
	if !bindJSON(c, &patch) {
		return
	}

	todo, err := h.todoService.UpdateStatus(c.Request.Context(), middleware.UserID(c), c.Param("id"), patch)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, todo)
}

func (h *TodoHandler) Delete(c *gin.Context) {
	if err := h.todoService.Delete(c.Request.Context(), middleware.UserID(c), c.Param("id")); err != nil {
		middleware.WriteError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
