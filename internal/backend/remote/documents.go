package remote

import (
	"context"
	"net/http"
	"net/url"

	"kaaj/internal/models"
)

// Ping asks the server whether its database and cache are reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.send(ctx, http.MethodGet, "/ready", "", nil, nil)
}

func (c *Client) ListTodos(ctx context.Context, ownerID string) ([]models.Todo, error) {
	var todos []models.Todo
	if err := c.call(ctx, http.MethodGet, "/v1/todos?owner="+url.QueryEscape(ownerID), nil, &todos); err != nil {
		return nil, err
	}
	if todos == nil {
		todos = []models.Todo{}
	}
	return todos, nil
}

func (c *Client) AddTodo(ctx context.Context, todo models.Todo) (models.Todo, error) {
	var created models.Todo
	if err := c.call(ctx, http.MethodPost, "/v1/todos", todo, &created); err != nil {
		return models.Todo{}, err
	}
	return created, nil
}

func (c *Client) UpdateTodo(ctx context.Context, id string, patch models.TodoPatch) error {
	return c.call(ctx, http.MethodPatch, "/v1/todos/"+url.PathEscape(id), patch, nil)
}

func (c *Client) DeleteTodo(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodDelete, "/v1/todos/"+url.PathEscape(id), nil, nil)
}

func (c *Client) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	var p models.Profile
	if err := c.call(ctx, http.MethodGet, "/v1/profiles/"+url.PathEscape(userID), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) MergeProfile(ctx context.Context, userID string, update models.ProfileUpdate) error {
	return c.call(ctx, http.MethodPatch, "/v1/profiles/"+url.PathEscape(userID), update, nil)
}
