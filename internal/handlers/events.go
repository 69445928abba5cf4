package handlers

import (
	"context"
	"io"
	"time"

	"kaaj/internal/backend"
	"kaaj/internal/middleware"

	"github.com/gin-gonic/gin"
)

type IdentityEvents interface {
	Subscribe(ctx context.Context, uid string) (<-chan backend.IdentityEvent, error)
}

type EventsHandler struct {
	events    IdentityEvents
	keepAlive time.Duration
}

func NewEventsHandler(events IdentityEvents, keepAlive time.Duration) *EventsHandler {
	return &EventsHandler{events: events, keepAlive: keepAlive}
}

// Stream sends the caller's identity events as server-sent events. A
// "ready" event is sent once the subscription is live.
func (h *EventsHandler) Stream(c *gin.Context) {
	ctx := c.Request.Context()
	events, err := h.events.Subscribe(ctx, middleware.UserID(c))
	if err != nil {
		middleware.WriteError(c, err)
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("ready", gin.H{"session_id": middleware.SessionID(c)})
	c.Writer.Flush()

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case evt, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent("identity", evt)
			return true
		case <-ticker.C:
			c.SSEvent("ping", gin.H{"at": time.Now().UTC()})
			return true
		}
	})
}
