package services

import (
	"context"
	"encoding/json"

	"kaaj/internal/apperrors"
	"kaaj/internal/backend"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

// EventBus fans identity events out to every server instance over redis
// pub/sub, one channel per user.
type EventBus struct {
	rdb    *redis.Client
	logger *log.Logger
}

func NewEventBus(rdb *redis.Client, logger *log.Logger) *EventBus {
	return &EventBus{rdb: rdb, logger: logger}
}

func identityChannel(uid string) string { return "identity:" + uid }

// Publish is best effort: a failure is logged and otherwise ignored.
func (b *EventBus) Publish(ctx context.Context, uid string, evt backend.IdentityEvent) {
	data, err := json.Marshal(evt)
	if err != nil {
		b.logger.Error("marshal identity event", "err", err)
		return
	}
	if err := b.rdb.Publish(ctx, identityChannel(uid), data).Err(); err != nil {
		b.logger.Warn("publish identity event", "uid", uid, "type", evt.Type, "err", err)
	}
}

// Subscribe streams uid's events until ctx is done. The channel is closed
// when the subscription ends.
func (b *EventBus) Subscribe(ctx context.Context, uid string) (<-chan backend.IdentityEvent, error) {
	sub := b.rdb.Subscribe(ctx, identityChannel(uid))
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, storeError(err, apperrors.KindInternal)
	}

	out := make(chan backend.IdentityEvent)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var evt backend.IdentityEvent
				if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
					b.logger.Warn("drop malformed identity event", "err", err)
					continue
				}
				select {
				case out <- evt:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
