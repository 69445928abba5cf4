package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"kaaj/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	todoListPrefix = "todos:owner:"
	todoGenPrefix  = "todos:gen:"
)

// TodoListCache caches each owner's todo listing. Every write bumps the
// owner's generation, and a listing read under an older generation is never
// stored.
type TodoListCache struct {
	cache *RedisCache
	ttl   time.Duration
}

func NewTodoListCache(cache *RedisCache, ttl time.Duration) *TodoListCache {
	return &TodoListCache{cache: cache, ttl: ttl}
}

func todoListKey(owner string) string { return todoListPrefix + owner }

func todoGenKey(owner string) string { return todoGenPrefix + owner }

// GetList returns the cached listing, or nil on a miss.
func (c *TodoListCache) GetList(ctx context.Context, owner string) ([]models.Todo, error) {
	var list []models.Todo
	err := c.cache.Get(ctx, todoListKey(owner), &list)
	if errors.Is(err, ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.Todo{}
	}
	return list, nil
}

// Generation returns the owner's current listing generation. Read it before
// querying the database and hand it to SetList.
func (c *TodoListCache) Generation(ctx context.Context, owner string) (int64, error) {
	var gen int64
	err := c.cache.do(ctx, func(ctx context.Context) error {
		n, err := c.cache.client.Get(ctx, todoGenKey(owner)).Int64()
		gen = n
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to read generation: %w", err)
	}
	return gen, nil
}

// SetList stores list if the owner's generation is still gen. It reports
// whether the listing was stored.
func (c *TodoListCache) SetList(ctx context.Context, owner string, gen int64, list []models.Todo) (bool, error) {
	if list == nil {
		list = []models.Todo{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		return false, fmt.Errorf("failed to marshal value: %w", err)
	}

	genKey := todoGenKey(owner)
	stored := false
	err = c.cache.do(ctx, func(ctx context.Context) error {
		err := c.cache.client.Watch(ctx, func(tx *redis.Tx) error {
			cur, err := tx.Get(ctx, genKey).Int64()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
			if cur != gen {
				return nil
			}
			_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
				p.Set(ctx, todoListKey(owner), data, c.ttl)
				return nil
			})
			stored = err == nil
			return err
		}, genKey)
		if errors.Is(err, redis.TxFailedErr) {
			// a write bumped the generation while we were storing
			return nil
		}
		return err
	})
	if err != nil {
		return false, fmt.Errorf("failed to set cache: %w", err)
	}
	if stored {
		c.cache.metrics.RecordSet()
	}
	return stored, nil
}

// Invalidate bumps the owner's generation and drops the cached listing.
func (c *TodoListCache) Invalidate(ctx context.Context, owner string) error {
	err := c.cache.do(ctx, func(ctx context.Context) error {
		_, err := c.cache.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Incr(ctx, todoGenKey(owner))
			p.Del(ctx, todoListKey(owner))
			return nil
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to invalidate cache: %w", err)
	}
	c.cache.metrics.RecordDelete()
	return nil
}

func (c *TodoListCache) InvalidateAll(ctx context.Context) error {
	return c.cache.DeletePattern(ctx, todoListPrefix+"*")
}
