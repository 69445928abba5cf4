package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"kaaj/internal/config"

	"github.com/redis/go-redis/v9"
)

var (
	ErrCacheMiss = errors.New("cache miss")
	ErrCacheDown = errors.New("cache unavailable")
)

const opTimeout = 3 * time.Second

type CacheConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 5,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// ConfigFrom maps the server's redis settings.
func ConfigFrom(cfg *config.Config) *CacheConfig {
	return &CacheConfig{
		Addr:         cfg.GetRedisAddr(),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		MaxRetries:   cfg.Redis.MaxRetries,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	}
}

func NewClient(config *CacheConfig) *redis.Client {
	if config == nil {
		config = DefaultCacheConfig()
	}
	return redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		MaxRetries:   config.MaxRetries,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})
}

// RedisCache stores JSON values in redis. Calls go through a circuit breaker
// so a dead redis costs one fast ErrCacheDown instead of a dial timeout.
type RedisCache struct {
	client  *redis.Client
	breaker *CircuitBreaker
	metrics *CacheMetrics
}

func NewRedisCache(client *redis.Client, breaker *CircuitBreaker) *RedisCache {
	if breaker == nil {
		breaker = NewCircuitBreaker(nil)
	}
	return &RedisCache{
		client:  client,
		breaker: breaker,
		metrics: NewCacheMetrics(),
	}
}

func (r *RedisCache) Client() *redis.Client { return r.client }

func (r *RedisCache) Metrics() *CacheMetrics { return r.metrics }

func (r *RedisCache) Breaker() *CircuitBreaker { return r.breaker }

func (r *RedisCache) do(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	err := r.breaker.Execute(func() error {
		err := fn(ctx)
		if errors.Is(err, redis.Nil) {
			// a miss is an answer, not a failure
			return nil
		}
		return err
	})
	switch {
	case errors.Is(err, ErrCircuitBreakerOpen):
		r.metrics.RecordError()
		return ErrCacheDown
	case err != nil:
		r.metrics.RecordError()
		return err
	}
	return nil
}

func (r *RedisCache) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	err = r.do(ctx, func(ctx context.Context) error {
		return r.client.Set(ctx, key, data, expiration).Err()
	})
	if err != nil {
		return fmt.Errorf("failed to set cache: %w", err)
	}
	r.metrics.RecordSet()
	return nil
}

func (r *RedisCache) Get(ctx context.Context, key string, dest any) error {
	var data []byte
	miss := false
	err := r.do(ctx, func(ctx context.Context) error {
		b, err := r.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			miss = true
		}
		data = b
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to get from cache: %w", err)
	}
	if miss {
		r.metrics.RecordMiss()
		return ErrCacheMiss
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to unmarshal cached data: %w", err)
	}
	r.metrics.RecordHit()
	return nil
}

func (r *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	err := r.do(ctx, func(ctx context.Context) error {
		return r.client.Del(ctx, keys...).Err()
	})
	if err != nil {
		return err
	}
	r.metrics.RecordDelete()
	return nil
}

// DeletePattern removes every key matching pattern. It walks the keyspace
// with SCAN so a large cache does not block redis.
func (r *RedisCache) DeletePattern(ctx context.Context, pattern string) error {
	return r.do(ctx, func(ctx context.Context) error {
		iter := r.client.Scan(ctx, 0, pattern, 100).Iterator()
		var batch []string
		for iter.Next(ctx) {
			batch = append(batch, iter.Val())
			if len(batch) == 100 {
				if err := r.client.Del(ctx, batch...).Err(); err != nil {
					return err
				}
				batch = batch[:0]
			}
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("failed to scan keys for pattern %s: %w", pattern, err)
		}
		if len(batch) > 0 {
			return r.client.Del(ctx, batch...).Err()
		}
		return nil
	})
}

func (r *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	var n int64
	err := r.do(ctx, func(ctx context.Context) error {
		var err error
		n, err = r.client.Exists(ctx, key).Result()
		return err
	})
	return n > 0, err
}

// Health pings redis directly, bypassing the breaker.
func (r *RedisCache) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return r.client.Ping(ctx).Err()
}

func (r *RedisCache) Stats() map[string]any {
	poolStats := r.client.PoolStats()
	m := r.metrics.GetStats()
	return map[string]any{
		"hits":          m.Hits,
		"misses":        m.Misses,
		"errors":        m.Errors,
		"hit_rate":      r.metrics.HitRate(),
		"breaker":       r.breaker.GetStats(),
		"pool_hits":     poolStats.Hits,
		"pool_misses":   poolStats.Misses,
		"pool_timeouts": poolStats.Timeouts,
		"pool_total":    poolStats.TotalConns,
		"pool_idle":     poolStats.IdleConns,
		"pool_stale":    poolStats.StaleConns,
	}
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}
