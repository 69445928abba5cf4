package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"kaaj/internal/models"

	"github.com/alicebob/miniredis/v2"
)

func TestDefaultCacheConfig(t *testing.T) {
	config := DefaultCacheConfig()

	if config.Addr != "localhost:6379" {
		t.Errorf("Expected Addr to be localhost:6379, got %s", config.Addr)
	}

	if config.PoolSize != 10 {
		t.Errorf("Expected PoolSize to be 10, got %d", config.PoolSize)
	}

	if config.MaxRetries != 3 {
		t.Errorf("Expected MaxRetries to be 3, got %d", config.MaxRetries)
	}

	if config.ReadTimeout != 3*time.Second {
		t.Errorf("Expected ReadTimeout to be 3s, got %v", config.ReadTimeout)
	}
}

func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)

	config := DefaultCacheConfig()
	config.Addr = mr.Addr()
	config.MaxRetries = 0

	cache := NewRedisCache(NewClient(config), NewCircuitBreaker(&CircuitBreakerConfig{
		MaxFailures:      2,
		Timeout:          time.Minute,
		HalfOpenMaxCalls: 1,
	}))
	t.Cleanup(func() { cache.Close() })
	return cache, mr
}

func TestRedisCache_SetAndGet(t *testing.T) {
	cache, _ := setupTestRedis(t)
	ctx := context.Background()

	type testData struct {
		Name  string `json:"name"`
		Value int    `json:"value"`
	}

	original := testData{Name: "test", Value: 42}
	if err := cache.Set(ctx, "test:key", original, time.Minute); err != nil {
		t.Fatalf("Failed to set cache: %v", err)
	}

	var retrieved testData
	if err := cache.Get(ctx, "test:key", &retrieved); err != nil {
		t.Fatalf("Failed to get from cache: %v", err)
	}

	if retrieved != original {
		t.Errorf("Expected %+v, got %+v", original, retrieved)
	}
	if stats := cache.Metrics().GetStats(); stats.Hits != 1 || stats.Sets != 1 {
		t.Errorf("Expected 1 hit and 1 set, got %+v", stats)
	}
}

func TestRedisCache_Get_CacheMiss(t *testing.T) {
	cache, _ := setupTestRedis(t)

	var result string
	err := cache.Get(context.Background(), "non-existent-key", &result)

	if err != ErrCacheMiss {
		t.Errorf("Expected ErrCacheMiss, got %v", err)
	}
	if cache.Breaker().GetState() != CircuitBreakerClosed {
		t.Errorf("Expected a miss to leave the breaker closed")
	}
}

func TestRedisCache_Get_InvalidJSON(t *testing.T) {
	cache, mr := setupTestRedis(t)

	mr.Set("test:invalid", "invalid-json")

	var result map[string]any
	if err := cache.Get(context.Background(), "test:invalid", &result); err == nil {
		t.Error("Expected error when getting invalid JSON")
	}
}

func TestRedisCache_DeletePattern(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	for _, k := range []string{"todos:owner:a", "todos:owner:b", "other"} {
		mr.Set(k, "[]")
	}

	if err := cache.DeletePattern(ctx, "todos:owner:*"); err != nil {
		t.Fatalf("DeletePattern: %v", err)
	}

	if mr.Exists("todos:owner:a") || mr.Exists("todos:owner:b") {
		t.Error("Expected matching keys to be deleted")
	}
	if !mr.Exists("other") {
		t.Error("Expected unrelated key to survive")
	}
}

func TestRedisCache_BreakerOpensWhenRedisIsDown(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()
	mr.Close()

	var v string
	for i := 0; i < 2; i++ {
		if err := cache.Get(ctx, "k", &v); err == nil {
			t.Fatal("Expected error with redis down")
		}
	}

	err := cache.Get(ctx, "k", &v)
	if !errors.Is(err, ErrCacheDown) {
		t.Errorf("Expected ErrCacheDown once the breaker opens, got %v", err)
	}
	if cache.Breaker().GetState() != CircuitBreakerOpen {
		t.Errorf("Expected breaker open, got %v", cache.Breaker().GetState())
	}
}

func TestTodoListCache(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()
	lists := NewTodoListCache(cache, time.Minute)

	got, err := lists.GetList(ctx, "u1")
	if err != nil || got != nil {
		t.Fatalf("Expected a nil miss, got %v, %v", got, err)
	}

	if ok, err := lists.SetList(ctx, "u1", 0, nil); err != nil || !ok {
		t.Fatalf("SetList: %v, %v", ok, err)
	}
	got, err = lists.GetList(ctx, "u1")
	if err != nil {
		t.Fatalf("GetList: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("Expected a cached empty list to be a hit, got %v", got)
	}

	todos := []models.Todo{{ID: "t1", UserID: "u1", Title: "Buy milk"}}
	if ok, err := lists.SetList(ctx, "u2", 0, todos); err != nil || !ok {
		t.Fatalf("SetList: %v, %v", ok, err)
	}
	if ttl := mr.TTL("todos:owner:u2"); ttl != time.Minute {
		t.Errorf("Expected a 1m TTL, got %v", ttl)
	}

	if err := lists.Invalidate(ctx, "u1"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if mr.Exists("todos:owner:u1") {
		t.Error("Expected u1 listing to be gone")
	}

	got, _ = lists.GetList(ctx, "u2")
	if len(got) != 1 || got[0].Title != "Buy milk" {
		t.Errorf("Expected u2 listing untouched, got %v", got)
	}

	if err := lists.InvalidateAll(ctx); err != nil {
		t.Fatalf("InvalidateAll: %v", err)
	}
	if mr.Exists("todos:owner:u2") {
		t.Error("Expected every listing to be gone")
	}
}

func TestTodoListCache_StaleGenerationIsNotStored(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()
	lists := NewTodoListCache(cache, time.Minute)

	gen, err := lists.Generation(ctx, "u1")
	if err != nil {
		t.Fatalf("Generation: %v", err)
	}
	if gen != 0 {
		t.Errorf("Expected generation 0 for a new owner, got %d", gen)
	}

	// a write lands between the database read and the cache write
	if err := lists.Invalidate(ctx, "u1"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}

	stale := []models.Todo{{ID: "t1", UserID: "u1", Title: "Buy milk"}}
	ok, err := lists.SetList(ctx, "u1", gen, stale)
	if err != nil {
		t.Fatalf("SetList: %v", err)
	}
	if ok || mr.Exists("todos:owner:u1") {
		t.Error("Expected a listing read before the write not to be cached")
	}

	gen, _ = lists.Generation(ctx, "u1")
	if gen != 1 {
		t.Errorf("Expected generation 1 after one write, got %d", gen)
	}
	if ok, err := lists.SetList(ctx, "u1", gen, stale); err != nil || !ok {
		t.Fatalf("Expected the current generation to be stored, got %v, %v", ok, err)
	}
}
