// Package apptest builds in-process API servers for tests.
package apptest

import (
	"context"
	"testing"
	"time"

	"kaaj/internal/app"
	"kaaj/internal/config"
	"kaaj/internal/database"
	"kaaj/internal/logging"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm/logger"
)

// Config is a server configuration for in-process tests: sqlite, cheap
// bcrypt, no rate limiting.
func Config() *config.Config {
	return &config.Config{
		Server:   config.ServerConfig{Environment: "test"},
		Database: config.DatabaseConfig{Driver: "sqlite", SQLitePath: ":memory:", AutoIndex: true},
		Redis:    config.RedisConfig{TodoListTTL: time.Minute},
		Worker:   config.WorkerConfig{Concurrency: 1, PollInterval: 50 * time.Millisecond},
		Auth: config.AuthConfig{
			JWTSecret:       "test-secret",
			Issuer:          "kaaj-backend",
			AccessTokenTTL:  time.Hour,
			RefreshTokenTTL: 24 * time.Hour,
			VerificationTTL: time.Hour,
			VerificationURL: "http://localhost:8080/v1/auth/verify",
			BCryptCost:      bcrypt.MinCost,
		},
	}
}

// New builds an App on sqlite :memory: and miniredis. Both are torn
// down with the test.
func New(t testing.TB, cfg *config.Config) (*app.App, *miniredis.Miniredis) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if cfg == nil {
		cfg = Config()
	}

	pool, err := database.NewDatabasePool(&database.PoolConfig{Driver: "sqlite", DSN: ":memory:", LogLevel: logger.Silent})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	if err := pool.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if cfg.Database.AutoIndex {
		if err := pool.EnsureIndexes(context.Background()); err != nil {
			t.Fatalf("indexes: %v", err)
		}
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})

	a := app.Build(cfg, logging.Discard(), pool, rdb)
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	return a, mr
}
