package services

import (
	"context"
	"testing"
	"time"

	"kaaj/internal/cache"
	"kaaj/internal/config"
	"kaaj/internal/database"
	"kaaj/internal/logging"
	"kaaj/internal/worker"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testAuthConfig = config.AuthConfig{
	JWTSecret:       "test-secret",
	Issuer:          "kaaj-backend",
	AccessTokenTTL:  time.Hour,
	RefreshTokenTTL: 24 * time.Hour,
	VerificationTTL: time.Hour,
	VerificationURL: "http://localhost:8080/v1/auth/verify",
	BCryptCost:      bcrypt.MinCost,
}

type testEnv struct {
	db       *gorm.DB
	rdb      *redis.Client
	mr       *miniredis.Miniredis
	pool     *database.DatabasePool
	tokens   *TokenService
	events   *EventBus
	auth     *AuthServiceImpl
	todos    *TodoServiceImpl
	profiles *ProfileServiceImpl
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	pool, err := database.NewDatabasePool(&database.PoolConfig{Driver: "sqlite", DSN: ":memory:", LogLevel: logger.Silent})
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })
	require.NoError(t, pool.Migrate())

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	l := logging.Discard()
	tokens := NewTokenService(rdb, testAuthConfig)
	events := NewEventBus(rdb, l)
	lists := cache.NewTodoListCache(cache.NewRedisCache(rdb, nil), time.Minute)

	return &testEnv{
		db:       pool.DB,
		rdb:      rdb,
		mr:       mr,
		pool:     pool,
		tokens:   tokens,
		events:   events,
		auth:     NewAuthService(pool.DB, tokens, events, worker.NewJobQueue(rdb), testAuthConfig, l),
		todos:    NewTodoService(pool.DB, lists, l),
		profiles: NewProfileService(pool.DB),
	}
}

func (e *testEnv) buildIndex(t *testing.T) {
	t.Helper()
	require.NoError(t, e.pool.EnsureIndexes(context.Background()))
}
