// Package app assembles the API server from its stores, services and routes.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kaaj/internal/cache"
	"kaaj/internal/config"
	"kaaj/internal/database"
	"kaaj/internal/middleware"
	"kaaj/internal/monitoring"
	"kaaj/internal/services"
	"kaaj/internal/worker"

	"github.com/charmbracelet/log"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

type App struct {
	cfg     *config.Config
	logger  *log.Logger
	pool    *database.DatabasePool
	redis   *redis.Client
	cache   *cache.RedisCache
	jobs    *worker.JobQueue
	worker  *worker.Worker
	limiter *middleware.RateLimiter
	monitor *monitoring.Monitor
	router  *gin.Engine
}

// New connects to the database and redis, migrates the schema and builds
// the router.
func New(cfg *config.Config, logger *log.Logger) (*App, error) {
	pool, err := database.NewDatabasePool(database.PoolConfigFrom(cfg, logger))
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	if err := pool.Migrate(); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if cfg.Database.AutoIndex {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		err := pool.EnsureIndexes(ctx)
		cancel()
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("indexes: %w", err)
		}
	}

	rdb, err := newRedis(cfg)
	if err != nil {
		pool.Close()
		return nil, err
	}

	return Build(cfg, logger, pool, rdb), nil
}

func newRedis(cfg *config.Config) (*redis.Client, error) {
	rdb := cache.NewClient(cache.ConfigFrom(cfg))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// Build wires an App around an open pool and redis client. The App owns
// both and closes them in Close.
func Build(cfg *config.Config, logger *log.Logger, pool *database.DatabasePool, rdb *redis.Client) *App {
	a := &App{
		cfg:     cfg,
		logger:  logger,
		pool:    pool,
		redis:   rdb,
		cache:   cache.NewRedisCache(rdb, nil),
		jobs:    worker.NewJobQueue(rdb),
		limiter: middleware.NewRateLimiter(cfg.RateLimit),
		monitor: monitoring.New(),
	}

	a.worker = worker.NewWorker(worker.WorkerConfig{
		RedisClient:  rdb,
		Concurrency:  cfg.Worker.Concurrency,
		PollInterval: cfg.Worker.PollInterval,
		Queues:       cfg.Worker.Queues,
		Logger:       logger.WithPrefix("worker"),
	})
	mailer := worker.LogMailer{Logger: logger.WithPrefix("mail")}
	a.worker.RegisterHandler(worker.JobTypeVerificationEmail, worker.VerificationEmailHandler(mailer))
	a.worker.RegisterHandler(worker.JobTypePasswordChanged, worker.PasswordChangedHandler(mailer))

	a.registerChecks()
	a.router = a.newRouter()
	return a
}

func (a *App) registerChecks() {
	a.monitor.RegisterHealthCheck("database", func(ctx context.Context) error {
		return a.pool.Health()
	})
	a.monitor.RegisterHealthCheck("redis", a.cache.Health)

	a.monitor.RegisterStats("database", func(ctx context.Context) any { return a.pool.Stats() })
	a.monitor.RegisterStats("cache", func(ctx context.Context) any { return a.cache.Stats() })
	a.monitor.RegisterStats("queues", func(ctx context.Context) any { return a.jobs.Sizes(ctx) })
	a.monitor.RegisterStats("todo_index", func(ctx context.Context) any {
		return database.HasTodoIndex(a.pool.DB)
	})
}

func (a *App) newRouter() *gin.Engine {
	r := gin.New()

	r.Use(middleware.RecoveryWithLog(a.logger))
	r.Use(middleware.RequestLogger(a.logger.WithPrefix("http")))
	r.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS", "HEAD"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Length", "Content-Type"},
		MaxAge:        12 * time.Hour,
	}))
	r.Use(a.monitor.MetricsMiddleware())
	if a.cfg.RateLimit.Enabled {
		r.Use(a.limiter.Middleware())
	}

	a.setup(r)
	return r
}

func (a *App) services() (*services.AuthServiceImpl, *services.TokenService, *services.EventBus, *services.TodoServiceImpl, *services.ProfileServiceImpl) {
	db := a.pool.DB
	tokens := services.NewTokenService(a.redis, a.cfg.Auth)
	events := services.NewEventBus(a.redis, a.logger.WithPrefix("events"))
	auth := services.NewAuthService(db, tokens, events, a.jobs, a.cfg.Auth, a.logger.WithPrefix("auth"))
	lists := cache.NewTodoListCache(a.cache, a.cfg.Redis.TodoListTTL)
	todos := services.NewTodoService(db, lists, a.logger.WithPrefix("todos"))
	return auth, tokens, events, todos, services.NewProfileService(db)
}

func (a *App) Router() *gin.Engine {
	return a.router
}

func (a *App) Monitor() *monitoring.Monitor {
	return a.monitor
}

// Start runs the mail worker and the rate limiter's cleanup until ctx ends.
func (a *App) Start(ctx context.Context) {
	a.worker.Start(ctx)
	if a.cfg.RateLimit.Enabled {
		go a.limiter.Run(ctx)
	}
}

func (a *App) Close(ctx context.Context) error {
	_ = ctx
	if a.worker != nil {
		a.worker.Stop()
	}
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.pool != nil {
		errs = append(errs, a.pool.Close())
	}
	return errors.Join(errs...)
}
