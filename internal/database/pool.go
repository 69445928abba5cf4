// Package database opens the gorm connection pool and owns the schema.
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kaaj/internal/config"
	"kaaj/internal/models"

	"github.com/charmbracelet/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type PoolConfig struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	LogLevel        logger.LogLevel
	Logger          *log.Logger
}

func DefaultPoolConfig() *PoolConfig {
	return &PoolConfig{
		Driver:          "postgres",
		MaxOpenConns:    25,
		MaxIdleConns:    10,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: time.Minute * 30,
		LogLevel:        logger.Warn,
	}
}

// PoolConfigFrom maps the server configuration onto a pool configuration.
func PoolConfigFrom(cfg *config.Config, l *log.Logger) *PoolConfig {
	return &PoolConfig{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.GetDatabaseDSN(),
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		LogLevel:        logger.Warn,
		Logger:          l,
	}
}

func (c *PoolConfig) validate() error {
	if c.DSN == "" {
		return errors.New("database DSN is required")
	}
	if c.MaxOpenConns < 0 || c.MaxIdleConns < 0 || c.ConnMaxLifetime < 0 || c.ConnMaxIdleTime < 0 {
		return errors.New("pool limits must not be negative")
	}
	return nil
}

type DatabasePool struct {
	DB     *gorm.DB
	config *PoolConfig
}

func NewDatabasePool(cfg *PoolConfig) (*DatabasePool, error) {
	if cfg == nil {
		cfg = DefaultPoolConfig()
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	gormLogger := logger.Discard
	if cfg.Logger != nil {
		gormLogger = logger.New(cfg.Logger, logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  cfg.LogLevel,
			IgnoreRecordNotFoundError: true,
		})
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	if cfg.Driver == "sqlite" {
		// one writer; an in-memory database lives as long as its connection
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)
		sqlDB.SetConnMaxIdleTime(0)
	} else {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	return &DatabasePool{DB: db, config: cfg}, nil
}

// Migrate creates or updates the identity, profile and todo tables. It does
// not build the todo owner index; see EnsureIndexes.
func (p *DatabasePool) Migrate() error {
	if p.DB == nil {
		return errors.New("database not initialized")
	}
	return p.DB.AutoMigrate(&models.Identity{}, &models.Profile{}, &models.Todo{})
}

// EnsureIndexes builds the composite index the owner listing depends on.
func (p *DatabasePool) EnsureIndexes(ctx context.Context) error {
	if p.DB == nil {
		return errors.New("database not initialized")
	}
	stmt := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON todos (user_id, created_at DESC)", models.TodoIndexName)
	return p.DB.WithContext(ctx).Exec(stmt).Error
}

// HasTodoIndex reports whether the todo owner index exists.
func HasTodoIndex(db *gorm.DB) bool {
	return db.Migrator().HasIndex(&models.Todo{}, models.TodoIndexName)
}

func (p *DatabasePool) Health() error {
	if p.DB == nil {
		return errors.New("database not initialized")
	}
	sqlDB, err := p.DB.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return sqlDB.PingContext(ctx)
}

func (p *DatabasePool) Stats() map[string]any {
	if p.DB == nil {
		return map[string]any{"error": "database not initialized"}
	}
	sqlDB, err := p.DB.DB()
	if err != nil {
		return map[string]any{"error": err.Error()}
	}
	s := sqlDB.Stats()
	return map[string]any{
		"max_open_connections": s.MaxOpenConnections,
		"open_connections":     s.OpenConnections,
		"in_use":               s.InUse,
		"idle":                 s.Idle,
		"wait_count":           s.WaitCount,
		"wait_duration":        s.WaitDuration.String(),
		"max_idle_closed":      s.MaxIdleClosed,
		"max_lifetime_closed":  s.MaxLifetimeClosed,
	}
}

func (p *DatabasePool) Close() error {
	if p.DB == nil {
		return nil
	}
	sqlDB, err := p.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
