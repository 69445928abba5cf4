package database

import (
	"context"
	"testing"
	"time"

	"kaaj/internal/models"

	"gorm.io/gorm/logger"
)

func TestDefaultPoolConfig(t *testing.T) {
	config := DefaultPoolConfig()

	if config.MaxOpenConns != 25 {
		t.Errorf("Expected MaxOpenConns to be 25, got %d", config.MaxOpenConns)
	}

	if config.MaxIdleConns != 10 {
		t.Errorf("Expected MaxIdleConns to be 10, got %d", config.MaxIdleConns)
	}

	if config.ConnMaxLifetime != time.Hour {
		t.Errorf("Expected ConnMaxLifetime to be 1 hour, got %v", config.ConnMaxLifetime)
	}

	if config.ConnMaxIdleTime != time.Minute*30 {
		t.Errorf("Expected ConnMaxIdleTime to be 30 minutes, got %v", config.ConnMaxIdleTime)
	}

	if config.LogLevel != logger.Warn {
		t.Errorf("Expected LogLevel to be Warn, got %v", config.LogLevel)
	}
}

func TestNewDatabasePool_WithNilConfig(t *testing.T) {
	_, err := NewDatabasePool(nil)

	if err == nil {
		t.Error("Expected error due to empty DSN, got nil")
	}
}

func TestNewDatabasePool_RejectsBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		config *PoolConfig
	}{
		{"unknown driver", &PoolConfig{Driver: "mysql", DSN: "root@/kaaj"}},
		{"negative limits", &PoolConfig{Driver: "sqlite", DSN: ":memory:", MaxOpenConns: -1}},
		{"empty dsn", &PoolConfig{Driver: "sqlite"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewDatabasePool(tt.config); err == nil {
				t.Error("Expected error but pool creation succeeded")
			}
		})
	}
}

func newSQLitePool(t *testing.T) *DatabasePool {
	t.Helper()
	pool, err := NewDatabasePool(&PoolConfig{Driver: "sqlite", DSN: ":memory:", LogLevel: logger.Silent})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { pool.Close() })
	if err := pool.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return pool
}

func TestDatabasePool_MigrateAndIndex(t *testing.T) {
	pool := newSQLitePool(t)

	for _, m := range []any{&models.Identity{}, &models.Profile{}, &models.Todo{}} {
		if !pool.DB.Migrator().HasTable(m) {
			t.Errorf("Expected table for %T", m)
		}
	}

	if HasTodoIndex(pool.DB) {
		t.Fatal("Expected no owner index before EnsureIndexes")
	}
	if err := pool.EnsureIndexes(context.Background()); err != nil {
		t.Fatalf("EnsureIndexes: %v", err)
	}
	if !HasTodoIndex(pool.DB) {
		t.Error("Expected owner index after EnsureIndexes")
	}
	if err := pool.EnsureIndexes(context.Background()); err != nil {
		t.Errorf("Expected EnsureIndexes to be idempotent, got %v", err)
	}
}

func TestDatabasePool_HealthAndStats(t *testing.T) {
	pool := newSQLitePool(t)

	if err := pool.Health(); err != nil {
		t.Errorf("Expected healthy pool, got %v", err)
	}
	stats := pool.Stats()
	if stats["max_open_connections"] != 1 {
		t.Errorf("Expected sqlite pool capped at one connection, got %v", stats["max_open_connections"])
	}
}

func TestDatabasePool_Stats_WithoutConnection(t *testing.T) {
	pool := &DatabasePool{
		DB: nil,
		config: &PoolConfig{
			MaxOpenConns: 10,
		},
	}

	defer func() {
		if r := recover(); r != nil {
			t.Errorf("Stats() should handle nil DB gracefully, but got panic: %v", r)
		}
	}()

	stats := pool.Stats()

	if _, hasError := stats["error"]; !hasError {
		t.Error("Expected error in stats when DB is nil")
	}
}

func TestDatabasePool_Health_WithoutConnection(t *testing.T) {
	pool := &DatabasePool{DB: nil}

	if err := pool.Health(); err == nil {
		t.Error("Expected error when checking health with nil DB")
	}
}

func TestDatabasePool_Close_WithoutConnection(t *testing.T) {
	pool := &DatabasePool{DB: nil}

	if err := pool.Close(); err != nil {
		t.Errorf("Expected no error when closing nil DB, got: %v", err)
	}
}
