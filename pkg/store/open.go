package store

import (
	"context"
	"fmt"
	"time"
)

// Backend types accepted by Open
const (
	TypeMemory   = "memory"
	TypePostgres = "postgres"
	TypeSQLite   = "sqlite"
	TypeRedis    = "redis"
)

// Config selects and configures a store backend
type Config struct {
	Type string

	// SQL backends
	PostgresURL     string
	SQLitePath      string
	MaxConns        int
	MinConns        int
	ConnMaxLifetime time.Duration
	Timeout         time.Duration

	// Redis backend
	Redis RedisConfig
}

// DefaultConfig returns a configuration for the in-memory backend
func DefaultConfig() Config {
	return Config{
		Type:            TypeMemory,
		SQLitePath:      "file:gamut.db?_foreign_keys=on&_busy_timeout=5000",
		MaxConns:        20,
		MinConns:        2,
		ConnMaxLifetime: 30 * time.Minute,
		Timeout:         10 * time.Second,
		Redis: RedisConfig{
			URL:        "redis://localhost:6379/0",
			MaxRetries: 3,
			PoolSize:   10,
			KeyPrefix:  "gamut",
		},
	}
}

// Open connects to the configured backend
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Type {
	case "", TypeMemory:
		return NewMemoryStore(), nil
	case TypePostgres:
		return OpenSQL(ctx, SQLConfig{
			Dialect:     DialectPostgres,
			URL:         cfg.PostgresURL,
			MaxConns:    cfg.MaxConns,
			MinConns:    cfg.MinConns,
			Timeout:     cfg.Timeout,
			MaxLifetime: cfg.ConnMaxLifetime,
		})
	case TypeSQLite:
		return OpenSQL(ctx, SQLConfig{
			Dialect: DialectSQLite,
			URL:     cfg.SQLitePath,
			Timeout: cfg.Timeout,
		})
	case TypeRedis:
		client, err := NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		return NewRedisStore(client, cfg.Redis.KeyPrefix), nil
	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.Type)
	}
}
