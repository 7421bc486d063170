package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("memory by default", func(t *testing.T) {
		s, err := Open(ctx, Config{})
		require.NoError(t, err)
		assert.IsType(t, &MemoryStore{}, s)
	})

	t.Run("sqlite", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Type = TypeSQLite
		cfg.SQLitePath = ":memory:"
		s, err := Open(ctx, cfg)
		require.NoError(t, err)
		defer s.Close()
		assert.IsType(t, &SQLStore{}, s)
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := DefaultConfig()
		cfg.Type = TypeRedis
		cfg.Redis.URL = "redis://" + mr.Addr()
		s, err := Open(ctx, cfg)
		require.NoError(t, err)
		defer s.Close()
		assert.IsType(t, &RedisStore{}, s)
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := Open(ctx, Config{Type: "cassandra"})
		assert.ErrorContains(t, err, "unknown store type")
	})
}
