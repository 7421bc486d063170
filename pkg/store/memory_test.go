package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	runStoreTests(t, func(t *testing.T) Store {
		return NewMemoryStore()
	})
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Set(ctx, CollectionUsers, "u1", map[string]interface{}{"role": "member"}))

	doc, err := s.Get(ctx, CollectionUsers, "u1")
	require.NoError(t, err)
	doc.Fields["role"] = "owner"

	again, err := s.Get(ctx, CollectionUsers, "u1")
	require.NoError(t, err)
	assert.Equal(t, "member", again.String("role"))
}

func TestMemoryStoreIncrementNotANumber(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Set(ctx, CollectionTeams, "t1", map[string]interface{}{"memberCount": "many"}))

	_, err := s.Increment(ctx, CollectionTeams, "t1", "memberCount", 1)
	assert.ErrorIs(t, err, ErrNotANumber)
}
