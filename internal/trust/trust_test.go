package trust

import (
	"context"
	"testing"

	"sentinel-shield/internal/settings"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrustLifecycle(t *testing.T) {
	ctx := context.Background()
	store := settings.NewMemoryStore()
	list := NewList(store)

	assert.ErrorIs(t, list.Add(ctx, "g1", "u1", 6), ErrInvalidLevel)
	assert.ErrorIs(t, list.Update(ctx, "g1", "u1", 3), ErrNotTrusted)

	require.NoError(t, list.Add(ctx, "g1", "u1", 2))
	require.NoError(t, list.Add(ctx, "g1", "u2", 5))
	require.NoError(t, list.Update(ctx, "g1", "u1", 4))

	level, err := list.Level(ctx, "g1", "u1")
	require.NoError(t, err)
	assert.Equal(t, 4, level)

	entries, err := list.Entries(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, []Entry{{UserID: "u2", Level: 5}, {UserID: "u1", Level: 4}}, entries)

	require.NoError(t, list.Remove(ctx, "g1", "u1"))
	level, err = list.Level(ctx, "g1", "u1")
	require.NoError(t, err)
	assert.Zero(t, level)
	_, ok, err := store.HashGet(ctx, "protection:g1:trustlevels", "u1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLevelDefaultsWhenMissing(t *testing.T) {
	ctx := context.Background()
	store := settings.NewMemoryStore()
	require.NoError(t, store.SetAdd(ctx, "protection:g1:trusted", "u1"))
	level, err := NewList(store).Level(ctx, "g1", "u1")
	require.NoError(t, err)
	assert.Equal(t, MinLevel, level)
}
