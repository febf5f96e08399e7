package store

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_GetSet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := m.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.Set(ctx, "k", "v1"))
	val, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v1", val)

	// GetSet returns the previous value and always writes the new one.
	_, err = m.GetSet(ctx, "fresh", "v")
	assert.ErrorIs(t, err, ErrNotFound)
	val, err = m.Get(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, "v", val)

	old, err := m.GetSet(ctx, "k", "v2")
	require.NoError(t, err)
	assert.Equal(t, "v1", old)
}

func TestMemory_SetNX(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	ok, err := m.SetNX(ctx, "k", "first")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.SetNX(ctx, "k", "second")
	require.NoError(t, err)
	assert.False(t, ok)

	val, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "first", val)
}

func TestMemory_Sets(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	members, err := m.SMembers(ctx, "s")
	require.NoError(t, err)
	assert.Empty(t, members)

	require.NoError(t, m.SAdd(ctx, "s", "b", "a"))
	require.NoError(t, m.SAdd(ctx, "s", "a"))

	members, err = m.SMembers(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, members)
}

func TestMemory_SortedSets(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.ZAdd(ctx, "z", 30, "c"))
	require.NoError(t, m.ZAdd(ctx, "z", 10, "a"))
	require.NoError(t, m.ZAdd(ctx, "z", 20, "b"))

	members, err := m.ZRangeByScore(ctx, "z", math.Inf(-1), 20)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, members)

	// Re-adding a member updates its score in place.
	require.NoError(t, m.ZAdd(ctx, "z", 5, "c"))
	members, err = m.ZRangeByScore(ctx, "z", math.Inf(-1), 20)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "b"}, members)
}

func TestMemory_Incr(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	n, err := m.Incr(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = m.Incr(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, m.Set(ctx, "junk", "not a number"))
	_, err = m.Incr(ctx, "junk")
	assert.Error(t, err)
}

func TestMemory_Batch(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	err := m.Batch(ctx, func(b Batch) {
		b.Set("delay", "300000")
		b.ZAdd("schedule", 12345, "feed-1")
	})
	require.NoError(t, err)

	val, err := m.Get(ctx, "delay")
	require.NoError(t, err)
	assert.Equal(t, "300000", val)

	members, err := m.ZRangeByScore(ctx, "schedule", math.Inf(-1), math.Inf(1))
	require.NoError(t, err)
	assert.Equal(t, []string{"feed-1"}, members)
}
