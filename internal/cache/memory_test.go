package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/tokensmith/internal/cache"
)

func TestMemoryGetSet(t *testing.T) {
	c := cache.NewMemory(time.Minute)
	ctx := context.Background()

	_, ok := c.Get(ctx, "missing")
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", "v", time.Minute))
	v, ok := c.Get(ctx, "k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	require.NoError(t, c.Delete(ctx, "k"))
	_, ok = c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestMemoryIncr(t *testing.T) {
	c := cache.NewMemory(time.Minute)
	ctx := context.Background()

	n, err := c.Incr(ctx, "hits", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = c.Incr(ctx, "hits", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestMemoryIncrAfterExpiry(t *testing.T) {
	c := cache.NewMemory(time.Minute)
	ctx := context.Background()

	_, err := c.Incr(ctx, "hits", 10*time.Millisecond)
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)

	n, err := c.Incr(ctx, "hits", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "ventana nueva arranca de cero")
}
