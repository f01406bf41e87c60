package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheGetSet(t *testing.T) {
	ctx := context.Background()
	c := New[int]("test", DefaultExpiration, DefaultCleanupInterval, nil)

	_, ok := c.Get(ctx, "a")
	assert.False(t, ok)

	c.Set(ctx, "a", 1, 0)
	v, ok := c.Get(ctx, "a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 1, c.Len())

	c.Delete(ctx, "a")
	_, ok = c.Get(ctx, "a")
	assert.False(t, ok)
}

func TestCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c := New[string]("test", DefaultExpiration, DefaultCleanupInterval, nil)

	c.Set(ctx, "k", "v", time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestCacheFlush(t *testing.T) {
	ctx := context.Background()
	c := New[int]("test", NoExpiration, 0, nil)
	c.Set(ctx, "a", 1, 0)
	c.Set(ctx, "b", 2, 0)

	c.Flush(ctx)
	assert.Equal(t, 0, c.Len())
}

func TestCacheGetOrLoad(t *testing.T) {
	ctx := context.Background()
	c := New[int]("test", DefaultExpiration, DefaultCleanupInterval, nil)

	calls := 0
	load := func(context.Context) (int, error) {
		calls++
		return 42, nil
	}

	for range 3 {
		v, err := c.GetOrLoad(ctx, "x", 0, load)
		require.NoError(t, err)
		assert.Equal(t, 42, v)
	}
	assert.Equal(t, 1, calls)

	boom := errors.New("boom")
	_, err := c.GetOrLoad(ctx, "y", 0, func(context.Context) (int, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)
	_, ok := c.Get(ctx, "y")
	assert.False(t, ok, "errors are not cached")
}
