// SPDX-License-Identifier: MIT

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func newTestMemory(now *time.Time) *memoryCache {
	c := NewMemoryCache(0).(*memoryCache)
	c.now = func() time.Time { return *now }
	return c
}

func TestMemoryCache_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1000, 0)
	c := newTestMemory(&now)

	c.Set(ctx, "k", []byte("v"), time.Minute)
	v, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), v)

	_, ok = c.Get(ctx, "missing")
	assert.False(t, ok)

	c.Delete(ctx, "k")
	_, ok = c.Get(ctx, "k")
	assert.False(t, ok)

	st := c.Stats()
	assert.EqualValues(t, 1, st.Hits)
	assert.EqualValues(t, 2, st.Misses)
	assert.EqualValues(t, 1, st.Sets)
}

func TestMemoryCache_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1000, 0)
	c := newTestMemory(&now)

	c.Set(ctx, "short", []byte("x"), time.Second)
	c.Set(ctx, "long", []byte("y"), time.Hour)

	now = now.Add(2 * time.Second)
	_, ok := c.Get(ctx, "short")
	assert.False(t, ok)

	assert.Equal(t, 1, c.deleteExpired())
	st := c.Stats()
	assert.Equal(t, 1, st.CurrentSize)
	assert.EqualValues(t, 1, st.Evictions)

	c.Clear(ctx)
	assert.Zero(t, c.Stats().CurrentSize)
}

func TestMemoryCache_JanitorStopsOnClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := NewMemoryCache(time.Millisecond)
	c.Set(context.Background(), "k", []byte("v"), time.Nanosecond)
	require.Eventually(t, func() bool { return c.Stats().CurrentSize == 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}

func TestNew_Backends(t *testing.T) {
	ctx := context.Background()

	c, err := New(ctx, Config{})
	require.NoError(t, err)
	require.NoError(t, c.Close())

	c, err = New(ctx, Config{Backend: BackendNone})
	require.NoError(t, err)
	c.Set(ctx, "k", []byte("v"), time.Minute)
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)

	_, err = New(ctx, Config{Backend: "memcached"})
	assert.Error(t, err)
}
