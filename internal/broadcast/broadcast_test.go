// SPDX-License-Identifier: MIT

package broadcast

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ManuGH/tvgrid/internal/cache"
	"github.com/ManuGH/tvgrid/internal/store"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	list    []store.Broadcast
	loads   atomic.Int32
	created []store.Broadcast
	err     error
}

func (f *fakeStore) ActiveBroadcasts(_ context.Context, level int, _ time.Time) ([]store.Broadcast, error) {
	f.loads.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	var out []store.Broadcast
	for _, b := range f.list {
		if b.TargetLevel <= level {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateBroadcast(_ context.Context, b store.Broadcast) (store.Broadcast, error) {
	b.ID = "b-new"
	f.created = append(f.created, b)
	f.list = append([]store.Broadcast{b}, f.list...)
	return b, nil
}

func redisCache(t *testing.T) (*miniredis.Miniredis, cache.Cache) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := cache.New(context.Background(), cache.Config{Backend: cache.BackendRedis, Redis: cache.RedisConfig{Addr: mr.Addr()}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return mr, c
}

func TestCachedSource_ServesFromRedisUntilTTL(t *testing.T) {
	mr, c := redisCache(t)
	fs := &fakeStore{list: []store.Broadcast{
		{ID: "1", Content: "hello", TargetLevel: 1, IsActive: true},
		{ID: "2", Content: "admins", TargetLevel: 3, IsActive: true},
	}}
	src := NewCachedSource(fs, c, time.Minute)
	ctx := context.Background()

	list, err := src.Active(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "hello", list[0].Content)

	_, err = src.Active(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, fs.loads.Load(), "second read is cached")

	list, err = src.Active(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.EqualValues(t, 2, fs.loads.Load(), "levels are cached separately")

	mr.FastForward(2 * time.Minute)
	_, err = src.Active(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 3, fs.loads.Load())
}

func TestCachedSource_DropsEntriesExpiredWhileCached(t *testing.T) {
	_, c := redisCache(t)
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	soon := now.Add(10 * time.Second)
	fs := &fakeStore{list: []store.Broadcast{
		{ID: "1", Content: "flash", TargetLevel: 1, IsActive: true, ExpiresAt: &soon},
		{ID: "2", Content: "steady", TargetLevel: 1, IsActive: true},
	}}
	src := NewCachedSource(fs, c, time.Minute)
	src.now = func() time.Time { return now }

	list, err := src.Active(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	now = now.Add(20 * time.Second)
	list, err = src.Active(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "steady", list[0].Content)
}

func TestCachedSource_CreateValidatesAndInvalidates(t *testing.T) {
	fs := &fakeStore{}
	src := NewCachedSource(fs, cache.NewMemoryCache(0), time.Minute)
	ctx := context.Background()

	cur, err := src.Current(ctx, 2)
	require.NoError(t, err)
	assert.Nil(t, cur)

	zero := 0
	for _, bad := range []store.Broadcast{
		{Content: "  "},
		{Content: "x", TargetLevel: 4},
		{Content: "x", MessageType: "video"},
		{Content: "x", IntervalMinutes: &zero},
	} {
		_, err := src.Create(ctx, bad)
		assert.ErrorIs(t, err, ErrInvalid)
	}

	created, err := src.Create(ctx, store.Broadcast{Content: " maintenance tonight "})
	require.NoError(t, err)
	assert.Equal(t, "maintenance tonight", created.Content)
	assert.Equal(t, 1, created.TargetLevel)
	assert.Equal(t, store.MessageText, created.MessageType)
	assert.True(t, created.IsActive)

	cur, err = src.Current(ctx, 2)
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.Equal(t, "maintenance tonight", cur.Content)
}

func TestCachedSource_StoreError(t *testing.T) {
	src := NewCachedSource(&fakeStore{err: errors.New("db down")}, nil, 0)
	_, err := src.Active(context.Background(), 1)
	assert.ErrorContains(t, err, "db down")
}
