package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRUCache[int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)

	_, ok := c.Get("a")
	require.True(t, ok)

	c.Set("c", 3)
	_, ok = c.Get("b")
	assert.False(t, ok, "b should be evicted")

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	stats := c.Stats()
	assert.EqualValues(t, 1, stats.Evictions)
	assert.Equal(t, 2, stats.Size)
}

func TestLRUCacheExpiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewLRUCache[string](10, time.Minute)
	c.now = func() time.Time { return now }

	c.Set("k", "v")
	c.Set("k2", "v2")
	now = now.Add(2 * time.Minute)

	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 1, c.CleanExpired())
	assert.Zero(t, c.Size())
}

func TestManagerSweepAndStop(t *testing.T) {
	c := NewLRUCache[int](10, -time.Second)
	c.Set("x", 1)

	m := NewManager()
	m.Register(c)
	assert.Equal(t, 1, m.Sweep())

	m.StartCleanup(time.Millisecond)
	m.Stop()
	m.Stop()
}

func TestLoaderCollapsesConcurrentMisses(t *testing.T) {
	l := NewLoader(NewLRUCache[int](10, time.Minute))

	var calls int32
	release := make(chan struct{})
	load := func(context.Context) (int, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return 42, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, _, err := l.Get(context.Background(), "k", load)
			assert.NoError(t, err)
			assert.Equal(t, 42, v)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))

	v, hit, err := l.Get(context.Background(), "k", load)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 42, v)
}

func TestLoaderInvalidateDuringLoadSkipsStore(t *testing.T) {
	l := NewLoader(NewLRUCache[int](10, time.Minute))

	_, _, err := l.Get(context.Background(), "k", func(context.Context) (int, error) {
		l.Invalidate("k")
		return 1, nil
	})
	require.NoError(t, err)

	_, hit, err := l.Get(context.Background(), "k", func(context.Context) (int, error) { return 2, nil })
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestLoaderKeepsNoStateForIdleKeys(t *testing.T) {
	l := NewLoader(NewLRUCache[int](10, time.Minute))
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("user-%d|2025", i)
		_, _, err := l.Get(ctx, key, func(context.Context) (int, error) { return i, nil })
		require.NoError(t, err)
		l.Invalidate(key)
		l.Invalidate(key)
	}
	assert.Empty(t, l.loading)

	v, hit, err := l.Get(ctx, "user-7|2025", func(context.Context) (int, error) { return 70, nil })
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 70, v)
	assert.Empty(t, l.loading)
}

func TestLoaderDoesNotCacheErrors(t *testing.T) {
	l := NewLoader(NewLRUCache[int](10, time.Minute))
	boom := errors.New("boom")

	_, _, err := l.Get(context.Background(), "k", func(context.Context) (int, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, l.Stats().Size)
}
