package cache

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Loader is a read-through cache. Concurrent misses for the same key share
// one load, and a load that overlaps an Invalidate is returned to its
// callers but not stored.
type Loader[T any] struct {
	cache *LRUCache[T]
	group singleflight.Group

	mu      sync.Mutex
	loading map[string]*loadState
}

// loadState tracks a key only while Get calls for it are running.
type loadState struct {
	active int
	gen    uint64
}

func NewLoader[T any](cache *LRUCache[T]) *Loader[T] {
	return &Loader[T]{cache: cache, loading: make(map[string]*loadState)}
}

// Get returns the cached value for key or calls load to fill it. The
// returned bool reports whether the value came from the cache.
func (l *Loader[T]) Get(ctx context.Context, key string, load func(context.Context) (T, error)) (T, bool, error) {
	if v, ok := l.cache.Get(key); ok {
		return v, true, nil
	}

	st, startGen := l.begin(key)
	defer l.end(key, st)

	v, err, _ := l.group.Do(key, func() (any, error) {
		val, err := load(ctx)
		if err != nil {
			return val, err
		}
		l.mu.Lock()
		if st.gen == startGen {
			l.cache.Set(key, val)
		}
		l.mu.Unlock()
		return val, nil
	})
	if err != nil {
		var zero T
		return zero, false, err
	}
	return v.(T), false, nil
}

func (l *Loader[T]) begin(key string) (*loadState, uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.loading[key]
	if !ok {
		st = &loadState{}
		l.loading[key] = st
	}
	st.active++
	return st, st.gen
}

func (l *Loader[T]) end(key string, st *loadState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	st.active--
	if st.active == 0 {
		delete(l.loading, key)
	}
}

// Invalidate drops key and prevents in-flight loads from storing it.
func (l *Loader[T]) Invalidate(key string) {
	l.mu.Lock()
	if st, ok := l.loading[key]; ok {
		st.gen++
	}
	l.mu.Unlock()
	l.group.Forget(key)
	l.cache.Delete(key)
}

// CleanExpired lets a Manager sweep the underlying cache.
func (l *Loader[T]) CleanExpired() int {
	return l.cache.CleanExpired()
}

func (l *Loader[T]) Stats() Stats {
	return l.cache.Stats()
}
