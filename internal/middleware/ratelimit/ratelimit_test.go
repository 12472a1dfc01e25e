package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, cfg Config) (*Limiter, *time.Time) {
	t.Helper()
	rl := NewLimiter(cfg)
	t.Cleanup(rl.Stop)
	clock := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return clock }
	return rl, &clock
}

func TestLimiter_Allow(t *testing.T) {
	rl, clock := newTestLimiter(t, Config{Requests: 2, Window: time.Minute})

	ok, _ := rl.Allow("1.1.1.1")
	assert.True(t, ok)
	ok, _ = rl.Allow("1.1.1.1")
	assert.True(t, ok)
	ok, retry := rl.Allow("1.1.1.1")
	assert.False(t, ok)
	assert.Equal(t, time.Minute, retry)

	ok, _ = rl.Allow("2.2.2.2")
	assert.True(t, ok, "clients are counted separately")

	*clock = clock.Add(61 * time.Second)
	ok, _ = rl.Allow("1.1.1.1")
	assert.True(t, ok, "a new window starts after the old one ends")
}

func TestLimiter_CleanupStaleEntries(t *testing.T) {
	rl, clock := newTestLimiter(t, Config{Requests: 5, Window: time.Minute})
	rl.Allow("1.1.1.1")
	require.Equal(t, 1, rl.ActiveClients())

	*clock = clock.Add(2 * time.Minute)
	rl.cleanupStaleEntries()
	assert.Zero(t, rl.ActiveClients())
}

func TestLimiter_MiddlewareOnlyLimitsConfiguredMethods(t *testing.T) {
	rl, _ := newTestLimiter(t, Config{Requests: 1, Window: time.Minute, Methods: []string{http.MethodPost}})
	h := rl.Middleware(func(*http.Request) string { return "9.9.9.9" }, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) }))

	do := func(method string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(method, "/", nil))
		return rec
	}

	assert.Equal(t, http.StatusNoContent, do(http.MethodPost).Code)
	limited := do(http.MethodPost)
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "60", limited.Header().Get("Retry-After"))

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusNoContent, do(http.MethodGet).Code)
	}
}

func TestLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewLimiter(DefaultConfig())
	rl.Stop()
	assert.NotPanics(t, rl.Stop)
}
