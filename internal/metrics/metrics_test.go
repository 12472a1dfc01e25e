package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.ObserveHTTP("/api/tax/salary", http.MethodPost, 200, 15*time.Millisecond)
	m.DetailWrites.WithLabelValues("salary", "create", "ok").Inc()
	m.RegisterCacheStats("summary", func() (uint64, uint64, int) { return 3, 1, 2 })

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `taxdesk_http_requests_total{method="POST",route="/api/tax/salary",status="200"} 1`)
	assert.Contains(t, string(body), `taxdesk_cache_hits_total{cache="summary"} 3`)
	assert.Contains(t, string(body), `taxdesk_income_detail_writes_total{category="salary",operation="create",outcome="ok"} 1`)
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", Outcome(nil))
	assert.Equal(t, "error", Outcome(errors.New("x")))
}
