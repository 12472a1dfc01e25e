package security

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeadersMiddleware(t *testing.T) {
	h := NewHeadersMiddleware(DefaultHeadersConfig()).Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.TLS = &tls.ConnectionState{}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "max-age=31536000; includeSubDomains", rec.Header().Get("Strict-Transport-Security"))
}

func TestDetectSuspiciousRequest(t *testing.T) {
	tests := []struct {
		name   string
		method string
		target string
		agent  string
		want   string
	}{
		{"plain api call", http.MethodGet, "/api/income-details/salary?userId=u1&taxYear=2025", "Mozilla/5.0", ""},
		{"curl is fine", http.MethodGet, "/healthz", "curl/8.5.0", ""},
		{"path traversal", http.MethodGet, "/api/../../etc/passwd", "", "path"},
		{"dotenv probe", http.MethodGet, "/.env", "", "path"},
		{"sql injection in query", http.MethodGet, "/api/income-details?userId=1%27+union+select", "", "query"},
		{"scanner agent", http.MethodGet, "/", "sqlmap/1.7", "user_agent"},
		{"trace method", "TRACE", "/", "", "method"},
	}

	d := NewDetector()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.target, nil)
			req.Header.Set("User-Agent", tt.agent)
			assert.Equal(t, tt.want, d.DetectSuspiciousRequest(req))
		})
	}
	assert.EqualValues(t, 5, d.SuspiciousRequests())
}

func TestDetectorMiddlewareBlocksDiagnosticMethods(t *testing.T) {
	called := false
	h := NewDetector().Middleware(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("TRACE", "/", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.False(t, called)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/.git/config", nil))
	assert.True(t, called, "suspicious paths are logged, not blocked")
}

func TestExtractClientIP(t *testing.T) {
	d := NewDetector()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.7:5000"
	req.Header.Set("X-Forwarded-For", "198.51.100.1")
	assert.Equal(t, "203.0.113.7", d.ExtractClientIP(req), "untrusted peers cannot spoof")

	req.RemoteAddr = "10.0.0.5:5000"
	req.Header.Set("X-Forwarded-For", "198.51.100.1, 10.0.0.2")
	assert.Equal(t, "198.51.100.1", d.ExtractClientIP(req))

	req.Header.Del("X-Forwarded-For")
	req.Header.Set("X-Real-IP", "198.51.100.9")
	assert.Equal(t, "198.51.100.9", d.ExtractClientIP(req))

	require.NoError(t, d.AddTrustedProxy("203.0.113.0/24"))
	assert.Error(t, d.AddTrustedProxy("not-a-cidr"))
}
