package log

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestJSONLoggerAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelInfo, Format: FormatJSON, Output: &buf}).WithComponent(ComponentSummary)

	logger.Info("Summary recomputed", FieldUserID, "u1", FieldTaxYear, 2025)
	logger.Debug("dropped")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "Summary recomputed", rec["msg"])
	assert.Equal(t, ComponentSummary, rec[FieldComponent])
	assert.Equal(t, "u1", rec[FieldUserID])
}

func TestMiddlewareAttachesRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Format: FormatJSON, Output: &buf})

	var got *Logger
	h := Middleware(base, func(*http.Request) string { return "req-1" })(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context())
		got.InfoContext(r.Context(), "handled")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	require.NotNil(t, got)
	assert.Contains(t, buf.String(), `"request_id":"req-1"`)
	assert.Equal(t, ComponentApp, FromContext(context.Background()).Component())
}
