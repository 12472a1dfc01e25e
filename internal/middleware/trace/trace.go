package trace

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"taxdesk/internal/log"
)

// ContextKey type for context keys
type ContextKey string

const (
	// RequestIDKey is the context key for the per-request Info
	RequestIDKey ContextKey = "request_id"

	HeaderRequestID = "X-Request-ID"

	// RouteUnmatched labels requests no route claimed, keeping metric
	// cardinality bounded.
	RouteUnmatched = "unmatched"
)

// Observer receives one observation per finished request.
type Observer interface {
	ObserveHTTP(route, method string, status int, elapsed time.Duration)
}

// Info is shared between the outer trace middleware and the router so the
// matched route template is known when the request completes.
type Info struct {
	RequestID string
	Route     string
}

// Middleware handles request tracing and logging
type Middleware struct {
	extractIP func(*http.Request) string
	logger    *log.StructuredLogger
	observer  Observer
	total     atomic.Int64
}

func NewMiddleware(extractIP func(*http.Request) string, logger *log.Logger, observer Observer) *Middleware {
	if logger == nil {
		logger = log.Discard()
	}
	return &Middleware{
		extractIP: extractIP,
		logger:    log.NewStructuredLogger(logger),
		observer:  observer,
	}
}

// Middleware assigns a request ID, echoes it in the response and logs the
// completed request.
func (m *Middleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := ""
		if m.extractIP != nil {
			clientIP = m.extractIP(r)
		}

		info := &Info{RequestID: requestIDFrom(r), Route: RouteUnmatched}
		ctx := context.WithValue(r.Context(), RequestIDKey, info)
		r = r.WithContext(ctx)
		w.Header().Set(HeaderRequestID, info.RequestID)

		m.total.Add(1)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		elapsed := time.Since(start)
		m.logger.LogHTTPEnd(ctx, r, rw.statusCode, elapsed.Milliseconds(), clientIP)
		if m.observer != nil {
			m.observer.ObserveHTTP(info.Route, r.Method, rw.statusCode, elapsed)
		}
	})
}

// RecordRoute stores the matched mux route template in the request's Info.
// Install it with Router.Use so it only runs for matched routes.
func RecordRoute(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if info, ok := r.Context().Value(RequestIDKey).(*Info); ok {
			if route := mux.CurrentRoute(r); route != nil {
				if tpl, err := route.GetPathTemplate(); err == nil {
					info.Route = tpl
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}

// Total returns the number of requests seen.
func (m *Middleware) Total() int64 {
	return m.total.Load()
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

// requestIDFrom reuses a well-formed incoming X-Request-ID so a proxy's
// id carries through; anything else gets a fresh one.
func requestIDFrom(r *http.Request) string {
	if id := r.Header.Get(HeaderRequestID); validRequestID(id) {
		return id
	}
	return GenerateRequestID()
}

func validRequestID(id string) bool {
	if id == "" || len(id) > 64 {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}

func GenerateRequestID() string {
	return "req_" + uuid.NewString()
}

// GetRequestID extracts the request ID from context
func GetRequestID(ctx context.Context) string {
	if info, ok := ctx.Value(RequestIDKey).(*Info); ok {
		return info.RequestID
	}
	return ""
}

// RequestID adapts GetRequestID for log.Middleware.
func RequestID(r *http.Request) string {
	return GetRequestID(r.Context())
}
