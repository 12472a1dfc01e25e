// Package metrics exposes Prometheus collectors for the API and worker.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "taxdesk"

// Metrics owns a private registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	DetailWrites    *prometheus.CounterVec
	SummaryUpserts  *prometheus.CounterVec
	EventsPublished *prometheus.CounterVec
	Recomputes      *prometheus.CounterVec
	Exports         *prometheus.CounterVec
	AuthAttempts    *prometheus.CounterVec
	RateLimited     prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		DetailWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "income_detail_writes_total",
			Help:      "Income detail writes by category, operation and outcome.",
		}, []string{"category", "operation", "outcome"}),
		SummaryUpserts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "income_summary_upserts_total",
			Help:      "Income summary upserts by source and result (created, updated, error).",
		}, []string{"source", "result"}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detail_events_published_total",
			Help:      "Detail events handed to the broker, by outcome.",
		}, []string{"event", "outcome"}),
		Recomputes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summary_recomputes_total",
			Help:      "Worker summary recomputes by trigger and outcome.",
		}, []string{"trigger", "outcome"}),
		Exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summary_exports_total",
			Help:      "Summary exports by sink and outcome.",
		}, []string{"sink", "outcome"}),
		AuthAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_attempts_total",
			Help:      "Register and login attempts by outcome.",
		}, []string{"action", "outcome"}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_requests_total",
			Help:      "Requests rejected with 429.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.DetailWrites,
		m.SummaryUpserts,
		m.EventsPublished,
		m.Recomputes,
		m.Exports,
		m.AuthAttempts,
		m.RateLimited,
	)
	return m
}

// RegisterCacheStats exposes hit, miss and size readings from stats.
func (m *Metrics) RegisterCacheStats(name string, stats func() (hits, misses uint64, size int)) {
	labels := prometheus.Labels{"cache": name}
	m.registry.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Name: "cache_hits_total", Help: "Cache hits.", ConstLabels: labels,
		}, func() float64 { h, _, _ := stats(); return float64(h) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Name: "cache_misses_total", Help: "Cache misses.", ConstLabels: labels,
		}, func() float64 { _, mi, _ := stats(); return float64(mi) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Name: "cache_entries", Help: "Cached entries.", ConstLabels: labels,
		}, func() float64 { _, _, s := stats(); return float64(s) }),
	)
}

// ObserveHTTP records one finished request.
func (m *Metrics) ObserveHTTP(route, method string, status int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Outcome maps an error to the "ok"/"error" label value.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
