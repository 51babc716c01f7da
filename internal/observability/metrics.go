package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	jobmetrics "github.com/odyssey-erp/odyssey-rbac/internal/jobs"
)

// Metrics owns the Prometheus registry of a process: HTTP traffic, permission cache behaviour
// and background job runs.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	cacheRequests   *prometheus.CounterVec
	cacheEvictions  *prometheus.CounterVec
	cacheCompute    *prometheus.HistogramVec
	jobs            *jobmetrics.Metrics
}

// NewMetrics menginisialisasi registry dan metrik dasar.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odyssey_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	cacheRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_rbac_cache_requests_total",
		Help: "Permission cache lookups by keyspace and result.",
	}, []string{"keyspace", "result"})
	cacheEvictions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_rbac_cache_evictions_total",
		Help: "Permission cache evictions by keyspace and scope.",
	}, []string{"keyspace", "scope"})
	cacheCompute := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odyssey_rbac_cache_compute_seconds",
		Help:    "Time spent resolving a cache miss.",
		Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"keyspace"})
	registry.MustRegister(requests, duration, cacheRequests, cacheEvictions, cacheCompute)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		cacheRequests:   cacheRequests,
		cacheEvictions:  cacheEvictions,
		cacheCompute:    cacheCompute,
		jobs:            jobmetrics.NewMetrics(registry),
	}
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Jobs returns the background job collectors registered on the same registry.
func (m *Metrics) Jobs() *jobmetrics.Metrics {
	if m == nil {
		return nil
	}
	return m.jobs
}

// CacheRequest implements permcache.Recorder.
func (m *Metrics) CacheRequest(keyspace, result string) {
	if m == nil {
		return
	}
	m.cacheRequests.WithLabelValues(keyspace, result).Inc()
}

// CacheEviction implements permcache.Recorder.
func (m *Metrics) CacheEviction(keyspace, scope string) {
	if m == nil {
		return
	}
	m.cacheEvictions.WithLabelValues(keyspace, scope).Inc()
}

// CacheCompute implements permcache.Recorder.
func (m *Metrics) CacheCompute(keyspace string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.cacheCompute.WithLabelValues(keyspace).Observe(elapsed.Seconds())
}

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
