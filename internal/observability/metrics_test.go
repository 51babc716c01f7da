package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-rbac/internal/permcache"
)

func TestMetricsHandlerExposesPrometheusMetrics(t *testing.T) {
	metrics := NewMetrics()

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)

	metrics.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}

	body := rr.Body.String()
	if !strings.Contains(body, "go_goroutines") {
		t.Fatalf("expected body to contain runtime collectors, got: %s", body)
	}
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	metricsRR := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(metricsRR, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	metricsBody := metricsRR.Body.String()
	if !strings.Contains(metricsBody, "http_requests_total{code=\"418\",route=\"/test\"} 1") {
		t.Fatalf("expected metrics to record request, got: %s", metricsBody)
	}
	if !strings.Contains(metricsBody, "http_request_duration_seconds_bucket{route=\"/test\"") {
		t.Fatalf("expected duration histogram to be present, got: %s", metricsBody)
	}
}

func TestMetricsRecordsCacheActivity(t *testing.T) {
	metrics := NewMetrics()
	var recorder permcache.Recorder = metrics

	recorder.CacheRequest(permcache.KeyspaceCodes, permcache.ResultHit)
	recorder.CacheRequest(permcache.KeyspaceCodes, permcache.ResultHit)
	recorder.CacheRequest(permcache.KeyspaceProfile, permcache.ResultMiss)
	recorder.CacheEviction(permcache.KeyspaceProfile, permcache.ScopeAll)
	recorder.CacheCompute(permcache.KeyspaceProfile, 3*time.Millisecond)
	_ = metrics.Jobs().Track("rbac:cache:evict").End(nil)

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rr.Body.String()

	for _, want := range []string{
		`odyssey_rbac_cache_requests_total{keyspace="codes",result="hit"} 2`,
		`odyssey_rbac_cache_requests_total{keyspace="profile",result="miss"} 1`,
		`odyssey_rbac_cache_evictions_total{keyspace="profile",scope="all"} 1`,
		`odyssey_rbac_cache_compute_seconds_count{keyspace="profile"} 1`,
		`odyssey_jobs_total{job="rbac:cache:evict",status="success"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in metrics output, got: %s", want, body)
		}
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var metrics *Metrics
	metrics.CacheRequest("codes", "hit")
	metrics.CacheEviction("codes", "key")
	metrics.CacheCompute("codes", time.Second)
	if metrics.Jobs() != nil {
		t.Fatal("expected nil job metrics")
	}
}
