package service

import (
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quillstage/quillstage-api/internal/models"
)

const metricsNamespace = "quillstage"

// snapshotCounters are plain atomics mirrored alongside the Prometheus
// collectors so the admin endpoint can report aggregates without
// scraping the registry.
type snapshotCounters struct {
	cacheHits       uint64
	cacheMisses     uint64
	requests        uint64
	requestDuration uint64
	dbQueries       uint64
	dbQueryDuration uint64
	reviewDecisions uint64
	publications    uint64
}

// MetricsService owns the Prometheus registry and the workflow
// counters layered on top of the generic HTTP and cache metrics.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Histogram
	cacheWrite      prometheus.Histogram
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	dbQueryDuration *prometheus.HistogramVec
	reviewDecisions *prometheus.CounterVec
	publications    prometheus.Counter

	counters snapshotCounters
}

func histogram(name, help string, labels ...string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      name,
		Help:      help,
		Buckets:   prometheus.DefBuckets,
	}, labels)
}

func counter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      name,
		Help:      help,
	})
}

// NewMetricsService builds a dedicated registry so the scrape output
// carries only this service's collectors.
func NewMetricsService() *MetricsService {
	m := &MetricsService{
		registry:        prometheus.NewRegistry(),
		requestDuration: histogram("http_request_duration_seconds", "Duration of HTTP requests in seconds", "method", "path", "status"),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		cacheLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "cache_latency_seconds",
			Help:      "Latency for cache lookups",
			Buckets:   prometheus.DefBuckets,
		}),
		cacheWrite: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "cache_write_seconds",
			Help:      "Latency for cache set operations",
			Buckets:   prometheus.DefBuckets,
		}),
		cacheHitRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "cache_hit_ratio",
			Help:      "Ratio of cache hits to total cache lookups",
		}),
		cacheHits:       counter("cache_hits_total", "Total cache hits"),
		cacheMisses:     counter("cache_misses_total", "Total cache misses"),
		dbQueryDuration: histogram("db_query_duration_seconds", "Duration of database queries", "query"),
		reviewDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "review_decisions_total",
			Help:      "Total review workflow decisions by action and resulting status",
		}, []string{"action", "status"}),
		publications: counter("resource_publications_total", "Total resources that reached PUBLISHED"),
	}

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "goroutines_total",
		Help:      "Current number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	m.registry.MustRegister(
		m.requestDuration, m.requestTotal,
		m.cacheLatency, m.cacheWrite,
		m.cacheHitRatio, m.cacheHits, m.cacheMisses,
		m.dbQueryDuration, m.reviewDecisions, m.publications,
		goroutines,
	)
	m.handler = promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return m
}

// Handler exposes the Prometheus scrape handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records one served request.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.counters.requests, 1)
	atomic.AddUint64(&m.counters.requestDuration, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records one cache lookup and refreshes the hit
// ratio gauge.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.counters.cacheHits, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.counters.cacheMisses, 1)
	}
	hits := atomic.LoadUint64(&m.counters.cacheHits)
	total := hits + atomic.LoadUint64(&m.counters.cacheMisses)
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite records the latency of one cache set.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveDBQuery records one database query under a coarse label.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(label).Observe(duration.Seconds())
	atomic.AddUint64(&m.counters.dbQueries, 1)
	atomic.AddUint64(&m.counters.dbQueryDuration, uint64(duration.Nanoseconds()))
}

// RecordReviewDecision counts a committed workflow decision, tracking
// publications separately since they are the terminal success case.
func (m *MetricsService) RecordReviewDecision(action string, status models.ResourceStatus) {
	if m == nil {
		return
	}
	m.reviewDecisions.WithLabelValues(action, string(status)).Inc()
	atomic.AddUint64(&m.counters.reviewDecisions, 1)
	if status == models.ResourceStatusPublished {
		m.publications.Inc()
		atomic.AddUint64(&m.counters.publications, 1)
	}
}

func avgMillis(totalNanos, count uint64) float64 {
	if count == 0 {
		return 0
	}
	return float64(totalNanos) / float64(count) / float64(time.Millisecond)
}

// Snapshot returns aggregated counters for the admin metrics endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	hits := atomic.LoadUint64(&m.counters.cacheHits)
	misses := atomic.LoadUint64(&m.counters.cacheMisses)
	requests := atomic.LoadUint64(&m.counters.requests)
	dbCount := atomic.LoadUint64(&m.counters.dbQueries)

	var cacheRatio float64
	if hits+misses > 0 {
		cacheRatio = float64(hits) / float64(hits+misses)
	}

	return models.SystemMetrics{
		CacheHitRatio:            cacheRatio,
		CacheHits:                hits,
		CacheMisses:              misses,
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgMillis(atomic.LoadUint64(&m.counters.requestDuration), requests),
		DBQueryCount:             dbCount,
		AverageDBQueryDurationMs: avgMillis(atomic.LoadUint64(&m.counters.dbQueryDuration), dbCount),
		ReviewDecisions:          atomic.LoadUint64(&m.counters.reviewDecisions),
		Publications:             atomic.LoadUint64(&m.counters.publications),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
