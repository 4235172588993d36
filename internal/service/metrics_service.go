package service

import (
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/sma-gradebook-api/internal/dto"
)

const metricsNamespace = "gradebook"

// MetricsService owns a private Prometheus registry and keeps a few running
// totals that the admin dashboard reads without scraping.
type MetricsService struct {
	handler http.Handler

	requestDuration   *prometheus.HistogramVec
	requestTotal      *prometheus.CounterVec
	cacheLookups      *prometheus.HistogramVec
	cacheWrite        prometheus.Histogram
	gradeComputations *prometheus.CounterVec
	gradeDuration     prometheus.Histogram
	scoresClamped     prometheus.Counter
	invalidConfigs    prometheus.Counter
	reportJobs        *prometheus.CounterVec
	mailsSent         *prometheus.CounterVec

	hits, misses     atomic.Uint64
	requests         atomic.Uint64
	requestNanos     atomic.Uint64
	computationCount atomic.Uint64
}

// NewMetricsService registers the HTTP, cache, grading, export and mail
// collectors together with the Go runtime and process collectors.
func NewMetricsService() *MetricsService {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	m := &MetricsService{handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})}

	httpLabels := []string{"method", "path", "status"}
	m.requestDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace, Name: "http_request_duration_seconds",
		Help:    "HTTP request latency by route template.",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, httpLabels)
	m.requestTotal = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace, Name: "http_requests_total",
		Help: "HTTP requests by route template and status.",
	}, httpLabels)

	m.cacheLookups = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace, Name: "cache_lookup_seconds",
		Help:    "Cache read latency split by outcome.",
		Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
	}, []string{"result"})
	m.cacheWrite = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: metricsNamespace, Name: "cache_write_seconds",
		Help:    "Cache write latency.",
		Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
	})
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace, Name: "cache_hit_ratio",
		Help: "Share of cache lookups served from cache since start.",
	}, func() float64 { return m.hitRatio() })

	m.gradeComputations = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace, Name: "grade_computations_total",
		Help: "Grade computations by scope.",
	}, []string{"scope"})
	m.gradeDuration = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: metricsNamespace, Name: "grade_computation_seconds",
		Help:    "Grade computation latency including data loading.",
		Buckets: prometheus.DefBuckets,
	})
	m.scoresClamped = f.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace, Name: "scores_clamped_total",
		Help: "Task scores clamped into the 0 to 100 range.",
	})
	m.invalidConfigs = f.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace, Name: "invalid_configuration_total",
		Help: "Computations rejected for an invalid gradebook configuration.",
	})

	m.reportJobs = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace, Name: "report_jobs_total",
		Help: "Export jobs by terminal status.",
	}, []string{"status"})
	m.mailsSent = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace, Name: "mails_total",
		Help: "Notification mails by result.",
	}, []string{"result"})

	return m
}

// Handler serves the registry. A nil service answers 503.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records one served request. path must be a route
// template to keep label cardinality bounded.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, code).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, code).Inc()
	m.requests.Add(1)
	m.requestNanos.Add(uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records a cache lookup.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
		m.hits.Add(1)
	} else {
		m.misses.Add(1)
	}
	m.cacheLookups.WithLabelValues(result).Observe(duration.Seconds())
}

// ObserveCacheWrite records a cache write.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveGradeComputation records one computation of the given scope and the
// number of scores it had to clamp.
func (m *MetricsService) ObserveGradeComputation(scope string, clamped int, duration time.Duration) {
	if m == nil {
		return
	}
	m.gradeComputations.WithLabelValues(scope).Inc()
	m.gradeDuration.Observe(duration.Seconds())
	if clamped > 0 {
		m.scoresClamped.Add(float64(clamped))
	}
	m.computationCount.Add(1)
}

func (m *MetricsService) RecordInvalidConfiguration() {
	if m == nil {
		return
	}
	m.invalidConfigs.Inc()
}

// RecordReportJob counts an export job reaching a terminal status.
func (m *MetricsService) RecordReportJob(status string) {
	if m == nil {
		return
	}
	m.reportJobs.WithLabelValues(status).Inc()
}

func (m *MetricsService) RecordMail(ok bool) {
	if m == nil {
		return
	}
	result := "sent"
	if !ok {
		result = "failed"
	}
	m.mailsSent.WithLabelValues(result).Inc()
}

func (m *MetricsService) hitRatio() float64 {
	hits, misses := m.hits.Load(), m.misses.Load()
	if hits+misses == 0 {
		return 0
	}
	return float64(hits) / float64(hits+misses)
}

// Snapshot summarises the running totals for the admin dashboard.
func (m *MetricsService) Snapshot() dto.SystemMetrics {
	if m == nil {
		return dto.SystemMetrics{}
	}
	snap := dto.SystemMetrics{
		CacheHitRatio:     m.hitRatio(),
		CacheHits:         m.hits.Load(),
		CacheMisses:       m.misses.Load(),
		RequestsTotal:     m.requests.Load(),
		GradeComputations: m.computationCount.Load(),
		Goroutines:        runtime.NumGoroutine(),
		GeneratedAt:       time.Now().UTC(),
	}
	if snap.RequestsTotal > 0 {
		snap.AverageRequestDurationMs = float64(m.requestNanos.Load()) / float64(snap.RequestsTotal) / float64(time.Millisecond)
	}
	return snap
}
