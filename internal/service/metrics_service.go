package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsSnapshot aggregates counters for the status endpoint.
type MetricsSnapshot struct {
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	MaintenanceRuns          uint64    `json:"maintenance_runs"`
	MaintenanceFailures      uint64    `json:"maintenance_failures"`
	AnnouncementsArchived    uint64    `json:"announcements_archived"`
	HistoryBackfilled        uint64    `json:"history_backfilled"`
	SchemaDriftRetries       uint64    `json:"schema_drift_retries"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}

// MetricsService encapsulates Prometheus instrumentation and provides
// lightweight snapshots for the status endpoint.
type MetricsService struct {
	registry            *prometheus.Registry
	handler             http.Handler
	requestDuration     *prometheus.HistogramVec
	requestTotal        *prometheus.CounterVec
	maintenanceDuration prometheus.Observer
	maintenanceTotal    *prometheus.CounterVec
	archivedTotal       prometheus.Counter
	backfilledTotal     prometheus.Counter
	driftRetries        *prometheus.CounterVec

	requestCount         uint64
	requestDurationTotal uint64
	maintenanceRuns      uint64
	maintenanceFailures  uint64
	archivedCount        uint64
	backfilledCount      uint64
	driftRetryCount      uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	maintenanceDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "maintenance_run_duration_seconds",
		Help:    "Duration of maintenance passes",
		Buckets: prometheus.DefBuckets,
	})

	maintenanceTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "maintenance_runs_total",
		Help: "Total maintenance passes by outcome",
	}, []string{"outcome"})

	archivedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "announcements_archived_total",
		Help: "Announcements deactivated after expiring",
	})

	backfilledTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "history_backfilled_total",
		Help: "History entries appended by the backfill pass",
	})

	driftRetries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "schema_drift_retries_total",
		Help: "Write retries caused by schema drift",
	}, []string{"table"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, maintenanceDuration, maintenanceTotal, archivedTotal, backfilledTotal, driftRetries, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:            registry,
		handler:             handler,
		requestDuration:     requestDuration,
		requestTotal:        requestTotal,
		maintenanceDuration: maintenanceDuration,
		maintenanceTotal:    maintenanceTotal,
		archivedTotal:       archivedTotal,
		backfilledTotal:     backfilledTotal,
		driftRetries:        driftRetries,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics and aggregates simple stats
// for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// MaintenanceRun records one maintenance pass outcome.
func (m *MetricsService) MaintenanceRun(duration time.Duration, backfilled, archived int, err error) {
	if m == nil {
		return
	}
	m.maintenanceDuration.Observe(duration.Seconds())
	outcome := "success"
	if err != nil {
		outcome = "failure"
		atomic.AddUint64(&m.maintenanceFailures, 1)
	}
	m.maintenanceTotal.WithLabelValues(outcome).Inc()
	atomic.AddUint64(&m.maintenanceRuns, 1)
	if backfilled > 0 {
		m.backfilledTotal.Add(float64(backfilled))
		atomic.AddUint64(&m.backfilledCount, uint64(backfilled))
	}
	if archived > 0 {
		m.archivedTotal.Add(float64(archived))
		atomic.AddUint64(&m.archivedCount, uint64(archived))
	}
}

// ObserveSchemaDriftRetry counts one drift-triggered write retry.
func (m *MetricsService) ObserveSchemaDriftRetry(table string) {
	if m == nil {
		return
	}
	m.driftRetries.WithLabelValues(table).Inc()
	atomic.AddUint64(&m.driftRetryCount, 1)
}

// Snapshot returns aggregated metrics suitable for the status endpoint.
func (m *MetricsService) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return MetricsSnapshot{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		MaintenanceRuns:          atomic.LoadUint64(&m.maintenanceRuns),
		MaintenanceFailures:      atomic.LoadUint64(&m.maintenanceFailures),
		AnnouncementsArchived:    atomic.LoadUint64(&m.archivedCount),
		HistoryBackfilled:        atomic.LoadUint64(&m.backfilledCount),
		SchemaDriftRetries:       atomic.LoadUint64(&m.driftRetryCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
