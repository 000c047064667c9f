package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/academic-desk/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	refreshDuration *prometheus.HistogramVec
	refreshTotal    *prometheus.CounterVec
	catalogLookups  *prometheus.CounterVec
	catalogHitRatio prometheus.Gauge
	bookingEvents   *prometheus.CounterVec
	dbQueryDuration *prometheus.HistogramVec

	catalogHitCount      uint64
	catalogMissCount     uint64
	refreshFailureCount  uint64
	requestCount         uint64
	requestDurationTotal uint64
	dbQueryCount         uint64
	dbQueryDurationTotal uint64
	acceptedCount        uint64
	rejectedCount        uint64
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

	refreshDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catalog_refresh_duration_seconds",
		Help:    "Duration of remote catalog refreshes",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 10},
	}, []string{"catalog"})

	refreshTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_refresh_total",
		Help: "Remote catalog refreshes by outcome",
	}, []string{"catalog", "outcome"})

	catalogLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_lookups_total",
		Help: "Catalog snapshot lookups by result",
	}, []string{"catalog", "result"})

	catalogHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "catalog_hit_ratio",
		Help: "Ratio of fresh snapshot hits to total catalog lookups",
	})

	bookingEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_events_total",
		Help: "Booking desk writes and rejections",
	}, []string{"kind", "reason"})

	dbQueryDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "db_query_duration_seconds",
		Help:    "Duration of database queries",
		Buckets: prometheus.DefBuckets,
	}, []string{"query"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, refreshDuration, refreshTotal, catalogLookups, catalogHitRatio, bookingEvents, dbQueryDuration, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		refreshDuration: refreshDuration,
		refreshTotal:    refreshTotal,
		catalogLookups:  catalogLookups,
		catalogHitRatio: catalogHitRatio,
		bookingEvents:   bookingEvents,
		dbQueryDuration: dbQueryDuration,
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

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
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

// ObserveCatalogRefresh records the duration and outcome of a catalog refresh.
func (m *MetricsService) ObserveCatalogRefresh(catalog string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.refreshDuration.WithLabelValues(catalog).Observe(duration.Seconds())
	outcome := "success"
	if err != nil {
		outcome = "failure"
		atomic.AddUint64(&m.refreshFailureCount, 1)
	}
	m.refreshTotal.WithLabelValues(catalog, outcome).Inc()
}

// RecordCatalogLookup records whether a lookup was served from a fresh snapshot.
func (m *MetricsService) RecordCatalogLookup(catalog string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
		atomic.AddUint64(&m.catalogHitCount, 1)
	} else {
		atomic.AddUint64(&m.catalogMissCount, 1)
	}
	m.catalogLookups.WithLabelValues(catalog, result).Inc()
	hits := atomic.LoadUint64(&m.catalogHitCount)
	misses := atomic.LoadUint64(&m.catalogMissCount)
	if total := hits + misses; total > 0 {
		m.catalogHitRatio.Set(float64(hits) / float64(total))
	}
}

// RecordBookingEvent counts a booking desk event.
func (m *MetricsService) RecordBookingEvent(event models.BookingEvent) {
	if m == nil {
		return
	}
	m.bookingEvents.WithLabelValues(string(event.Kind), event.Reason).Inc()
	if event.Accepted() {
		atomic.AddUint64(&m.acceptedCount, 1)
	} else {
		atomic.AddUint64(&m.rejectedCount, 1)
	}
}

// ObserveDBQuery records database query timing.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(label).Observe(duration.Seconds())
	atomic.AddUint64(&m.dbQueryCount, 1)
	atomic.AddUint64(&m.dbQueryDurationTotal, uint64(duration.Nanoseconds()))
}

// Snapshot returns aggregated metrics suitable for the API.
func (m *MetricsService) Snapshot() models.DeskMetrics {
	if m == nil {
		return models.DeskMetrics{}
	}
	hits := atomic.LoadUint64(&m.catalogHitCount)
	misses := atomic.LoadUint64(&m.catalogMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)
	dbCount := atomic.LoadUint64(&m.dbQueryCount)
	dbDuration := atomic.LoadUint64(&m.dbQueryDurationTotal)

	var hitRatio float64
	if total := hits + misses; total > 0 {
		hitRatio = float64(hits) / float64(total)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	var avgDBMs float64
	if dbCount > 0 {
		avgDBMs = float64(dbDuration) / float64(dbCount) / float64(time.Millisecond)
	}

	return models.DeskMetrics{
		CatalogHitRatio:          hitRatio,
		CatalogHits:              hits,
		CatalogMisses:            misses,
		CatalogRefreshFailures:   atomic.LoadUint64(&m.refreshFailureCount),
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		DBQueryCount:             dbCount,
		AverageDBQueryDurationMs: avgDBMs,
		BookingsAccepted:         atomic.LoadUint64(&m.acceptedCount),
		BookingsRejected:         atomic.LoadUint64(&m.rejectedCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
