package monitoring

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "prescription_analytics"

type MetricsService interface {
	// HTTP metrics
	RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration)

	// Analytics metrics
	RecordAnalysis(operation, status string, duration time.Duration)
	RecordSkippedUnits(operation string, count int)

	// Cache metrics
	RecordCacheOperation(operation string, hit bool, duration time.Duration)

	// Dataset metrics
	RecordDataset(mode string, observations int, version uint64)

	// System metrics
	RecordSystemMetrics()
	GetMetrics() map[string]interface{}

	Handler() http.Handler
}

type prometheusMetrics struct {
	// HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Analytics metrics
	analysesTotal     *prometheus.CounterVec
	analysisDuration  *prometheus.HistogramVec
	skippedUnitsTotal *prometheus.CounterVec

	// Cache metrics
	cacheOperationsTotal *prometheus.CounterVec

	// Dataset metrics
	datasetObservations *prometheus.GaugeVec
	datasetVersion      prometheus.Gauge

	// System metrics
	memoryUsageGauge    prometheus.Gauge
	goroutineCountGauge prometheus.Gauge
	uptimeGauge         prometheus.Gauge

	gatherer  prometheus.Gatherer
	startTime time.Time
}

// NewPrometheusMetrics registers the service metrics on reg. A nil reg uses
// the default registry.
func NewPrometheusMetrics(reg *prometheus.Registry) MetricsService {
	m := &prometheusMetrics{startTime: time.Now()}

	var registerer prometheus.Registerer = prometheus.DefaultRegisterer
	m.gatherer = prometheus.DefaultGatherer
	if reg != nil {
		registerer = reg
		m.gatherer = reg
	}

	m.initMetrics(promauto.With(registerer))
	return m
}

func (m *prometheusMetrics) initMetrics(factory promauto.Factory) {
	// HTTP metrics
	m.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	m.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Analytics metrics
	m.analysesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Total number of analytics runs",
		},
		[]string{"operation", "status"},
	)

	m.analysisDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Analytics run duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"operation"},
	)

	m.skippedUnitsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_units_total",
			Help:      "Series skipped for insufficient data or failed fits",
		},
		[]string{"operation"},
	)

	// Cache metrics
	m.cacheOperationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_operations_total",
			Help:      "Total number of result cache lookups",
		},
		[]string{"operation", "result"},
	)

	// Dataset metrics
	m.datasetObservations = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dataset_observations",
			Help:      "Observations in the loaded dataset",
		},
		[]string{"mode"},
	)

	m.datasetVersion = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dataset_version",
			Help:      "Version counter of the loaded dataset",
		},
	)

	// System metrics
	m.memoryUsageGauge = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "memory_usage_bytes",
			Help:      "Current memory usage in bytes",
		},
	)

	m.goroutineCountGauge = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "goroutines_count",
			Help:      "Current number of goroutines",
		},
	)

	m.uptimeGauge = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Application uptime in seconds",
		},
	)
}

// HTTP metrics implementation
func (m *prometheusMetrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, fmt.Sprintf("%d", statusCode)).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// Analytics metrics implementation
func (m *prometheusMetrics) RecordAnalysis(operation, status string, duration time.Duration) {
	m.analysesTotal.WithLabelValues(operation, status).Inc()
	m.analysisDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *prometheusMetrics) RecordSkippedUnits(operation string, count int) {
	if count > 0 {
		m.skippedUnitsTotal.WithLabelValues(operation).Add(float64(count))
	}
}

// Cache metrics implementation
func (m *prometheusMetrics) RecordCacheOperation(operation string, hit bool, duration time.Duration) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheOperationsTotal.WithLabelValues(operation, result).Inc()
}

// Dataset metrics implementation
func (m *prometheusMetrics) RecordDataset(mode string, observations int, version uint64) {
	m.datasetObservations.Reset()
	m.datasetObservations.WithLabelValues(mode).Set(float64(observations))
	m.datasetVersion.Set(float64(version))
}

// System metrics implementation
func (m *prometheusMetrics) RecordSystemMetrics() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.memoryUsageGauge.Set(float64(memStats.Alloc))
	m.goroutineCountGauge.Set(float64(runtime.NumGoroutine()))
	m.uptimeGauge.Set(time.Since(m.startTime).Seconds())
}

func (m *prometheusMetrics) GetMetrics() map[string]interface{} {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return map[string]interface{}{
		"memory_usage":    memStats.Alloc,
		"goroutine_count": runtime.NumGoroutine(),
		"uptime_seconds":  time.Since(m.startTime).Seconds(),
		"start_time":      m.startTime,
	}
}

// Handler exposes the registered metrics in the Prometheus text format
func (m *prometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// StartSystemMetricsRecording samples system gauges until ctx is done
func StartSystemMetricsRecording(ctx context.Context, metrics MetricsService, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				metrics.RecordSystemMetrics()
			}
		}
	}()
}
