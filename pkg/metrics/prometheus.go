// Package metrics provides Prometheus metrics for the keystudy service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every collector exported by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Study data
	participantsCreated prometheus.Counter
	eventsSaved         *prometheus.CounterVec
	featureSetsSaved    *prometheus.CounterVec
	exportRows          prometheus.Counter
	duplicateWrites     *prometheus.CounterVec

	// Store totals, refreshed from /stats and the serve loop
	participantsTotal prometheus.Gauge
	eventsTotal       prometheus.Gauge
	featureSetsTotal  prometheus.Gauge

	// Store latency
	storeOperationDuration *prometheus.HistogramVec
	storeErrors            *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorRateByEndpoint *prometheus.CounterVec

	// Runtime
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "keystudy",
		subsystem:        "backend",
		histogramBuckets: []float64{0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one block per collector
	auto := promauto.With(m.registry)

	m.participantsCreated = auto.NewCounter(m.counterOpts(
		"participants_created_total", "Total number of participants created"))

	m.eventsSaved = auto.NewCounterVec(m.counterOpts(
		"events_saved_total", "Total number of keystroke events persisted"),
		[]string{"task_type"})

	m.featureSetsSaved = auto.NewCounterVec(m.counterOpts(
		"feature_sets_saved_total", "Total number of feature sets persisted"),
		[]string{"condition"})

	m.exportRows = auto.NewCounter(m.counterOpts(
		"export_rows_total", "Total number of CSV data rows written by exports"))

	m.duplicateWrites = auto.NewCounterVec(m.counterOpts(
		"duplicate_writes_total", "Writes skipped because their idempotency key was already seen"),
		[]string{"operation"})

	m.participantsTotal = auto.NewGauge(m.gaugeOpts(
		"participants", "Participants currently stored"))

	m.eventsTotal = auto.NewGauge(m.gaugeOpts(
		"events", "Keystroke events currently stored"))

	m.featureSetsTotal = auto.NewGauge(m.gaugeOpts(
		"feature_sets", "Feature sets currently stored"))

	m.storeOperationDuration = auto.NewHistogramVec(m.histogramOpts(
		"store_operation_duration_milliseconds", "Participant store operation latency in milliseconds",
		m.histogramBuckets),
		[]string{"operation"})

	m.storeErrors = auto.NewCounterVec(m.counterOpts(
		"store_errors_total", "Store errors by operation and kind"),
		[]string{"operation", "kind"})

	m.httpRequests = auto.NewCounterVec(m.counterOpts(
		"http_requests_total", "Total number of HTTP requests by endpoint and method"),
		[]string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(m.histogramOpts(
		"http_request_duration_milliseconds", "HTTP request duration in milliseconds",
		m.histogramBuckets),
		[]string{"endpoint", "method", "status_code"})

	m.errorRateByEndpoint = auto.NewCounterVec(m.counterOpts(
		"errors_by_endpoint_total", "Total number of error responses by endpoint"),
		[]string{"endpoint", "method", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts(
		"system_memory_usage_bytes", "Heap bytes allocated"))

	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts(
		"system_goroutine_count", "Number of goroutines"))

	m.systemGCPauseTime = auto.NewHistogram(m.histogramOpts(
		"system_gc_pause_time_milliseconds", "Average GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100}))
}

// RecordParticipantCreated increments the participants counter.
func RecordParticipantCreated() {
	globalManager.participantsCreated.Inc()
}

// RecordEventsSaved adds n persisted events for a task type.
func RecordEventsSaved(taskType string, n int) {
	globalManager.eventsSaved.WithLabelValues(taskType).Add(float64(n))
}

// RecordFeatureSetSaved increments the feature set counter for a condition.
func RecordFeatureSetSaved(condition string) {
	globalManager.featureSetsSaved.WithLabelValues(condition).Inc()
}

// RecordExportRows adds n rows written by a CSV export.
func RecordExportRows(n int) {
	globalManager.exportRows.Add(float64(n))
}

// RecordDuplicateWrite counts a replayed idempotency key.
func RecordDuplicateWrite(operation string) {
	globalManager.duplicateWrites.WithLabelValues(operation).Inc()
}

// UpdateStoreTotals sets the stored-row gauges.
func UpdateStoreTotals(participants, events, featureSets int64) {
	globalManager.participantsTotal.Set(float64(participants))
	globalManager.eventsTotal.Set(float64(events))
	globalManager.featureSetsTotal.Set(float64(featureSets))
}

// RecordStoreOperation records the latency of a store call.
func RecordStoreOperation(operation string, latencyMs float64) {
	globalManager.storeOperationDuration.WithLabelValues(operation).Observe(latencyMs)
}

// RecordStoreError counts a failed store call by kind (validation, not_found, storage).
func RecordStoreError(operation, kind string) {
	globalManager.storeErrors.WithLabelValues(operation, kind).Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByEndpoint records an error response with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the heap allocation in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
