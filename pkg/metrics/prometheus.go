// Package metrics provides Prometheus metrics for the credit score dashboard.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every collector the dashboard and the stub backend record into.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Fetch metrics - request/response calls through the retrying fetcher
	fetchAttempts *prometheus.CounterVec
	fetchRetries  *prometheus.CounterVec
	fetchFailures *prometheus.CounterVec
	fetchLatency  *prometheus.HistogramVec

	// List sync metrics
	refreshApplied   prometheus.Counter
	refreshDiscarded prometheus.Counter
	refreshFailed    prometheus.Counter
	records          prometheus.Gauge

	// Push channel metrics
	pushMessages   *prometheus.CounterVec
	pushReconnects prometheus.Counter
	pushConnected  prometheus.Gauge

	// Drill-down metrics
	detailApplied   *prometheus.CounterVec
	detailDiscarded *prometheus.CounterVec

	// Action queue metrics
	queueSize          prometheus.Gauge
	queueEnqueueErrors prometheus.Counter

	// Action worker metrics
	actionsProcessed *prometheus.CounterVec
	actionErrors     *prometheus.CounterVec
	actionLatency    *prometheus.HistogramVec

	// HTTP metrics for the stub backend
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// Init replaces the global manager with one built from opts on a fresh
// registry and returns that registry. Binaries call it once at startup,
// before anything records.
func Init(opts ...Option) *prometheus.Registry {
	registry := prometheus.NewRegistry()
	opts = append(append([]Option(nil), opts...), WithPrometheusRegistry(registry))
	globalManager = NewManager(opts...)
	customRegistry = registry
	return registry
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "credash",
		subsystem:        "dashboard",
		histogramBuckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: m.histogramBuckets,
	}, labels)
}

func (m *Manager) initializeMetrics() {
	m.fetchAttempts = m.counterVec("fetch_attempts_total", "Fetch attempts issued, by operation", "operation")
	m.fetchRetries = m.counterVec("fetch_retries_total", "Transient fetch failures that were retried", "operation", "kind")
	m.fetchFailures = m.counterVec("fetch_failures_total", "Fetches that failed after the last attempt", "operation", "kind")
	m.fetchLatency = m.histogramVec("fetch_latency_milliseconds", "Latency of a single fetch attempt", "operation")

	m.refreshApplied = m.counter("refresh_applied_total", "List refreshes whose response replaced the local list")
	m.refreshDiscarded = m.counter("refresh_discarded_total", "List refresh responses dropped because a newer refresh already applied")
	m.refreshFailed = m.counter("refresh_failed_total", "List refreshes that failed")
	m.records = m.gauge("records", "Score records currently held locally")

	m.pushMessages = m.counterVec("push_messages_total", "Push channel messages by recognized type", "type")
	m.pushReconnects = m.counter("push_reconnects_total", "Push channel reconnect attempts")
	m.pushConnected = m.gauge("push_connected", "1 while the push channel is connected")

	m.detailApplied = m.counterVec("detail_applied_total", "Drill-down results applied to the current selection", "field")
	m.detailDiscarded = m.counterVec("detail_discarded_total", "Drill-down results dropped as superseded", "field")

	m.queueSize = m.gauge("action_queue_size", "Pending user actions")
	m.queueEnqueueErrors = m.counter("action_queue_enqueue_errors_total", "User actions rejected by the queue")

	m.actionsProcessed = m.counterVec("actions_processed_total", "User actions handled by the dispatch worker", "action")
	m.actionErrors = m.counterVec("action_errors_total", "User actions whose handler returned an error", "action")
	m.actionLatency = m.histogramVec("action_latency_milliseconds", "Time spent handling one user action", "action")

	m.httpRequests = m.counterVec("http_requests_total", "Stub backend HTTP requests", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "Stub backend HTTP request duration", "endpoint", "method", "status_code")
}

// Fetch Metrics Functions.

// RecordFetchAttempt counts one attempt of operation.
func RecordFetchAttempt(operation string) {
	globalManager.fetchAttempts.WithLabelValues(operation).Inc()
}

// RecordFetchRetry counts a transient failure that will be retried.
func RecordFetchRetry(operation, kind string) {
	globalManager.fetchRetries.WithLabelValues(operation, kind).Inc()
}

// RecordFetchFailure counts a fetch that gave up.
func RecordFetchFailure(operation, kind string) {
	globalManager.fetchFailures.WithLabelValues(operation, kind).Inc()
}

// RecordFetchLatency observes a single attempt latency in milliseconds.
func RecordFetchLatency(operation string, latencyMs float64) {
	globalManager.fetchLatency.WithLabelValues(operation).Observe(latencyMs)
}

// List Sync Metrics Functions.

// RecordRefreshApplied counts an applied list refresh.
func RecordRefreshApplied() { globalManager.refreshApplied.Inc() }

// RecordRefreshDiscarded counts an out-of-order refresh response.
func RecordRefreshDiscarded() { globalManager.refreshDiscarded.Inc() }

// RecordRefreshFailed counts a failed refresh.
func RecordRefreshFailed() { globalManager.refreshFailed.Inc() }

// UpdateRecords sets the local record count.
func UpdateRecords(count int) { globalManager.records.Set(float64(count)) }

// Push Metrics Functions.

// RecordPushMessage counts a push message by type ("scores_changed", "unknown", "malformed").
func RecordPushMessage(msgType string) {
	globalManager.pushMessages.WithLabelValues(msgType).Inc()
}

// RecordPushReconnect counts a reconnect attempt.
func RecordPushReconnect() { globalManager.pushReconnects.Inc() }

// UpdatePushConnected flips the connectivity gauge.
func UpdatePushConnected(connected bool) {
	if connected {
		globalManager.pushConnected.Set(1)
		return
	}
	globalManager.pushConnected.Set(0)
}

// Drill-down Metrics Functions.

// RecordDetailApplied counts a drill-down field applied ("history" or "explanation").
func RecordDetailApplied(field string) {
	globalManager.detailApplied.WithLabelValues(field).Inc()
}

// RecordDetailDiscarded counts a superseded drill-down field result.
func RecordDetailDiscarded(field string) {
	globalManager.detailDiscarded.WithLabelValues(field).Inc()
}

// Queue Metrics Functions.

// UpdateQueueSize sets the pending action count.
func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

// RecordQueueEnqueueError counts a rejected action.
func RecordQueueEnqueueError() { globalManager.queueEnqueueErrors.Inc() }

// Action Worker Metrics Functions.

// RecordActionProcessed counts a handled action.
func RecordActionProcessed(action string) {
	globalManager.actionsProcessed.WithLabelValues(action).Inc()
}

// RecordActionError counts an action whose handler failed.
func RecordActionError(action string) {
	globalManager.actionErrors.WithLabelValues(action).Inc()
}

// RecordActionLatency observes handling time in milliseconds.
func RecordActionLatency(action string, latencyMs float64) {
	globalManager.actionLatency.WithLabelValues(action).Observe(latencyMs)
}

// HTTP Metrics Functions.

// RecordHTTPRequest increments the HTTP request counter.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
