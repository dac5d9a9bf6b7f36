// Package metrics provides Prometheus metrics for the ranking service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var defaultLatencyBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000}

// Manager owns every collector exported by the service.
type Manager struct {
	namespace      string
	subsystem      string
	latencyBuckets []float64
	registry       prometheus.Registerer

	// Ranking queries
	rankingQueries      *prometheus.CounterVec
	rankingQueryLatency *prometheus.HistogramVec
	rankingRows         prometheus.Histogram
	codecErrors         *prometheus.CounterVec

	// Ranking cache
	cacheRequests      *prometheus.CounterVec
	cacheWrites        *prometheus.CounterVec
	cacheInvalidations *prometheus.CounterVec
	cacheEntries       prometheus.Gauge

	// Recompute
	recomputeTasks    *prometheus.CounterVec
	recomputeUnits    *prometheus.CounterVec
	recomputeDuration prometheus.Histogram

	// Cutover
	cutoverRuns          *prometheus.CounterVec
	cutoverState         prometheus.Gauge
	cutoverStageDuration *prometheus.HistogramVec
	importedRows         *prometheus.CounterVec
	activeDataset        *prometheus.GaugeVec

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueued      prometheus.Counter
	queueDequeued      prometheus.Counter
	queueEnqueueErrors *prometheus.CounterVec

	// Workers
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorsByEndpoint    *prometheus.CounterVec
	errorsByComponent   *prometheus.CounterVec

	// System
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

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:      "pcarank",
		subsystem:      "rankings",
		latencyBuckets: defaultLatencyBuckets,
		registry:       prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	}, labels)
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	})
}

func (m *Manager) histogramVec(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	}, labels)
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	m.rankingQueries = m.counterVec("queries_total", "Ranking queries executed against the store", "rank_type", "level", "outcome")
	m.rankingQueryLatency = m.histogramVec("query_latency_milliseconds", "Ranking query latency in milliseconds", m.latencyBuckets, "rank_type")
	m.rankingRows = m.histogram("query_rows", "Rows returned per ranking query", []float64{0, 1, 5, 10, 25, 50, 100, 250})
	m.codecErrors = m.counterVec("codec_errors_total", "Packed values that could not be formatted", "kind")

	m.cacheRequests = m.counterVec("cache_requests_total", "Cache lookups by entry kind and result", "kind", "result")
	m.cacheWrites = m.counterVec("cache_writes_total", "Cache writes by entry kind", "kind")
	m.cacheInvalidations = m.counterVec("cache_invalidations_total", "Cache entries removed by scope", "scope")
	m.cacheEntries = m.gauge("cache_entries", "Entries currently held by the cache backend")

	m.recomputeTasks = m.counterVec("recompute_tasks_total", "Recompute tasks by outcome", "outcome")
	m.recomputeUnits = m.counterVec("recompute_units_total", "Per-event recompute units by rank type and outcome", "rank_type", "outcome")
	m.recomputeDuration = m.histogram("recompute_duration_milliseconds", "Wall time of one recompute task", m.latencyBuckets)

	m.cutoverRuns = m.counterVec("cutover_runs_total", "Dataset cutover runs by outcome", "outcome")
	m.cutoverState = m.gauge("cutover_state", "Current cutover state (0 idle, 1 downloading, 2 importing, 3 validating, 4 swapping)")
	m.cutoverStageDuration = m.histogramVec("cutover_stage_duration_milliseconds", "Duration of each cutover stage", m.latencyBuckets, "stage")
	m.importedRows = m.counterVec("imported_rows_total", "Rows bulk-loaded into the inactive dataset", "entity")
	m.activeDataset = promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "active_dataset",
		Help:      "1 for the dataset currently serving reads",
	}, []string{"dataset"})

	m.queueSize = m.gauge("queue_size", "Recompute tasks waiting in the queue")
	m.queueCapacity = m.gauge("queue_capacity", "Recompute queue capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Recompute queue utilization (0.0 to 1.0)")
	m.queueEnqueued = m.counter("queue_enqueued_total", "Tasks accepted by the queue")
	m.queueDequeued = m.counter("queue_dequeued_total", "Tasks handed to workers")
	m.queueEnqueueErrors = m.counterVec("queue_enqueue_errors_total", "Tasks rejected by the queue", "reason")

	m.workerActiveCount = m.gauge("worker_active_count", "Recompute workers running")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Time a worker spends on one task", m.latencyBuckets)
	m.workerErrors = m.counter("worker_errors_total", "Tasks whose handler returned an error")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint, method and status code", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request latency in milliseconds", m.latencyBuckets, "endpoint", "method", "status_code")
	m.errorsByEndpoint = m.counterVec("errors_by_endpoint_total", "HTTP errors by endpoint", "endpoint", "method", "error_type")
	m.errorsByComponent = m.counterVec("errors_by_component_total", "Errors by component and type", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "Average GC pause in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// RecordRankingQuery counts one engine query.
func RecordRankingQuery(rankType, level, outcome string) {
	globalManager.rankingQueries.WithLabelValues(rankType, level, outcome).Inc()
}

// RecordRankingQueryLatency records engine latency in milliseconds.
func RecordRankingQueryLatency(rankType string, latencyMs float64) {
	globalManager.rankingQueryLatency.WithLabelValues(rankType).Observe(latencyMs)
}

// RecordRankingRows records the number of rows a query produced.
func RecordRankingRows(n int) {
	globalManager.rankingRows.Observe(float64(n))
}

// RecordCodecError counts a value rendered as a placeholder.
func RecordCodecError(kind string) {
	globalManager.codecErrors.WithLabelValues(kind).Inc()
}

// RecordCacheHit counts a cache hit for an entry kind.
func RecordCacheHit(kind string) {
	globalManager.cacheRequests.WithLabelValues(kind, "hit").Inc()
}

// RecordCacheMiss counts a cache miss for an entry kind.
func RecordCacheMiss(kind string) {
	globalManager.cacheRequests.WithLabelValues(kind, "miss").Inc()
}

// RecordCacheError counts a failed cache lookup.
func RecordCacheError(kind string) {
	globalManager.cacheRequests.WithLabelValues(kind, "error").Inc()
}

// RecordCacheWrite counts a cache write.
func RecordCacheWrite(kind string) {
	globalManager.cacheWrites.WithLabelValues(kind).Inc()
}

// RecordCacheInvalidation counts removed entries for a scope ("key" or "prefix").
func RecordCacheInvalidation(scope string, removed int) {
	globalManager.cacheInvalidations.WithLabelValues(scope).Add(float64(removed))
}

// UpdateCacheEntries sets the number of entries held by the backend.
func UpdateCacheEntries(n int) {
	globalManager.cacheEntries.Set(float64(n))
}

// RecordRecomputeTask counts a task transition (enqueued, rejected, completed, failed).
func RecordRecomputeTask(outcome string) {
	globalManager.recomputeTasks.WithLabelValues(outcome).Inc()
}

// RecordRecomputeUnit counts one event/rank-type recompute.
func RecordRecomputeUnit(rankType, outcome string) {
	globalManager.recomputeUnits.WithLabelValues(rankType, outcome).Inc()
}

// RecordRecomputeDuration records how long a task took in milliseconds.
func RecordRecomputeDuration(latencyMs float64) {
	globalManager.recomputeDuration.Observe(latencyMs)
}

// RecordCutoverRun counts a finished cutover run.
func RecordCutoverRun(outcome string) {
	globalManager.cutoverRuns.WithLabelValues(outcome).Inc()
}

// UpdateCutoverState publishes the controller state.
func UpdateCutoverState(state int) {
	globalManager.cutoverState.Set(float64(state))
}

// RecordCutoverStageDuration records a stage duration in milliseconds.
func RecordCutoverStageDuration(stage string, latencyMs float64) {
	globalManager.cutoverStageDuration.WithLabelValues(stage).Observe(latencyMs)
}

// RecordImportedRows adds to the imported row counter for an entity.
func RecordImportedRows(entity string, n int) {
	globalManager.importedRows.WithLabelValues(entity).Add(float64(n))
}

// UpdateActiveDataset marks handle as active and the others as inactive.
func UpdateActiveDataset(active string, all ...string) {
	for _, h := range all {
		globalManager.activeDataset.WithLabelValues(h).Set(0)
	}
	globalManager.activeDataset.WithLabelValues(active).Set(1)
}

// UpdateQueueSize sets the current queue length.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets queue utilization.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue counts an accepted task.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue counts a task handed to a worker.
func RecordQueueDequeue() {
	globalManager.queueDequeued.Inc()
}

// RecordQueueEnqueueError counts a rejected task.
func RecordQueueEnqueueError(reason string) {
	globalManager.queueEnqueueErrors.WithLabelValues(reason).Inc()
}

// UpdateWorkerActiveCount sets the number of running workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records task handling time in milliseconds.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError counts a failed task.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByEndpoint records an HTTP error.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorByComponent records an error raised inside a component.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// UpdateSystemMemoryUsage sets heap usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the goroutine count.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records an average GC pause.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the registry backing the package-level helpers.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
