package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const defaultRefreshInterval = 10 * time.Second

// Buckets for rating deltas; a single Elo update never exceeds K=32.
var ratingDeltaBuckets = []float64{1, 2, 4, 8, 12, 16, 20, 24, 28, 32} //nolint:gochecknoglobals // constant bucket layout

// Buckets for champion leaderboard positions.
var rankBuckets = []float64{1, 2, 3, 5, 10, 25, 50, 100, 250} //nolint:gochecknoglobals // constant bucket layout

// Manager manages all Prometheus metrics for the catbracket service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Tournament flow
	tournamentsStarted   prometheus.Counter
	tournamentsCompleted prometheus.Counter
	tournamentsRestarted prometheus.Counter
	gamesNotStarted      *prometheus.CounterVec
	matchesResolved      *prometheus.CounterVec
	decisionsRejected    *prometheus.CounterVec
	ratingDelta          prometheus.Histogram
	championRank         prometheus.Histogram
	activeSessions       prometheus.Gauge
	ratedPhotos          prometheus.Gauge

	// Catalog
	catalogFetchLatency *prometheus.HistogramVec
	catalogPhotos       prometheus.Gauge

	// Rating store
	repositoryRecordsTotal  prometheus.Gauge
	repositoryUpdateLatency *prometheus.HistogramVec
	repositoryQueryLatency  *prometheus.HistogramVec

	// Mirror queue
	queueCapacity          prometheus.Gauge
	queueSize              prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueued          prometheus.Counter
	queueDequeued          prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Mirror workers
	workerActiveCount       prometheus.Gauge
	workerMessagesPerSecond prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
	errorLatency         *prometheus.HistogramVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "catbracket",
		subsystem:        "game",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		constLabels:      make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

// RefreshInterval is how often system gauges should be sampled.
func (m *Manager) RefreshInterval() time.Duration { return m.refreshInterval }

// Enabled reports whether observations are recorded.
func (m *Manager) Enabled() bool { return m.enabled }

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: buckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: m.histogramBuckets,
	}, labels)
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place to see every collector
	m.tournamentsStarted = m.counter("tournaments_started_total", "Tournaments that reached the playing state")
	m.tournamentsCompleted = m.counter("tournaments_completed_total", "Tournaments that crowned a champion")
	m.tournamentsRestarted = m.counter("tournaments_restarted_total", "Tournaments restarted because a round produced no winners")
	m.gamesNotStarted = m.counterVec("games_not_started_total", "Games that could not start, by reason", "reason")
	m.matchesResolved = m.counterVec("matches_resolved_total", "Resolved matches by outcome", "outcome")
	m.decisionsRejected = m.counterVec("decisions_rejected_total", "Decisions rejected before resolution, by reason", "reason")
	m.ratingDelta = m.histogram("rating_delta_points", "Absolute rating change applied per competitor", ratingDeltaBuckets)
	m.championRank = m.histogram("champion_rank", "Leaderboard position of crowned champions", rankBuckets)
	m.activeSessions = m.gauge("sessions_active", "Game sessions currently held in memory")
	m.ratedPhotos = m.gauge("rated_photos", "Photos with at least one recorded matchup")

	m.catalogFetchLatency = m.histogramVec("catalog_fetch_latency_milliseconds", "Photo catalog listing latency", "driver")
	m.catalogPhotos = m.gauge("catalog_photos", "Photos returned by the last catalog listing")

	m.repositoryRecordsTotal = m.gauge("repository_records_total", "Rating entries in the primary store")
	m.repositoryUpdateLatency = m.histogramVec("repository_update_latency_milliseconds", "Rating store write latency", "driver")
	m.repositoryQueryLatency = m.histogramVec("repository_query_latency_milliseconds", "Rating store read latency", "driver")

	m.queueCapacity = m.gauge("mirror_queue_capacity", "Capacity of the mirror queue")
	m.queueSize = m.gauge("mirror_queue_size", "Entries waiting in the mirror queue")
	m.queueUtilization = m.gauge("mirror_queue_utilization_ratio", "Mirror queue fill ratio (0-1)")
	m.queueEnqueued = m.counter("mirror_queue_enqueued_total", "Entries enqueued for mirroring")
	m.queueDequeued = m.counter("mirror_queue_dequeued_total", "Entries dequeued for mirroring")
	m.queueEnqueueErrors = m.counter("mirror_queue_enqueue_errors_total", "Entries dropped because the mirror queue was full or closed")
	m.queueProcessingLatency = m.histogram("mirror_queue_processing_latency_milliseconds", "Enqueue latency", m.histogramBuckets)

	m.workerActiveCount = m.gauge("mirror_workers_active", "Mirror workers currently running")
	m.workerMessagesPerSecond = m.gauge("mirror_worker_entries_per_second", "Mirrored entries per second")
	m.workerProcessingLatency = m.histogram("mirror_worker_latency_milliseconds", "Remote write latency per entry", m.histogramBuckets)
	m.workerErrors = m.counter("mirror_worker_errors_total", "Remote writes that failed")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds",
		"endpoint", "method", "status_code")

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Errors by component and type", "component", "error_type")
	m.errorRateByType = m.counterVec("errors_by_type_total", "Errors by type and severity", "error_type", "severity")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total", "Errors by endpoint", "endpoint", "method", "error_type")
	m.errorLatency = m.histogramVec("error_latency_milliseconds", "Latency of failed operations", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap bytes in use")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_milliseconds", "Most recent GC pause", m.histogramBuckets)
}

func on() bool { return globalManager != nil && globalManager.enabled }

// RefreshInterval returns the sampling interval of the global manager.
func RefreshInterval() time.Duration {
	if globalManager == nil {
		return defaultRefreshInterval
	}
	return globalManager.refreshInterval
}

// RecordTournamentStarted counts a tournament entering play.
func RecordTournamentStarted() {
	if on() {
		globalManager.tournamentsStarted.Inc()
	}
}

// RecordTournamentCompleted counts a crowned champion and its rank.
func RecordTournamentCompleted(rank int) {
	if on() {
		globalManager.tournamentsCompleted.Inc()
		globalManager.championRank.Observe(float64(rank))
	}
}

// RecordTournamentRestarted counts an automatic restart.
func RecordTournamentRestarted() {
	if on() {
		globalManager.tournamentsRestarted.Inc()
	}
}

// RecordGameNotStarted counts a game that ended in not-enough.
func RecordGameNotStarted(reason string) {
	if on() {
		globalManager.gamesNotStarted.WithLabelValues(reason).Inc()
	}
}

// RecordMatchResolved counts a resolved match ("win" or "no_decision").
func RecordMatchResolved(outcome string) {
	if on() {
		globalManager.matchesResolved.WithLabelValues(outcome).Inc()
	}
}

// RecordDecisionRejected counts a decision refused before reaching the game.
func RecordDecisionRejected(reason string) {
	if on() {
		globalManager.decisionsRejected.WithLabelValues(reason).Inc()
	}
}

// RecordRatingDelta observes the magnitude of a rating change.
func RecordRatingDelta(delta int) {
	if !on() {
		return
	}
	if delta < 0 {
		delta = -delta
	}
	globalManager.ratingDelta.Observe(float64(delta))
}

// UpdateActiveSessions sets the in-memory session count.
func UpdateActiveSessions(n int) {
	if on() {
		globalManager.activeSessions.Set(float64(n))
	}
}

// UpdateRatedPhotos sets the number of photos with history.
func UpdateRatedPhotos(n int) {
	if on() {
		globalManager.ratedPhotos.Set(float64(n))
	}
}

// RecordCatalogFetch observes a catalog listing.
func RecordCatalogFetch(driver string, latencyMs float64, photos int) {
	if on() {
		globalManager.catalogFetchLatency.WithLabelValues(driver).Observe(latencyMs)
		globalManager.catalogPhotos.Set(float64(photos))
	}
}

// UpdateRepositoryRecordsTotal sets the stored entry count.
func UpdateRepositoryRecordsTotal(count int) {
	if on() {
		globalManager.repositoryRecordsTotal.Set(float64(count))
	}
}

// RecordRepositoryUpdateLatency observes a store write.
func RecordRepositoryUpdateLatency(driver string, latencyMs float64) {
	if on() {
		globalManager.repositoryUpdateLatency.WithLabelValues(driver).Observe(latencyMs)
	}
}

// RecordRepositoryQueryLatency observes a store read.
func RecordRepositoryQueryLatency(driver string, latencyMs float64) {
	if on() {
		globalManager.repositoryQueryLatency.WithLabelValues(driver).Observe(latencyMs)
	}
}

// UpdateQueueCapacity sets the mirror queue capacity.
func UpdateQueueCapacity(capacity int) {
	if on() {
		globalManager.queueCapacity.Set(float64(capacity))
	}
}

// UpdateQueueSize sets the mirror queue backlog.
func UpdateQueueSize(size int) {
	if on() {
		globalManager.queueSize.Set(float64(size))
	}
}

// UpdateQueueUtilization sets the mirror queue fill ratio.
func UpdateQueueUtilization(utilization float64) {
	if on() {
		globalManager.queueUtilization.Set(utilization)
	}
}

// RecordQueueEnqueue counts an enqueued entry.
func RecordQueueEnqueue() {
	if on() {
		globalManager.queueEnqueued.Inc()
	}
}

// RecordQueueDequeue counts a dequeued entry.
func RecordQueueDequeue() {
	if on() {
		globalManager.queueDequeued.Inc()
	}
}

// RecordQueueEnqueueError counts a dropped entry.
func RecordQueueEnqueueError() {
	if on() {
		globalManager.queueEnqueueErrors.Inc()
	}
}

// RecordQueueProcessingLatency observes enqueue latency.
func RecordQueueProcessingLatency(latencyMs float64) {
	if on() {
		globalManager.queueProcessingLatency.Observe(latencyMs)
	}
}

// UpdateWorkerActiveCount sets the running mirror worker count.
func UpdateWorkerActiveCount(count int) {
	if on() {
		globalManager.workerActiveCount.Set(float64(count))
	}
}

// UpdateWorkerMessagesPerSecond sets the mirror throughput.
func UpdateWorkerMessagesPerSecond(rate float64) {
	if on() {
		globalManager.workerMessagesPerSecond.Set(rate)
	}
}

// RecordWorkerProcessingLatency observes one remote write.
func RecordWorkerProcessingLatency(latencyMs float64) {
	if on() {
		globalManager.workerProcessingLatency.Observe(latencyMs)
	}
}

// RecordWorkerError counts a failed remote write.
func RecordWorkerError() {
	if on() {
		globalManager.workerErrors.Inc()
	}
}

// RecordHTTPRequest counts an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if on() {
		globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	}
}

// RecordHTTPRequestDuration observes an HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	if on() {
		globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
	}
}

// RecordErrorByComponent counts an error raised by a component.
func RecordErrorByComponent(component, errorType string) {
	if on() {
		globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
	}
}

// RecordErrorByType counts an error by type and severity.
func RecordErrorByType(errorType, severity string) {
	if on() {
		globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
	}
}

// RecordErrorByEndpoint counts an HTTP error by endpoint.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	if on() {
		globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
	}
}

// RecordErrorLatency observes how long a failed operation took.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	if on() {
		globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
	}
}

// UpdateSystemMemoryUsage sets heap bytes in use.
func UpdateSystemMemoryUsage(bytes uint64) {
	if on() {
		globalManager.systemMemoryUsage.Set(float64(bytes))
	}
}

// UpdateSystemGoroutineCount sets the goroutine count.
func UpdateSystemGoroutineCount(count int) {
	if on() {
		globalManager.systemGoroutineCount.Set(float64(count))
	}
}

// RecordSystemGCPauseTime observes a GC pause.
func RecordSystemGCPauseTime(pauseMs float64) {
	if on() {
		globalManager.systemGCPauseTime.Observe(pauseMs)
	}
}

// GetRegistry returns the registry the global manager writes to.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// Configure replaces the global manager with one built from opts on a
// fresh private registry. Call it once at startup, before GetRegistry is
// handed to an exporter.
func Configure(opts ...Option) {
	reg := prometheus.NewRegistry()
	globalManager = NewManager(append(opts, WithPrometheusRegistry(reg))...)
	customRegistry = reg
}

// SetEnabled toggles recording on the global manager.
func SetEnabled(enabled bool) {
	if globalManager != nil {
		globalManager.enabled = enabled
	}
}
