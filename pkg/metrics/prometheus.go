// Package metrics provides Prometheus metrics for the trust score engine.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	scoreBuckets     []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Ledger
	eventsRecorded   *prometheus.CounterVec
	eventsDuplicate  prometheus.Counter
	eventsRejected   *prometheus.CounterVec
	scoringLatency   prometheus.Histogram
	scoreMu          sync.RWMutex
	resultingScore   prometheus.Histogram
	scoreClamped     *prometheus.CounterVec
	levelTransitions *prometheus.CounterVec
	historyQueries   prometheus.Counter
	profilesTracked  prometheus.Gauge
	verifyMismatches prometheus.Counter

	// Concurrency guard
	lockBusy *prometheus.CounterVec
	lockWait *prometheus.HistogramVec

	// Store
	storeAppendLatency *prometheus.HistogramVec
	storeQueryLatency  *prometheus.HistogramVec
	storeConflicts     prometheus.Counter

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

var globalManager *Manager //nolint:gochecknoglobals // singleton used by the Record* helpers

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // shared with the /metrics handler

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "trust",
		subsystem:        "engine",
		histogramBuckets: []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		scoreBuckets:     ScoreBuckets(0, 1000),
		constLabels:      map[string]string{},
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

func (m *Manager) resultingScoreOpts() prometheus.HistogramOpts {
	return m.histogramOpts("resulting_score", "Distribution of scores after each recorded event", m.scoreBuckets)
}

// ScoreBuckets spreads ten equal-width buckets over [minScore, maxScore].
// It returns nil for an empty range.
func ScoreBuckets(minScore, maxScore int) []float64 {
	if maxScore <= minScore {
		return nil
	}
	return prometheus.LinearBuckets(float64(minScore), float64(maxScore-minScore)/10, 11)
}

// SetScoreBounds replaces the resulting-score histogram with one whose
// buckets cover [minScore, maxScore]. Observations recorded so far are
// dropped. An empty range is ignored.
func (m *Manager) SetScoreBounds(minScore, maxScore int) {
	buckets := ScoreBuckets(minScore, maxScore)
	if buckets == nil {
		return
	}

	m.scoreMu.Lock()
	defer m.scoreMu.Unlock()
	m.registry.Unregister(m.resultingScore)
	m.scoreBuckets = buckets
	h := prometheus.NewHistogram(m.resultingScoreOpts())
	if err := m.registry.Register(h); err != nil {
		// Restore the previous collector.
		_ = m.registry.Register(m.resultingScore)
		return
	}
	m.resultingScore = h
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.eventsRecorded = auto.NewCounterVec(
		m.counterOpts("events_recorded_total", "Events appended to the ledger by event type"),
		[]string{"event_type"},
	)
	m.eventsDuplicate = auto.NewCounter(
		m.counterOpts("events_duplicate_total", "Submissions answered from an existing event id"),
	)
	m.eventsRejected = auto.NewCounterVec(
		m.counterOpts("events_rejected_total", "Submissions rejected before reaching the ledger"),
		[]string{"reason"},
	)
	m.scoringLatency = auto.NewHistogram(
		m.histogramOpts("record_latency_milliseconds", "Time to record one event, lock wait included", m.histogramBuckets),
	)
	m.resultingScore = auto.NewHistogram(m.resultingScoreOpts())
	m.scoreClamped = auto.NewCounterVec(
		m.counterOpts("score_clamped_total", "Events whose delta was cut at a score bound"),
		[]string{"bound"},
	)
	m.levelTransitions = auto.NewCounterVec(
		m.counterOpts("level_transitions_total", "Level changes caused by recorded events"),
		[]string{"from", "to"},
	)
	m.historyQueries = auto.NewCounter(
		m.counterOpts("history_queries_total", "History pages served"),
	)
	m.profilesTracked = auto.NewGauge(
		m.gaugeOpts("profiles_tracked", "Users with at least one recorded event"),
	)
	m.verifyMismatches = auto.NewCounter(
		m.counterOpts("verify_mismatches_total", "Profiles whose stored score disagreed with the ledger fold"),
	)

	m.lockBusy = auto.NewCounterVec(
		m.counterOpts("lock_busy_total", "Lock acquisitions that gave up waiting"),
		[]string{"backend"},
	)
	m.lockWait = auto.NewHistogramVec(
		m.histogramOpts("lock_wait_milliseconds", "Time spent waiting for a user's lock", m.histogramBuckets),
		[]string{"backend"},
	)

	m.storeAppendLatency = auto.NewHistogramVec(
		m.histogramOpts("store_append_latency_milliseconds", "Latency of the event and profile write", m.histogramBuckets),
		[]string{"driver"},
	)
	m.storeQueryLatency = auto.NewHistogramVec(
		m.histogramOpts("store_query_latency_milliseconds", "Latency of store reads", m.histogramBuckets),
		[]string{"driver", "op"},
	)
	m.storeConflicts = auto.NewCounter(
		m.counterOpts("store_conflicts_total", "Appends rejected by the version check"),
	)

	m.httpRequests = auto.NewCounterVec(
		m.counterOpts("http_requests_total", "Total number of HTTP requests by endpoint and method"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = auto.NewHistogramVec(
		m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds", m.histogramBuckets),
		[]string{"endpoint", "method", "status_code"},
	)

	m.errorRateByComponent = auto.NewCounterVec(
		m.counterOpts("errors_by_component_total", "Errors by component and type"),
		[]string{"component", "error_type"},
	)
	m.errorRateByType = auto.NewCounterVec(
		m.counterOpts("errors_by_type_total", "Errors by type and severity"),
		[]string{"error_type", "severity"},
	)
	m.errorRateByEndpoint = auto.NewCounterVec(
		m.counterOpts("errors_by_endpoint_total", "Errors by endpoint, method and type"),
		[]string{"endpoint", "method", "error_type"},
	)
	m.errorLatency = auto.NewHistogramVec(
		m.histogramOpts("error_latency_milliseconds", "Latency of operations that ended in an error", m.histogramBuckets),
		[]string{"component", "error_type"},
	)

	m.systemMemoryUsage = auto.NewGauge(
		m.gaugeOpts("system_memory_bytes", "Heap bytes in use"),
	)
	m.systemGoroutineCount = auto.NewGauge(
		m.gaugeOpts("system_goroutines", "Number of goroutines"),
	)
	m.systemGCPauseTime = auto.NewHistogram(
		m.histogramOpts("system_gc_pause_milliseconds", "Most recent GC pause", m.histogramBuckets),
	)
}

// Ledger Metrics Functions.

// RecordEventRecorded counts an appended event of eventType.
func RecordEventRecorded(eventType string) {
	globalManager.eventsRecorded.WithLabelValues(eventType).Inc()
}

// RecordEventDuplicate counts a submission answered from an existing event id.
func RecordEventDuplicate() {
	globalManager.eventsDuplicate.Inc()
}

// RecordEventRejected counts a rejected submission.
func RecordEventRejected(reason string) {
	globalManager.eventsRejected.WithLabelValues(reason).Inc()
}

// RecordScoringLatency records the end-to-end latency of one RecordEvent.
func RecordScoringLatency(latencyMs float64) {
	globalManager.scoringLatency.Observe(latencyMs)
}

// RecordResultingScore observes a post-event score.
func RecordResultingScore(score int) {
	globalManager.scoreMu.RLock()
	defer globalManager.scoreMu.RUnlock()
	globalManager.resultingScore.Observe(float64(score))
}

// SetScoreBounds fits the global resulting-score buckets to the configured bounds.
func SetScoreBounds(minScore, maxScore int) {
	globalManager.SetScoreBounds(minScore, maxScore)
}

// RecordScoreClamped counts a delta cut at bound ("min" or "max").
func RecordScoreClamped(bound string) {
	globalManager.scoreClamped.WithLabelValues(bound).Inc()
}

// RecordLevelTransition counts a level change.
func RecordLevelTransition(from, to string) {
	globalManager.levelTransitions.WithLabelValues(from, to).Inc()
}

// RecordHistoryQuery counts a served history page.
func RecordHistoryQuery() {
	globalManager.historyQueries.Inc()
}

// UpdateProfilesTracked sets the number of known users.
func UpdateProfilesTracked(count int) {
	globalManager.profilesTracked.Set(float64(count))
}

// RecordVerifyMismatch counts a profile that disagreed with its ledger.
func RecordVerifyMismatch() {
	globalManager.verifyMismatches.Inc()
}

// Lock Metrics Functions.

// RecordLockBusy counts a lock acquisition that timed out or was cancelled.
func RecordLockBusy(backend string) {
	globalManager.lockBusy.WithLabelValues(backend).Inc()
}

// RecordLockWait records how long a caller waited for its lock.
func RecordLockWait(backend string, latencyMs float64) {
	globalManager.lockWait.WithLabelValues(backend).Observe(latencyMs)
}

// Store Metrics Functions.

// RecordStoreAppendLatency records the latency of an append.
func RecordStoreAppendLatency(driver string, latencyMs float64) {
	globalManager.storeAppendLatency.WithLabelValues(driver).Observe(latencyMs)
}

// RecordStoreQueryLatency records the latency of a read.
func RecordStoreQueryLatency(driver, op string, latencyMs float64) {
	globalManager.storeQueryLatency.WithLabelValues(driver, op).Observe(latencyMs)
}

// RecordStoreConflict counts an append rejected by the version check.
func RecordStoreConflict() {
	globalManager.storeConflicts.Inc()
}

// HTTP Metrics Functions.

// RecordHTTPRequest increments the HTTP request counter.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Error Metrics Functions.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorLatency records the latency of an operation that resulted in an error.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// System Metrics Functions.

// UpdateSystemMemoryUsage sets the heap usage in bytes.
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
