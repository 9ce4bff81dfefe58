// Package metrics provides Prometheus metrics for the PULSE trending engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the trending engine.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Ingestion
	eventsIngested  prometheus.Counter
	eventsDuplicate prometheus.Counter
	eventsDropped   prometheus.Counter
	recordLatency   prometheus.Histogram

	// Recomputation
	recomputeTotal    prometheus.Counter
	recomputeFailures prometheus.Counter
	recomputeLatency  prometheus.Histogram

	// Debounced scheduler
	schedulerPending *prometheus.GaugeVec
	schedulerFlushes *prometheus.CounterVec

	// Ranked sets
	rankedSetSize *prometheus.GaugeVec

	// Circuit breaker
	breakerState       *prometheus.GaugeVec
	breakerTransitions *prometheus.CounterVec
	breakerRejected    *prometheus.CounterVec

	// Caches (tier label: result, counts, meta_local, meta_shared)
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	// Fallback + durable sync
	fallbackReads    *prometheus.CounterVec
	syncRuns         *prometheus.CounterVec
	syncItemFailures *prometheus.CounterVec
	syncDuration     prometheus.Histogram

	// Ingestion queue
	queueSize     prometheus.Gauge
	queueCapacity prometheus.Gauge

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "pulse",
		subsystem:        "trending",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) initializeMetrics() { //nolint:funlen // metric registration is one long list by nature
	auto := promauto.With(m.registry)

	m.eventsIngested = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_ingested_total",
		Help:      "Total number of item events accepted for processing",
	})

	m.eventsDuplicate = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_duplicate_total",
		Help:      "Total number of duplicate item events detected",
	})

	m.eventsDropped = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_dropped_total",
		Help:      "Total number of item events dropped due to queue backpressure",
	})

	m.recordLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "record_event_latency_milliseconds",
		Help:      "Histogram of counter-store write latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.recomputeTotal = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "recompute_total",
		Help:      "Total number of per-item score recomputations",
	})

	m.recomputeFailures = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "recompute_failures_total",
		Help:      "Total number of failed score recomputations",
	})

	m.recomputeLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "recompute_latency_milliseconds",
		Help:      "Histogram of score recomputation latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.schedulerPending = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "scheduler_pending_items",
		Help:      "Number of item ids pending recomputation per category",
	}, []string{"category"})

	m.schedulerFlushes = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "scheduler_flushes_total",
		Help:      "Total number of debounce timer firings per category",
	}, []string{"category"})

	m.rankedSetSize = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "ranked_set_size",
		Help:      "Number of items in the ranked set per category",
	}, []string{"category"})

	m.breakerState = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "breaker_state",
		Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
	}, []string{"name"})

	m.breakerTransitions = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "breaker_transitions_total",
		Help:      "Total number of circuit breaker state transitions",
	}, []string{"name", "from", "to"})

	m.breakerRejected = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "breaker_rejected_total",
		Help:      "Total number of calls rejected by an open circuit breaker",
	}, []string{"name"})

	m.cacheHits = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "cache_hits_total",
		Help:      "Total cache hits per tier",
	}, []string{"tier"})

	m.cacheMisses = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "cache_misses_total",
		Help:      "Total cache misses per tier",
	}, []string{"tier"})

	m.fallbackReads = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "fallback_reads_total",
		Help:      "Total reads served from durable storage instead of the fast store",
	}, []string{"category"})

	m.syncRuns = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "sync_runs_total",
		Help:      "Total durable sync runs per category",
	}, []string{"category"})

	m.syncItemFailures = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "sync_item_failures_total",
		Help:      "Total per-item failures during durable sync",
	}, []string{"category"})

	m.syncDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "sync_duration_milliseconds",
		Help:      "Histogram of durable sync run duration in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_size",
		Help:      "Current number of queued ingestion events",
	})

	m.queueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_capacity",
		Help:      "Capacity of the ingestion event queue",
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by endpoint, method and status",
	}, []string{"endpoint", "method", "status"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_milliseconds",
		Help:      "Histogram of HTTP request duration in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"endpoint", "method", "status"})

	m.errorsByComponent = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "errors_by_component_total",
		Help:      "Total errors by component and kind",
	}, []string{"component", "kind"})

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_memory_bytes",
		Help:      "Current process heap usage in bytes",
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_goroutines",
		Help:      "Current number of goroutines",
	})

	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_gc_pause_milliseconds",
		Help:      "Histogram of garbage collection pause times in milliseconds",
		Buckets:   m.histogramBuckets,
	})
}

// GetRegistry returns the registry metrics are exposed from.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// Package-level helpers against the global manager.

func RecordEventIngested()  { globalManager.eventsIngested.Inc() }
func RecordEventDuplicate() { globalManager.eventsDuplicate.Inc() }
func RecordEventDropped()   { globalManager.eventsDropped.Inc() }

func RecordStoreWriteLatency(ms float64) { globalManager.recordLatency.Observe(ms) }

func RecordRecompute()                 { globalManager.recomputeTotal.Inc() }
func RecordRecomputeFailure()          { globalManager.recomputeFailures.Inc() }
func RecordRecomputeLatency(ms float64) { globalManager.recomputeLatency.Observe(ms) }

func UpdateSchedulerPending(category string, n int) {
	globalManager.schedulerPending.WithLabelValues(category).Set(float64(n))
}

func RecordSchedulerFlush(category string) {
	globalManager.schedulerFlushes.WithLabelValues(category).Inc()
}

func UpdateRankedSetSize(category string, n int) {
	globalManager.rankedSetSize.WithLabelValues(category).Set(float64(n))
}

func UpdateBreakerState(name string, state float64) {
	globalManager.breakerState.WithLabelValues(name).Set(state)
}

func RecordBreakerTransition(name, from, to string) {
	globalManager.breakerTransitions.WithLabelValues(name, from, to).Inc()
}

func RecordBreakerRejected(name string) {
	globalManager.breakerRejected.WithLabelValues(name).Inc()
}

func RecordCacheHit(tier string)  { globalManager.cacheHits.WithLabelValues(tier).Inc() }
func RecordCacheMiss(tier string) { globalManager.cacheMisses.WithLabelValues(tier).Inc() }

func RecordFallbackRead(category string) {
	globalManager.fallbackReads.WithLabelValues(category).Inc()
}

func RecordSyncRun(category string) { globalManager.syncRuns.WithLabelValues(category).Inc() }

func RecordSyncItemFailure(category string) {
	globalManager.syncItemFailures.WithLabelValues(category).Inc()
}

func RecordSyncDuration(ms float64) { globalManager.syncDuration.Observe(ms) }

func UpdateQueueSize(n int)     { globalManager.queueSize.Set(float64(n)) }
func UpdateQueueCapacity(n int) { globalManager.queueCapacity.Set(float64(n)) }

func RecordHTTPRequest(endpoint, method, status string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, status).Inc()
}

func RecordHTTPRequestDuration(endpoint, method, status string, ms float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, status).Observe(ms)
}

func RecordErrorByComponent(component, kind string) {
	globalManager.errorsByComponent.WithLabelValues(component, kind).Inc()
}

func UpdateSystemMemoryUsage(bytes float64) { globalManager.systemMemoryUsage.Set(bytes) }
func UpdateSystemGoroutineCount(n int)      { globalManager.systemGoroutineCount.Set(float64(n)) }
func RecordSystemGCPause(ms float64)        { globalManager.systemGCPauseTime.Observe(ms) }
