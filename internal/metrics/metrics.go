package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Agent Engine Metrics
var (
	// Request counters
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relaydesk",
			Subsystem: "agent",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// Request duration histogram
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "relaydesk",
			Subsystem: "agent",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	// Governed decisions by action and reason
	DecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relaydesk",
			Subsystem: "agent",
			Name:      "decisions_total",
			Help:      "Total governed decisions by action and reason",
		},
		[]string{"action", "reason"},
	)

	// Pipeline stage duration
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "relaydesk",
			Subsystem: "agent",
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"stage"},
	)

	// Retrieval candidate counts
	RetrievalCandidates = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "relaydesk",
			Subsystem: "agent",
			Name:      "retrieval_candidates",
			Help:      "Number of candidates returned per retrieval",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 32},
		},
	)

	// Embedding duration
	EmbeddingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "relaydesk",
			Subsystem: "agent",
			Name:      "embedding_duration_seconds",
			Help:      "Embedding computation duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10},
		},
	)

	// Ticket side effects
	TicketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relaydesk",
			Subsystem: "agent",
			Name:      "tickets_total",
			Help:      "Ticket side-effect outcomes",
		},
		[]string{"outcome"},
	)

	// Generation retries
	GenerationRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "relaydesk",
			Subsystem: "agent",
			Name:      "generation_retries_total",
			Help:      "Total answer generation retries",
		},
	)

	// Cache hits
	CacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relaydesk",
			Subsystem: "agent",
			Name:      "cache_hits_total",
			Help:      "Total cache hits",
		},
		[]string{"cache_type"},
	)

	// Cache misses
	CacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relaydesk",
			Subsystem: "agent",
			Name:      "cache_misses_total",
			Help:      "Total cache misses",
		},
		[]string{"cache_type"},
	)
)

// Handler returns the Prometheus metrics handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records an HTTP request
func RecordRequest(method, endpoint, status string, durationSec float64) {
	RequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	RequestDuration.WithLabelValues(method, endpoint).Observe(durationSec)
}

// RecordDecision records a governed decision
func RecordDecision(action, reason string) {
	DecisionsTotal.WithLabelValues(action, reason).Inc()
}

// RecordStage records a pipeline stage duration
func RecordStage(stage string, durationSec float64) {
	StageDuration.WithLabelValues(stage).Observe(durationSec)
}

// RecordRetrieval records the candidate count of a retrieval
func RecordRetrieval(candidates int) {
	RetrievalCandidates.Observe(float64(candidates))
}

// RecordEmbedding records embedding computation time
func RecordEmbedding(durationSec float64) {
	EmbeddingDuration.Observe(durationSec)
}

// RecordTicket records a ticket side-effect outcome ("created" or "reused")
func RecordTicket(outcome string) {
	TicketsTotal.WithLabelValues(outcome).Inc()
}

// RecordGenerationRetry records an answer generation retry
func RecordGenerationRetry() {
	GenerationRetriesTotal.Inc()
}

// RecordCacheHit records a cache hit
func RecordCacheHit(cacheType string) {
	CacheHitsTotal.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss records a cache miss
func RecordCacheMiss(cacheType string) {
	CacheMissesTotal.WithLabelValues(cacheType).Inc()
}
