// Package metrics exposes the pipeline's operational counters to
// Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "trailhound"

// Metrics holds every instrument the pipeline records into. Construct
// one per process and share it; all methods are safe for concurrent
// use.
type Metrics struct {
	registry *prometheus.Registry

	connectorRequests *prometheus.CounterVec
	connectorLatency  *prometheus.HistogramVec
	cacheLookups      *prometheus.CounterVec
	rateLimitWaits    prometheus.Counter
	securityRejected  prometheus.Counter
	contentRedacted   prometheus.Counter
	candidatesParsed  *prometheus.CounterVec
	entitiesResolved  prometheus.Histogram
	investigations    *prometheus.CounterVec
	runDuration       prometheus.Histogram
	activeRuns        prometheus.Gauge
	stageDuration     *prometheus.HistogramVec
}

// New creates the instrument set on its own registry
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		connectorRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connector_requests_total",
			Help:      "Connector search calls by source and outcome",
		}, []string{"source", "outcome"}),
		connectorLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "connector_latency_seconds",
			Help:      "Connector search latency by source",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		}, []string{"source"}),
		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Result-cache lookups by outcome (hit, miss, coalesced)",
		}, []string{"outcome"}),
		rateLimitWaits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_waits_total",
			Help:      "Requests that waited on a rate-limit token or backoff window",
		}),
		securityRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_security_rejected_total",
			Help:      "Planned queries rejected by the blocked-pattern screen",
		}),
		contentRedacted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "content_redacted_total",
			Help:      "Raw results redacted by the parser security screen",
		}),
		candidatesParsed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_parsed_total",
			Help:      "Entity candidates extracted, by entity type",
		}, []string{"entity_type"}),
		entitiesResolved: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "entities_resolved",
			Help:      "Resolved entity count per investigation",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		investigations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "investigations_total",
			Help:      "Investigations reaching a terminal status",
		}, []string{"status"}),
		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "investigation_duration_seconds",
			Help:      "Wall time from submission to terminal status",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 14), // 1s to ~2h
		}),
		activeRuns: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "investigations_active",
			Help:      "Investigations currently running",
		}),
		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time spent per pipeline stage",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14), // 100ms to ~13min
		}, []string{"stage"}),
	}
}

// Registry exposes the backing registry for the /metrics handler
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ConnectorRequest(source, outcome string, latency time.Duration) {
	m.connectorRequests.WithLabelValues(source, outcome).Inc()
	m.connectorLatency.WithLabelValues(source).Observe(latency.Seconds())
}

func (m *Metrics) CacheLookup(outcome string) {
	m.cacheLookups.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RateLimitWait() {
	m.rateLimitWaits.Inc()
}

func (m *Metrics) SecurityRejected() {
	m.securityRejected.Inc()
}

func (m *Metrics) ContentRedacted() {
	m.contentRedacted.Inc()
}

func (m *Metrics) CandidateParsed(entityType string) {
	m.candidatesParsed.WithLabelValues(entityType).Inc()
}

func (m *Metrics) EntitiesResolved(count int) {
	m.entitiesResolved.Observe(float64(count))
}

func (m *Metrics) InvestigationStarted() {
	m.activeRuns.Inc()
}

func (m *Metrics) InvestigationFinished(status string, took time.Duration) {
	m.activeRuns.Dec()
	m.investigations.WithLabelValues(status).Inc()
	m.runDuration.Observe(took.Seconds())
}

func (m *Metrics) StageDuration(stage string, d time.Duration) {
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}
