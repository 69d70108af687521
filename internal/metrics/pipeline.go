package metrics

import "github.com/prometheus/client_golang/prometheus"

// Recommendation pipeline Prometheus metrics.
var (
	FallbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "matchdex",
			Name:      "fallback_total",
			Help:      "Pipeline stages that degraded to their fallback",
		},
		[]string{"stage"},
	)

	LLMRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "matchdex",
			Name:      "llm_requests_total",
			Help:      "LLM completion calls by pipeline call site",
		},
		[]string{"call", "status"}, // status: ok, error, timeout, malformed, open
	)

	LLMRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "matchdex",
			Name:      "llm_request_duration_seconds",
			Help:      "LLM completion latency in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
		},
		[]string{"call"},
	)

	RetrievalBreadthTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "matchdex",
			Name:      "retrieval_breadth_total",
			Help:      "Vector index queries by search breadth",
		},
		[]string{"breadth"},
	)

	RetrievalCandidates = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "matchdex",
			Name:      "retrieval_candidates",
			Help:      "Candidates returned per retrieval by source",
			Buckets:   []float64{0, 1, 5, 10, 20, 50},
		},
		[]string{"source"}, // vector, fallback
	)

	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "matchdex",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state: 0 closed, 1 half-open, 2 open",
		},
		[]string{"name"},
	)

	HydrationProfiles = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "matchdex",
			Name:      "hydration_profiles",
			Help:      "Profiles held in the hydration snapshot",
		},
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers recommendation pipeline metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(FallbackTotal)
	prometheus.MustRegister(LLMRequestsTotal)
	prometheus.MustRegister(LLMRequestDuration)
	prometheus.MustRegister(RetrievalBreadthTotal)
	prometheus.MustRegister(RetrievalCandidates)
	prometheus.MustRegister(BreakerState)
	prometheus.MustRegister(HydrationProfiles)
	pipelineMetricsRegistered = true
}
