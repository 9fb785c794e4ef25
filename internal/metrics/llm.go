package metrics

import "github.com/prometheus/client_golang/prometheus"

// LLM provider Prometheus metrics, shared by the embedding and completion
// transports. The "kind" label is "embedding" or "completion".
var (
	LLMRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "openregulations",
			Name:      "llm_requests_total",
			Help:      "Total number of LLM provider requests",
		},
		[]string{"kind", "model", "status"},
	)

	LLMRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "openregulations",
			Name:      "llm_request_duration_seconds",
			Help:      "LLM provider request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"kind", "model"},
	)

	LLMTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "openregulations",
			Name:      "llm_tokens_total",
			Help:      "Total LLM tokens consumed",
		},
		[]string{"kind", "model", "type"},
	)

	LLMErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "openregulations",
			Name:      "llm_errors_total",
			Help:      "Total LLM provider errors",
		},
		[]string{"kind", "model", "error_type"},
	)

	QuotaDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "openregulations",
			Name:      "quota_decisions_total",
			Help:      "Chat quota check outcomes",
		},
		[]string{"decision"}, // "allowed" / "denied" / "fail_open"
	)
)

var llmMetricsRegistered bool

// RegisterLLMMetrics registers LLM and quota metrics. Must be called once from main.
func RegisterLLMMetrics() {
	if llmMetricsRegistered {
		return
	}
	prometheus.MustRegister(LLMRequestsTotal)
	prometheus.MustRegister(LLMRequestDuration)
	prometheus.MustRegister(LLMTokensTotal)
	prometheus.MustRegister(LLMErrorsTotal)
	prometheus.MustRegister(QuotaDecisionsTotal)
	llmMetricsRegistered = true
}
