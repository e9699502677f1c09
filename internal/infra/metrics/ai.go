package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(aiCallsLatencyMs) }

var aiCallsLatencyMs = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "ai_calls_latency_ms",
		Help:    "AI collaborator call latency distribution in milliseconds.",
		Buckets: []float64{50, 100, 250, 500, 1000, 2000, 4000, 8000, 16000, 30000},
	},
	[]string{"engine", "provider", "success"},
)

func ObserveAICall(engine, provider string, latencyMs int, success bool) {
	aiCallsLatencyMs.
		WithLabelValues(norm(engine), norm(provider), strconv.FormatBool(success)).
		Observe(float64(latencyMs))
}
