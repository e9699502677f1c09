package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(stageLatencyMs, stageErrorsTotal) }

var stageLatencyMs = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "pipeline_stage_latency_ms",
		Help:    "Per-stage pipeline latency distribution in milliseconds.",
		Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 15000, 60000},
	},
	[]string{"stage"},
)

var stageErrorsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pipeline_stage_errors_total",
		Help: "Stage failures by stage name.",
	},
	[]string{"stage"},
)

func ObserveStage(stage string, ms int) {
	stageLatencyMs.WithLabelValues(norm(stage)).Observe(float64(ms))
}

func IncStageError(stage string) {
	stageErrorsTotal.WithLabelValues(norm(stage)).Inc()
}
