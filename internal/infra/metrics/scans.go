package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(scansTotal, scanFilesTotal) }

var scansTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "scans_total",
		Help: "Discovery scans by terminal status.",
	},
	[]string{"status"}, // 'completed', 'failed'
)

var scanFilesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "scan_files_total",
		Help: "Per-file scan outcomes.",
	},
	[]string{"outcome"}, // 'new', 'existing', 'skipped', 'error'
)

func IncScan(status string) {
	scansTotal.WithLabelValues(norm(status)).Inc()
}

func IncScanFile(outcome string) {
	scanFilesTotal.WithLabelValues(norm(outcome)).Inc()
}
