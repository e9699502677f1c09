package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(invoicesProcessedTotal, invoiceClaimsTotal, staleLeasesRecoveredTotal, invoiceAttempts)
}

var invoicesProcessedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "invoices_processed_total",
		Help: "Total number of invoice jobs finished, labeled by outcome.",
	},
	[]string{"outcome"}, // 'processed', 'requeued', 'failed'
)

var invoiceClaimsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "invoice_claims_total",
		Help: "Claim attempts against the job queue, labeled by result.",
	},
	[]string{"result"}, // 'claimed', 'empty', 'error'
)

var staleLeasesRecoveredTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "invoice_stale_leases_recovered_total",
		Help: "Jobs returned to the queue by the stale-lease sweep.",
	},
)

var invoiceAttempts = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "invoice_attempts",
		Help:    "Attempt count observed when a job reaches a terminal state.",
		Buckets: []float64{1, 2, 3},
	},
)

func IncInvoiceOutcome(outcome string) {
	invoicesProcessedTotal.WithLabelValues(norm(outcome)).Inc()
}

func IncClaim(result string) {
	invoiceClaimsTotal.WithLabelValues(norm(result)).Inc()
}

func AddStaleLeasesRecovered(n int) {
	staleLeasesRecoveredTotal.Add(float64(n))
}

func ObserveTerminalAttempts(n int) {
	invoiceAttempts.Observe(float64(n))
}
