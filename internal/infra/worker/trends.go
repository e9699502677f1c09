package worker

import (
	"fmt"
	"math"

	"invoice-intel/internal/domain/model"
)

// anomalyThreshold flags a total deviating from the historical mean by more
// than this fraction of the mean.
const anomalyThreshold = 0.2

// AnalyzeTrends compares the current invoice total against the totals of
// prior processed invoices for the same shop and supplier. It never fails:
// with no history it records an explanatory note and skips the numbers.
func AnalyzeTrends(current *model.Invoice, history []*model.Invoice) *model.TrendAnalysis {
	ta := &model.TrendAnalysis{}
	if len(current.LineItems) == 0 {
		ta.Anomalies = append(ta.Anomalies, "invoice has no line items")
	}
	if len(history) == 0 {
		ta.Note = "no prior processed invoices for this shop and supplier"
		return ta
	}

	totals := make([]float64, 0, len(history))
	for _, h := range history {
		totals = append(totals, h.Totals.Total)
	}
	m := mean(totals)
	dev := current.Totals.Total - m
	vol := stddev(totals, m)

	ta.PriceChange = &dev
	ta.Volatility = &vol
	if m != 0 {
		pct := dev / m * 100
		ta.PriceChangePercent = &pct
	}
	if m != 0 && math.Abs(dev) > anomalyThreshold*math.Abs(m) {
		ta.Anomalies = append(ta.Anomalies,
			fmt.Sprintf("total %.2f deviates more than %.0f%% from historical mean %.2f",
				current.Totals.Total, anomalyThreshold*100, m))
	}
	return ta
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stddev is the population standard deviation around the given mean.
func stddev(xs []float64, m float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)))
}
