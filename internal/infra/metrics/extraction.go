package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	extractionLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "extraction_latency_ms",
			Help:    "Extraction call latency distribution in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		},
		[]string{"provider", "success"},
	)

	extractionPagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extraction_pages_total",
			Help: "Pages returned by the extraction service per provider.",
		},
		[]string{"provider"},
	)
)

func ObserveExtraction(provider string, latencyMs int64, pages int, success bool) {
	extractionLatencyMs.WithLabelValues(norm(provider), strconv.FormatBool(success)).Observe(float64(latencyMs))
	if success && pages > 0 {
		extractionPagesTotal.WithLabelValues(norm(provider)).Add(float64(pages))
	}
}
