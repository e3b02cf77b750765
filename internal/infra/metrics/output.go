package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	mergesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_merges_total",
			Help: "Merged outputs produced, labeled by format.",
		},
		[]string{"format"},
	)

	mergeBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "batch_merge_bytes",
			Help:    "Size of merged artifacts in bytes.",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
		},
		[]string{"format"},
	)

	downloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_downloads_total",
			Help: "Download attempts by outcome ('served', 'rejected', 'missing').",
		},
		[]string{"outcome"},
	)

	artifactsPurgedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "batch_artifacts_purged_total",
			Help: "Expired merged artifacts removed from disk.",
		},
	)
)

func ObserveMerge(format string, size int64) {
	mergesTotal.WithLabelValues(norm(format)).Inc()
	mergeBytes.WithLabelValues(norm(format)).Observe(float64(size))
}

func IncDownload(outcome string) {
	downloadsTotal.WithLabelValues(norm(outcome)).Inc()
}

func IncArtifactPurged() {
	artifactsPurgedTotal.Inc()
}
