package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	batchJobTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_job_transitions_total",
			Help: "Batch job status transitions, labeled by target status.",
		},
		[]string{"status"},
	)

	batchSweepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_sweeps_total",
			Help: "Processing sweeps by outcome (done, partial, busy, rejected, failed).",
		},
		[]string{"outcome"},
	)
)

func IncJobTransition(status string) {
	batchJobTransitionsTotal.WithLabelValues(norm(status)).Inc()
}

func IncSweep(outcome string) {
	batchSweepsTotal.WithLabelValues(norm(outcome)).Inc()
}
