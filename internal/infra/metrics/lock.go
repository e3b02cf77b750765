package metrics

import "github.com/prometheus/client_golang/prometheus"

var sweepLockRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sweep_lock_requests_total",
		Help: "Tracks sweep lock acquisitions and contention.",
	},
	[]string{"result"}, // 'acquired', 'busy', 'error'
)

func IncSweepLock(result string) {
	sweepLockRequestsTotal.WithLabelValues(norm(result)).Inc()
}
