package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	usagePagesCharged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "usage_pages_charged_total",
			Help: "Pages debited from user accounts.",
		},
	)

	usageCreditsCharged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "usage_credits_charged_total",
			Help: "Credits debited from user accounts.",
		},
	)

	usageChargesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "usage_charges_total",
			Help: "Charge attempts by result ('charged', 'duplicate', 'insufficient', 'precheck_blocked', 'error').",
		},
		[]string{"result"},
	)
)

func ObserveCharge(pages int, credits int64) {
	usagePagesCharged.Add(float64(pages))
	usageCreditsCharged.Add(float64(credits))
	usageChargesTotal.WithLabelValues("charged").Inc()
}

func IncChargeResult(result string) {
	usageChargesTotal.WithLabelValues(norm(result)).Inc()
}
