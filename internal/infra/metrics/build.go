package metrics

import "github.com/prometheus/client_golang/prometheus"

var buildInfo = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "docbatch_build_info",
		Help: "A constant metric with labels for version, commit and extraction provider.",
	},
	[]string{"version", "commit", "provider"},
)

func SetBuildInfo(version, commit, provider string) {
	buildInfo.WithLabelValues(version, commit, norm(provider)).Set(1)
}
