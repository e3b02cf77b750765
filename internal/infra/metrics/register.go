package metrics

import (
	"errors"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// Collectors lists every pipeline collector.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		buildInfo,
		dbPoolStats,
		batchJobTransitionsTotal, batchSweepsTotal,
		batchFilesProcessedTotal, batchUploadsTotal,
		extractionLatencyMs, extractionPagesTotal,
		usagePagesCharged, usageCreditsCharged, usageChargesTotal,
		sweepLockRequestsTotal,
		mergesTotal, mergeBytes, downloadsTotal, artifactsPurgedTotal,
	}
}

// Register adds the pipeline collectors to reg. Collectors already present are skipped.
func Register(reg prometheus.Registerer) error {
	for _, c := range Collectors() {
		if err := reg.Register(c); err != nil {
			var dup prometheus.AlreadyRegisteredError
			if errors.As(err, &dup) {
				continue
			}
			return err
		}
	}
	return nil
}

// MustRegister registers into the default registry served on /metrics.
func MustRegister() {
	if err := Register(prometheus.DefaultRegisterer); err != nil {
		panic(err)
	}
}

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
