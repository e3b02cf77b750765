//go:build !integration

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	t.Run("should normalise label values", func(t *testing.T) {
		// --- Arrange ---
		before := testutil.ToFloat64(batchFilesProcessedTotal.WithLabelValues("failed", "transient"))

		// --- Act ---
		IncFileProcessed(" Failed ", "TRANSIENT")

		// --- Assert ---
		after := testutil.ToFloat64(batchFilesProcessedTotal.WithLabelValues("failed", "transient"))
		if after-before != 1 {
			t.Errorf("expected counter to grow by 1, got %v", after-before)
		}
	})

	t.Run("should add pages and credits on charge", func(t *testing.T) {
		// --- Arrange ---
		pages := testutil.ToFloat64(usagePagesCharged)
		credits := testutil.ToFloat64(usageCreditsCharged)

		// --- Act ---
		ObserveCharge(7, 14)

		// --- Assert ---
		if got := testutil.ToFloat64(usagePagesCharged) - pages; got != 7 {
			t.Errorf("expected 7 pages, got %v", got)
		}
		if got := testutil.ToFloat64(usageCreditsCharged) - credits; got != 14 {
			t.Errorf("expected 14 credits, got %v", got)
		}
	})

	t.Run("should register every collector once", func(t *testing.T) {
		MustRegister()
		MustRegister()
	})

	t.Run("should expose every collector on a fresh registry", func(t *testing.T) {
		// --- Arrange ---
		reg := prometheus.NewRegistry()

		// --- Act ---
		err := Register(reg)
		again := Register(reg)

		// --- Assert ---
		if err != nil || again != nil {
			t.Fatalf("expected registration to succeed twice, got %v / %v", err, again)
		}
		IncSweep("busy")
		n, err := testutil.GatherAndCount(reg, "batch_sweeps_total")
		if err != nil || n == 0 {
			t.Errorf("expected the sweep counter to be gathered, got %d / %v", n, err)
		}
	})
}
