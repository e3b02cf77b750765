package sched

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"

	"docbatch/internal/infra/metrics"
)

// Purger deletes merged artifacts whose download credential expired.
type Purger interface {
	PurgeExpired(ctx context.Context, limit int) (int, error)
}

// ArtifactJanitor periodically purges expired artifacts and samples the
// database pool gauges.
type ArtifactJanitor struct {
	interval time.Duration
	batch    int
	links    Purger
	poolStat func() *pgxpool.Stat
	log      *zerolog.Logger
}

// NewArtifactJanitor builds the janitor; poolStat may be nil.
func NewArtifactJanitor(interval time.Duration, batch int, links Purger, poolStat func() *pgxpool.Stat, logger *zerolog.Logger) *ArtifactJanitor {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if batch <= 0 {
		batch = 100
	}
	l := logger.With().Str("component", "ArtifactJanitor").Logger()
	return &ArtifactJanitor{interval: interval, batch: batch, links: links, poolStat: poolStat, log: &l}
}

func (w *ArtifactJanitor) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting artifact janitor")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping artifact janitor")
			return ctx.Err()
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce purges until a short batch comes back and returns the total.
func (w *ArtifactJanitor) RunOnce(ctx context.Context) int {
	if w.poolStat != nil {
		metrics.ObservePool(w.poolStat())
	}
	total := 0
	for ctx.Err() == nil {
		runCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		n, err := w.links.PurgeExpired(runCtx, w.batch)
		cancel()
		total += n
		if err != nil {
			w.log.Error().Err(err).Msg("artifact purge error")
			break
		}
		if n < w.batch {
			break
		}
	}
	if total > 0 {
		w.log.Info().Int("count", total).Msg("expired artifacts purged")
	}
	return total
}
