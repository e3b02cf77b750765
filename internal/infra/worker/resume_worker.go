package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"docbatch/internal/domain"
	"docbatch/internal/domain/model"
	"docbatch/internal/domain/ports/repository"
	"docbatch/internal/infra/logging"
	"docbatch/internal/usecase"
)

// Sweeper runs one processing pass over a job.
type Sweeper interface {
	Process(ctx context.Context, userID, jobID string) (*usecase.SweepResult, error)
}

type ResumeOptions struct {
	Interval    time.Duration
	ResumeAfter time.Duration
	BatchSize   int
}

// ResumeWorker picks up processing jobs nobody has swept for a while, such
// as jobs whose request timed out or whose process died mid-sweep.
type ResumeWorker struct {
	jobs    repository.BatchJobRepository
	sweeper Sweeper
	opts    ResumeOptions
	log     *zerolog.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewResumeWorker(jobs repository.BatchJobRepository, sweeper Sweeper, opts ResumeOptions, logger *zerolog.Logger) *ResumeWorker {
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.ResumeAfter <= 0 {
		opts.ResumeAfter = 2 * time.Minute
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 20
	}
	l := logger.With().Str("component", "ResumeWorker").Logger()
	return &ResumeWorker{jobs: jobs, sweeper: sweeper, opts: opts, log: &l, inFlight: map[string]struct{}{}}
}

// Run polls until ctx ends. It should be run in a goroutine.
func (w *ResumeWorker) Run(ctx context.Context, pool *Pool) error {
	w.log.Info().Dur("interval", w.opts.Interval).Msg("resume worker started")
	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("resume worker stopping")
			return ctx.Err()
		case <-ticker.C:
			w.Poll(ctx, pool)
		}
	}
}

// Poll submits a sweep for every stale job not already queued and returns
// how many were submitted.
func (w *ResumeWorker) Poll(ctx context.Context, pool *Pool) int {
	before := time.Now().UTC().Add(-w.opts.ResumeAfter)
	stale, err := w.jobs.ListStale(ctx, nil, model.JobStatusProcessing, before, w.opts.BatchSize)
	if err != nil {
		w.log.Error().Err(err).Msg("list stale jobs")
		return 0
	}

	n := 0
	for _, job := range stale {
		if !w.claim(job.ID) {
			continue
		}
		job := job
		err := pool.Submit(func(ctx context.Context) error {
			defer w.release(job.ID)
			return w.resume(ctx, job)
		})
		if err != nil {
			w.release(job.ID)
			w.log.Debug().Err(err).Str("job_id", job.ID).Msg("resume deferred")
			break
		}
		n++
	}
	return n
}

func (w *ResumeWorker) resume(ctx context.Context, job *model.BatchJob) error {
	ctx = logging.WithJobID(logging.WithUserID(ctx, job.UserID), job.ID)
	log := logging.With(ctx, w.log)

	res, err := w.sweeper.Process(ctx, job.UserID, job.ID)
	switch {
	case errors.Is(err, domain.ErrJobTerminal), errors.Is(err, domain.ErrJobNotReady):
		log.Debug().Err(err).Msg("resume skipped")
		return nil
	case err != nil:
		return err
	}
	log.Info().
		Str("status", string(res.Status)).
		Int("processed", len(res.Processed)).
		Int("remaining", res.Remaining).
		Bool("done", res.Done).
		Msg("job resumed")
	return nil
}

func (w *ResumeWorker) claim(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, busy := w.inFlight[id]; busy {
		return false
	}
	w.inFlight[id] = struct{}{}
	return true
}

func (w *ResumeWorker) release(id string) {
	w.mu.Lock()
	delete(w.inFlight, id)
	w.mu.Unlock()
}
