// File: internal/usecase/batch_uc.go
package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"docbatch/internal/domain"
	"docbatch/internal/domain/model"
	"docbatch/internal/domain/ports/adapter"
	"docbatch/internal/domain/ports/repository"
	"docbatch/internal/infra/logging"
	"docbatch/internal/infra/metrics"
)

// Compile-time check
var _ BatchUseCase = (*batchUC)(nil)

type BatchUseCase interface {
	CreateJob(ctx context.Context, userID string, in CreateJobInput) (*JobView, error)
	GetJob(ctx context.Context, userID, jobID string) (*JobView, error)
	Upload(ctx context.Context, userID, jobID string, files []UploadFile) (*UploadResult, error)
	Process(ctx context.Context, userID, jobID string) (*SweepResult, error)
}

type NewJobFile struct {
	Filename       string `json:"filename"`
	EstimatedPages int    `json:"estimated_pages"`
}

type CreateJobInput struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	MergeOutput bool         `json:"merge_output"`
	MergeFormat string       `json:"merge_format"`
	Files       []NewJobFile `json:"files"`
}

// JobView is a job with its full file list, in upload order.
type JobView struct {
	Job   *model.BatchJob
	Files []*model.BatchFile
}

type UploadFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

type AcceptedFile struct {
	FileID         string `json:"file_id"`
	Filename       string `json:"filename"`
	EstimatedPages int    `json:"estimated_pages"`
}

type RejectedFile struct {
	Filename string `json:"filename"`
	Reason   string `json:"reason"`
}

type UploadResult struct {
	JobID    string          `json:"job_id"`
	Status   model.JobStatus `json:"status"`
	Accepted []AcceptedFile  `json:"accepted"`
	Rejected []RejectedFile  `json:"rejected"`
}

type FailedFile struct {
	FileID   string `json:"file_id"`
	Filename string `json:"filename"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}

// SweepResult reports one processing pass over a job.
type SweepResult struct {
	JobID          string          `json:"job_id"`
	Status         model.JobStatus `json:"status"`
	Processed      []string        `json:"processed"`
	Failed         []FailedFile    `json:"failed"`
	PagesCharged   int             `json:"pages_charged"`
	CreditsCharged int64           `json:"credits_charged"`
	Remaining      int             `json:"remaining"`
	Done           bool            `json:"done"`
	ErrorCode      string          `json:"error_code,omitempty"`
}

// BatchOptions are the pipeline limits taken from config.
type BatchOptions struct {
	MaxFilesPerJob   int
	MaxFilesPerSweep int
	SweepLockTTL     time.Duration
	Policy           model.PagePolicy
}

type batchUC struct {
	jobs      repository.BatchJobRepository
	files     repository.BatchFileRepository
	store     adapter.ObjectStore
	validator adapter.UploadValidator
	locker    adapter.Locker
	processor FileProcessor
	ledger    UsageLedger
	tm        repository.TransactionManager
	opts      BatchOptions
	log       *zerolog.Logger
}

func NewBatchUseCase(
	jobs repository.BatchJobRepository,
	files repository.BatchFileRepository,
	store adapter.ObjectStore,
	validator adapter.UploadValidator,
	locker adapter.Locker,
	processor FileProcessor,
	ledger UsageLedger,
	tm repository.TransactionManager,
	opts BatchOptions,
	logger *zerolog.Logger,
) *batchUC {
	if opts.MaxFilesPerJob <= 0 {
		opts.MaxFilesPerJob = 50
	}
	if opts.MaxFilesPerSweep <= 0 {
		opts.MaxFilesPerSweep = 10
	}
	if opts.SweepLockTTL <= 0 {
		opts.SweepLockTTL = 5 * time.Minute
	}
	if opts.Policy == "" {
		opts.Policy = model.PagePolicyActual
	}
	l := logger.With().Str("component", "BatchUC").Logger()
	return &batchUC{
		jobs:      jobs,
		files:     files,
		store:     store,
		validator: validator,
		locker:    locker,
		processor: processor,
		ledger:    ledger,
		tm:        tm,
		opts:      opts,
		log:       &l,
	}
}

// -----------------------------
// Create / Get
// -----------------------------

func (uc *batchUC) CreateJob(ctx context.Context, userID string, in CreateJobInput) (*JobView, error) {
	if len(in.Files) == 0 || len(in.Files) > uc.opts.MaxFilesPerJob {
		return nil, fmt.Errorf("%w: a job needs between 1 and %d files", domain.ErrInvalidArgument, uc.opts.MaxFilesPerJob)
	}
	format := model.MergeFormat(in.MergeFormat)
	if in.MergeOutput {
		f, err := model.ParseMergeFormat(in.MergeFormat)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
		}
		format = f
	}
	job, err := model.NewBatchJob(userID, in.Name, in.Description, in.MergeOutput, format)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(in.Files))
	files := make([]*model.BatchFile, 0, len(in.Files))
	for i, nf := range in.Files {
		name := strings.TrimSpace(nf.Filename)
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("%w: duplicate filename %q", domain.ErrInvalidArgument, name)
		}
		seen[name] = struct{}{}
		// Microsecond steps keep creation order stable in the store.
		f, err := model.NewPlaceholderFile(job.ID, name, nf.EstimatedPages, job.CreatedAt.Add(time.Duration(i)*time.Microsecond))
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	job.ApplyProgress(model.ComputeProgress(files))

	err = uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := uc.jobs.Create(ctx, tx, job); err != nil {
			return err
		}
		return uc.files.CreateMany(ctx, tx, files)
	})
	if err != nil {
		return nil, err
	}
	metrics.IncJobTransition(string(job.Status))
	logging.With(ctx, uc.log).Info().Str("job_id", job.ID).Int("files", len(files)).Msg("job created")
	return &JobView{Job: job, Files: files}, nil
}

func (uc *batchUC) GetJob(ctx context.Context, userID, jobID string) (*JobView, error) {
	job, err := uc.loadOwned(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}
	files, err := uc.files.ListByJob(ctx, nil, job.ID)
	if err != nil {
		return nil, err
	}
	return &JobView{Job: job, Files: files}, nil
}

func (uc *batchUC) loadOwned(ctx context.Context, userID, jobID string) (*model.BatchJob, error) {
	if jobID == "" {
		return nil, domain.ErrInvalidArgument
	}
	job, err := uc.jobs.FindByID(ctx, nil, jobID)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, domain.ErrForbidden
	}
	return job, nil
}

// -----------------------------
// Upload
// -----------------------------

func (uc *batchUC) Upload(ctx context.Context, userID, jobID string, uploads []UploadFile) (*UploadResult, error) {
	if len(uploads) == 0 {
		return nil, fmt.Errorf("%w: no files", domain.ErrInvalidArgument)
	}
	job, err := uc.loadOwned(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status.IsTerminal() {
		return nil, domain.ErrJobTerminal
	}
	if job.Status != model.JobStatusPending {
		return nil, fmt.Errorf("%w: job is %s", domain.ErrInvalidTransition, job.Status)
	}

	files, err := uc.files.ListByJob(ctx, nil, job.ID)
	if err != nil {
		return nil, err
	}
	waiting := make(map[string]*model.BatchFile, len(files))
	for _, f := range files {
		if f.Status == model.FileStatusPending {
			waiting[f.Filename] = f
		}
	}

	res := &UploadResult{JobID: job.ID, Accepted: []AcceptedFile{}, Rejected: []RejectedFile{}}
	log := logging.With(ctx, uc.log).With().Str("job_id", job.ID).Logger()
	for _, up := range uploads {
		name := path.Base(strings.TrimSpace(up.Filename))
		f, ok := waiting[name]
		if !ok {
			res.Rejected = append(res.Rejected, RejectedFile{Filename: name, Reason: "no pending file with this name in the job"})
			metrics.IncUpload("rejected")
			continue
		}
		est, err := uc.validator.Validate(ctx, name, up.ContentType, up.Data)
		if err != nil {
			res.Rejected = append(res.Rejected, RejectedFile{Filename: name, Reason: rejectReason(err)})
			metrics.IncUpload("rejected")
			continue
		}
		key := fmt.Sprintf("uploads/%s/%s/%s", job.ID, f.ID, name)
		if err := uc.store.Put(ctx, key, bytes.NewReader(up.Data), int64(len(up.Data)), up.ContentType); err != nil {
			return nil, fmt.Errorf("store upload: %w", err)
		}
		if err := f.MarkUploaded(key, up.ContentType, int64(len(up.Data)), est); err != nil {
			return nil, err
		}
		if err := uc.files.UpdateIfStatus(ctx, nil, f, model.FileStatusPending); err != nil {
			if derr := uc.store.Delete(context.WithoutCancel(ctx), key); derr != nil {
				log.Warn().Err(derr).Str("key", key).Msg("orphaned upload not removed")
			}
			return nil, err
		}
		delete(waiting, name)
		res.Accepted = append(res.Accepted, AcceptedFile{FileID: f.ID, Filename: f.Filename, EstimatedPages: f.EstimatedPages})
		metrics.IncUpload("accepted")
		log.Debug().Str("file_id", f.ID).Int64("size", f.SizeBytes).Msg("file uploaded")
	}

	// Re-read so uploads from concurrent requests count too.
	files, err = uc.files.ListByJob(ctx, nil, job.ID)
	if err != nil {
		return nil, err
	}
	if allUploaded(files) {
		if err := job.Transition(model.JobStatusReady, time.Now().UTC()); err != nil {
			return nil, err
		}
		job.ApplyProgress(model.ComputeProgress(files))
		if err := uc.jobs.UpdateIfStatus(ctx, nil, job, model.JobStatusPending); err != nil && !errors.Is(err, domain.ErrStatusConflict) {
			return nil, err
		}
		metrics.IncJobTransition(string(model.JobStatusReady))
		log.Info().Msg("all files uploaded; job ready")
	}
	res.Status = job.Status
	return res, nil
}

func allUploaded(files []*model.BatchFile) bool {
	if len(files) == 0 {
		return false
	}
	for _, f := range files {
		if f.Status != model.FileStatusUploaded {
			return false
		}
	}
	return true
}

func rejectReason(err error) string {
	msg := err.Error()
	if i := strings.Index(msg, ": "); i >= 0 && errors.Is(err, domain.ErrUploadRejected) {
		return msg[i+2:]
	}
	return msg
}

// -----------------------------
// Process (sweep)
// -----------------------------

func (uc *batchUC) Process(ctx context.Context, userID, jobID string) (*SweepResult, error) {
	job, err := uc.loadOwned(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}
	if err := sweepable(job); err != nil {
		return nil, err
	}

	token, err := uc.locker.TryLock(ctx, sweepLockKey(job.ID), uc.opts.SweepLockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockNotAcquired) {
			metrics.IncSweep("busy")
			return uc.inFlight(ctx, job)
		}
		return nil, fmt.Errorf("sweep lock: %w", err)
	}
	defer func() {
		if err := uc.locker.Unlock(context.WithoutCancel(ctx), sweepLockKey(job.ID), token); err != nil {
			uc.log.Warn().Err(err).Str("job_id", job.ID).Msg("sweep unlock failed")
		}
	}()

	// Re-read under the lock; a previous holder may have moved the job on.
	job, err = uc.jobs.FindByID(ctx, nil, job.ID)
	if err != nil {
		return nil, err
	}
	if err := sweepable(job); err != nil {
		return nil, err
	}
	ctx = logging.WithJobID(ctx, job.ID)
	log := logging.With(ctx, uc.log)
	defer logging.TraceDuration(log, "BatchUC.Process")()

	res := &SweepResult{JobID: job.ID, Processed: []string{}, Failed: []FailedFile{}}
	if job.Status == model.JobStatusMerging {
		res.Status = job.Status
		res.Done = true
		return res, nil
	}

	files, err := uc.files.ListByJob(ctx, nil, job.ID)
	if err != nil {
		return nil, err
	}
	// Only the files this bounded sweep can reach are estimated.
	estimate, reach := 0, 0
	for _, f := range files {
		switch {
		case f.Status.IsProcessable():
			if reach < uc.opts.MaxFilesPerSweep {
				estimate += uc.opts.Policy.BillablePages(0, f.EstimatedPages)
				reach++
			}
		case f.Unbilled():
			estimate += uc.opts.Policy.BillablePages(f.ActualPages, f.EstimatedPages)
		}
	}
	ok, err := uc.ledger.CanAfford(ctx, job.UserID, estimate)
	if err != nil {
		return nil, err
	}
	if !ok {
		metrics.IncChargeResult("precheck_blocked")
		metrics.IncSweep("rejected")
		log.Info().Int("estimated_pages", estimate).Msg("sweep rejected: balance too low")
		return nil, domain.ErrInsufficientCredits
	}

	// ready|processing -> processing; a no-op for a job already processing.
	prev := job.Status
	if err := job.Transition(model.JobStatusProcessing, time.Now().UTC()); err != nil {
		return nil, err
	}
	if err := uc.jobs.UpdateIfStatus(ctx, nil, job, prev); err != nil {
		return nil, err
	}
	if prev != model.JobStatusProcessing {
		metrics.IncJobTransition(string(model.JobStatusProcessing))
	}

	if err := uc.sweep(ctx, job, files, res); err != nil {
		log.Error().Err(err).Msg("sweep failed")
		uc.failJob(ctx, job, domain.CodeInternal, "Processing stopped because of an internal error.", res)
		metrics.IncSweep("failed")
		return res, nil
	}
	switch {
	case res.ErrorCode != "":
		metrics.IncSweep("failed")
	case res.Done:
		metrics.IncSweep("done")
	default:
		metrics.IncSweep("partial")
	}
	log.Info().
		Int("processed", len(res.Processed)).
		Int("failed", len(res.Failed)).
		Int("pages", res.PagesCharged).
		Int("remaining", res.Remaining).
		Str("status", string(res.Status)).
		Msg("sweep finished")
	return res, nil
}

// inFlight reports the job as it stands while another sweep holds the lock.
func (uc *batchUC) inFlight(ctx context.Context, job *model.BatchJob) (*SweepResult, error) {
	files, err := uc.files.ListByJob(ctx, nil, job.ID)
	if err != nil {
		return nil, err
	}
	res := &SweepResult{JobID: job.ID, Status: job.Status, Processed: []string{}, Failed: []FailedFile{}}
	for _, f := range files {
		if f.Status.IsProcessable() {
			res.Remaining++
		}
	}
	return res, nil
}

func sweepable(job *model.BatchJob) error {
	switch {
	case job.Status.IsTerminal():
		return domain.ErrJobTerminal
	case job.Status == model.JobStatusPending:
		return domain.ErrJobNotReady
	}
	return nil
}

func sweepLockKey(jobID string) string { return "sweep:" + jobID }

// sweep runs files sequentially, bills, then re-evaluates the job from the
// full file set. Any returned error (or panic) fails the job as internal.
func (uc *batchUC) sweep(ctx context.Context, job *model.BatchJob, files []*model.BatchFile, res *SweepResult) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic during sweep: %v", rec)
		}
	}()

	handled := 0
	for _, f := range files {
		if !f.Status.IsProcessable() {
			continue
		}
		if handled >= uc.opts.MaxFilesPerSweep || ctx.Err() != nil {
			break
		}
		out, err := uc.processor.Process(ctx, job, f)
		if err != nil {
			return fmt.Errorf("process file %s: %w", f.ID, err)
		}
		if out.Interrupted {
			break
		}
		handled++
		switch out.Status {
		case model.FileStatusCompleted:
			if !out.Skipped {
				res.Processed = append(res.Processed, out.FileID)
			}
		case model.FileStatusFailed:
			if !out.Skipped {
				res.Failed = append(res.Failed, FailedFile{FileID: out.FileID, Filename: out.Filename, Code: out.ErrorCode, Message: out.ErrorMessage})
			}
		}
	}

	// From here on the caller's deadline must not split billing from state.
	wctx := context.WithoutCancel(ctx)
	all, err := uc.files.ListByJob(wctx, nil, job.ID)
	if err != nil {
		return err
	}
	progress := model.ComputeProgress(all)
	job.ApplyProgress(progress)
	for _, f := range all {
		if f.Status.IsProcessable() {
			res.Remaining++
		}
	}

	// Bill every completed file not yet covered by a charge: this sweep's
	// files plus any left unbilled by an interrupted earlier sweep.
	var billIDs []string
	pages := 0
	for _, f := range all {
		if f.Unbilled() {
			billIDs = append(billIDs, f.ID)
			pages += uc.opts.Policy.BillablePages(f.ActualPages, f.EstimatedPages)
		}
	}
	if pages > 0 {
		charge, err := uc.ledger.Charge(wctx, ChargeRequest{
			UserID:         job.UserID,
			JobID:          job.ID,
			IdempotencyKey: SweepChargeKey(job.ID, billIDs),
			Pages:          pages,
		}, func(ctx context.Context, tx repository.Tx, c *model.UsageCharge) error {
			return uc.files.MarkCharged(ctx, tx, billIDs, c.ID)
		})
		if errors.Is(err, domain.ErrInsufficientCredits) {
			uc.failJob(wctx, job, domain.CodeInsufficientFunds, "The account balance does not cover the processed pages.", res)
			return nil
		}
		if err != nil {
			return err
		}
		res.PagesCharged = charge.Pages
		res.CreditsCharged = charge.Credits
	}

	now := time.Now().UTC()
	if progress.AllTerminal() {
		switch {
		case job.MergeOutput && progress.Completed > 0:
			err = job.Transition(model.JobStatusMerging, now)
		case job.MergeOutput:
			err = job.Fail(domain.CodeNoCompletedFiles, "No file was processed successfully, so there is nothing to merge.", now)
			res.ErrorCode = domain.CodeNoCompletedFiles
		default:
			err = job.Transition(model.JobStatusCompleted, now)
		}
	} else {
		err = job.Transition(model.JobStatusProcessing, now)
	}
	if err != nil {
		return err
	}
	if err := uc.jobs.UpdateIfStatus(wctx, nil, job, model.JobStatusProcessing); err != nil {
		return err
	}
	if job.Status != model.JobStatusProcessing {
		metrics.IncJobTransition(string(job.Status))
	}
	res.Status = job.Status
	res.Done = job.Status != model.JobStatusProcessing
	return nil
}

// failJob marks the job failed with an aggregate reason. Completed files keep their status.
func (uc *batchUC) failJob(ctx context.Context, job *model.BatchJob, code, reason string, res *SweepResult) {
	wctx := context.WithoutCancel(ctx)
	res.ErrorCode = code
	res.Done = true
	if cur, err := uc.jobs.FindByID(wctx, nil, job.ID); err == nil {
		if all, err := uc.files.ListByJob(wctx, nil, job.ID); err == nil {
			cur.ApplyProgress(model.ComputeProgress(all))
		}
		job = cur
	}
	if job.Status.IsTerminal() {
		res.Status = job.Status
		return
	}
	prev := job.Status
	if err := job.Fail(code, reason, time.Now().UTC()); err != nil {
		uc.log.Error().Err(err).Str("job_id", job.ID).Msg("cannot fail job")
		res.Status = prev
		return
	}
	if err := uc.jobs.UpdateIfStatus(wctx, nil, job, prev); err != nil {
		uc.log.Error().Err(err).Str("job_id", job.ID).Msg("persist job failure")
	}
	metrics.IncJobTransition(string(model.JobStatusFailed))
	res.Status = model.JobStatusFailed
}
