// File: internal/usecase/file_processor.go
package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"docbatch/internal/domain"
	"docbatch/internal/domain/model"
	"docbatch/internal/domain/ports/adapter"
	"docbatch/internal/domain/ports/repository"
	"docbatch/internal/infra/metrics"
)

// Compile-time check
var _ FileProcessor = (*fileProcessor)(nil)

// FileOutcome is the result of driving one file through extraction.
type FileOutcome struct {
	FileID       string
	Filename     string
	Status       model.FileStatus
	Pages        int // billable pages contributed by this file
	RecordID     string
	ErrorCode    string
	ErrorMessage string
	// Skipped is set when the file was already terminal and nothing ran.
	Skipped bool
	// Interrupted is set when the caller's context ended mid-file; the file
	// stays in processing and a later sweep picks it up again.
	Interrupted bool
}

// FileProcessor processes exactly one BatchFile. File-level failures are
// outcomes; the returned error is reserved for store failures.
type FileProcessor interface {
	Process(ctx context.Context, job *model.BatchJob, file *model.BatchFile) (FileOutcome, error)
}

type fileProcessor struct {
	files     repository.BatchFileRepository
	records   repository.ProcessingRecordRepository
	store     adapter.ObjectStore
	extractor adapter.Extractor
	tm        repository.TransactionManager
	policy    model.PagePolicy
	log       *zerolog.Logger
}

func NewFileProcessor(
	files repository.BatchFileRepository,
	records repository.ProcessingRecordRepository,
	store adapter.ObjectStore,
	extractor adapter.Extractor,
	tm repository.TransactionManager,
	policy model.PagePolicy,
	logger *zerolog.Logger,
) *fileProcessor {
	l := logger.With().Str("component", "FileProcessor").Logger()
	return &fileProcessor{
		files:     files,
		records:   records,
		store:     store,
		extractor: extractor,
		tm:        tm,
		policy:    policy,
		log:       &l,
	}
}

func (p *fileProcessor) Process(ctx context.Context, job *model.BatchJob, file *model.BatchFile) (FileOutcome, error) {
	out := FileOutcome{FileID: file.ID, Filename: file.Filename, Status: file.Status}
	if file.Status.IsTerminal() {
		out.Skipped = true
		return out, nil
	}

	// 1. processing + start time
	orig := *file
	if err := file.MarkProcessing(time.Now().UTC()); err != nil {
		return out, err
	}
	if err := p.files.UpdateIfStatus(ctx, nil, file, orig.Status); err != nil {
		if ctx.Err() != nil {
			// Deadline hit before the file was claimed; it stays resumable.
			*file = orig
			out.Interrupted = true
			return out, nil
		}
		if errors.Is(err, domain.ErrStatusConflict) {
			// Someone else moved it; report what is stored now.
			cur, ferr := p.files.FindByID(ctx, nil, file.ID)
			if ferr != nil {
				if ctx.Err() != nil {
					*file = orig
					out.Interrupted = true
					return out, nil
				}
				return out, ferr
			}
			*file = *cur
			out.Status = cur.Status
			out.Skipped = true
			return out, nil
		}
		return out, err
	}
	out.Status = model.FileStatusProcessing
	log := p.log.With().Str("job_id", job.ID).Str("file_id", file.ID).Logger()

	if file.StorageKey == "" {
		return p.fail(ctx, file, out, domain.CodeMissingUpload, "The file was never uploaded.")
	}
	data, err := p.store.Get(ctx, file.StorageKey)
	if err != nil {
		if ctx.Err() != nil {
			out.Interrupted = true
			return out, nil
		}
		log.Error().Err(err).Str("key", file.StorageKey).Msg("read upload failed")
		return p.fail(ctx, file, out, domain.CodeStorageUnavailable, "The uploaded file could not be read from storage.")
	}

	// 2. extract
	start := time.Now()
	res, err := p.extractor.Extract(ctx, adapter.ExtractionInput{
		Filename:       file.Filename,
		ContentType:    file.ContentType,
		Data:           data,
		EstimatedPages: file.EstimatedPages,
	})
	elapsed := time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			// Caller's budget ran out mid-file: leave it resumable.
			log.Warn().Err(err).Msg("extraction interrupted; file left in processing")
			out.Interrupted = true
			return out, nil
		}
		kind := domain.ClassifyExtraction(err)
		metrics.ObserveExtraction(p.extractor.Name(), elapsed.Milliseconds(), 0, false)
		log.Warn().Err(err).Str("kind", string(kind)).Msg("extraction failed")
		return p.fail(ctx, file, out, kind.Code(), kind.UserMessage())
	}
	if res.PageCount <= 0 {
		res.PageCount = max(file.EstimatedPages, 1)
	}
	if res.DurationMs <= 0 {
		res.DurationMs = elapsed.Milliseconds()
	}
	metrics.ObserveExtraction(p.extractor.Name(), elapsed.Milliseconds(), res.PageCount, true)

	// 3 + 4. record and completion land together, even if ctx ends now.
	wctx := context.WithoutCancel(ctx)
	now := time.Now().UTC()
	rec := model.NewBatchRecord(job.UserID, job.ID, file.ID, file.Filename, res, now)
	err = p.tm.WithTx(wctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := p.records.Save(ctx, tx, rec); err != nil {
			return err
		}
		if err := file.MarkCompleted(rec.ID, res.PageCount, now); err != nil {
			return err
		}
		return p.files.UpdateIfStatus(ctx, tx, file, model.FileStatusProcessing)
	})
	if err != nil {
		return out, err
	}

	// 5. page contribution; charging happens once per sweep.
	metrics.IncFileProcessed(string(model.FileStatusCompleted), "")
	out.Status = model.FileStatusCompleted
	out.RecordID = rec.ID
	out.Pages = p.policy.BillablePages(file.ActualPages, file.EstimatedPages)
	log.Info().Int("pages", file.ActualPages).Dur("duration", elapsed).Msg("file completed")
	return out, nil
}

func (p *fileProcessor) fail(ctx context.Context, file *model.BatchFile, out FileOutcome, code, message string) (FileOutcome, error) {
	if err := file.MarkFailed(code, message, time.Now().UTC()); err != nil {
		return out, err
	}
	if err := p.files.UpdateIfStatus(context.WithoutCancel(ctx), nil, file, model.FileStatusProcessing); err != nil {
		return out, err
	}
	metrics.IncFileProcessed(string(model.FileStatusFailed), file.ErrorCode)
	out.Status = model.FileStatusFailed
	out.ErrorCode = file.ErrorCode
	out.ErrorMessage = file.ErrorMessage
	return out, nil
}
