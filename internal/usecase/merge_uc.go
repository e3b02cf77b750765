// File: internal/usecase/merge_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"docbatch/internal/domain"
	"docbatch/internal/domain/model"
	"docbatch/internal/domain/ports/repository"
	"docbatch/internal/infra/logging"
	"docbatch/internal/infra/metrics"
	"docbatch/internal/render"
)

// Compile-time check
var _ MergeUseCase = (*mergeUC)(nil)

type MergeUseCase interface {
	Merge(ctx context.Context, userID, jobID string) (*MergeResult, error)
}

type MergeResult struct {
	OutputID   string            `json:"output_id"`
	Token      string            `json:"token"`
	ExpiresAt  time.Time         `json:"expires_at"`
	Format     model.MergeFormat `json:"format"`
	Filename   string            `json:"filename"`
	SizeBytes  int64             `json:"size_bytes"`
	TotalPages int               `json:"total_pages"`
	FileCount  int               `json:"file_count"`
}

type mergeUC struct {
	jobs    repository.BatchJobRepository
	files   repository.BatchFileRepository
	records repository.ProcessingRecordRepository
	outputs repository.BatchOutputRepository
	links   DownloadLinkIssuer
	tm      repository.TransactionManager
	tempDir string
	log     *zerolog.Logger
}

func NewMergeUseCase(
	jobs repository.BatchJobRepository,
	files repository.BatchFileRepository,
	records repository.ProcessingRecordRepository,
	outputs repository.BatchOutputRepository,
	links DownloadLinkIssuer,
	tm repository.TransactionManager,
	tempDir string,
	logger *zerolog.Logger,
) *mergeUC {
	l := logger.With().Str("component", "MergeUC").Logger()
	return &mergeUC{
		jobs:    jobs,
		files:   files,
		records: records,
		outputs: outputs,
		links:   links,
		tm:      tm,
		tempDir: tempDir,
		log:     &l,
	}
}

func (uc *mergeUC) Merge(ctx context.Context, userID, jobID string) (*MergeResult, error) {
	job, err := uc.jobs.FindByID(ctx, nil, jobID)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, domain.ErrForbidden
	}
	if !job.MergeOutput {
		return nil, domain.ErrMergeNotRequested
	}
	switch {
	case job.Status.IsTerminal():
		return nil, domain.ErrJobTerminal
	case job.Status != model.JobStatusMerging:
		return nil, fmt.Errorf("%w: job is %s", domain.ErrJobNotReady, job.Status)
	}

	doc, err := uc.buildDocument(ctx, job)
	if err != nil {
		return nil, err
	}
	data, err := render.Render(job.MergeFormat, doc)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	filename := fmt.Sprintf("%s_%s%s", slug(job.Name), now.Format("20060102-150405"), job.MergeFormat.Extension())
	dir := filepath.Join(uc.tempDir, job.ID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("artifact dir: %w", err)
	}
	full := filepath.Join(dir, filename)
	if err := os.WriteFile(full, data, 0o640); err != nil {
		return nil, fmt.Errorf("write artifact: %w", err)
	}

	out := &model.BatchOutput{
		ID:          model.NewOutputID(now),
		JobID:       job.ID,
		UserID:      job.UserID,
		Format:      job.MergeFormat,
		Filename:    filename,
		StoragePath: full,
		ContentType: job.MergeFormat.ContentType(),
		SizeBytes:   int64(len(data)),
		TotalPages:  doc.TotalPages(),
		FileCount:   len(doc.Sections),
		CreatedAt:   now,
	}
	token, err := uc.links.Issue(out, now)
	if err != nil {
		_ = os.Remove(full)
		return nil, err
	}

	err = uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := uc.outputs.Save(ctx, tx, out); err != nil {
			return err
		}
		if err := job.Transition(model.JobStatusCompleted, now); err != nil {
			return err
		}
		return uc.jobs.UpdateIfStatus(ctx, tx, job, model.JobStatusMerging)
	})
	if err != nil {
		_ = os.Remove(full)
		if errors.Is(err, domain.ErrStatusConflict) {
			return nil, domain.ErrJobTerminal
		}
		return nil, err
	}

	metrics.ObserveMerge(string(out.Format), out.SizeBytes)
	metrics.IncJobTransition(string(model.JobStatusCompleted))
	logging.With(ctx, uc.log).Info().
		Str("job_id", job.ID).
		Str("output_id", out.ID).
		Str("format", string(out.Format)).
		Int64("size", out.SizeBytes).
		Int("pages", out.TotalPages).
		Msg("merged output ready")

	return &MergeResult{
		OutputID:   out.ID,
		Token:      token,
		ExpiresAt:  out.ExpiresAt,
		Format:     out.Format,
		Filename:   out.Filename,
		SizeBytes:  out.SizeBytes,
		TotalPages: out.TotalPages,
		FileCount:  out.FileCount,
	}, nil
}

// buildDocument collects completed files with a record, in upload order.
func (uc *mergeUC) buildDocument(ctx context.Context, job *model.BatchJob) (render.Document, error) {
	doc := render.Document{Name: job.Name, Description: job.Description}
	files, err := uc.files.ListByJob(ctx, nil, job.ID)
	if err != nil {
		return doc, err
	}
	var ids []string
	for _, f := range files {
		if f.Status == model.FileStatusCompleted && f.RecordID != nil {
			ids = append(ids, *f.RecordID)
		}
	}
	if len(ids) == 0 {
		return doc, domain.ErrNothingToMerge
	}
	recs, err := uc.records.FindByIDs(ctx, nil, ids)
	if err != nil {
		return doc, err
	}
	for _, f := range files {
		if f.Status != model.FileStatusCompleted || f.RecordID == nil {
			continue
		}
		rec, ok := recs[*f.RecordID]
		if !ok {
			uc.log.Warn().Str("file_id", f.ID).Str("record_id", *f.RecordID).Msg("record missing; file left out of merge")
			continue
		}
		doc.Sections = append(doc.Sections, render.Section{
			Filename:      f.Filename,
			Pages:         f.ActualPages,
			Text:          rec.Text,
			Tables:        rec.Structure.Tables,
			MathFragments: rec.Structure.MathFragments,
		})
	}
	if len(doc.Sections) == 0 {
		return doc, domain.ErrNothingToMerge
	}
	return doc, nil
}

var slugStrip = regexp.MustCompile(`[^a-z0-9]+`)

// slug turns a job name into a filesystem-safe stem.
func slug(name string) string {
	s := slugStrip.ReplaceAllString(strings.ToLower(name), "-")
	s = strings.Trim(s, "-")
	if len(s) > 60 {
		s = strings.TrimRight(s[:60], "-")
	}
	if s == "" {
		return "batch"
	}
	return s
}
