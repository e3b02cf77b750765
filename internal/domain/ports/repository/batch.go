package repository

import (
	"context"
	"time"

	"docbatch/internal/domain/model"
)

// -----------------------------
// Batch jobs
// -----------------------------

type BatchJobRepository interface {
	Create(ctx context.Context, tx Tx, job *model.BatchJob) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.BatchJob, error)
	// UpdateIfStatus persists job only while the stored status is one of expected.
	// It returns domain.ErrStatusConflict when the row moved on meanwhile.
	UpdateIfStatus(ctx context.Context, tx Tx, job *model.BatchJob, expected ...model.JobStatus) error
	// ListStale returns jobs in status not updated since before, oldest first.
	ListStale(ctx context.Context, tx Tx, status model.JobStatus, before time.Time, limit int) ([]*model.BatchJob, error)
}

// -----------------------------
// Batch files
// -----------------------------

type BatchFileRepository interface {
	CreateMany(ctx context.Context, tx Tx, files []*model.BatchFile) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.BatchFile, error)
	// ListByJob returns all files of a job ordered by creation time then id.
	ListByJob(ctx context.Context, tx Tx, jobID string) ([]*model.BatchFile, error)
	UpdateIfStatus(ctx context.Context, tx Tx, file *model.BatchFile, expected ...model.FileStatus) error
	// MarkCharged links completed files to the charge that billed them.
	// Files already linked to a charge are left untouched.
	MarkCharged(ctx context.Context, tx Tx, fileIDs []string, chargeID string) error
}

// -----------------------------
// Processing records
// -----------------------------

type ProcessingRecordRepository interface {
	Save(ctx context.Context, tx Tx, rec *model.ProcessingRecord) error
	FindByIDs(ctx context.Context, tx Tx, ids []string) (map[string]*model.ProcessingRecord, error)
}

// -----------------------------
// Batch outputs
// -----------------------------

type BatchOutputRepository interface {
	Save(ctx context.Context, tx Tx, out *model.BatchOutput) error
	// Consume atomically redeems an unexpired, unconsumed credential.
	// Every miss is domain.ErrNotFound.
	Consume(ctx context.Context, tx Tx, id, tokenHash string, now time.Time) (*model.BatchOutput, error)
	ListExpired(ctx context.Context, tx Tx, before time.Time, limit int) ([]*model.BatchOutput, error)
	MarkPurged(ctx context.Context, tx Tx, id string, at time.Time) error
}
