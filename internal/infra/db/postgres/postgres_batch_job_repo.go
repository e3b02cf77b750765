package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"docbatch/internal/domain"
	"docbatch/internal/domain/model"
	"docbatch/internal/domain/ports/repository"
)

var _ repository.BatchJobRepository = (*batchJobRepo)(nil)

type batchJobRepo struct{ pool *pgxpool.Pool }

func NewBatchJobRepo(pool *pgxpool.Pool) *batchJobRepo {
	return &batchJobRepo{pool: pool}
}

const batchJobColumns = `id, user_id, name, description, status, merge_output, merge_format,
  total_files, completed_files, failed_files, skipped_files, total_pages,
  failure_code, failure_reason, created_at, started_at, completed_at, updated_at`

func (r *batchJobRepo) Create(ctx context.Context, tx repository.Tx, j *model.BatchJob) error {
	const q = `
INSERT INTO batch_jobs (` + batchJobColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18);`

	_, err := execSQL(ctx, r.pool, tx, q,
		j.ID, j.UserID, j.Name, j.Description, string(j.Status), j.MergeOutput, string(j.MergeFormat),
		j.TotalFiles, j.CompletedFiles, j.FailedFiles, j.SkippedFiles, j.TotalPages,
		j.FailureCode, j.FailureReason, j.CreatedAt, j.StartedAt, j.CompletedAt, j.UpdatedAt)
	return execErr(err)
}

func (r *batchJobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.BatchJob, error) {
	q := lockClause(`SELECT `+batchJobColumns+` FROM batch_jobs WHERE id=$1`, tx) + ";"
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	j, err := scanBatchJob(row)
	if err != nil {
		return nil, scanErr(err)
	}
	return j, nil
}

func (r *batchJobRepo) UpdateIfStatus(ctx context.Context, tx repository.Tx, j *model.BatchJob, expected ...model.JobStatus) error {
	if len(expected) == 0 {
		return domain.ErrInvalidArgument
	}
	allowed := make([]string, len(expected))
	for i, s := range expected {
		allowed[i] = string(s)
	}

	const q = `
UPDATE batch_jobs SET
  status=$2, total_files=$3, completed_files=$4, failed_files=$5, skipped_files=$6, total_pages=$7,
  failure_code=$8, failure_reason=$9, started_at=$10, completed_at=$11, updated_at=$12
WHERE id=$1 AND status = ANY($13);`
	tag, err := execSQL(ctx, r.pool, tx, q,
		j.ID, string(j.Status), j.TotalFiles, j.CompletedFiles, j.FailedFiles, j.SkippedFiles, j.TotalPages,
		j.FailureCode, j.FailureReason, j.StartedAt, j.CompletedAt, j.UpdatedAt, allowed)
	if err != nil {
		return execErr(err)
	}
	if tag.RowsAffected() == 0 {
		return r.missOrConflict(ctx, tx, j.ID)
	}
	return nil
}

func (r *batchJobRepo) missOrConflict(ctx context.Context, tx repository.Tx, id string) error {
	row, err := pickRow(ctx, r.pool, tx, `SELECT 1 FROM batch_jobs WHERE id=$1;`, id)
	if err != nil {
		return err
	}
	var one int
	if err := row.Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		return domain.ErrReadDatabaseRow
	}
	return domain.ErrStatusConflict
}

func (r *batchJobRepo) ListStale(ctx context.Context, tx repository.Tx, status model.JobStatus, before time.Time, limit int) ([]*model.BatchJob, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + batchJobColumns + ` FROM batch_jobs WHERE status=$1 AND updated_at < $2 ORDER BY updated_at ASC LIMIT $3;`
	rows, err := queryRows(ctx, r.pool, tx, q, string(status), before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.BatchJob
	for rows.Next() {
		j, err := scanBatchJob(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, j)
	}
	if rows.Err() != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func scanBatchJob(row pgx.Row) (*model.BatchJob, error) {
	var j model.BatchJob
	var status, format string
	if err := row.Scan(
		&j.ID, &j.UserID, &j.Name, &j.Description, &status, &j.MergeOutput, &format,
		&j.TotalFiles, &j.CompletedFiles, &j.FailedFiles, &j.SkippedFiles, &j.TotalPages,
		&j.FailureCode, &j.FailureReason, &j.CreatedAt, &j.StartedAt, &j.CompletedAt, &j.UpdatedAt,
	); err != nil {
		return nil, err
	}
	j.Status = model.JobStatus(status)
	j.MergeFormat = model.MergeFormat(format)
	return &j, nil
}
