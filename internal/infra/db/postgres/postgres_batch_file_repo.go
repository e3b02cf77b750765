package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"docbatch/internal/domain"
	"docbatch/internal/domain/model"
	"docbatch/internal/domain/ports/repository"
)

var _ repository.BatchFileRepository = (*batchFileRepo)(nil)

type batchFileRepo struct{ pool *pgxpool.Pool }

func NewBatchFileRepo(pool *pgxpool.Pool) *batchFileRepo {
	return &batchFileRepo{pool: pool}
}

const batchFileColumns = `id, job_id, filename, storage_key, content_type, size_bytes,
  estimated_pages, actual_pages, status, record_id, charge_id,
  error_code, error_message, created_at, started_at, completed_at`

func (r *batchFileRepo) CreateMany(ctx context.Context, tx repository.Tx, files []*model.BatchFile) error {
	const q = `
INSERT INTO batch_files (` + batchFileColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16);`

	for _, f := range files {
		_, err := execSQL(ctx, r.pool, tx, q,
			f.ID, f.JobID, f.Filename, f.StorageKey, f.ContentType, f.SizeBytes,
			f.EstimatedPages, f.ActualPages, string(f.Status), f.RecordID, f.ChargeID,
			f.ErrorCode, f.ErrorMessage, f.CreatedAt, f.StartedAt, f.CompletedAt)
		if err != nil {
			return execErr(err)
		}
	}
	return nil
}

func (r *batchFileRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.BatchFile, error) {
	q := lockClause(`SELECT `+batchFileColumns+` FROM batch_files WHERE id=$1`, tx) + ";"
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	f, err := scanBatchFile(row)
	if err != nil {
		return nil, scanErr(err)
	}
	return f, nil
}

func (r *batchFileRepo) ListByJob(ctx context.Context, tx repository.Tx, jobID string) ([]*model.BatchFile, error) {
	const q = `SELECT ` + batchFileColumns + ` FROM batch_files WHERE job_id=$1 ORDER BY created_at ASC, id ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*model.BatchFile{}
	for rows.Next() {
		f, err := scanBatchFile(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, f)
	}
	if rows.Err() != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func (r *batchFileRepo) UpdateIfStatus(ctx context.Context, tx repository.Tx, f *model.BatchFile, expected ...model.FileStatus) error {
	if len(expected) == 0 {
		return domain.ErrInvalidArgument
	}
	allowed := make([]string, len(expected))
	for i, s := range expected {
		allowed[i] = string(s)
	}

	const q = `
UPDATE batch_files SET
  storage_key=$2, content_type=$3, size_bytes=$4, estimated_pages=$5, actual_pages=$6,
  status=$7, record_id=$8, error_code=$9, error_message=$10, started_at=$11, completed_at=$12
WHERE id=$1 AND status = ANY($13);`
	tag, err := execSQL(ctx, r.pool, tx, q,
		f.ID, f.StorageKey, f.ContentType, f.SizeBytes, f.EstimatedPages, f.ActualPages,
		string(f.Status), f.RecordID, f.ErrorCode, f.ErrorMessage, f.StartedAt, f.CompletedAt, allowed)
	if err != nil {
		return execErr(err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	row, err := pickRow(ctx, r.pool, tx, `SELECT 1 FROM batch_files WHERE id=$1;`, f.ID)
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

func (r *batchFileRepo) MarkCharged(ctx context.Context, tx repository.Tx, fileIDs []string, chargeID string) error {
	if len(fileIDs) == 0 {
		return nil
	}
	const q = `UPDATE batch_files SET charge_id=$2 WHERE id = ANY($1) AND charge_id IS NULL;`
	_, err := execSQL(ctx, r.pool, tx, q, fileIDs, chargeID)
	return execErr(err)
}

func scanBatchFile(row pgx.Row) (*model.BatchFile, error) {
	var f model.BatchFile
	var status string
	if err := row.Scan(
		&f.ID, &f.JobID, &f.Filename, &f.StorageKey, &f.ContentType, &f.SizeBytes,
		&f.EstimatedPages, &f.ActualPages, &status, &f.RecordID, &f.ChargeID,
		&f.ErrorCode, &f.ErrorMessage, &f.CreatedAt, &f.StartedAt, &f.CompletedAt,
	); err != nil {
		return nil, err
	}
	f.Status = model.FileStatus(status)
	return &f, nil
}
