package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"docbatch/internal/domain"
	"docbatch/internal/domain/model"
	"docbatch/internal/domain/ports/repository"
)

var _ repository.BatchOutputRepository = (*batchOutputRepo)(nil)

type batchOutputRepo struct{ pool *pgxpool.Pool }

func NewBatchOutputRepo(pool *pgxpool.Pool) *batchOutputRepo {
	return &batchOutputRepo{pool: pool}
}

const batchOutputColumns = `id, job_id, user_id, format, filename, storage_path, content_type,
  size_bytes, total_pages, file_count, token_hash, expires_at, consumed_at, purged_at, created_at`

func (r *batchOutputRepo) Save(ctx context.Context, tx repository.Tx, o *model.BatchOutput) error {
	if o.TokenHash == "" {
		return domain.ErrInvalidArgument
	}
	const q = `
INSERT INTO batch_outputs (` + batchOutputColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15);`
	_, err := execSQL(ctx, r.pool, tx, q,
		o.ID, o.JobID, o.UserID, string(o.Format), o.Filename, o.StoragePath, o.ContentType,
		o.SizeBytes, o.TotalPages, o.FileCount, o.TokenHash, o.ExpiresAt, o.ConsumedAt, o.PurgedAt, o.CreatedAt)
	return execErr(err)
}

// Consume is a single conditional UPDATE, so two concurrent redemptions cannot both win.
func (r *batchOutputRepo) Consume(ctx context.Context, tx repository.Tx, id, tokenHash string, now time.Time) (*model.BatchOutput, error) {
	const q = `
UPDATE batch_outputs SET consumed_at=$3
WHERE id=$1 AND token_hash=$2 AND consumed_at IS NULL AND purged_at IS NULL AND expires_at > $3
RETURNING ` + batchOutputColumns + `;`
	row, err := pickRow(ctx, r.pool, tx, q, id, tokenHash, now)
	if err != nil {
		return nil, err
	}
	o, err := scanBatchOutput(row)
	if err != nil {
		return nil, domain.ErrNotFound
	}
	return o, nil
}

func (r *batchOutputRepo) ListExpired(ctx context.Context, tx repository.Tx, before time.Time, limit int) ([]*model.BatchOutput, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + batchOutputColumns + ` FROM batch_outputs WHERE purged_at IS NULL AND expires_at < $1 ORDER BY expires_at ASC LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.BatchOutput
	for rows.Next() {
		o, err := scanBatchOutput(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, o)
	}
	if rows.Err() != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func (r *batchOutputRepo) MarkPurged(ctx context.Context, tx repository.Tx, id string, at time.Time) error {
	tag, err := execSQL(ctx, r.pool, tx, `UPDATE batch_outputs SET purged_at=$2 WHERE id=$1;`, id, at)
	if err != nil {
		return execErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanBatchOutput(row pgx.Row) (*model.BatchOutput, error) {
	var o model.BatchOutput
	var format string
	if err := row.Scan(
		&o.ID, &o.JobID, &o.UserID, &format, &o.Filename, &o.StoragePath, &o.ContentType,
		&o.SizeBytes, &o.TotalPages, &o.FileCount, &o.TokenHash, &o.ExpiresAt, &o.ConsumedAt, &o.PurgedAt, &o.CreatedAt,
	); err != nil {
		return nil, err
	}
	o.Format = model.MergeFormat(format)
	return &o, nil
}
