package postgres

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v4/pgxpool"

	"docbatch/internal/domain"
	"docbatch/internal/domain/model"
	"docbatch/internal/domain/ports/repository"
)

var _ repository.ProcessingRecordRepository = (*processingRecordRepo)(nil)

type processingRecordRepo struct{ pool *pgxpool.Pool }

func NewProcessingRecordRepo(pool *pgxpool.Pool) *processingRecordRepo {
	return &processingRecordRepo{pool: pool}
}

func (r *processingRecordRepo) Save(ctx context.Context, tx repository.Tx, rec *model.ProcessingRecord) error {
	structure, err := json.Marshal(rec.Structure)
	if err != nil {
		return domain.ErrInvalidArgument
	}
	meta := rec.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return domain.ErrInvalidArgument
	}
	conf := rec.PageConfidence
	if conf == nil {
		conf = []float64{}
	}

	const q = `
INSERT INTO processing_records (
  id, user_id, source_filename, page_count, text, structure, confidence, page_confidence, duration_ms, metadata, created_at
) VALUES ($1,$2,$3,$4,$5,$6::jsonb,$7,$8,$9,$10::jsonb,$11);`
	_, err = execSQL(ctx, r.pool, tx, q,
		rec.ID, rec.UserID, rec.SourceFilename, rec.PageCount, rec.Text, string(structure),
		rec.Confidence, conf, rec.DurationMs, string(metaJSON), rec.CreatedAt)
	return execErr(err)
}

func (r *processingRecordRepo) FindByIDs(ctx context.Context, tx repository.Tx, ids []string) (map[string]*model.ProcessingRecord, error) {
	out := make(map[string]*model.ProcessingRecord, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	const q = `
SELECT id, user_id, source_filename, page_count, text, structure::text, confidence, page_confidence, duration_ms, metadata::text, created_at
  FROM processing_records WHERE id = ANY($1);`
	rows, err := queryRows(ctx, r.pool, tx, q, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var rec model.ProcessingRecord
		var structure, meta string
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.SourceFilename, &rec.PageCount, &rec.Text, &structure,
			&rec.Confidence, &rec.PageConfidence, &rec.DurationMs, &meta, &rec.CreatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		if err := json.Unmarshal([]byte(structure), &rec.Structure); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		if err := json.Unmarshal([]byte(meta), &rec.Metadata); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out[rec.ID] = &rec
	}
	if rows.Err() != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}
