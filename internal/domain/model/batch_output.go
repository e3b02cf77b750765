package model

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// BatchOutput is the merged artifact of a job plus its download credential.
type BatchOutput struct {
	ID          string // ULID
	JobID       string
	UserID      string
	Format      MergeFormat
	Filename    string
	StoragePath string
	ContentType string
	SizeBytes   int64
	TotalPages  int
	FileCount   int
	TokenHash   string
	ExpiresAt   time.Time
	ConsumedAt  *time.Time
	PurgedAt    *time.Time
	CreatedAt   time.Time
}

func NewOutputID(now time.Time) string {
	return ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()
}

// Usable reports whether the download credential may still be redeemed.
func (o *BatchOutput) Usable(now time.Time) bool {
	return o.ConsumedAt == nil && now.Before(o.ExpiresAt)
}
