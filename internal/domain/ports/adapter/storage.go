package adapter

import (
	"context"
	"io"
	"time"
)

// ObjectStore keeps raw bytes under string keys (uploads, merged artifacts).
type ObjectStore interface {
	Put(ctx context.Context, key string, data io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	// Open streams an object; the size is -1 when unknown.
	Open(ctx context.Context, key string) (io.ReadCloser, int64, error)
	Delete(ctx context.Context, key string) error
}

// Locker guards one sweep per job across processes.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

// UploadValidator is the security/format gate for uploaded bytes. It returns
// a refined page estimate, or an error wrapping domain.ErrUploadRejected.
type UploadValidator interface {
	Validate(ctx context.Context, filename, contentType string, data []byte) (estimatedPages int, err error)
}

// TokenService mints download credentials. Only the hash is persisted.
type TokenService interface {
	Generate() (raw, hash string, err error)
	Hash(raw string) string
}
