// File: internal/usecase/download_uc.go
package usecase

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"regexp"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"docbatch/internal/domain"
	"docbatch/internal/domain/model"
	"docbatch/internal/domain/ports/adapter"
	"docbatch/internal/domain/ports/repository"
	"docbatch/internal/infra/metrics"
)

// Compile-time check
var _ DownloadLinkIssuer = (*downloadLinks)(nil)

// Download is an open artifact ready to stream. The caller closes Body.
type Download struct {
	Output *model.BatchOutput
	Body   io.ReadCloser
	Size   int64
}

// DownloadLinkIssuer mints and redeems single-use, expiring download credentials.
type DownloadLinkIssuer interface {
	// Issue sets the token hash and expiry on out and returns the raw token.
	Issue(out *model.BatchOutput, now time.Time) (string, error)
	// Open redeems the credential. Every failure is domain.ErrNotFound.
	Open(ctx context.Context, outputID, token string) (*Download, error)
	// PurgeExpired deletes artifacts whose credential expired.
	PurgeExpired(ctx context.Context, limit int) (int, error)
}

type downloadLinks struct {
	outputs repository.BatchOutputRepository
	tokens  adapter.TokenService
	ttl     time.Duration
	log     *zerolog.Logger
}

func NewDownloadLinkIssuer(outputs repository.BatchOutputRepository, tokens adapter.TokenService, ttl time.Duration, logger *zerolog.Logger) *downloadLinks {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	l := logger.With().Str("component", "DownloadLinks").Logger()
	return &downloadLinks{outputs: outputs, tokens: tokens, ttl: ttl, log: &l}
}

func (d *downloadLinks) Issue(out *model.BatchOutput, now time.Time) (string, error) {
	raw, hash, err := d.tokens.Generate()
	if err != nil {
		return "", err
	}
	out.TokenHash = hash
	out.ExpiresAt = now.Add(d.ttl)
	return raw, nil
}

var tokenFormat = regexp.MustCompile(`^[0-9a-f]{64}$`)

func (d *downloadLinks) Open(ctx context.Context, outputID, token string) (*Download, error) {
	// Format checks run before any lookup.
	if _, err := ulid.ParseStrict(outputID); err != nil || !tokenFormat.MatchString(token) {
		metrics.IncDownload("rejected")
		return nil, domain.ErrNotFound
	}

	out, err := d.outputs.Consume(ctx, nil, outputID, d.tokens.Hash(token), time.Now().UTC())
	if err != nil {
		metrics.IncDownload("rejected")
		if !errors.Is(err, domain.ErrNotFound) {
			d.log.Error().Err(err).Str("output_id", outputID).Msg("consume download credential")
		}
		return nil, domain.ErrNotFound
	}

	f, err := os.Open(out.StoragePath)
	if err != nil {
		metrics.IncDownload("missing")
		d.log.Warn().Err(err).Str("output_id", out.ID).Msg("artifact not readable")
		return nil, domain.ErrNotFound
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		metrics.IncDownload("missing")
		return nil, domain.ErrNotFound
	}
	metrics.IncDownload("served")
	return &Download{Output: out, Body: f, Size: st.Size()}, nil
}

func (d *downloadLinks) PurgeExpired(ctx context.Context, limit int) (int, error) {
	expired, err := d.outputs.ListExpired(ctx, nil, time.Now().UTC(), limit)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, out := range expired {
		if err := os.Remove(out.StoragePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			d.log.Warn().Err(err).Str("output_id", out.ID).Msg("remove expired artifact")
			continue
		}
		if err := d.outputs.MarkPurged(ctx, nil, out.ID, time.Now().UTC()); err != nil {
			return n, err
		}
		metrics.IncArtifactPurged()
		n++
	}
	return n, nil
}
