package extraction

import (
	"context"

	"docbatch/internal/domain/model"
	"docbatch/internal/domain/ports/adapter"
)

// Compile-time check
var _ adapter.Extractor = (*limitedExtractor)(nil)

type limitedExtractor struct {
	inner adapter.Extractor
	sem   chan struct{}
}

// NewLimitedExtractor caps concurrent Extract calls across all sweeps of the process.
func NewLimitedExtractor(inner adapter.Extractor, maxConcurrent int) adapter.Extractor {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedExtractor{
		inner: inner,
		sem:   make(chan struct{}, maxConcurrent),
	}
}

func (l *limitedExtractor) Name() string { return l.inner.Name() }

func (l *limitedExtractor) Extract(ctx context.Context, in adapter.ExtractionInput) (*model.ExtractionResult, error) {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-l.sem }()
	return l.inner.Extract(ctx, in)
}
