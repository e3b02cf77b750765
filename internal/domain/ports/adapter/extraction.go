package adapter

import (
	"context"

	"docbatch/internal/domain/model"
)

// ExtractionInput is a document handed to the extraction service.
type ExtractionInput struct {
	Filename       string
	ContentType    string
	Data           []byte
	EstimatedPages int
}

// Extractor is the port for the document-extraction service.
// Failures are *domain.ExtractionError; implementations never retry.
type Extractor interface {
	Name() string
	Extract(ctx context.Context, in ExtractionInput) (*model.ExtractionResult, error)
}
