// Package extraction holds the adapters for the document-extraction service.
package extraction

import (
	"fmt"

	"github.com/rs/zerolog"

	"docbatch/internal/config"
	"docbatch/internal/domain/ports/adapter"
)

// New builds the configured extractor behind the process-wide concurrency cap.
func New(cfg *config.ExtractionConfig, logger *zerolog.Logger) (adapter.Extractor, error) {
	var inner adapter.Extractor
	switch cfg.Provider {
	case "http":
		h, err := NewHTTPExtractor(cfg.URL, cfg.APIKey, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		inner = h
	case "local", "":
		inner = NewLocalExtractor(logger)
	default:
		return nil, fmt.Errorf("unknown extraction provider %q", cfg.Provider)
	}
	return NewLimitedExtractor(inner, cfg.ConcurrentLimit), nil
}
