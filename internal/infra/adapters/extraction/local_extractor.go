package extraction

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"code.sajari.com/docconv"
	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog"

	"docbatch/internal/domain"
	"docbatch/internal/domain/model"
	"docbatch/internal/domain/ports/adapter"
)

var _ adapter.Extractor = (*LocalExtractor)(nil)

// LocalExtractor reads the text layer of PDFs in-process. It has no OCR, so
// scanned pages come back empty with zero confidence.
type LocalExtractor struct {
	logger zerolog.Logger
}

func NewLocalExtractor(logger *zerolog.Logger) *LocalExtractor {
	return &LocalExtractor{logger: logger.With().Str("component", "LocalExtractor").Logger()}
}

func (e *LocalExtractor) Name() string { return "local" }

func (e *LocalExtractor) Extract(ctx context.Context, in adapter.ExtractionInput) (*model.ExtractionResult, error) {
	if len(in.Data) == 0 {
		return nil, domain.NewExtractionError(domain.ExtractionInvalidInput, "empty document", nil)
	}
	start := time.Now()

	pages, err := readPages(ctx, in.Data)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.logger.Debug().Err(err).Str("filename", in.Filename).Msg("pdf reader failed, trying docconv")
		text, ferr := convertFallback(in)
		if ferr != nil {
			return nil, domain.NewExtractionError(domain.ExtractionInvalidInput, "unreadable pdf", err)
		}
		res := &model.ExtractionResult{
			Text:           text,
			PageCount:      max(in.EstimatedPages, 1),
			PageConfidence: []float64{textConfidence(text)},
			DurationMs:     time.Since(start).Milliseconds(),
		}
		return res, nil
	}

	res := &model.ExtractionResult{
		PageCount:      len(pages),
		PageConfidence: make([]float64, len(pages)),
	}
	for i, p := range pages {
		res.PageConfidence[i] = textConfidence(p)
	}
	res.Text = strings.TrimSpace(strings.Join(pages, "\n\n"))
	res.DurationMs = time.Since(start).Milliseconds()
	return res, nil
}

func textConfidence(s string) float64 {
	if strings.TrimSpace(s) == "" {
		return 0
	}
	return 1
}

// readPages returns the plain text of every page. The pdf package panics on
// some malformed inputs, so panics become errors.
func readPages(ctx context.Context, data []byte) (pages []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf reader panic: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	n := r.NumPage()
	if n == 0 {
		return nil, fmt.Errorf("pdf has no pages")
	}
	pages = make([]string, 0, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			pages = append(pages, "")
			continue
		}
		pages = append(pages, strings.TrimSpace(text))
	}
	return pages, nil
}

func convertFallback(in adapter.ExtractionInput) (string, error) {
	ct := in.ContentType
	if ct == "" {
		ct = "application/pdf"
	}
	res, err := docconv.Convert(bytes.NewReader(in.Data), ct, false)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(res.Body)
	if text == "" {
		return "", fmt.Errorf("no text extracted")
	}
	return text, nil
}
