package extraction

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"docbatch/internal/domain"
	"docbatch/internal/domain/ports/adapter"
)

var _ adapter.UploadValidator = (*PDFValidator)(nil)

var pdfMagic = []byte("%PDF-")

// PDFValidator accepts PDF uploads under a size limit and counts their pages.
type PDFValidator struct {
	maxBytes int64
}

func NewPDFValidator(maxBytes int64) *PDFValidator {
	return &PDFValidator{maxBytes: maxBytes}
}

func (v *PDFValidator) Validate(ctx context.Context, filename, contentType string, data []byte) (int, error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("%w: empty file", domain.ErrUploadRejected)
	}
	if v.maxBytes > 0 && int64(len(data)) > v.maxBytes {
		return 0, fmt.Errorf("%w: file exceeds %d bytes", domain.ErrUploadRejected, v.maxBytes)
	}
	if ext := strings.ToLower(filepath.Ext(filename)); ext != ".pdf" {
		return 0, fmt.Errorf("%w: extension %q not allowed", domain.ErrUploadRejected, ext)
	}
	if ct := strings.ToLower(contentType); ct != "" && ct != "application/pdf" && ct != "application/octet-stream" {
		return 0, fmt.Errorf("%w: content type %q not allowed", domain.ErrUploadRejected, contentType)
	}
	if !bytes.HasPrefix(bytes.TrimLeft(data[:min(len(data), 1024)], "\x00\t\r\n "), pdfMagic) {
		return 0, fmt.Errorf("%w: not a pdf", domain.ErrUploadRejected)
	}
	return countPages(data), nil
}

// countPages is best effort; 0 means unknown and the caller keeps its estimate.
func countPages(data []byte) (n int) {
	defer func() {
		if recover() != nil {
			n = 0
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0
	}
	return r.NumPage()
}
