// Package render turns a job's extracted files into one merged document.
// Every renderer is a pure function: the same Document and format always
// produce the same bytes.
package render

import (
	"fmt"
	"strings"

	"docbatch/internal/domain"
	"docbatch/internal/domain/model"
)

// EmptyPlaceholder marks a file that was processed but yielded no text.
const EmptyPlaceholder = "[No text extracted from this file]"

// Section is one source file inside the merged document.
type Section struct {
	Filename      string
	Pages         int
	Text          string
	Tables        []model.Table
	MathFragments []string
}

// Document is the merge input, sections in upload order.
type Document struct {
	Name        string
	Description string
	Sections    []Section
}

// TotalPages sums the page counts of all sections.
func (d Document) TotalPages() int {
	n := 0
	for _, s := range d.Sections {
		n += s.Pages
	}
	return n
}

// blank reports a section whose text holds nothing but whitespace.
func (s Section) blank() bool { return strings.TrimSpace(s.Text) == "" }

func (s Section) body() string {
	if s.blank() {
		return EmptyPlaceholder
	}
	return s.Text
}

// Render dispatches on format.
func Render(format model.MergeFormat, doc Document) ([]byte, error) {
	switch format {
	case model.MergeFormatPlain:
		return Plain(doc), nil
	case model.MergeFormatStructured:
		return Structured(doc), nil
	case model.MergeFormatRich:
		return Rich(doc)
	}
	return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedFormat, format)
}

func pagesLabel(n int) string {
	if n == 1 {
		return "1 page"
	}
	return fmt.Sprintf("%d pages", n)
}
