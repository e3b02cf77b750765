package model

import (
	"time"

	"github.com/google/uuid"
)

// Metadata keys linking a record back to the batch it came from.
const (
	MetaBatchJobID  = "batch_job_id"
	MetaBatchFileID = "batch_file_id"
)

// Table is tabular data found in a document.
type Table struct {
	Caption string     `json:"caption,omitempty"`
	Rows    [][]string `json:"rows"`
}

// Structure carries the structured part of an extraction.
type Structure struct {
	Tables        []Table  `json:"tables,omitempty"`
	MathFragments []string `json:"math,omitempty"`
}

// ProcessingRecord is the durable result of extracting one file.
// Standalone conversions produce records without batch metadata.
type ProcessingRecord struct {
	ID             string
	UserID         string
	SourceFilename string
	PageCount      int
	Text           string
	Structure      Structure
	Confidence     float64
	PageConfidence []float64
	DurationMs     int64
	Metadata       map[string]string
	CreatedAt      time.Time
}

func NewBatchRecord(userID, jobID, fileID, filename string, res *ExtractionResult, now time.Time) *ProcessingRecord {
	return &ProcessingRecord{
		ID:             uuid.NewString(),
		UserID:         userID,
		SourceFilename: filename,
		PageCount:      res.PageCount,
		Text:           res.Text,
		Structure:      res.Structure,
		Confidence:     res.MeanConfidence(),
		PageConfidence: res.PageConfidence,
		DurationMs:     res.DurationMs,
		Metadata: map[string]string{
			MetaBatchJobID:  jobID,
			MetaBatchFileID: fileID,
		},
		CreatedAt: now,
	}
}

// ExtractionResult is what an extractor returns for one document.
type ExtractionResult struct {
	Text           string
	PageCount      int
	PageConfidence []float64
	Structure      Structure
	DurationMs     int64
}

// MeanConfidence averages per-page confidence; 0 when no pages were scored.
func (r *ExtractionResult) MeanConfidence() float64 {
	if len(r.PageConfidence) == 0 {
		return 0
	}
	var sum float64
	for _, c := range r.PageConfidence {
		sum += ClampConfidence(c)
	}
	return sum / float64(len(r.PageConfidence))
}

func ClampConfidence(c float64) float64 {
	switch {
	case c < 0 || c != c:
		return 0
	case c > 1:
		return 1
	}
	return c
}
