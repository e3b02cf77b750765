package model

import (
	"strings"
	"time"

	"docbatch/internal/domain"

	"github.com/google/uuid"
)

type FileStatus string

const (
	FileStatusPending    FileStatus = "pending"
	FileStatusUploaded   FileStatus = "uploaded"
	FileStatusProcessing FileStatus = "processing"
	FileStatusCompleted  FileStatus = "completed"
	FileStatusFailed     FileStatus = "failed"
	FileStatusSkipped    FileStatus = "skipped"
)

// processing -> processing covers a sweep resuming a file left behind by a killed process.
var fileTransitions = map[FileStatus][]FileStatus{
	FileStatusPending:    {FileStatusUploaded, FileStatusProcessing, FileStatusFailed, FileStatusSkipped},
	FileStatusUploaded:   {FileStatusProcessing, FileStatusSkipped},
	FileStatusProcessing: {FileStatusProcessing, FileStatusCompleted, FileStatusFailed, FileStatusSkipped},
	FileStatusCompleted:  {},
	FileStatusFailed:     {},
	FileStatusSkipped:    {},
}

func ParseFileStatus(s string) (FileStatus, error) {
	st := FileStatus(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := fileTransitions[st]; !ok {
		return "", domain.ErrInvalidArgument
	}
	return st, nil
}

func (s FileStatus) IsValid() bool {
	_, ok := fileTransitions[s]
	return ok
}

func (s FileStatus) IsTerminal() bool {
	return s == FileStatusCompleted || s == FileStatusFailed || s == FileStatusSkipped
}

// IsProcessable reports whether a sweep should pick the file up.
func (s FileStatus) IsProcessable() bool {
	return s == FileStatusUploaded || s == FileStatusPending || s == FileStatusProcessing
}

func (s FileStatus) CanTransitionTo(next FileStatus) bool {
	for _, n := range fileTransitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

// ProcessableFileStatuses are the states a sweep selects.
var ProcessableFileStatuses = []FileStatus{FileStatusUploaded, FileStatusPending, FileStatusProcessing}

// BatchFile is one document inside a BatchJob.
type BatchFile struct {
	ID             string
	JobID          string
	Filename       string
	StorageKey     string
	ContentType    string
	SizeBytes      int64
	EstimatedPages int
	ActualPages    int
	Status         FileStatus
	RecordID       *string
	ChargeID       *string // usage charge that billed this file's pages
	ErrorCode      string
	ErrorMessage   string
	CreatedAt      time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
}

// NewPlaceholderFile creates a pending file row before its bytes arrive.
func NewPlaceholderFile(jobID, filename string, estimatedPages int, createdAt time.Time) (*BatchFile, error) {
	filename = strings.TrimSpace(filename)
	if jobID == "" || filename == "" || estimatedPages < 0 {
		return nil, domain.ErrInvalidArgument
	}
	return &BatchFile{
		ID:             uuid.NewString(),
		JobID:          jobID,
		Filename:       filename,
		EstimatedPages: estimatedPages,
		Status:         FileStatusPending,
		CreatedAt:      createdAt,
	}, nil
}

func (f *BatchFile) transition(next FileStatus) error {
	if !f.Status.CanTransitionTo(next) {
		return domain.ErrInvalidTransition
	}
	f.Status = next
	return nil
}

// MarkUploaded records where the bytes were stored.
func (f *BatchFile) MarkUploaded(storageKey, contentType string, size int64, estimatedPages int) error {
	if storageKey == "" {
		return domain.ErrInvalidArgument
	}
	if err := f.transition(FileStatusUploaded); err != nil {
		return err
	}
	f.StorageKey = storageKey
	f.ContentType = contentType
	f.SizeBytes = size
	if estimatedPages > 0 {
		f.EstimatedPages = estimatedPages
	}
	return nil
}

func (f *BatchFile) MarkProcessing(now time.Time) error {
	if err := f.transition(FileStatusProcessing); err != nil {
		return err
	}
	t := now
	f.StartedAt = &t
	f.CompletedAt = nil
	f.ErrorCode = ""
	f.ErrorMessage = ""
	return nil
}

// MarkCompleted falls back to the estimate when the extractor reported no pages.
func (f *BatchFile) MarkCompleted(recordID string, actualPages int, now time.Time) error {
	if err := f.transition(FileStatusCompleted); err != nil {
		return err
	}
	if actualPages <= 0 {
		actualPages = f.EstimatedPages
	}
	f.ActualPages = actualPages
	id := recordID
	f.RecordID = &id
	t := now
	f.CompletedAt = &t
	return nil
}

func (f *BatchFile) MarkFailed(code, message string, now time.Time) error {
	if err := f.transition(FileStatusFailed); err != nil {
		return err
	}
	if code == "" {
		code = domain.CodeUnknown
	}
	if message == "" {
		message = "The file could not be processed."
	}
	f.ErrorCode = code
	f.ErrorMessage = message
	t := now
	f.CompletedAt = &t
	return nil
}

// Unbilled reports whether the file completed but no charge covers it yet.
func (f *BatchFile) Unbilled() bool {
	return f.Status == FileStatusCompleted && f.ChargeID == nil
}
