package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrNotFound            = errors.New("entity not found")
	ErrForbidden           = errors.New("entity belongs to another user")
	ErrAlreadyExists       = errors.New("entity already exists")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrInsufficientCredits = errors.New("insufficient credits")

	// Batch pipeline
	ErrJobTerminal        = errors.New("job is in a terminal state")
	ErrJobNotReady        = errors.New("job is waiting for uploads")
	ErrMergeNotRequested  = errors.New("job did not request a merged output")
	ErrNothingToMerge     = errors.New("job has no completed files to merge")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrStatusConflict     = errors.New("status changed concurrently")
	ErrUnsupportedFormat  = errors.New("unsupported output format")
	ErrUploadRejected     = errors.New("upload rejected")
	ErrArtifactMissing    = errors.New("artifact missing")
	ErrLockNotAcquired    = errors.New("lock not acquired")
	ErrExtractionNotReady = errors.New("extraction service not configured")

	// Persistence
	ErrOperationFailed    = errors.New("operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid execution context")
)

// File-level error codes surfaced to users.
const (
	CodeTransient          = "transient"
	CodeInvalidInput       = "invalid_input"
	CodeQuotaExceeded      = "quota_exceeded"
	CodeUnknown            = "unknown"
	CodeMissingUpload      = "missing_upload"
	CodeStorageUnavailable = "storage_unavailable"
)

// Job-level failure codes.
const (
	CodeInsufficientFunds = "insufficient_funds"
	CodeInternal          = "internal"
	CodeNoCompletedFiles  = "no_completed_files"
)

// ExtractionErrorKind classifies extraction failures.
type ExtractionErrorKind string

const (
	ExtractionTransient     ExtractionErrorKind = "transient"
	ExtractionInvalidInput  ExtractionErrorKind = "invalid-input"
	ExtractionQuotaExceeded ExtractionErrorKind = "quota-exceeded"
	ExtractionUnknown       ExtractionErrorKind = "unknown"
)

// Code returns the file error code stored for this kind.
func (k ExtractionErrorKind) Code() string {
	switch k {
	case ExtractionTransient:
		return CodeTransient
	case ExtractionInvalidInput:
		return CodeInvalidInput
	case ExtractionQuotaExceeded:
		return CodeQuotaExceeded
	default:
		return CodeUnknown
	}
}

// UserMessage is the short human text attached to a failed file.
func (k ExtractionErrorKind) UserMessage() string {
	switch k {
	case ExtractionTransient:
		return "The extraction service was temporarily unavailable. Please retry this file."
	case ExtractionInvalidInput:
		return "The file could not be read as a valid document."
	case ExtractionQuotaExceeded:
		return "The extraction quota was exceeded. Please try again later."
	default:
		return "The file could not be processed."
	}
}

// ExtractionError is returned by extraction adapters.
type ExtractionError struct {
	Kind    ExtractionErrorKind
	Message string
	Cause   error
}

func (e *ExtractionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("extraction %s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("extraction %s: %s", e.Kind, e.Message)
}

func (e *ExtractionError) Unwrap() error { return e.Cause }

func NewExtractionError(kind ExtractionErrorKind, msg string, cause error) *ExtractionError {
	return &ExtractionError{Kind: kind, Message: msg, Cause: cause}
}

// ClassifyExtraction maps any error returned by an extractor to a kind.
func ClassifyExtraction(err error) ExtractionErrorKind {
	if err == nil {
		return ""
	}
	var ee *ExtractionError
	if errors.As(err, &ee) {
		switch ee.Kind {
		case ExtractionTransient, ExtractionInvalidInput, ExtractionQuotaExceeded:
			return ee.Kind
		}
		return ExtractionUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ExtractionTransient
	}
	return ExtractionUnknown
}
