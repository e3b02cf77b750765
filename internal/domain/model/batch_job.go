package model

import (
	"strings"
	"time"

	"docbatch/internal/domain"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusReady      JobStatus = "ready"
	JobStatusProcessing JobStatus = "processing"
	JobStatusMerging    JobStatus = "merging"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// jobTransitions lists every allowed next state. Terminal states map to nothing.
var jobTransitions = map[JobStatus][]JobStatus{
	JobStatusPending:    {JobStatusReady, JobStatusFailed},
	JobStatusReady:      {JobStatusProcessing, JobStatusFailed},
	JobStatusProcessing: {JobStatusProcessing, JobStatusCompleted, JobStatusFailed, JobStatusMerging},
	JobStatusMerging:    {JobStatusCompleted, JobStatusFailed},
	JobStatusCompleted:  {},
	JobStatusFailed:     {},
}

// ParseJobStatus returns ErrInvalidArgument for unknown values.
func ParseJobStatus(s string) (JobStatus, error) {
	st := JobStatus(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := jobTransitions[st]; !ok {
		return "", domain.ErrInvalidArgument
	}
	return st, nil
}

func (s JobStatus) IsValid() bool {
	_, ok := jobTransitions[s]
	return ok
}

func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// CanTransitionTo reports whether next is an allowed successor of s.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	for _, n := range jobTransitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

// JobStatusesLeadingTo returns every state that may move to next.
func JobStatusesLeadingTo(next JobStatus) []JobStatus {
	var out []JobStatus
	for _, s := range []JobStatus{JobStatusPending, JobStatusReady, JobStatusProcessing, JobStatusMerging, JobStatusCompleted, JobStatusFailed} {
		if s.CanTransitionTo(next) {
			out = append(out, s)
		}
	}
	return out
}

type MergeFormat string

const (
	MergeFormatPlain      MergeFormat = "plain"
	MergeFormatStructured MergeFormat = "structured"
	MergeFormatRich       MergeFormat = "rich"
)

func ParseMergeFormat(s string) (MergeFormat, error) {
	switch f := MergeFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case MergeFormatPlain, MergeFormatStructured, MergeFormatRich:
		return f, nil
	}
	return "", domain.ErrUnsupportedFormat
}

// Extension is the artifact file extension for the format.
func (f MergeFormat) Extension() string {
	switch f {
	case MergeFormatStructured:
		return ".md"
	case MergeFormatRich:
		return ".html"
	default:
		return ".txt"
	}
}

func (f MergeFormat) ContentType() string {
	switch f {
	case MergeFormatStructured:
		return "text/markdown; charset=utf-8"
	case MergeFormatRich:
		return "text/html; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}

// BatchJob is a set of files processed together and optionally merged.
type BatchJob struct {
	ID          string
	UserID      string
	Name        string
	Description string
	Status      JobStatus
	MergeOutput bool
	MergeFormat MergeFormat

	// Aggregates, recomputed from the full file set after every sweep.
	TotalFiles     int
	CompletedFiles int
	FailedFiles    int
	SkippedFiles   int
	TotalPages     int

	FailureCode   string
	FailureReason string

	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	UpdatedAt   time.Time
}

// NewBatchJob creates a pending job.
func NewBatchJob(userID, name, description string, mergeOutput bool, format MergeFormat) (*BatchJob, error) {
	name = strings.TrimSpace(name)
	if userID == "" || name == "" {
		return nil, domain.ErrInvalidArgument
	}
	if mergeOutput {
		if _, err := ParseMergeFormat(string(format)); err != nil {
			return nil, err
		}
	} else {
		format = ""
	}
	now := time.Now().UTC()
	return &BatchJob{
		ID:          uuid.NewString(),
		UserID:      userID,
		Name:        name,
		Description: strings.TrimSpace(description),
		Status:      JobStatusPending,
		MergeOutput: mergeOutput,
		MergeFormat: format,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Transition moves the job forward, stamping timestamps.
func (j *BatchJob) Transition(next JobStatus, now time.Time) error {
	if !j.Status.CanTransitionTo(next) {
		return domain.ErrInvalidTransition
	}
	if next == JobStatusProcessing && j.StartedAt == nil {
		t := now
		j.StartedAt = &t
	}
	if next.IsTerminal() {
		t := now
		j.CompletedAt = &t
	}
	j.Status = next
	j.UpdatedAt = now
	return nil
}

// Fail moves the job to failed with an aggregate reason.
func (j *BatchJob) Fail(code, reason string, now time.Time) error {
	if err := j.Transition(JobStatusFailed, now); err != nil {
		return err
	}
	j.FailureCode = code
	j.FailureReason = reason
	return nil
}

// Progress is the aggregate view over a job's files.
type Progress struct {
	Total     int
	Completed int
	Failed    int
	Skipped   int
	Uploaded  int
	Pages     int
}

// AllTerminal reports whether no file remains to be processed.
func (p Progress) AllTerminal() bool {
	return p.Total > 0 && p.Completed+p.Failed+p.Skipped == p.Total
}

// ComputeProgress aggregates the full file set of a job.
func ComputeProgress(files []*BatchFile) Progress {
	var p Progress
	for _, f := range files {
		p.Total++
		switch f.Status {
		case FileStatusCompleted:
			p.Completed++
			p.Pages += f.ActualPages
		case FileStatusFailed:
			p.Failed++
		case FileStatusSkipped:
			p.Skipped++
		case FileStatusUploaded:
			p.Uploaded++
		}
	}
	return p
}

// ApplyProgress copies the aggregates onto the job.
func (j *BatchJob) ApplyProgress(p Progress) {
	j.TotalFiles = p.Total
	j.CompletedFiles = p.Completed
	j.FailedFiles = p.Failed
	j.SkippedFiles = p.Skipped
	j.TotalPages = p.Pages
}
