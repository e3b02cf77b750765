package api

import (
	"time"

	"docbatch/internal/domain/model"
	"docbatch/internal/usecase"
)

type fileResponse struct {
	ID             string           `json:"id"`
	Filename       string           `json:"filename"`
	Status         model.FileStatus `json:"status"`
	SizeBytes      int64            `json:"size_bytes"`
	EstimatedPages int              `json:"estimated_pages"`
	ActualPages    int              `json:"actual_pages"`
	RecordID       *string          `json:"record_id,omitempty"`
	ErrorCode      string           `json:"error_code,omitempty"`
	ErrorMessage   string           `json:"error_message,omitempty"`
	StartedAt      *time.Time       `json:"started_at,omitempty"`
	CompletedAt    *time.Time       `json:"completed_at,omitempty"`
}

type jobResponse struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Description    string            `json:"description,omitempty"`
	Status         model.JobStatus   `json:"status"`
	MergeOutput    bool              `json:"merge_output"`
	MergeFormat    model.MergeFormat `json:"merge_format,omitempty"`
	TotalFiles     int               `json:"total_files"`
	CompletedFiles int               `json:"completed_files"`
	FailedFiles    int               `json:"failed_files"`
	SkippedFiles   int               `json:"skipped_files"`
	TotalPages     int               `json:"total_pages"`
	FailureCode    string            `json:"failure_code,omitempty"`
	FailureReason  string            `json:"failure_reason,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	StartedAt      *time.Time        `json:"started_at,omitempty"`
	CompletedAt    *time.Time        `json:"completed_at,omitempty"`
	UpdatedAt      time.Time         `json:"updated_at"`
	Files          []fileResponse    `json:"files"`
}

func newJobResponse(v *usecase.JobView) jobResponse {
	j := v.Job
	resp := jobResponse{
		ID:             j.ID,
		Name:           j.Name,
		Description:    j.Description,
		Status:         j.Status,
		MergeOutput:    j.MergeOutput,
		MergeFormat:    j.MergeFormat,
		TotalFiles:     j.TotalFiles,
		CompletedFiles: j.CompletedFiles,
		FailedFiles:    j.FailedFiles,
		SkippedFiles:   j.SkippedFiles,
		TotalPages:     j.TotalPages,
		FailureCode:    j.FailureCode,
		FailureReason:  j.FailureReason,
		CreatedAt:      j.CreatedAt,
		StartedAt:      j.StartedAt,
		CompletedAt:    j.CompletedAt,
		UpdatedAt:      j.UpdatedAt,
		Files:          make([]fileResponse, 0, len(v.Files)),
	}
	for _, f := range v.Files {
		resp.Files = append(resp.Files, fileResponse{
			ID:             f.ID,
			Filename:       f.Filename,
			Status:         f.Status,
			SizeBytes:      f.SizeBytes,
			EstimatedPages: f.EstimatedPages,
			ActualPages:    f.ActualPages,
			RecordID:       f.RecordID,
			ErrorCode:      f.ErrorCode,
			ErrorMessage:   f.ErrorMessage,
			StartedAt:      f.StartedAt,
			CompletedAt:    f.CompletedAt,
		})
	}
	return resp
}
