package models

import "time"

type ProcessingJob struct {
	ID        string          `json:"id"`
	Filename  string          `json:"filename"`
	SourceKey string          `json:"source_key"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Result    *ProcessedImage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// Finished reports whether the job reached a terminal status.
func (j *ProcessingJob) Finished() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)
