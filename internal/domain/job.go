package domain

import "time"

// JobStatus enumerates batch job lifecycle states.
type JobStatus string

const (
	JobStatusUploaded            JobStatus = "uploaded"
	JobStatusProcessing          JobStatus = "processing"
	JobStatusCompleted           JobStatus = "completed"
	JobStatusCompletedWithErrors JobStatus = "completed_with_errors"
	JobStatusFailed              JobStatus = "failed"
	JobStatusCancelled           JobStatus = "cancelled"
)

// Terminal reports whether a job in this status can no longer change state.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusCompletedWithErrors, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// Tier enumerates processing quality levels. Premium delegates background
// removal to the hosted AI provider and costs three credits per image.
type Tier string

const (
	TierBasic   Tier = "basic"
	TierPremium Tier = "premium"
)

// Job encapsulates the lifecycle of a batch image-processing run.
type Job struct {
	ID           string
	UserID       string
	Status       JobStatus
	Pipeline     string
	Tier         Tier
	TotalFiles   int
	Processed    int
	Failed       int
	// SettingsJSON carries the per-job transform overrides (shadow style,
	// removal strategy) as raw bytes; the processing layer owns the schema.
	SettingsJSON []byte
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Progress is the externally readable processing state of a job.
type Progress struct {
	Current    int       `json:"current"`
	Total      int       `json:"total"`
	Percentage int       `json:"percentage"`
	Status     JobStatus `json:"status"`
}

// ProgressOf derives the progress view from a job record.
func ProgressOf(job *Job) Progress {
	p := Progress{
		Current: job.Processed + job.Failed,
		Total:   job.TotalFiles,
		Status:  job.Status,
	}
	if p.Total > 0 {
		p.Percentage = p.Current * 100 / p.Total
	}
	return p
}

// Task references one input image inside a job's processing window. The index
// is 1-based and drives the deterministic short output name (img_001.jpg).
type Task struct {
	Index      int
	InputPath  string
	OutputPath string
}

// Result is the per-image outcome collected by the worker pool. Results arrive
// in completion order; Index is the only correlation back to submission order.
type Result struct {
	Index      int
	OK         bool
	OutputPath string
	Method     string
	Err        error
}
