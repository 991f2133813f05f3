package common

import (
	"time"
)

const (
	DEFAULT_RADIUS = 1
	INFO_TTL       = 24 * time.Hour
	// JOB_VISIBILITY is how long a job may stay unacknowledged before
	// another worker claims it. It must exceed the slowest job.
	JOB_VISIBILITY = 10 * time.Minute
)

const (
	JOB_TYPE_PROCESS = "process"
)

type JobStatus string

const (
	StatusQueued    JobStatus = "queued"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

// Job is one image to run through a single extrapolation pass.
type Job struct {
	ID         string    `json:"id"`
	RunID      string    `json:"run_id,omitempty"`
	InputPath  string    `json:"input_path"`
	OutputPath string    `json:"output_path"`
	Radius     int       `json:"radius"`
	CreatedAt  time.Time `json:"created_at"`
}

type JobMessage struct {
	Type string `json:"type"`
	Job  *Job   `json:"job,omitempty"`
}

// ResultMessage is published by a worker once a job finished, successfully or not.
type ResultMessage struct {
	JobID             string  `json:"job_id"`
	RunID             string  `json:"run_id,omitempty"`
	OutputPath        string  `json:"output_path"`
	WorkerID          string  `json:"worker_id"`
	Width             int     `json:"width"`
	Height            int     `json:"height"`
	AlphaUpdated      int64   `json:"alpha_updated"`
	ColorExtrapolated int64   `json:"color_extrapolated"`
	ProcessTime       float64 `json:"process_time"`
	Error             string  `json:"error,omitempty"`
}

// RunInfo describes one batch of jobs queued together by a coordinator.
type RunInfo struct {
	ID          string    `json:"id"`
	Radius      int       `json:"radius"`
	TotalJobs   int       `json:"total_jobs"`
	InputPaths  []string  `json:"input_paths"`
	OutputPaths []string  `json:"output_paths"`
	StartTime   time.Time `json:"start_time"`
}

// JobInfo is the status record kept per job.
type JobInfo struct {
	Job       *Job           `json:"job"`
	Status    JobStatus      `json:"status"`
	Result    *ResultMessage `json:"result,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}
