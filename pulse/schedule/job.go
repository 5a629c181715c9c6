// Package schedule runs the conversion pass on a recurring schedule and
// keeps its execution history.
package schedule

import "time"

// ConversionJobID is the scheduled job that drives attribute conversion
const ConversionJobID = "attribute-conversion"

// Job is a recurring scheduled job
type Job struct {
	ID              string     `json:"id"`
	IntervalSeconds int        `json:"interval_seconds"`
	NextRunAt       *time.Time `json:"next_run_at,omitempty"`
	LastRunAt       *time.Time `json:"last_run_at,omitempty"`
	LastExecutionID string     `json:"last_execution_id,omitempty"`
	State           string     `json:"state"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Interval returns the job interval as a duration
func (j *Job) Interval() time.Duration {
	return time.Duration(j.IntervalSeconds) * time.Second
}

// State constants for scheduled jobs
const (
	StateActive = "active" // Job is running on schedule
	StatePaused = "paused" // Job is temporarily paused by the operator
)
