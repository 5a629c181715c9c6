package schedule

// Execution is one run of the conversion pass, scheduled or manual.
//
// Each run records its trigger, timing, status and the pass summary, which
// together with the run events gives the history used for troubleshooting.
type Execution struct {
	// Identity
	ID             string `json:"id"`               // PE_{uuid}
	ScheduledJobID string `json:"scheduled_job_id"` // FK to Job
	Trigger        string `json:"trigger"`          // "scheduled" or "manual"

	// Execution status
	Status string `json:"status"` // "running", "completed", "failed", "skipped"

	// Timing
	StartedAt   string  `json:"started_at"`             // RFC3339 timestamp
	CompletedAt *string `json:"completed_at,omitempty"` // RFC3339 timestamp (null if running)
	DurationMs  *int    `json:"duration_ms,omitempty"`  // Milliseconds (null if running)

	// Output capture
	ResultSummary *string `json:"result_summary,omitempty"`
	ErrorMessage  *string `json:"error_message,omitempty"`

	// Metadata
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// Execution status constants for type safety
const (
	ExecutionStatusRunning   = "running"
	ExecutionStatusCompleted = "completed"
	ExecutionStatusFailed    = "failed"
	// ExecutionStatusSkipped marks a run refused because a pass was already in progress
	ExecutionStatusSkipped = "skipped"
)

// Trigger sources
const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
)
