package schedule

import (
	"time"
)

// OverlapBehavior defines what to do if a previous run is still active
type OverlapBehavior string

const (
	OverlapSkip     OverlapBehavior = "skip"     // Don't start if previous still running
	OverlapParallel OverlapBehavior = "parallel" // Allow concurrent execution
)

// Schedule represents a command launched on a cron schedule
type Schedule struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	CronExpr        string            `json:"cron_expr"` // Standard 5-field cron expression
	Command         []string          `json:"command"`   // Argv to launch
	WorkingDir      string            `json:"working_dir,omitempty"`
	Environment     map[string]string `json:"environment,omitempty"`
	Enabled         bool              `json:"enabled"`          // Can be paused/resumed
	OverlapBehavior OverlapBehavior   `json:"overlap_behavior"` // What to do if previous run active
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
	LastRunAt       *time.Time        `json:"last_run_at,omitempty"`
	NextRunAt       *time.Time        `json:"next_run_at,omitempty"`
	CreatorTokenID  string            `json:"creator_token_id"` // Token that created this schedule
}

// ExecutionStatus represents the outcome of a schedule execution
type ExecutionStatus string

const (
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionFailed  ExecutionStatus = "failed"
	ExecutionSkipped ExecutionStatus = "skipped"
)

// Execution represents a single execution of a scheduled command
type Execution struct {
	ID         string          `json:"id"`
	ScheduleID string          `json:"schedule_id"`
	ProcessID  string          `json:"process_id,omitempty"`
	ExecutedAt time.Time       `json:"executed_at"`
	Status     ExecutionStatus `json:"status"`
	ExitCode   *int            `json:"exit_code,omitempty"`
	Error      string          `json:"error,omitempty"`
	DurationMs int64           `json:"duration_ms,omitempty"`
}

// ScheduleUpdate contains optional fields for updating a schedule
type ScheduleUpdate struct {
	Name            *string           `json:"name,omitempty"`
	CronExpr        *string           `json:"cron_expr,omitempty"`
	Command         []string          `json:"command,omitempty"` // If set, replaces the argv
	WorkingDir      *string           `json:"working_dir,omitempty"`
	Environment     map[string]string `json:"environment,omitempty"`
	Enabled         *bool             `json:"enabled,omitempty"`
	OverlapBehavior *OverlapBehavior  `json:"overlap_behavior,omitempty"`
}

// ListFilter contains optional filters for listing schedules
type ListFilter struct {
	Enabled *bool // Filter by enabled status
}

// IsValidOverlapBehavior checks if the overlap behavior is valid
func IsValidOverlapBehavior(b OverlapBehavior) bool {
	return b == OverlapSkip || b == OverlapParallel
}
