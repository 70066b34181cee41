// Package domain defines ingestion run types and the orchestrator ports
package domain

import (
	"context"
	"time"
)

// RunStatus is the run state machine:
// queued -> running -> succeeded | partial | failed
type RunStatus string

// Run states
const (
	RunQueued    RunStatus = "queued"
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunPartial   RunStatus = "partial"
	RunFailed    RunStatus = "failed"
)

// Terminal reports whether a run can no longer change
func (s RunStatus) Terminal() bool {
	return s == RunSucceeded || s == RunPartial || s == RunFailed
}

// RunMode selects full refetch or cursor-driven incremental fetch
type RunMode string

// Run modes
const (
	ModeFull        RunMode = "full"
	ModeIncremental RunMode = "incremental"
)

// ParseMode validates a client-supplied mode, defaulting to incremental
func ParseMode(s string) (RunMode, bool) {
	switch RunMode(s) {
	case ModeFull:
		return ModeFull, true
	case ModeIncremental, "":
		return ModeIncremental, true
	}
	return "", false
}

// AgencyStatus is the per-agency outcome state
type AgencyStatus string

// Agency outcome states
const (
	AgencySucceeded AgencyStatus = "succeeded"
	AgencyFailed    AgencyStatus = "failed"
)

// AgencyOutcome records one agency's contribution to a run
type AgencyOutcome struct {
	Status   AgencyStatus `json:"status"`
	Fetched  int          `json:"fetched"`
	Inserted int          `json:"inserted"`
	Updated  int          `json:"updated"`
	Skipped  int          `json:"skipped"`
	Failed   int          `json:"failed"`
	Attempts int          `json:"attempts,omitempty"`

	// LastCursor is persisted for the next incremental run
	LastCursor string `json:"last_cursor,omitempty"`

	Error string `json:"error,omitempty"`
}

// Run is one execution of the orchestrator. Immutable once terminal
type Run struct {
	ID           string                   `json:"id"`
	Mode         RunMode                  `json:"mode"`
	AgencyFilter []string                 `json:"agency_filter,omitempty"`
	Status       RunStatus                `json:"status"`
	Outcomes     map[string]AgencyOutcome `json:"agency_outcomes,omitempty"`
	Error        string                   `json:"error,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// RunPage is one keyset page of runs, newest first
type RunPage struct {
	Runs       []Run  `json:"runs"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// ListFilter narrows the run listing
type ListFilter struct {
	Status RunStatus
	Cursor string
	Limit  int
}

// TriggerPort is the admin/ops surface consumed by the scheduler and CLI
type TriggerPort interface {
	// TriggerIngestion creates a queued run and starts it asynchronously.
	// agencyFilter empty means all registered agencies
	TriggerIngestion(ctx context.Context, mode RunMode, agencyFilter []string) (string, error)

	// GetRun returns a run by id
	GetRun(ctx context.Context, id string) (Run, error)

	// ListRuns pages runs newest first
	ListRuns(ctx context.Context, f ListFilter) (RunPage, error)

	// CancelRun aborts an in-flight run; it transitions to failed with a
	// cancellation reason
	CancelRun(ctx context.Context, id string) error
}

// StorageRepo persists runs. Only the orchestrator writes here
type StorageRepo interface {
	Create(ctx context.Context, run Run) error
	MarkRunning(ctx context.Context, id string, at time.Time) error
	Finish(ctx context.Context, id string, status RunStatus, outcomes map[string]AgencyOutcome, errText string, at time.Time) error
	Get(ctx context.Context, id string) (Run, bool, error)
	List(ctx context.Context, f ListFilter, limit int) ([]Run, error)

	// LastCursors extracts per-agency cursors from the most recent run
	// that persisted data
	LastCursors(ctx context.Context) (map[string]string, error)
}
