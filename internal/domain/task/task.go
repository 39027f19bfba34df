// Package task defines the task lifecycle domain model: the authoritative
// Task row, its append-only TaskExecution attempt log, and the invariant
// predicates shared by the repository and service layers.
package task

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state shared by a Task and its TaskExecution rows.
type Status string

const (
	StatusPending   Status = "pending"
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether the status is a final, absorbing state.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Priority is persisted on a Task but is advisory only within this core;
// only the pull-mode get_next_task() SQL helper acts on it.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// DefaultMaxRetries is the default retry budget for a newly created task.
const DefaultMaxRetries = 3

// Task is the authoritative current state of a unit of work.
type Task struct {
	ID            uuid.UUID
	Name          string
	Prompt        string
	Status        Status
	Priority      Priority
	ScheduledAt   time.Time
	ExecuteAfter  *time.Time
	StartedAt     *time.Time
	CompletedAt   *time.Time
	Output        *string
	ErrorMessage  *string
	MaxRetries    int
	RetryCount    int
	ParentTaskID  *uuid.UUID
	ChainPosition *int
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CreatedBy     string
	Metadata      map[string]string
}

// TaskExecution is one append-only row in the per-task attempt log.
type TaskExecution struct {
	ID                uuid.UUID
	TaskID            uuid.UUID
	AttemptNumber     int
	Status            Status
	QueuedAt          time.Time
	StartedAt         *time.Time
	CompletedAt       *time.Time
	WorkerID          string
	DispatchID        string
	ModelName         *string
	PromptTokens      *int
	CompletionTokens  *int
	TotalTokens       *int
	Output            *string
	ErrorMessage      *string
	ErrorType         *string
	ExecutionMetadata map[string]string
}

// DurationMillis computes duration_ms per spec §3: completed_at - started_at
// in milliseconds, or nil when either timestamp is absent.
func (e *TaskExecution) DurationMillis() *int64 {
	if e.StartedAt == nil || e.CompletedAt == nil {
		return nil
	}
	d := e.CompletedAt.Sub(*e.StartedAt).Milliseconds()
	return &d
}

// IsLatestCandidate reports whether this execution is in a non-terminal
// status, i.e. it is eligible to be "the latest attempt" a worker callback
// may still advance (spec I4).
func (e *TaskExecution) IsLatestCandidate() bool {
	return !e.Status.IsTerminal()
}

// ResolveCompletedAt implements spec §4.1's clock-skew protection: the
// recorded completion time is always max(now, startedAt) so a non-monotone
// system clock can never produce completed_at < started_at.
func ResolveCompletedAt(now time.Time, startedAt *time.Time) time.Time {
	if startedAt != nil && startedAt.After(now) {
		return *startedAt
	}
	return now
}
