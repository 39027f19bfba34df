// Package repository declares the transactional persistence contract the
// service layer is built against. internal/repository/postgres provides the
// only production implementation; internal/service's tests exercise the
// same interface against an in-memory fake.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/chintakjoshi/LLM-task-orchestrator/internal/domain/task"
)

// CreateSpec carries the caller-supplied fields for a new Task. Server
// assigned fields (id, scheduled_at, created_at, updated_at, status) are
// filled in by Repository.Create.
type CreateSpec struct {
	Name         string
	Prompt       string
	Priority     task.Priority
	ExecuteAfter *time.Time
	MaxRetries   int
	ParentTaskID *uuid.UUID
	CreatedBy    string
	Metadata     map[string]string
}

// ListFilter narrows a List call. An empty StatusFilter matches every
// status; an empty TextQuery matches every row.
type ListFilter struct {
	Limit       int
	Offset      int
	StatusFilter task.Status
	TextQuery   string
}

// UsageMetrics is the nullable token-accounting triple recorded against a
// completed attempt. Per spec, if any field is set all three must be ≥ 0.
type UsageMetrics struct {
	ModelName        *string
	PromptTokens     *int
	CompletionTokens *int
	TotalTokens      *int
}

// LineageNode pairs a Task with its distance from the lineage root.
type LineageNode struct {
	Task  task.Task
	Depth int
}

// Repository is the transactional persistence contract. Every method
// commits before returning unless noted otherwise; the batch-create path in
// TaskService uses commit=false together with a caller-owned transaction
// obtained from BeginBatch.
type Repository interface {
	// Create inserts one Task in status pending and returns it with
	// server-assigned id and timestamps. When tx is non-nil the insert runs
	// inside that caller-owned transaction and does not commit.
	Create(ctx context.Context, tx Tx, spec CreateSpec) (task.Task, error)

	// GetByID returns a Task by id without taking a row lock.
	GetByID(ctx context.Context, id uuid.UUID) (task.Task, error)

	// GetByIDForUpdate returns a Task by id holding a row-level exclusive
	// lock for the duration of the returned transaction. Callers must
	// Commit or Rollback the returned Tx.
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (task.Task, Tx, error)

	// List paginates tasks. limit must be in [1,200], offset >= 0.
	// TextQuery, when set, matches case-insensitively against id, name,
	// prompt, output, and error_message.
	List(ctx context.Context, filter ListFilter) (tasks []task.Task, total int, err error)

	// EnqueueExecution commits a new queued attempt for taskID: computes
	// the next attempt_number, optionally increments retry_count, resets
	// the Task's transient fields, and inserts a queued TaskExecution row.
	// When tx is non-nil the work runs inside that transaction and does
	// not commit (the batch-create path).
	EnqueueExecution(ctx context.Context, tx Tx, taskID uuid.UUID, dispatchID string, incrementRetryCount bool) (task.Task, error)

	// MarkRunning transitions the latest attempt and its Task to running.
	// It is a no-op if the Task is already terminal or if dispatchID does
	// not match the latest attempt's dispatch id (I4).
	MarkRunning(ctx context.Context, taskID uuid.UUID, dispatchID, workerID string) error

	// MarkCompleted transitions the latest matching attempt to completed.
	// Subject to the same staleness guard as MarkRunning; if the Task is
	// already cancelled only the attempt row is updated; if the Task is
	// already completed or failed this is a no-op.
	MarkCompleted(ctx context.Context, taskID uuid.UUID, dispatchID string, output string, usage UsageMetrics) error

	// MarkFailed mirrors MarkCompleted for the failed outcome.
	MarkFailed(ctx context.Context, tx Tx, taskID uuid.UUID, dispatchID, errorMessage, errorType string) error

	// MarkCancelled force-transitions a Task to cancelled, bypassing the
	// latest-dispatch staleness guard. If the latest attempt is
	// pending/queued/running it is mirrored to cancelled.
	MarkCancelled(ctx context.Context, taskID uuid.UUID, reason string) error

	// GetLatestExecutionForTask returns the execution with the greatest
	// (attempt_number, created_at) for taskID.
	GetLatestExecutionForTask(ctx context.Context, taskID uuid.UUID) (task.TaskExecution, error)

	// ListAncestors walks parent_task_id upward from taskID, returning
	// depths 1..maxDepth (root's own parent chain; taskID itself excluded).
	ListAncestors(ctx context.Context, taskID uuid.UUID, maxDepth int) ([]LineageNode, error)

	// ListDescendants performs a breadth-first walk of child tasks up to
	// maxDepth levels.
	ListDescendants(ctx context.Context, taskID uuid.UUID, maxDepth int) ([]LineageNode, error)

	// ListExistingTaskIds returns the subset of ids that exist, used to
	// pre-validate batch parents in one round trip.
	ListExistingTaskIds(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error)

	// BeginBatch opens a transaction for the all-or-nothing batch-create
	// path; the caller must Commit or Rollback it.
	BeginBatch(ctx context.Context) (Tx, error)
}

// Tx is a caller-owned transaction handle threaded through the commit=false
// batch-create path. The concrete type underneath is implementation
// specific (pgx.Tx in the postgres package); Repository methods accept nil
// to mean "use my own transaction and commit before returning".
type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
