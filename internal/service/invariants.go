package service

import (
	"github.com/chintakjoshi/LLM-task-orchestrator/internal/domain/task"
)

// LifecycleInvariants is the shared lifecycle predicate library.
// TaskService.CancelTask calls CanCancel; RetryTask checks its two
// conditions inline so it can report them as distinct errors, and
// WorkerHandler relies on the repository's guards instead.
type LifecycleInvariants struct{}

// CanRetry reports whether t is eligible for a retry: it must be failed and
// still within its retry budget.
func (LifecycleInvariants) CanRetry(t task.Task) bool {
	return t.Status == task.StatusFailed && t.RetryCount < t.MaxRetries
}

// CanCancel reports whether t can still be cancelled: any non-terminal
// status.
func (LifecycleInvariants) CanCancel(t task.Task) bool {
	return !t.Status.IsTerminal()
}

// IsTerminal reports whether t's status is absorbing.
func (LifecycleInvariants) IsTerminal(t task.Task) bool {
	return t.Status.IsTerminal()
}
