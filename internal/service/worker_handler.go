package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/metric"

	"github.com/chintakjoshi/LLM-task-orchestrator/internal/repository"
)

// Provider is the external LLM call WorkerHandler invokes during Phase 2.
// It is out of core scope; only its shape is specified here.
type Provider interface {
	Execute(ctx context.Context, prompt string) (output string, usage repository.UsageMetrics, err error)
}

// ProviderError carries a categorized error_type alongside the underlying
// cause, letting WorkerHandler record a meaningful error_type on the
// TaskExecution without the Provider needing to know about the domain's
// error taxonomy.
type ProviderError struct {
	ErrorType string
	Err       error
}

func (e *ProviderError) Error() string { return e.Err.Error() }
func (e *ProviderError) Unwrap() error { return e.Err }

// WorkerHandler is invoked by the external worker runtime with
// (task_id, dispatch_id, worker_id). It never holds a database transaction
// across the Phase 2 provider call — the latest-attempt guard in
// Repository's worker-facing methods is solely responsible for ignoring a
// stale callback.
type WorkerHandler struct {
	repo     repository.Repository
	provider Provider
	metrics  *metrics
}

// NewWorkerHandler builds a WorkerHandler over repo and provider. reg and
// meter may be nil; the worker runtime typically runs as its own process
// with its own metrics registry, separate from TaskService's.
func NewWorkerHandler(repo repository.Repository, provider Provider, reg prometheus.Registerer, meter metric.Meter) *WorkerHandler {
	return &WorkerHandler{repo: repo, provider: provider, metrics: newMetrics(reg, meter)}
}

// Run drives markRunning -> external call -> {markCompleted | markFailed}.
// A failure from the provider is both recorded against storage and
// returned to the caller so the worker runtime can record its own failure
// bookkeeping.
func (h *WorkerHandler) Run(ctx context.Context, taskID uuid.UUID, dispatchID, workerID string) error {
	t, err := h.prepare(ctx, taskID, dispatchID, workerID)
	if err != nil {
		return err
	}
	if t == nil {
		// Stale dispatch or task already terminal: the guard inside
		// MarkRunning made this a no-op, nothing left to do.
		return nil
	}

	output, usage, provErr := h.provider.Execute(ctx, t.Prompt)
	if provErr != nil {
		errorType := "ProviderError"
		if pe, ok := asProviderError(provErr); ok {
			errorType = pe.ErrorType
		}
		if markErr := h.repo.MarkFailed(ctx, nil, taskID, dispatchID, provErr.Error(), errorType); markErr != nil {
			return markErr
		}
		h.recordAttemptDuration(ctx, taskID)
		return provErr
	}

	if err := h.repo.MarkCompleted(ctx, taskID, dispatchID, output, usage); err != nil {
		return err
	}
	h.recordAttemptDuration(ctx, taskID)
	return nil
}

// recordAttemptDuration looks up the attempt just marked terminal and, if
// both its started_at and completed_at are set, records its duration_ms
// against the attempt-duration histogram. Best-effort: a lookup failure here
// must never turn a successful Run into an error.
func (h *WorkerHandler) recordAttemptDuration(ctx context.Context, taskID uuid.UUID) {
	execution, err := h.repo.GetLatestExecutionForTask(ctx, taskID)
	if err != nil {
		return
	}
	if millis := execution.DurationMillis(); millis != nil {
		h.metrics.recordAttemptDuration(ctx, *millis)
	}
}

// prepare runs Phase 1: it marks the attempt running and returns the task
// (for its prompt) if the callback is still current, or nil if the
// latest-attempt guard made MarkRunning a no-op.
func (h *WorkerHandler) prepare(ctx context.Context, taskID uuid.UUID, dispatchID, workerID string) (*taskSnapshot, error) {
	if err := h.repo.MarkRunning(ctx, taskID, dispatchID, workerID); err != nil {
		return nil, err
	}

	latest, err := h.repo.GetLatestExecutionForTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if latest.DispatchID != dispatchID || latest.Status.IsTerminal() {
		return nil, nil
	}

	t, err := h.repo.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t.Status.IsTerminal() {
		return nil, nil
	}

	return &taskSnapshot{Prompt: t.Prompt}, nil
}

// taskSnapshot carries the fields Phase 2 needs without holding the
// database row or any transaction open across the external call.
type taskSnapshot struct {
	Prompt string
}

func asProviderError(err error) (*ProviderError, bool) {
	pe, ok := err.(*ProviderError)
	return pe, ok
}
