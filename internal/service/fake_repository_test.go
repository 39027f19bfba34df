package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chintakjoshi/LLM-task-orchestrator/internal/domain/task"
	domainerrors "github.com/chintakjoshi/LLM-task-orchestrator/internal/domain/task/errors"
	"github.com/chintakjoshi/LLM-task-orchestrator/internal/repository"
)

func defaultNow() time.Time { return time.Now().UTC() }

// fakeTx is a no-op transaction handle: fakeRepository applies every
// mutation immediately and commit/rollback are bookkeeping only, which is
// sufficient for the policy-layer tests exercised against it.
type fakeTx struct {
	rolledBack bool
}

func (t *fakeTx) Commit(ctx context.Context) error   { return nil }
func (t *fakeTx) Rollback(ctx context.Context) error { t.rolledBack = true; return nil }

// fakeRepository is an in-memory repository.Repository used to test
// TaskService and WorkerHandler policy decisions without a database.
type fakeRepository struct {
	mu         sync.Mutex
	tasks      map[uuid.UUID]task.Task
	executions map[uuid.UUID][]task.TaskExecution
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		tasks:      make(map[uuid.UUID]task.Task),
		executions: make(map[uuid.UUID][]task.TaskExecution),
	}
}

func (r *fakeRepository) Create(ctx context.Context, tx repository.Tx, spec repository.CreateSpec) (task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if spec.ParentTaskID != nil {
		if _, ok := r.tasks[*spec.ParentTaskID]; !ok {
			return task.Task{}, domainerrors.NewParentNotFound(spec.ParentTaskID.String())
		}
	}

	now := nowFunc()
	priority := spec.Priority
	if priority == "" {
		priority = task.PriorityNormal
	}
	maxRetries := spec.MaxRetries
	if maxRetries == 0 {
		maxRetries = task.DefaultMaxRetries
	}

	t := task.Task{
		ID:           uuid.New(),
		Name:         spec.Name,
		Prompt:       spec.Prompt,
		Status:       task.StatusPending,
		Priority:     priority,
		ScheduledAt:  now,
		ExecuteAfter: spec.ExecuteAfter,
		MaxRetries:   maxRetries,
		ParentTaskID: spec.ParentTaskID,
		CreatedAt:    now,
		UpdatedAt:    now,
		CreatedBy:    spec.CreatedBy,
		Metadata:     spec.Metadata,
	}
	r.tasks[t.ID] = t
	return t, nil
}

func (r *fakeRepository) GetByID(ctx context.Context, id uuid.UUID) (task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return task.Task{}, domainerrors.NewNotFound("task", id.String())
	}
	return t, nil
}

func (r *fakeRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (task.Task, repository.Tx, error) {
	t, err := r.GetByID(ctx, id)
	if err != nil {
		return task.Task{}, nil, err
	}
	return t, &fakeTx{}, nil
}

func (r *fakeRepository) List(ctx context.Context, filter repository.ListFilter) ([]task.Task, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []task.Task
	for _, t := range r.tasks {
		if filter.StatusFilter != "" && t.Status != filter.StatusFilter {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, len(out), nil
}

func (r *fakeRepository) EnqueueExecution(ctx context.Context, tx repository.Tx, taskID uuid.UUID, dispatchID string, incrementRetryCount bool) (task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[taskID]
	if !ok {
		return task.Task{}, domainerrors.NewNotFound("task", taskID.String())
	}

	nextAttempt := len(r.executions[taskID]) + 1
	if incrementRetryCount {
		t.RetryCount++
	}
	t.Status = task.StatusQueued
	t.StartedAt = nil
	t.CompletedAt = nil
	t.Output = nil
	t.ErrorMessage = nil
	t.UpdatedAt = nowFunc()
	r.tasks[taskID] = t

	r.executions[taskID] = append(r.executions[taskID], task.TaskExecution{
		ID:            uuid.New(),
		TaskID:        taskID,
		AttemptNumber: nextAttempt,
		Status:        task.StatusQueued,
		QueuedAt:      nowFunc(),
		DispatchID:    dispatchID,
	})
	return t, nil
}

func (r *fakeRepository) latestLocked(taskID uuid.UUID) (task.TaskExecution, bool) {
	list := r.executions[taskID]
	if len(list) == 0 {
		return task.TaskExecution{}, false
	}
	return list[len(list)-1], true
}

func (r *fakeRepository) MarkRunning(ctx context.Context, taskID uuid.UUID, dispatchID, workerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[taskID]
	if !ok || t.Status.IsTerminal() {
		return nil
	}
	latest, ok := r.latestLocked(taskID)
	if !ok || latest.DispatchID != dispatchID {
		return nil
	}

	now := nowFunc()
	t.Status = task.StatusRunning
	t.StartedAt = &now
	t.CompletedAt = nil
	t.ErrorMessage = nil
	r.tasks[taskID] = t

	list := r.executions[taskID]
	list[len(list)-1].Status = task.StatusRunning
	list[len(list)-1].StartedAt = &now
	list[len(list)-1].WorkerID = workerID
	return nil
}

func (r *fakeRepository) markTerminalLocked(taskID uuid.UUID, dispatchID string, status task.Status, output, errorMessage, errorType *string, usage repository.UsageMetrics) error {
	t, ok := r.tasks[taskID]
	if !ok {
		return domainerrors.NewNotFound("task", taskID.String())
	}
	latest, haveLatest := r.latestLocked(taskID)
	if haveLatest && latest.DispatchID != dispatchID {
		return nil
	}

	if t.Status == task.StatusCancelled {
		if haveLatest {
			r.updateLatestExecution(taskID, task.StatusCancelled, output, errorMessage, errorType, usage)
		}
		return nil
	}
	if t.Status.IsTerminal() {
		return nil
	}

	now := nowFunc()
	completedAt := task.ResolveCompletedAt(now, t.StartedAt)
	t.Status = status
	t.Output = output
	t.ErrorMessage = errorMessage
	t.CompletedAt = &completedAt
	r.tasks[taskID] = t

	if haveLatest {
		r.updateLatestExecution(taskID, status, output, errorMessage, errorType, usage)
	}
	return nil
}

func (r *fakeRepository) updateLatestExecution(taskID uuid.UUID, status task.Status, output, errorMessage, errorType *string, usage repository.UsageMetrics) {
	now := nowFunc()
	list := r.executions[taskID]
	idx := len(list) - 1
	list[idx].Status = status
	list[idx].CompletedAt = &now
	list[idx].Output = output
	list[idx].ErrorMessage = errorMessage
	list[idx].ErrorType = errorType
	if usage.ModelName != nil {
		list[idx].ModelName = usage.ModelName
	}
	if usage.PromptTokens != nil {
		list[idx].PromptTokens = usage.PromptTokens
	}
	if usage.CompletionTokens != nil {
		list[idx].CompletionTokens = usage.CompletionTokens
	}
	if usage.TotalTokens != nil {
		list[idx].TotalTokens = usage.TotalTokens
	}
}

func (r *fakeRepository) MarkCompleted(ctx context.Context, taskID uuid.UUID, dispatchID string, output string, usage repository.UsageMetrics) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.markTerminalLocked(taskID, dispatchID, task.StatusCompleted, &output, nil, nil, usage)
}

func (r *fakeRepository) MarkFailed(ctx context.Context, tx repository.Tx, taskID uuid.UUID, dispatchID, errorMessage, errorType string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.markTerminalLocked(taskID, dispatchID, task.StatusFailed, nil, &errorMessage, &errorType, repository.UsageMetrics{})
}

func (r *fakeRepository) MarkCancelled(ctx context.Context, taskID uuid.UUID, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[taskID]
	if !ok {
		return domainerrors.NewNotFound("task", taskID.String())
	}
	if t.Status.IsTerminal() {
		return nil
	}
	t.Status = task.StatusCancelled
	t.ErrorMessage = &reason
	r.tasks[taskID] = t

	if latest, ok := r.latestLocked(taskID); ok && !latest.Status.IsTerminal() {
		errType := "TaskCancelled"
		r.updateLatestExecution(taskID, task.StatusCancelled, nil, &reason, &errType, repository.UsageMetrics{})
	}
	return nil
}

func (r *fakeRepository) GetLatestExecutionForTask(ctx context.Context, taskID uuid.UUID) (task.TaskExecution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.latestLocked(taskID)
	if !ok {
		return task.TaskExecution{}, domainerrors.NewNotFound("task_execution", taskID.String())
	}
	return e, nil
}

func (r *fakeRepository) ListAncestors(ctx context.Context, taskID uuid.UUID, maxDepth int) ([]repository.LineageNode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []repository.LineageNode
	current := taskID
	for depth := 1; depth <= maxDepth; depth++ {
		t, ok := r.tasks[current]
		if !ok || t.ParentTaskID == nil {
			break
		}
		parent, ok := r.tasks[*t.ParentTaskID]
		if !ok {
			break
		}
		out = append(out, repository.LineageNode{Task: parent, Depth: depth})
		current = parent.ID
	}
	return out, nil
}

func (r *fakeRepository) ListDescendants(ctx context.Context, taskID uuid.UUID, maxDepth int) ([]repository.LineageNode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	frontier := []uuid.UUID{taskID}
	var out []repository.LineageNode
	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		frontierSet := make(map[uuid.UUID]bool, len(frontier))
		for _, id := range frontier {
			frontierSet[id] = true
		}
		var next []uuid.UUID
		for _, t := range r.tasks {
			if t.ParentTaskID != nil && frontierSet[*t.ParentTaskID] {
				out = append(out, repository.LineageNode{Task: t, Depth: depth})
				next = append(next, t.ID)
			}
		}
		frontier = next
	}
	return out, nil
}

func (r *fakeRepository) ListExistingTaskIds(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []uuid.UUID
	for _, id := range ids {
		if _, ok := r.tasks[id]; ok {
			out = append(out, id)
		}
	}
	return out, nil
}

func (r *fakeRepository) BeginBatch(ctx context.Context) (repository.Tx, error) {
	return &fakeTx{}, nil
}

// nowFunc centralizes "the current time" so it can be swapped by tests that
// need deterministic clocks; it is an ordinary call to time.Now in
// production use.
var nowFunc = defaultNow
