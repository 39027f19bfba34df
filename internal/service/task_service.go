// Package service implements the policy layer: TaskService drives the task
// lifecycle state machine on top of a Repository and a Dispatcher,
// enforcing retry budgets, cancellation races, batch all-or-nothing
// persistence, and lineage traversal bounds.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/chintakjoshi/LLM-task-orchestrator/internal/dispatch"
	"github.com/chintakjoshi/LLM-task-orchestrator/internal/domain/task"
	domainerrors "github.com/chintakjoshi/LLM-task-orchestrator/internal/domain/task/errors"
	"github.com/chintakjoshi/LLM-task-orchestrator/internal/logging"
	"github.com/chintakjoshi/LLM-task-orchestrator/internal/repository"

	"github.com/prometheus/client_golang/prometheus"
)

// dispatchJobName is the broker-side job kind every submitted attempt is
// tagged with.
const dispatchJobName = "ExecuteLLM"

// Fallback bounds used when New is given a non-positive limit (e.g. a zero
// value from an unset config field).
const (
	defaultBatchSizeLimit    = 50
	defaultLineageDepthLimit = 20
)

// CreateTaskInput carries the caller-supplied fields for a new task.
type CreateTaskInput struct {
	Name         string
	Prompt       string
	Priority     task.Priority
	ExecuteAfter *time.Time
	MaxRetries   int
	ParentTaskID *uuid.UUID
	CreatedBy    string
	Metadata     map[string]string
}

// TaskLineage is the result of GetTaskLineage: the requested task, its
// ancestor chain (depth 1..k, nearest first), and its descendant tree
// (breadth-first, depth 1..k).
type TaskLineage struct {
	Root        task.Task
	Ancestors   []repository.LineageNode
	Descendants []repository.LineageNode
}

// TaskService is the policy layer described in the component design: every
// public method opens at most one logical unit of work against repo and
// dispatcher.
type TaskService struct {
	repo       repository.Repository
	dispatcher dispatch.Dispatcher
	templates  *task.TemplateRegistry
	invariants LifecycleInvariants
	metrics    *metrics
	log        logging.Logger

	maxBatchSize      int
	maxLineageDepth   int
	defaultMaxRetries int
}

// New builds a TaskService. reg and meter may be nil. batchSizeLimit,
// lineageDepthLimit, and defaultMaxRetries come from config.Config and fall
// back to this package's defaults when non-positive.
func New(repo repository.Repository, dispatcher dispatch.Dispatcher, templates *task.TemplateRegistry, batchSizeLimit, lineageDepthLimit, defaultMaxRetries int, reg prometheus.Registerer, meter metric.Meter, log logging.Logger) *TaskService {
	if batchSizeLimit <= 0 {
		batchSizeLimit = defaultBatchSizeLimit
	}
	if lineageDepthLimit <= 0 {
		lineageDepthLimit = defaultLineageDepthLimit
	}
	if defaultMaxRetries <= 0 {
		defaultMaxRetries = task.DefaultMaxRetries
	}
	return &TaskService{
		repo:              repo,
		dispatcher:        dispatcher,
		templates:         templates,
		metrics:           newMetrics(reg, meter),
		log:               logging.OrNop(log),
		maxBatchSize:      batchSizeLimit,
		maxLineageDepth:   lineageDepthLimit,
		defaultMaxRetries: defaultMaxRetries,
	}
}

// CreateTask validates parentage and execute_after, persists a pending
// task, then enqueues and dispatches its first attempt.
func (s *TaskService) CreateTask(ctx context.Context, in CreateTaskInput) (task.Task, error) {
	now := time.Now().UTC()
	executeAfter := in.ExecuteAfter
	if executeAfter != nil {
		utc := executeAfter.UTC()
		if !utc.After(now.Add(time.Second)) {
			executeAfter = nil
		} else {
			executeAfter = &utc
		}
	}

	maxRetries := in.MaxRetries
	if maxRetries <= 0 {
		maxRetries = s.defaultMaxRetries
	}

	created, err := s.repo.Create(ctx, nil, repository.CreateSpec{
		Name:         in.Name,
		Prompt:       in.Prompt,
		Priority:     in.Priority,
		ExecuteAfter: executeAfter,
		MaxRetries:   maxRetries,
		ParentTaskID: in.ParentTaskID,
		CreatedBy:    in.CreatedBy,
		Metadata:     in.Metadata,
	})
	if err != nil {
		return task.Task{}, err
	}

	s.metrics.tasksCreated.Inc()

	updated, err := s.enqueueAndDispatch(ctx, created.ID, false, executeAfter)
	if err != nil {
		return task.Task{}, err
	}
	return updated, nil
}

// ListTasks paginates tasks.
func (s *TaskService) ListTasks(ctx context.Context, filter repository.ListFilter) ([]task.Task, int, error) {
	return s.repo.List(ctx, filter)
}

// GetTask fetches a single task, failing with NotFoundError if absent.
func (s *TaskService) GetTask(ctx context.Context, id uuid.UUID) (task.Task, error) {
	return s.repo.GetByID(ctx, id)
}

// RetryTask enqueues a new attempt for a failed task still within its
// retry budget.
func (s *TaskService) RetryTask(ctx context.Context, id uuid.UUID) (task.Task, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return task.Task{}, err
	}
	if t.Status != task.StatusFailed {
		return task.Task{}, domainerrors.NewRetryNotAllowed(id.String(), string(t.Status))
	}
	if t.RetryCount >= t.MaxRetries {
		return task.Task{}, domainerrors.NewRetryLimitReached(id.String(), t.RetryCount, t.MaxRetries)
	}

	updated, err := s.enqueueAndDispatch(ctx, id, true, nil)
	if err != nil {
		return task.Task{}, err
	}
	s.metrics.tasksRetried.Inc()
	return updated, nil
}

// CancelTask revokes the latest dispatch (best-effort) and force-transitions
// the task to cancelled.
func (s *TaskService) CancelTask(ctx context.Context, id uuid.UUID) (task.Task, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return task.Task{}, err
	}
	if !s.invariants.CanCancel(t) {
		return task.Task{}, domainerrors.NewCancelNotAllowed(id.String(), string(t.Status))
	}

	if latest, err := s.repo.GetLatestExecutionForTask(ctx, id); err == nil && latest.DispatchID != "" {
		if revokeErr := s.dispatcher.Revoke(ctx, latest.DispatchID, false); revokeErr != nil {
			s.log.Warn("revoke failed during cancel, proceeding with storage cancellation",
				"task_id", id, "dispatch_id", latest.DispatchID, "error", revokeErr)
		}
	}

	if err := s.repo.MarkCancelled(ctx, id, "Task cancelled by user request"); err != nil {
		return task.Task{}, err
	}
	s.metrics.tasksCancelled.Inc()
	return s.repo.GetByID(ctx, id)
}

// BatchCreateTasks persists 1 to maxBatchSize items (50 unless configured
// otherwise) in a single all-or-nothing
// transaction, then dispatches each item best-effort. A dispatch failure
// for one item marks only that item failed; the batch commit itself is not
// affected.
func (s *TaskService) BatchCreateTasks(ctx context.Context, items []CreateTaskInput) ([]task.Task, error) {
	if len(items) < 1 || len(items) > s.maxBatchSize {
		return nil, domainerrors.NewValidation("items", fmt.Sprintf("batch size must be in [1,%d]", s.maxBatchSize))
	}

	var parentIDs []uuid.UUID
	for _, item := range items {
		if item.ParentTaskID != nil {
			parentIDs = append(parentIDs, *item.ParentTaskID)
		}
	}
	if len(parentIDs) > 0 {
		existing, err := s.repo.ListExistingTaskIds(ctx, parentIDs)
		if err != nil {
			return nil, err
		}
		existingSet := make(map[uuid.UUID]bool, len(existing))
		for _, id := range existing {
			existingSet[id] = true
		}
		for _, id := range parentIDs {
			if !existingSet[id] {
				return nil, domainerrors.NewParentNotFound(id.String())
			}
		}
	}

	tx, err := s.repo.BeginBatch(ctx)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	type pending struct {
		task       task.Task
		dispatchID string
		eta        *time.Time
	}
	created := make([]pending, 0, len(items))

	for _, item := range items {
		itemMaxRetries := item.MaxRetries
		if itemMaxRetries <= 0 {
			itemMaxRetries = s.defaultMaxRetries
		}
		t, err := s.repo.Create(ctx, tx, repository.CreateSpec{
			Name:         item.Name,
			Prompt:       item.Prompt,
			Priority:     item.Priority,
			ExecuteAfter: item.ExecuteAfter,
			MaxRetries:   itemMaxRetries,
			ParentTaskID: item.ParentTaskID,
			CreatedBy:    item.CreatedBy,
			Metadata:     item.Metadata,
		})
		if err != nil {
			return nil, err
		}

		dispatchID := uuid.NewString()
		t, err = s.repo.EnqueueExecution(ctx, tx, t.ID, dispatchID, false)
		if err != nil {
			return nil, err
		}
		created = append(created, pending{task: t, dispatchID: dispatchID, eta: item.ExecuteAfter})
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	committed = true

	out := make([]task.Task, 0, len(created))
	for _, p := range created {
		args := map[string]string{"task_id": p.task.ID.String()}
		if err := s.dispatcher.Submit(ctx, dispatchJobName, args, p.dispatchID, p.eta); err != nil {
			s.metrics.enqueueErrors.Inc()
			_ = s.repo.MarkFailed(ctx, nil, p.task.ID, p.dispatchID, "Failed to submit to broker", "EnqueueError")
			if t, getErr := s.repo.GetByID(ctx, p.task.ID); getErr == nil {
				out = append(out, t)
				continue
			}
		}
		out = append(out, p.task)
	}
	s.metrics.tasksCreated.Add(float64(len(out)))
	return out, nil
}

// CreateTaskFromTemplate renders templateID's body with inputText and
// delegates to CreateTask, deriving a name when none is supplied.
func (s *TaskService) CreateTaskFromTemplate(ctx context.Context, templateID, inputText, name, createdBy string) (task.Task, error) {
	prompt, defaultName, err := s.templates.Render(templateID, inputText)
	if err != nil {
		return task.Task{}, domainerrors.NewValidation("template_id", err.Error())
	}
	if name == "" {
		name = defaultName
	}
	return s.CreateTask(ctx, CreateTaskInput{Name: name, Prompt: prompt, CreatedBy: createdBy})
}

// ListTaskTemplates returns the static prompt template catalog.
func (s *TaskService) ListTaskTemplates() []task.Template {
	return s.templates.List()
}

// GetTaskLineage returns root, its ancestor chain, and its descendant tree,
// each bounded by maxDepth (clamped to [1, s.maxLineageDepth]).
func (s *TaskService) GetTaskLineage(ctx context.Context, id uuid.UUID, maxDepth int) (TaskLineage, error) {
	if maxDepth < 1 {
		maxDepth = 1
	}
	if maxDepth > s.maxLineageDepth {
		maxDepth = s.maxLineageDepth
	}

	root, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return TaskLineage{}, err
	}

	ancestors, err := s.repo.ListAncestors(ctx, id, maxDepth)
	if err != nil {
		return TaskLineage{}, err
	}
	descendants, err := s.repo.ListDescendants(ctx, id, maxDepth)
	if err != nil {
		return TaskLineage{}, err
	}

	return TaskLineage{Root: root, Ancestors: ancestors, Descendants: descendants}, nil
}

// enqueueAndDispatch is the critical helper shared by CreateTask and
// RetryTask: it commits the queued attempt to storage before ever calling
// the broker, so a lost submission degrades to a persisted failed attempt
// rather than an orphaned queued task.
func (s *TaskService) enqueueAndDispatch(ctx context.Context, taskID uuid.UUID, incrementRetryCount bool, eta *time.Time) (task.Task, error) {
	if _, err := s.repo.GetByID(ctx, taskID); err != nil {
		return task.Task{}, err
	}

	dispatchID := uuid.NewString()
	updated, err := s.repo.EnqueueExecution(ctx, nil, taskID, dispatchID, incrementRetryCount)
	if err != nil {
		return task.Task{}, err
	}

	args := map[string]string{"task_id": taskID.String()}
	if err := s.dispatcher.Submit(ctx, dispatchJobName, args, dispatchID, eta); err != nil {
		s.metrics.enqueueErrors.Inc()
		_ = s.repo.MarkFailed(ctx, nil, taskID, dispatchID, "Failed to submit to broker", "EnqueueError")
		return task.Task{}, domainerrors.NewEnqueueFailure(taskID.String(), err)
	}

	return updated, nil
}
