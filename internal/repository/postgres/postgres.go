// Package postgres implements internal/repository.Repository on top of
// pgx/v5 and pgxpool, grounded on the teacher's pgx-backed task store
// (claim/lease locking via row-level FOR UPDATE, advisory locks for the
// optional pull-mode sweep guard).
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chintakjoshi/LLM-task-orchestrator/internal/domain/task"
	domainerrors "github.com/chintakjoshi/LLM-task-orchestrator/internal/domain/task/errors"
	"github.com/chintakjoshi/LLM-task-orchestrator/internal/logging"
	"github.com/chintakjoshi/LLM-task-orchestrator/internal/repository"
)

// pgxPool is the subset of *pgxpool.Pool's surface Store depends on,
// narrowed so tests can substitute pgxmock's pool fake in place of a live
// database connection.
type pgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements repository.Repository against a live PostgreSQL
// database reachable through pool.
type Store struct {
	pool pgxPool
	log  logging.Logger
}

// NewStore wraps an already-connected pool.
func NewStore(pool *pgxpool.Pool, log logging.Logger) *Store {
	return &Store{pool: pool, log: logging.OrNop(log)}
}

// newStoreWithPool is the test seam: it accepts any pgxPool implementation,
// including pgxmock's fake pool.
func newStoreWithPool(pool pgxPool, log logging.Logger) *Store {
	return &Store{pool: pool, log: logging.OrNop(log)}
}

// EnsureSchema applies schemaDDL; safe to call on every process start.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schemaDDL)
	if err != nil {
		return domainerrors.NewStorageFailure("ensure_schema", err)
	}
	return nil
}

// pgxTx adapts *pgx.Tx (value form returned by pgxpool.Pool.Begin) to the
// repository.Tx seam.
type pgxTx struct {
	tx pgx.Tx
}

func (t pgxTx) Commit(ctx context.Context) error   { return t.tx.Commit(ctx) }
func (t pgxTx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }

func txOrNil(tx repository.Tx) pgx.Tx {
	if tx == nil {
		return nil
	}
	if wrapped, ok := tx.(pgxTx); ok {
		return wrapped.tx
	}
	return nil
}

func marshalMetadata(m map[string]string) ([]byte, error) {
	if m == nil {
		m = map[string]string{}
	}
	return json.Marshal(m)
}

func unmarshalMetadata(raw []byte) map[string]string {
	if len(raw) == 0 {
		return map[string]string{}
	}
	out := map[string]string{}
	_ = json.Unmarshal(raw, &out)
	return out
}

const taskColumns = `id, name, prompt, status, priority, scheduled_at, execute_after,
	started_at, completed_at, output, error_message, max_retries, retry_count,
	parent_task_id, chain_position, created_at, updated_at, created_by, metadata`

func scanTask(row pgx.Row) (task.Task, error) {
	var t task.Task
	var metadataRaw []byte
	err := row.Scan(
		&t.ID, &t.Name, &t.Prompt, &t.Status, &t.Priority, &t.ScheduledAt, &t.ExecuteAfter,
		&t.StartedAt, &t.CompletedAt, &t.Output, &t.ErrorMessage, &t.MaxRetries, &t.RetryCount,
		&t.ParentTaskID, &t.ChainPosition, &t.CreatedAt, &t.UpdatedAt, &t.CreatedBy, &metadataRaw,
	)
	if err != nil {
		return task.Task{}, err
	}
	t.Metadata = unmarshalMetadata(metadataRaw)
	return t, nil
}

// Create inserts one pending Task. When tx is non-nil the insert runs
// inside that caller-owned transaction and does not commit.
func (s *Store) Create(ctx context.Context, tx repository.Tx, spec repository.CreateSpec) (task.Task, error) {
	if spec.ParentTaskID != nil {
		if _, err := s.getTaskByID(ctx, s.pool, *spec.ParentTaskID); err != nil {
			return task.Task{}, domainerrors.NewParentNotFound(spec.ParentTaskID.String())
		}
	}

	metadataRaw, err := marshalMetadata(spec.Metadata)
	if err != nil {
		return task.Task{}, domainerrors.NewUnexpected(err)
	}

	id := uuid.New()
	priority := spec.Priority
	if priority == "" {
		priority = task.PriorityNormal
	}
	maxRetries := spec.MaxRetries
	if maxRetries == 0 {
		maxRetries = task.DefaultMaxRetries
	}

	const q = `INSERT INTO tasks (id, name, prompt, status, priority, execute_after,
		max_retries, parent_task_id, created_by, metadata)
		VALUES ($1, $2, $3, 'pending', $4, $5, $6, $7, $8, $9)
		RETURNING ` + taskColumns

	runner := runnerFor(s.pool, tx)
	row := runner.QueryRow(ctx, q, id, spec.Name, spec.Prompt, priority, spec.ExecuteAfter,
		maxRetries, spec.ParentTaskID, spec.CreatedBy, metadataRaw)

	created, err := scanTask(row)
	if err != nil {
		return task.Task{}, domainerrors.NewStorageFailure("create", err)
	}

	if spec.ParentTaskID != nil {
		if err := s.linkChain(ctx, runner, *spec.ParentTaskID, created.ID); err != nil {
			return task.Task{}, domainerrors.NewStorageFailure("create.link_chain", err)
		}
	}

	return created, nil
}

// linkChain upserts the task_chains root row and inserts the
// task_chain_edges edge for a newly created child task.
func (s *Store) linkChain(ctx context.Context, runner rowQuerier, parentID, childID uuid.UUID) error {
	var chainID uuid.UUID
	err := runner.QueryRow(ctx,
		`SELECT chain_id FROM task_chain_edges WHERE child_id = $1
		 UNION SELECT id FROM task_chains WHERE root_task_id = $1
		 LIMIT 1`, parentID).Scan(&chainID)
	if err != nil {
		chainID = uuid.New()
		_, insErr := runner.Exec(ctx,
			`INSERT INTO task_chains (id, root_task_id) VALUES ($1, $2)
			 ON CONFLICT (root_task_id) DO NOTHING`, chainID, parentID)
		if insErr != nil {
			return insErr
		}
	}
	_, err = runner.Exec(ctx,
		`INSERT INTO task_chain_edges (chain_id, parent_id, child_id) VALUES ($1, $2, $3)
		 ON CONFLICT DO NOTHING`, chainID, parentID, childID)
	return err
}

func (s *Store) getTaskByID(ctx context.Context, runner rowQuerier, id uuid.UUID) (task.Task, error) {
	row := runner.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	t, err := scanTask(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return task.Task{}, domainerrors.NewNotFound("task", id.String())
		}
		return task.Task{}, domainerrors.NewStorageFailure("get_by_id", err)
	}
	return t, nil
}

// GetByID returns a Task by id without a row lock.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (task.Task, error) {
	return s.getTaskByID(ctx, s.pool, id)
}

// GetByIDForUpdate returns a Task holding a row-level exclusive lock for
// the life of the returned transaction.
func (s *Store) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (task.Task, repository.Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return task.Task{}, nil, domainerrors.NewStorageFailure("begin_for_update", err)
	}

	row := tx.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1 FOR UPDATE`, id)
	t, err := scanTask(row)
	if err != nil {
		_ = tx.Rollback(ctx)
		if err == pgx.ErrNoRows {
			return task.Task{}, nil, domainerrors.NewNotFound("task", id.String())
		}
		return task.Task{}, nil, domainerrors.NewStorageFailure("get_by_id_for_update", err)
	}
	return t, pgxTx{tx: tx}, nil
}

// List paginates tasks with an optional status and case-insensitive
// substring filter.
func (s *Store) List(ctx context.Context, filter repository.ListFilter) ([]task.Task, int, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	var (
		where []string
		args  []any
	)
	if filter.StatusFilter != "" {
		args = append(args, filter.StatusFilter)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.TextQuery != "" {
		args = append(args, "%"+strings.ToLower(filter.TextQuery)+"%")
		idx := len(args)
		where = append(where, fmt.Sprintf(
			`(lower(id::text) LIKE $%d OR lower(name) LIKE $%d OR lower(prompt) LIKE $%d
			  OR lower(coalesce(output,'')) LIKE $%d OR lower(coalesce(error_message,'')) LIKE $%d)`,
			idx, idx, idx, idx, idx))
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	var total int
	countQ := `SELECT count(*) FROM tasks ` + whereClause
	if err := s.pool.QueryRow(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, domainerrors.NewStorageFailure("list.count", err)
	}

	args = append(args, limit, offset)
	listQ := fmt.Sprintf(`SELECT %s FROM tasks %s ORDER BY scheduled_at DESC LIMIT $%d OFFSET $%d`,
		taskColumns, whereClause, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, listQ, args...)
	if err != nil {
		return nil, 0, domainerrors.NewStorageFailure("list.query", err)
	}
	defer rows.Close()

	var out []task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, 0, domainerrors.NewStorageFailure("list.scan", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, domainerrors.NewStorageFailure("list.rows", err)
	}
	return out, total, nil
}

// EnqueueExecution commits a new queued attempt: computes the next
// attempt_number, optionally increments retry_count, resets the Task's
// transient fields, and inserts a queued TaskExecution row.
func (s *Store) EnqueueExecution(ctx context.Context, callerTx repository.Tx, taskID uuid.UUID, dispatchID string, incrementRetryCount bool) (task.Task, error) {
	ownTx := callerTx == nil
	var tx pgx.Tx
	var err error
	if ownTx {
		tx, err = s.pool.Begin(ctx)
		if err != nil {
			return task.Task{}, domainerrors.NewStorageFailure("enqueue.begin", err)
		}
		defer func() {
			if ownTx {
				_ = tx.Rollback(ctx)
			}
		}()
	} else {
		tx = txOrNil(callerTx)
	}

	var nextAttempt int
	err = tx.QueryRow(ctx,
		`SELECT coalesce(max(attempt_number), 0) + 1 FROM task_executions WHERE task_id = $1 FOR UPDATE`,
		taskID).Scan(&nextAttempt)
	if err != nil {
		return task.Task{}, domainerrors.NewStorageFailure("enqueue.next_attempt", err)
	}

	retryIncrement := 0
	if incrementRetryCount {
		retryIncrement = 1
	}

	row := tx.QueryRow(ctx, `UPDATE tasks SET
			status = 'queued', started_at = NULL, completed_at = NULL,
			output = NULL, error_message = NULL, retry_count = retry_count + $2,
			updated_at = now()
		WHERE id = $1
		RETURNING `+taskColumns, taskID, retryIncrement)

	updated, err := scanTask(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return task.Task{}, domainerrors.NewNotFound("task", taskID.String())
		}
		return task.Task{}, domainerrors.NewStorageFailure("enqueue.update_task", err)
	}

	_, err = tx.Exec(ctx, `INSERT INTO task_executions (id, task_id, attempt_number, status, dispatch_id)
		VALUES ($1, $2, $3, 'queued', $4)`, uuid.New(), taskID, nextAttempt, dispatchID)
	if err != nil {
		return task.Task{}, domainerrors.NewStorageFailure("enqueue.insert_execution", err)
	}

	if ownTx {
		if err := tx.Commit(ctx); err != nil {
			return task.Task{}, domainerrors.NewStorageFailure("enqueue.commit", err)
		}
		ownTx = false
	}
	return updated, nil
}

// latestExecution returns the execution with the greatest
// (attempt_number, created_at) for taskID, using runner so callers can
// include it in an existing transaction.
func latestExecution(ctx context.Context, runner rowQuerier, taskID uuid.UUID) (task.TaskExecution, error) {
	const q = `SELECT id, task_id, attempt_number, status, queued_at, started_at, completed_at,
		worker_id, dispatch_id, model_name, prompt_tokens, completion_tokens, total_tokens,
		output, error_message, error_type, execution_metadata
		FROM task_executions WHERE task_id = $1
		ORDER BY attempt_number DESC, created_at DESC LIMIT 1`
	row := runner.QueryRow(ctx, q, taskID)
	var e task.TaskExecution
	var metaRaw []byte
	err := row.Scan(&e.ID, &e.TaskID, &e.AttemptNumber, &e.Status, &e.QueuedAt, &e.StartedAt, &e.CompletedAt,
		&e.WorkerID, &e.DispatchID, &e.ModelName, &e.PromptTokens, &e.CompletionTokens, &e.TotalTokens,
		&e.Output, &e.ErrorMessage, &e.ErrorType, &metaRaw)
	if err != nil {
		return task.TaskExecution{}, err
	}
	e.ExecutionMetadata = unmarshalMetadata(metaRaw)
	return e, nil
}

func (s *Store) GetLatestExecutionForTask(ctx context.Context, taskID uuid.UUID) (task.TaskExecution, error) {
	e, err := latestExecution(ctx, s.pool, taskID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return task.TaskExecution{}, domainerrors.NewNotFound("task_execution", taskID.String())
		}
		return task.TaskExecution{}, domainerrors.NewStorageFailure("get_latest_execution", err)
	}
	return e, nil
}

// MarkRunning transitions the latest attempt and its Task to running,
// subject to the I4 staleness guard: a no-op if the task is terminal or if
// dispatchID is not the latest attempt's dispatch id.
func (s *Store) MarkRunning(ctx context.Context, taskID uuid.UUID, dispatchID, workerID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domainerrors.NewStorageFailure("mark_running.begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	t, err := s.getTaskByID(ctx, tx, taskID)
	if err != nil {
		return err
	}
	if t.Status.IsTerminal() {
		return nil
	}

	latest, err := latestExecution(ctx, tx, taskID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil
		}
		return domainerrors.NewStorageFailure("mark_running.latest", err)
	}
	if latest.DispatchID != dispatchID {
		return nil
	}

	now := time.Now().UTC()
	_, err = tx.Exec(ctx, `UPDATE tasks SET status = 'running', started_at = $2,
		completed_at = NULL, error_message = NULL, updated_at = now() WHERE id = $1`, taskID, now)
	if err != nil {
		return domainerrors.NewStorageFailure("mark_running.update_task", err)
	}
	_, err = tx.Exec(ctx, `UPDATE task_executions SET status = 'running', started_at = $3, worker_id = $2
		WHERE id = $1`, latest.ID, workerID, now)
	if err != nil {
		return domainerrors.NewStorageFailure("mark_running.update_execution", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domainerrors.NewStorageFailure("mark_running.commit", err)
	}
	return nil
}

func (s *Store) markTerminal(ctx context.Context, callerTx repository.Tx, taskID uuid.UUID, dispatchID string, newStatus task.Status, output, errorMessage, errorType *string, usage repository.UsageMetrics) error {
	ownTx := callerTx == nil
	var tx pgx.Tx
	var err error
	if ownTx {
		tx, err = s.pool.Begin(ctx)
		if err != nil {
			return domainerrors.NewStorageFailure("mark_terminal.begin", err)
		}
		defer func() {
			if ownTx {
				_ = tx.Rollback(ctx)
			}
		}()
	} else {
		tx = txOrNil(callerTx)
	}

	t, err := s.getTaskByID(ctx, tx, taskID)
	if err != nil {
		return err
	}

	latest, err := latestExecution(ctx, tx, taskID)
	if err != nil && err != pgx.ErrNoRows {
		return domainerrors.NewStorageFailure("mark_terminal.latest", err)
	}
	haveLatest := err == nil
	if haveLatest && latest.DispatchID != dispatchID {
		return nil
	}

	if t.Status == task.StatusCancelled {
		if haveLatest {
			if err := s.updateExecutionTerminal(ctx, tx, latest.ID, task.StatusCancelled, output, errorMessage, errorType, usage); err != nil {
				return err
			}
		}
		return commitIfOwn(ctx, tx, &ownTx)
	}
	if t.Status.IsTerminal() {
		return commitIfOwn(ctx, tx, &ownTx)
	}

	now := time.Now().UTC()
	completedAt := task.ResolveCompletedAt(now, t.StartedAt)

	_, err = tx.Exec(ctx, `UPDATE tasks SET status = $2, output = $3, error_message = $4,
		completed_at = $5, updated_at = now() WHERE id = $1`,
		taskID, newStatus, output, errorMessage, completedAt)
	if err != nil {
		return domainerrors.NewStorageFailure("mark_terminal.update_task", err)
	}

	if haveLatest {
		if err := s.updateExecutionTerminal(ctx, tx, latest.ID, newStatus, output, errorMessage, errorType, usage); err != nil {
			return err
		}
	}

	return commitIfOwn(ctx, tx, &ownTx)
}

func (s *Store) updateExecutionTerminal(ctx context.Context, tx pgx.Tx, executionID uuid.UUID, status task.Status, output, errorMessage, errorType *string, usage repository.UsageMetrics) error {
	now := time.Now().UTC()
	_, err := tx.Exec(ctx, `UPDATE task_executions SET status = $2, completed_at = $3,
		output = $4, error_message = $5, error_type = $6,
		model_name = coalesce($7, model_name),
		prompt_tokens = coalesce($8, prompt_tokens),
		completion_tokens = coalesce($9, completion_tokens),
		total_tokens = coalesce($10, total_tokens)
		WHERE id = $1`,
		executionID, status, now, output, errorMessage, errorType,
		usage.ModelName, usage.PromptTokens, usage.CompletionTokens, usage.TotalTokens)
	if err != nil {
		return domainerrors.NewStorageFailure("mark_terminal.update_execution", err)
	}
	return nil
}

func commitIfOwn(ctx context.Context, tx pgx.Tx, ownTx *bool) error {
	if !*ownTx {
		return nil
	}
	if err := tx.Commit(ctx); err != nil {
		return domainerrors.NewStorageFailure("mark_terminal.commit", err)
	}
	*ownTx = false
	return nil
}

func (s *Store) MarkCompleted(ctx context.Context, taskID uuid.UUID, dispatchID string, output string, usage repository.UsageMetrics) error {
	return s.markTerminal(ctx, nil, taskID, dispatchID, task.StatusCompleted, &output, nil, nil, usage)
}

func (s *Store) MarkFailed(ctx context.Context, tx repository.Tx, taskID uuid.UUID, dispatchID, errorMessage, errorType string) error {
	return s.markTerminal(ctx, tx, taskID, dispatchID, task.StatusFailed, nil, &errorMessage, &errorType, repository.UsageMetrics{})
}

// MarkCancelled force-transitions a Task to cancelled, bypassing the
// latest-dispatch staleness guard.
func (s *Store) MarkCancelled(ctx context.Context, taskID uuid.UUID, reason string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domainerrors.NewStorageFailure("mark_cancelled.begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	t, err := s.getTaskByID(ctx, tx, taskID)
	if err != nil {
		return err
	}
	if t.Status.IsTerminal() {
		return nil
	}

	_, err = tx.Exec(ctx, `UPDATE tasks SET status = 'cancelled', error_message = $2, updated_at = now()
		WHERE id = $1`, taskID, reason)
	if err != nil {
		return domainerrors.NewStorageFailure("mark_cancelled.update_task", err)
	}

	latest, err := latestExecution(ctx, tx, taskID)
	if err == nil && !latest.Status.IsTerminal() {
		errType := "TaskCancelled"
		if err := s.updateExecutionTerminal(ctx, tx, latest.ID, task.StatusCancelled, nil, &reason, &errType, repository.UsageMetrics{}); err != nil {
			return err
		}
	} else if err != nil && err != pgx.ErrNoRows {
		return domainerrors.NewStorageFailure("mark_cancelled.latest", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domainerrors.NewStorageFailure("mark_cancelled.commit", err)
	}
	return nil
}

// ListAncestors walks parent_task_id upward from taskID.
func (s *Store) ListAncestors(ctx context.Context, taskID uuid.UUID, maxDepth int) ([]repository.LineageNode, error) {
	var out []repository.LineageNode
	current := taskID
	for depth := 1; depth <= maxDepth; depth++ {
		t, err := s.getTaskByID(ctx, s.pool, current)
		if err != nil {
			return nil, err
		}
		if t.ParentTaskID == nil {
			break
		}
		parent, err := s.getTaskByID(ctx, s.pool, *t.ParentTaskID)
		if err != nil {
			break
		}
		out = append(out, repository.LineageNode{Task: parent, Depth: depth})
		current = parent.ID
	}
	return out, nil
}

// ListDescendants performs a breadth-first walk of child tasks.
func (s *Store) ListDescendants(ctx context.Context, taskID uuid.UUID, maxDepth int) ([]repository.LineageNode, error) {
	var out []repository.LineageNode
	frontier := []uuid.UUID{taskID}

	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		rows, err := s.pool.Query(ctx, `SELECT `+taskColumns+` FROM tasks WHERE parent_task_id = ANY($1)`, frontier)
		if err != nil {
			return nil, domainerrors.NewStorageFailure("list_descendants.query", err)
		}

		var next []uuid.UUID
		for rows.Next() {
			t, err := scanTask(rows)
			if err != nil {
				rows.Close()
				return nil, domainerrors.NewStorageFailure("list_descendants.scan", err)
			}
			out = append(out, repository.LineageNode{Task: t, Depth: depth})
			next = append(next, t.ID)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, domainerrors.NewStorageFailure("list_descendants.rows", err)
		}
		frontier = next
	}
	return out, nil
}

// ListExistingTaskIds returns the subset of ids present in the table.
func (s *Store) ListExistingTaskIds(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT id FROM tasks WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, domainerrors.NewStorageFailure("list_existing_ids.query", err)
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, domainerrors.NewStorageFailure("list_existing_ids.scan", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// BeginBatch opens a transaction for the all-or-nothing batch-create path.
func (s *Store) BeginBatch(ctx context.Context) (repository.Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, domainerrors.NewStorageFailure("begin_batch", err)
	}
	return pgxTx{tx: tx}, nil
}

// rowQuerier is the minimal surface used by helpers that may run against
// either the pool or an open transaction.
type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func runnerFor(pool pgxPool, tx repository.Tx) rowQuerier {
	if wrapped := txOrNil(tx); wrapped != nil {
		return wrapped
	}
	return pool
}
