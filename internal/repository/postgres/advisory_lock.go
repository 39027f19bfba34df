package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	domainerrors "github.com/chintakjoshi/LLM-task-orchestrator/internal/domain/task/errors"
)

// AdvisoryLock is an optional single-writer guard around the pull-mode
// get_next_task() sweep loop some deployments run beside the push-mode
// Dispatcher path. It is not leader election: it only keeps two holders of
// the same key, each on its own connection to the same database, from
// running at once.
type AdvisoryLock struct {
	pool *pgxpool.Pool
	key  int64
}

// NewAdvisoryLock builds a lock identified by an application-chosen key.
// Callers sharing a key contend for the same advisory lock slot.
func NewAdvisoryLock(pool *pgxpool.Pool, key int64) *AdvisoryLock {
	return &AdvisoryLock{pool: pool, key: key}
}

// TryAcquire attempts to take the advisory lock on a dedicated connection,
// returning the held connection (to be released via Release) and whether
// the lock was obtained.
func (l *AdvisoryLock) TryAcquire(ctx context.Context) (*pgxpool.Conn, bool, error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, false, domainerrors.NewStorageFailure("advisory_lock.acquire_conn", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, l.key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, domainerrors.NewStorageFailure("advisory_lock.try_lock", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}
	return conn, true, nil
}

// Release unlocks the advisory lock and returns the connection to the pool.
func (l *AdvisoryLock) Release(ctx context.Context, conn *pgxpool.Conn) error {
	defer conn.Release()
	_, err := conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, l.key)
	if err != nil {
		return domainerrors.NewStorageFailure("advisory_lock.unlock", err)
	}
	return nil
}
