package postgres

// schemaDDL creates the tasks/task_executions/task_chains/task_chain_edges
// tables, their enums, and the get_next_task() pull-mode helper. It is
// idempotent (IF NOT EXISTS throughout) so EnsureSchema can run on every
// process start, mirroring the teacher's EnsureSchema pattern.
const schemaDDL = `
DO $$ BEGIN
	CREATE TYPE task_status AS ENUM (
		'pending', 'queued', 'running', 'completed', 'failed', 'cancelled'
	);
EXCEPTION WHEN duplicate_object THEN NULL;
END $$;

DO $$ BEGIN
	CREATE TYPE execution_priority AS ENUM ('low', 'normal', 'high', 'critical');
EXCEPTION WHEN duplicate_object THEN NULL;
END $$;

CREATE TABLE IF NOT EXISTS tasks (
	id              UUID PRIMARY KEY,
	name            TEXT NOT NULL CHECK (char_length(name) BETWEEN 1 AND 255),
	prompt          TEXT NOT NULL CHECK (char_length(prompt) > 0),
	status          task_status NOT NULL DEFAULT 'pending',
	priority        execution_priority NOT NULL DEFAULT 'normal',
	scheduled_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	execute_after   TIMESTAMPTZ,
	started_at      TIMESTAMPTZ,
	completed_at    TIMESTAMPTZ,
	output          TEXT,
	error_message   TEXT,
	max_retries     INTEGER NOT NULL DEFAULT 3 CHECK (max_retries >= 0),
	retry_count     INTEGER NOT NULL DEFAULT 0 CHECK (retry_count >= 0),
	parent_task_id  UUID REFERENCES tasks(id) ON DELETE SET NULL,
	chain_position  INTEGER CHECK (chain_position IS NULL OR chain_position >= 0),
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	created_by      TEXT NOT NULL DEFAULT '',
	metadata        JSONB NOT NULL DEFAULT '{}'::jsonb,
	CONSTRAINT retry_count_within_budget CHECK (retry_count <= max_retries),
	CONSTRAINT execute_after_not_before_scheduled CHECK (execute_after IS NULL OR execute_after >= scheduled_at),
	CONSTRAINT completed_not_before_started CHECK (completed_at IS NULL OR started_at IS NULL OR completed_at >= started_at),
	CONSTRAINT no_self_parent CHECK (parent_task_id IS NULL OR parent_task_id <> id)
);

CREATE INDEX IF NOT EXISTS idx_tasks_parent_task_id ON tasks (parent_task_id);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks (status);
CREATE INDEX IF NOT EXISTS idx_tasks_execute_after ON tasks (execute_after) WHERE execute_after IS NOT NULL;

CREATE TABLE IF NOT EXISTS task_executions (
	id                   UUID PRIMARY KEY,
	task_id              UUID NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
	attempt_number       INTEGER NOT NULL CHECK (attempt_number >= 1),
	status               task_status NOT NULL,
	queued_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
	started_at           TIMESTAMPTZ,
	completed_at         TIMESTAMPTZ,
	worker_id            TEXT NOT NULL DEFAULT '',
	dispatch_id          TEXT NOT NULL,
	model_name           TEXT,
	prompt_tokens        INTEGER CHECK (prompt_tokens IS NULL OR prompt_tokens >= 0),
	completion_tokens    INTEGER CHECK (completion_tokens IS NULL OR completion_tokens >= 0),
	total_tokens         INTEGER CHECK (total_tokens IS NULL OR total_tokens >= 0),
	output               TEXT,
	error_message        TEXT,
	error_type           TEXT,
	execution_metadata   JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT completed_not_before_started_exec CHECK (completed_at IS NULL OR started_at IS NULL OR completed_at >= started_at),
	CONSTRAINT uniq_task_attempt UNIQUE (task_id, attempt_number)
);

CREATE INDEX IF NOT EXISTS idx_task_executions_task_id ON task_executions (task_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_task_executions_dispatch_id ON task_executions (dispatch_id);

-- task_chains/task_chain_edges are maintained alongside every parented
-- create for forward compatibility with chain-level queries; the traversal
-- code in this package still walks tasks.parent_task_id directly.
CREATE TABLE IF NOT EXISTS task_chains (
	id          UUID PRIMARY KEY,
	root_task_id UUID NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (root_task_id)
);

CREATE TABLE IF NOT EXISTS task_chain_edges (
	chain_id    UUID NOT NULL REFERENCES task_chains(id) ON DELETE CASCADE,
	parent_id   UUID NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
	child_id    UUID NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
	PRIMARY KEY (parent_id, child_id)
);

CREATE INDEX IF NOT EXISTS idx_task_chain_edges_chain_id ON task_chain_edges (chain_id);

-- get_next_task() is the pull-mode sweep helper: it is not called by the
-- push-mode Dispatcher path this package wires by default, but is shipped
-- for deployments that additionally run a pull-mode sweep loop guarded by
-- AdvisoryLock.
CREATE OR REPLACE FUNCTION get_next_task() RETURNS SETOF tasks AS $$
	SELECT * FROM tasks
	WHERE status = 'pending'
	  AND (execute_after IS NULL OR execute_after <= now())
	ORDER BY
		CASE priority
			WHEN 'critical' THEN 0
			WHEN 'high' THEN 1
			WHEN 'normal' THEN 2
			WHEN 'low' THEN 3
		END,
		scheduled_at ASC
	LIMIT 1
	FOR UPDATE SKIP LOCKED;
$$ LANGUAGE sql;
`
