package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/me/agentq/pkg/model"
)

// schema contains the DDL for the shared agentq tables.
// Each statement uses IF NOT EXISTS for idempotency. {{pk}} expands to the
// dialect's auto-increment primary key.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS agents (
		id          {{pk}},
		name        TEXT NOT NULL,
		version     TEXT NOT NULL,
		revision    TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at  TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS uploads (
		id          {{pk}},
		filename    TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		mode        INTEGER NOT NULL DEFAULT 0,
		origin      TEXT NOT NULL DEFAULT '',
		folder_id   BIGINT NOT NULL DEFAULT 0,
		user_id     BIGINT NOT NULL DEFAULT 0,
		created_at  TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS jobs (
		id            {{pk}},
		owner_user_id BIGINT NOT NULL,
		upload_id     BIGINT REFERENCES uploads(id),
		name          TEXT NOT NULL,
		priority      INTEGER NOT NULL DEFAULT 0,
		queued_time   TEXT NOT NULL
	)`,

	// No uniqueness on (job_id, agent_type): concurrent schedulers in
	// separate processes can still double-insert.
	`CREATE TABLE IF NOT EXISTS tasks (
		id          {{pk}},
		job_id      BIGINT NOT NULL REFERENCES jobs(id),
		agent_type  TEXT NOT NULL,
		args        TEXT NOT NULL DEFAULT '',
		run_on_file TEXT NOT NULL DEFAULT '',
		start_time  TEXT,
		end_time    TEXT,
		end_bits    INTEGER NOT NULL DEFAULT 0,
		end_text    TEXT NOT NULL DEFAULT ''
	)`,

	`CREATE TABLE IF NOT EXISTS task_depends (
		task_id    BIGINT NOT NULL REFERENCES tasks(id),
		depends_on BIGINT NOT NULL REFERENCES tasks(id),
		PRIMARY KEY (task_id, depends_on)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_agents_name ON agents(name)`,
	`CREATE INDEX IF NOT EXISTS idx_uploads_filename ON uploads(filename)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_upload_id ON jobs(upload_id)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_job_agent ON tasks(job_id, agent_type)`,
	`CREATE INDEX IF NOT EXISTS idx_task_depends_depends_on ON task_depends(depends_on)`,
}

// auditSchema is the per-agent audit table template. %[1]s is the table name.
var auditSchema = []string{
	`CREATE TABLE IF NOT EXISTS %[1]s (
		id          {{pk}},
		agent_id    BIGINT NOT NULL REFERENCES agents(id),
		upload_id   BIGINT NOT NULL REFERENCES uploads(id),
		start_time  TEXT NOT NULL,
		end_time    TEXT,
		success     INTEGER,
		status_text TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_%[1]s_upload ON %[1]s(upload_id, agent_id)`,
}

// migrate executes all schema DDL statements.
func migrate(ctx context.Context, db *sql.DB, d dialect) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, d.ddl(stmt)); err != nil {
			return err
		}
	}
	return nil
}

// ensureAuditTable creates the audit table for agent if it is missing.
// The agent name is validated before it is spliced into DDL.
func ensureAuditTable(ctx context.Context, db *sql.DB, d dialect, agent string) error {
	if err := model.ValidateAgentName(agent); err != nil {
		return err
	}
	table := model.AuditTable(agent)
	for _, stmt := range auditSchema {
		if _, err := db.ExecContext(ctx, d.ddl(fmt.Sprintf(stmt, table))); err != nil {
			return err
		}
	}
	return nil
}
