package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/me/agentq/pkg/model"
)

// CreateTask inserts task and its dependency edges in one transaction.
// Every id in dependsOn must name an existing task; otherwise nothing is
// written and a *model.DependencyNotFoundError is returned. Zero ids and
// duplicates are dropped. On success task.ID and task.DependsOn are set.
func (s *SQLStore) CreateTask(ctx context.Context, task *model.Task, dependsOn []int64) error {
	s.logger.Debug("sql", "op", "insert", "table", "tasks", "job_id", task.JobID, "agent_type", task.AgentType)

	deps := dedupeIDs(dependsOn)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fail("begin tx", err)
	}
	defer tx.Rollback()

	for _, dep := range deps {
		var n int
		if err := tx.QueryRowContext(ctx, s.dialect.rebind(`SELECT COUNT(*) FROM tasks WHERE id = ?`), dep).Scan(&n); err != nil {
			return fail("check dependency", err)
		}
		if n == 0 {
			return &model.DependencyNotFoundError{TaskID: dep}
		}
	}

	id, err := s.insert(ctx, tx,
		`INSERT INTO tasks (job_id, agent_type, args, run_on_file, start_time, end_time, end_bits, end_text)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		task.JobID, task.AgentType, task.Args, task.RunOnFile,
		formatTimePtr(task.StartTime), formatTimePtr(task.EndTime), task.EndBits, task.EndText)
	if err != nil {
		return fail("insert task", err)
	}

	for _, dep := range deps {
		if _, err := tx.ExecContext(ctx, s.dialect.rebind(
			`INSERT INTO task_depends (task_id, depends_on) VALUES (?, ?)`), id, dep); err != nil {
			return fail("insert dependency", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fail("commit task", err)
	}

	task.ID = id
	task.DependsOn = deps
	return nil
}

func dedupeIDs(ids []int64) []int64 {
	out := make([]int64, 0, len(ids))
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func (s *SQLStore) TaskExists(ctx context.Context, id int64) (bool, error) {
	s.logger.Debug("sql", "op", "select", "table", "tasks", "id", id)

	var n int
	if err := s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT COUNT(*) FROM tasks WHERE id = ?`), id).Scan(&n); err != nil {
		return false, fail("task exists", err)
	}
	return n > 0, nil
}

const taskColumns = `id, job_id, agent_type, args, run_on_file, start_time, end_time, end_bits, end_text`

func scanTask(row interface{ Scan(...any) error }) (*model.Task, error) {
	var t model.Task
	var start, end *string
	if err := row.Scan(&t.ID, &t.JobID, &t.AgentType, &t.Args, &t.RunOnFile,
		&start, &end, &t.EndBits, &t.EndText); err != nil {
		return nil, err
	}
	var err error
	if t.StartTime, err = parseTimePtr(start); err != nil {
		return nil, fmt.Errorf("parse start_time: %w", err)
	}
	if t.EndTime, err = parseTimePtr(end); err != nil {
		return nil, fmt.Errorf("parse end_time: %w", err)
	}
	t.DependsOn = []int64{}
	return &t, nil
}

// FindTask returns the oldest task of agentType under jobID, or nil.
func (s *SQLStore) FindTask(ctx context.Context, jobID int64, agentType string) (*model.Task, error) {
	s.logger.Debug("sql", "op", "select", "table", "tasks", "job_id", jobID, "agent_type", agentType)

	t, err := scanTask(s.db.QueryRowContext(ctx, s.dialect.rebind(
		`SELECT `+taskColumns+` FROM tasks WHERE job_id = ? AND agent_type = ? ORDER BY id LIMIT 1`),
		jobID, agentType))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fail("find task", err)
	}
	if t.DependsOn, err = s.dependencies(ctx, t.ID); err != nil {
		return nil, err
	}
	return t, nil
}

// GetTask returns a task with its dependency ids.
func (s *SQLStore) GetTask(ctx context.Context, id int64) (*model.Task, error) {
	s.logger.Debug("sql", "op", "select", "table", "tasks", "id", id)

	t, err := scanTask(s.db.QueryRowContext(ctx, s.dialect.rebind(
		`SELECT `+taskColumns+` FROM tasks WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fail("get task", err)
	}
	if t.DependsOn, err = s.dependencies(ctx, t.ID); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *SQLStore) dependencies(ctx context.Context, taskID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(
		`SELECT depends_on FROM task_depends WHERE task_id = ? ORDER BY depends_on`), taskID)
	if err != nil {
		return nil, fail("list dependencies", err)
	}
	defer rows.Close()

	deps := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fail("list dependencies", err)
		}
		deps = append(deps, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fail("list dependencies", err)
	}
	return deps, nil
}

// ListTasksByJob returns the tasks of a job in id order, with dependencies.
func (s *SQLStore) ListTasksByJob(ctx context.Context, jobID int64) ([]*model.Task, error) {
	s.logger.Debug("sql", "op", "select", "table", "tasks", "job_id", jobID)

	tasks, err := s.queryTasks(ctx, `SELECT `+taskColumns+` FROM tasks WHERE job_id = ? ORDER BY id`, jobID)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return tasks, nil
	}

	byID := make(map[int64]*model.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(
		`SELECT d.task_id, d.depends_on FROM task_depends d
		 JOIN tasks t ON t.id = d.task_id
		 WHERE t.job_id = ? ORDER BY d.task_id, d.depends_on`), jobID)
	if err != nil {
		return nil, fail("list dependencies", err)
	}
	defer rows.Close()

	for rows.Next() {
		var taskID, dep int64
		if err := rows.Scan(&taskID, &dep); err != nil {
			return nil, fail("list dependencies", err)
		}
		if t, ok := byID[taskID]; ok {
			t.DependsOn = append(t.DependsOn, dep)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fail("list dependencies", err)
	}
	return tasks, nil
}

// queryTasks runs query and drains the rows before returning, so the single
// SQLite connection is free for follow-up queries.
func (s *SQLStore) queryTasks(ctx context.Context, query string, args ...any) ([]*model.Task, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, fail("list tasks", err)
	}
	defer rows.Close()

	tasks := []*model.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fail("list tasks", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fail("list tasks", err)
	}
	return tasks, nil
}

// ListTaskIDsByStatus returns the ids of tasks whose end text contains
// status, in ascending order.
func (s *SQLStore) ListTaskIDsByStatus(ctx context.Context, status string) ([]int64, error) {
	s.logger.Debug("sql", "op", "select", "table", "tasks", "status", status)

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(
		`SELECT id FROM tasks WHERE end_text LIKE ? ESCAPE '\' ORDER BY id`),
		"%"+escapeLike(status)+"%")
	if err != nil {
		return nil, fail("list tasks by status", err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fail("list tasks by status", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fail("list tasks by status", err)
	}
	return ids, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// UpdateTaskProgress records scheduler-owned progress columns.
func (s *SQLStore) UpdateTaskProgress(ctx context.Context, id int64, p model.TaskProgress) error {
	s.logger.Debug("sql", "op", "update", "table", "tasks", "id", id, "end_bits", p.EndBits)

	res, err := s.db.ExecContext(ctx, s.dialect.rebind(
		`UPDATE tasks SET start_time = ?, end_time = ?, end_bits = ?, end_text = ? WHERE id = ?`),
		formatTimePtr(p.StartTime), formatTimePtr(p.EndTime), p.EndBits, p.EndText, id)
	if err != nil {
		return fail("update task progress", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fail("update task progress", err)
	}
	if n == 0 {
		return fail("update task progress", fmt.Errorf("task %d not found", id))
	}
	return nil
}
