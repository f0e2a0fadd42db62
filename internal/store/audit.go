package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/me/agentq/pkg/model"
)

// EnsureAuditTable creates the <agent>_ars table if it does not exist.
func (s *SQLStore) EnsureAuditTable(ctx context.Context, agent string) error {
	s.logger.Debug("sql", "op", "create", "table", model.AuditTable(agent))

	if err := ensureAuditTable(ctx, s.db, s.dialect, agent); err != nil {
		var verr *model.ValidationError
		if errors.As(err, &verr) {
			return err
		}
		return fail("ensure audit table", err)
	}
	return nil
}

// auditTable validates agent and returns its audit table name, which is then
// safe to splice into SQL.
func auditTable(agent string) (string, error) {
	if err := model.ValidateAgentName(agent); err != nil {
		return "", err
	}
	return model.AuditTable(agent), nil
}

// InsertAuditRecord opens a pending audit record: end time and success are
// left null until FinalizeAuditRecord.
func (s *SQLStore) InsertAuditRecord(ctx context.Context, agent string, agentID, uploadID int64) (int64, error) {
	table, err := auditTable(agent)
	if err != nil {
		return 0, err
	}
	s.logger.Debug("sql", "op", "insert", "table", table, "agent_id", agentID, "upload_id", uploadID)

	id, err := s.insert(ctx, s.db,
		`INSERT INTO `+table+` (agent_id, upload_id, start_time) VALUES (?, ?, ?)`,
		agentID, uploadID, formatTime(time.Now()))
	if err != nil {
		return 0, fail("insert audit record", err)
	}
	return id, nil
}

// FinalizeAuditRecord sets the end time, success flag and status text of a
// pending record. A record can be finalized only once; later calls return
// model.ErrAlreadyFinalized.
func (s *SQLStore) FinalizeAuditRecord(ctx context.Context, agent string, id int64, success bool, status string) error {
	table, err := auditTable(agent)
	if err != nil {
		return err
	}
	s.logger.Debug("sql", "op", "update", "table", table, "id", id, "success", success)

	var flag int64
	if success {
		flag = 1
	}
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(
		`UPDATE `+table+` SET end_time = ?, success = ?, status_text = ?
		 WHERE id = ? AND end_time IS NULL`),
		formatTime(time.Now()), flag, status, id)
	if err != nil {
		return fail("finalize audit record", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fail("finalize audit record", err)
	}
	if n > 0 {
		return nil
	}

	rec, err := s.GetAuditRecord(ctx, agent, id)
	if err != nil {
		return err
	}
	if rec == nil {
		return fail("finalize audit record", fmt.Errorf("audit record %d not found in %s", id, table))
	}
	if !rec.Outcome.CanTransitionTo(model.OutcomeOf(success)) {
		return fmt.Errorf("audit record %d is %s: %w", id, rec.Outcome, model.ErrAlreadyFinalized)
	}
	return fail("finalize audit record", fmt.Errorf("audit record %d in %s: update matched no rows", id, table))
}

func scanAuditRecord(row interface{ Scan(...any) error }) (*model.AuditRecord, error) {
	var r model.AuditRecord
	var start string
	var end *string
	var success sql.NullInt64
	if err := row.Scan(&r.ID, &r.AgentID, &r.UploadID, &start, &end, &success, &r.StatusText); err != nil {
		return nil, err
	}
	t, err := parseTime(start)
	if err != nil {
		return nil, fmt.Errorf("parse start_time: %w", err)
	}
	r.StartTime = t
	if r.EndTime, err = parseTimePtr(end); err != nil {
		return nil, fmt.Errorf("parse end_time: %w", err)
	}
	r.Outcome = model.AuditPending
	if success.Valid {
		r.Outcome = model.OutcomeOf(success.Int64 != 0)
	}
	return &r, nil
}

const auditColumns = `id, agent_id, upload_id, start_time, end_time, success, status_text`

func (s *SQLStore) GetAuditRecord(ctx context.Context, agent string, id int64) (*model.AuditRecord, error) {
	table, err := auditTable(agent)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("sql", "op", "select", "table", table, "id", id)

	r, err := scanAuditRecord(s.db.QueryRowContext(ctx, s.dialect.rebind(
		`SELECT `+auditColumns+` FROM `+table+` WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fail("get audit record", err)
	}
	return r, nil
}

// ListAuditRecords returns every attempt of agent on uploadID, oldest first.
// An agent without an audit table has no records.
func (s *SQLStore) ListAuditRecords(ctx context.Context, agent string, uploadID int64) ([]*model.AuditRecord, error) {
	table, err := auditTable(agent)
	if err != nil {
		return nil, err
	}
	exists, err := s.tableExists(ctx, table)
	if err != nil || !exists {
		return nil, err
	}
	s.logger.Debug("sql", "op", "select", "table", table, "upload_id", uploadID)

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(
		`SELECT `+auditColumns+` FROM `+table+` WHERE upload_id = ? ORDER BY id`), uploadID)
	if err != nil {
		return nil, fail("list audit records", err)
	}
	defer rows.Close()

	var records []*model.AuditRecord
	for rows.Next() {
		r, err := scanAuditRecord(rows)
		if err != nil {
			return nil, fail("list audit records", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fail("list audit records", err)
	}
	return records, nil
}

// HasSuccessfulAudit reports whether agentID finished uploadID successfully.
// It is false, not an error, when the agent has never created its table.
func (s *SQLStore) HasSuccessfulAudit(ctx context.Context, agent string, agentID, uploadID int64) (bool, error) {
	table, err := auditTable(agent)
	if err != nil {
		return false, err
	}
	exists, err := s.tableExists(ctx, table)
	if err != nil || !exists {
		return false, err
	}
	s.logger.Debug("sql", "op", "select", "table", table, "agent_id", agentID, "upload_id", uploadID)

	var n int
	err = s.db.QueryRowContext(ctx, s.dialect.rebind(
		`SELECT COUNT(*) FROM `+table+` WHERE agent_id = ? AND upload_id = ? AND success = 1`),
		agentID, uploadID).Scan(&n)
	if err != nil {
		return false, fail("has successful audit", err)
	}
	return n > 0, nil
}

func (s *SQLStore) tableExists(ctx context.Context, table string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, s.dialect.tableExistsQuery(), table).Scan(&n); err != nil {
		return false, fail("table exists", err)
	}
	return n > 0, nil
}
