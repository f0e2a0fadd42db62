package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/me/agentq/pkg/model"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// SQLStore implements Store on database/sql for SQLite and PostgreSQL.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	logger  *slog.Logger
}

var _ Store = (*SQLStore)(nil)

// Open returns a store for driver ("sqlite" or "postgres") and dsn.
func Open(driver, dsn string, logger *slog.Logger) (*SQLStore, error) {
	switch driver {
	case "sqlite", "":
		return NewSQLiteStore(dsn, logger)
	case "postgres":
		return NewPostgresStore(dsn, logger)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Store.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}

	// A single connection serializes writers and keeps ":memory:" databases
	// alive across statements.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}

	return &SQLStore{
		db:      db,
		dialect: dialectSQLite,
		logger:  logger.With("component", "store", "dialect", "sqlite"),
	}, nil
}

// NewPostgresStore connects to PostgreSQL through the pgx database/sql driver.
func NewPostgresStore(dsn string, logger *slog.Logger) (*SQLStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &SQLStore{
		db:      db,
		dialect: dialectPostgres,
		logger:  logger.With("component", "store", "dialect", "postgres"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	if err := migrate(ctx, s.db, s.dialect); err != nil {
		return fail("migrate", err)
	}
	return nil
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// insert runs an INSERT and returns the id assigned to the new row.
func (s *SQLStore) insert(ctx context.Context, q queryer, query string, args ...any) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, s.dialect.rebind(query+" RETURNING id"), args...).Scan(&id)
	return id, err
}

func fail(op string, err error) error {
	return &model.PersistenceError{Op: op, Err: err}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func parseTimePtr(s *string) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	t, err := parseTime(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// --- Agents ---

const agentColumns = `id, name, version, revision, description, created_at`

func scanAgent(row interface{ Scan(...any) error }) (*model.Agent, error) {
	var a model.Agent
	var createdAt string
	if err := row.Scan(&a.ID, &a.Name, &a.Version, &a.Revision, &a.Description, &createdAt); err != nil {
		return nil, err
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	a.CreatedAt = t
	return &a, nil
}

func (s *SQLStore) FindAgent(ctx context.Context, name, version, revision string) (*model.Agent, error) {
	s.logger.Debug("sql", "op", "select", "table", "agents", "name", name, "version", version, "revision", revision)

	a, err := scanAgent(s.db.QueryRowContext(ctx, s.dialect.rebind(
		`SELECT `+agentColumns+` FROM agents
		 WHERE name = ? AND version = ? AND revision = ?
		 ORDER BY id DESC LIMIT 1`), name, version, revision))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fail("find agent", err)
	}
	return a, nil
}

func (s *SQLStore) LatestAgent(ctx context.Context, name string) (*model.Agent, error) {
	s.logger.Debug("sql", "op", "select", "table", "agents", "name", name)

	a, err := scanAgent(s.db.QueryRowContext(ctx, s.dialect.rebind(
		`SELECT `+agentColumns+` FROM agents WHERE name = ? ORDER BY id DESC LIMIT 1`), name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fail("latest agent", err)
	}
	return a, nil
}

// RegisterAgent inserts a new identity row. Existing rows are never updated.
func (s *SQLStore) RegisterAgent(ctx context.Context, a *model.Agent) error {
	s.logger.Debug("sql", "op", "insert", "table", "agents", "name", a.Name)

	if err := model.ValidateAgentName(a.Name); err != nil {
		return err
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	id, err := s.insert(ctx, s.db,
		`INSERT INTO agents (name, version, revision, description, created_at) VALUES (?, ?, ?, ?, ?)`,
		a.Name, a.Version, a.Revision, a.Description, formatTime(a.CreatedAt))
	if err != nil {
		return fail("register agent", err)
	}
	a.ID = id
	return nil
}

func (s *SQLStore) ListAgents(ctx context.Context) ([]*model.Agent, error) {
	s.logger.Debug("sql", "op", "select", "table", "agents")

	rows, err := s.db.QueryContext(ctx, `SELECT `+agentColumns+` FROM agents ORDER BY name, id`)
	if err != nil {
		return nil, fail("list agents", err)
	}
	defer rows.Close()

	var agents []*model.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fail("list agents", err)
		}
		agents = append(agents, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fail("list agents", err)
	}
	return agents, nil
}

// --- Uploads ---

const uploadColumns = `id, filename, description, mode, origin, folder_id, user_id, created_at`

func scanUpload(row interface{ Scan(...any) error }) (*model.Upload, error) {
	var u model.Upload
	var createdAt string
	if err := row.Scan(&u.ID, &u.Filename, &u.Description, &u.Mode, &u.Origin,
		&u.FolderID, &u.UserID, &createdAt); err != nil {
		return nil, err
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	u.CreatedAt = t
	return &u, nil
}

func (s *SQLStore) CreateUpload(ctx context.Context, u *model.Upload) error {
	s.logger.Debug("sql", "op", "insert", "table", "uploads", "filename", u.Filename)

	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	id, err := s.insert(ctx, s.db,
		`INSERT INTO uploads (filename, description, mode, origin, folder_id, user_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.Filename, u.Description, u.Mode, u.Origin, u.FolderID, u.UserID, formatTime(u.CreatedAt))
	if err != nil {
		return fail("create upload", err)
	}
	u.ID = id
	return nil
}

func (s *SQLStore) GetUpload(ctx context.Context, id int64) (*model.Upload, error) {
	s.logger.Debug("sql", "op", "select", "table", "uploads", "id", id)

	u, err := scanUpload(s.db.QueryRowContext(ctx, s.dialect.rebind(
		`SELECT `+uploadColumns+` FROM uploads WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fail("get upload", err)
	}
	return u, nil
}

// FindUploadByFilename returns the most recent upload with the given filename.
func (s *SQLStore) FindUploadByFilename(ctx context.Context, filename string) (*model.Upload, error) {
	s.logger.Debug("sql", "op", "select", "table", "uploads", "filename", filename)

	u, err := scanUpload(s.db.QueryRowContext(ctx, s.dialect.rebind(
		`SELECT `+uploadColumns+` FROM uploads WHERE filename = ? ORDER BY id DESC LIMIT 1`), filename))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fail("find upload", err)
	}
	return u, nil
}

func (s *SQLStore) ListUploads(ctx context.Context, opts model.ListOptions) ([]*model.Upload, int, error) {
	s.logger.Debug("sql", "op", "select", "table", "uploads", "limit", opts.Limit, "offset", opts.Offset)
	opts.Clamp()

	where, args := "", []any{}
	if opts.UserID > 0 {
		where = " WHERE user_id = ?"
		args = append(args, opts.UserID)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT COUNT(*) FROM uploads`+where), args...).Scan(&total); err != nil {
		return nil, 0, fail("count uploads", err)
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(
		`SELECT `+uploadColumns+` FROM uploads`+where+` ORDER BY id LIMIT ? OFFSET ?`),
		append(args, opts.Limit, opts.Offset)...)
	if err != nil {
		return nil, 0, fail("list uploads", err)
	}
	defer rows.Close()

	var uploads []*model.Upload
	for rows.Next() {
		u, err := scanUpload(rows)
		if err != nil {
			return nil, 0, fail("list uploads", err)
		}
		uploads = append(uploads, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fail("list uploads", err)
	}
	return uploads, total, nil
}

// --- Jobs ---

const jobColumns = `id, owner_user_id, upload_id, name, priority, queued_time`

func scanJob(row interface{ Scan(...any) error }) (*model.Job, error) {
	var j model.Job
	var uploadID sql.NullInt64
	var queued string
	if err := row.Scan(&j.ID, &j.OwnerUserID, &uploadID, &j.Name, &j.Priority, &queued); err != nil {
		return nil, err
	}
	if uploadID.Valid {
		id := uploadID.Int64
		j.UploadID = &id
	}
	t, err := parseTime(queued)
	if err != nil {
		return nil, fmt.Errorf("parse queued_time: %w", err)
	}
	j.QueuedTime = t
	return &j, nil
}

func (s *SQLStore) CreateJob(ctx context.Context, job *model.Job) error {
	s.logger.Debug("sql", "op", "insert", "table", "jobs", "name", job.Name)

	if job.QueuedTime.IsZero() {
		job.QueuedTime = time.Now().UTC()
	}
	id, err := s.insert(ctx, s.db,
		`INSERT INTO jobs (owner_user_id, upload_id, name, priority, queued_time) VALUES (?, ?, ?, ?, ?)`,
		job.OwnerUserID, job.UploadID, job.Name, job.Priority, formatTime(job.QueuedTime))
	if err != nil {
		return fail("create job", err)
	}
	job.ID = id
	return nil
}

func (s *SQLStore) GetJob(ctx context.Context, id int64) (*model.Job, error) {
	s.logger.Debug("sql", "op", "select", "table", "jobs", "id", id)

	j, err := scanJob(s.db.QueryRowContext(ctx, s.dialect.rebind(
		`SELECT `+jobColumns+` FROM jobs WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fail("get job", err)
	}
	return j, nil
}

func (s *SQLStore) ListJobs(ctx context.Context, opts model.ListOptions) ([]*model.Job, int, error) {
	s.logger.Debug("sql", "op", "select", "table", "jobs", "limit", opts.Limit, "offset", opts.Offset)
	opts.Clamp()

	where, args := "", []any{}
	if opts.UserID > 0 {
		where = " WHERE owner_user_id = ?"
		args = append(args, opts.UserID)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT COUNT(*) FROM jobs`+where), args...).Scan(&total); err != nil {
		return nil, 0, fail("count jobs", err)
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(
		`SELECT `+jobColumns+` FROM jobs`+where+` ORDER BY id DESC LIMIT ? OFFSET ?`),
		append(args, opts.Limit, opts.Offset)...)
	if err != nil {
		return nil, 0, fail("list jobs", err)
	}
	defer rows.Close()

	var jobs []*model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, 0, fail("list jobs", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fail("list jobs", err)
	}
	return jobs, total, nil
}
