// Package agent implements the agent side of the scheduler line protocol:
// handshake, heartbeat, dispatch of upload ids and audit bookkeeping.
package agent

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/me/agentq/pkg/model"
)

// Exit codes passed to BYE and to the process exit.
const (
	ExitOK         = 0
	ExitFailure    = 1
	ExitAuditError = 2
)

// DefaultHeartbeatInterval is used when Config.HeartbeatInterval is zero.
const DefaultHeartbeatInterval = 30 * time.Second

// Store is the persistence the runtime needs. *store.SQLStore satisfies it.
type Store interface {
	FindAgent(ctx context.Context, name, version, revision string) (*model.Agent, error)
	RegisterAgent(ctx context.Context, a *model.Agent) error
	EnsureAuditTable(ctx context.Context, agent string) error
	InsertAuditRecord(ctx context.Context, agent string, agentID, uploadID int64) (int64, error)
	FinalizeAuditRecord(ctx context.Context, agent string, id int64, success bool, status string) error
}

// Config identifies the agent.
type Config struct {
	Name        string
	Version     string
	Revision    string
	Description string

	HeartbeatInterval time.Duration
}

// Runtime is one agent process's conversation with the scheduler.
type Runtime struct {
	cfg       Config
	store     Store
	processor Processor
	identity  *model.Agent
	heartbeat Heartbeat
	logger    *slog.Logger
}

// New resolves the agent identity, registering it if this name, version and
// revision has never run before, and makes sure the audit table exists.
func New(ctx context.Context, cfg Config, st Store, p Processor, logger *slog.Logger) (*Runtime, error) {
	if err := model.ValidateAgentName(cfg.Name); err != nil {
		return nil, err
	}
	if p == nil {
		return nil, errors.New("agent: processor is required")
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.Description == "" {
		cfg.Description = cfg.Name + " agent"
	}
	revision := cfg.Version
	if cfg.Revision != "" {
		revision = cfg.Version + "." + cfg.Revision
	}

	identity, err := st.FindAgent(ctx, cfg.Name, cfg.Version, revision)
	if err != nil {
		return nil, fmt.Errorf("find agent identity: %w", err)
	}
	if identity == nil {
		identity = &model.Agent{
			Name:        cfg.Name,
			Version:     cfg.Version,
			Revision:    revision,
			Description: cfg.Description,
		}
		if err := st.RegisterAgent(ctx, identity); err != nil {
			return nil, fmt.Errorf("register agent identity: %w", err)
		}
	}

	if err := st.EnsureAuditTable(ctx, cfg.Name); err != nil {
		return nil, fmt.Errorf("ensure audit table: %w", err)
	}

	return &Runtime{
		cfg:       cfg,
		store:     st,
		processor: p,
		identity:  identity,
		logger: logger.With(
			"component", "agent",
			"agent", cfg.Name,
			"agent_id", identity.ID,
			"run_id", uuid.NewString(),
		),
	}, nil
}

// Identity returns the agent identity row this run is attributed to.
func (r *Runtime) Identity() *model.Agent { return r.identity }

// Heartbeat returns the runtime's heartbeat counters.
func (r *Runtime) Heartbeat() *Heartbeat { return &r.heartbeat }

// Run talks the line protocol on in/out until CLOSE, END, EOF or a failure
// and returns the exit code. In scheduler mode the greeting, heartbeats and
// the closing BYE are written to out; standalone runs write nothing.
func (r *Runtime) Run(ctx context.Context, opts Options, in io.Reader, out io.Writer) int {
	logger := r.logger.With("job_id", opts.JobID, "user_id", opts.UserID)
	w := newLineWriter(out)

	stop := func() {}
	if opts.SchedulerStart {
		w.Version(r.cfg.Version)
		w.OK()
		stop = startHeartbeat(&r.heartbeat, w, r.cfg.HeartbeatInterval)
		logger.Info("agent ready", "version", r.cfg.Version, "heartbeat", r.cfg.HeartbeatInterval)
	}

	code := r.dispatch(ctx, logger, in)
	return r.bail(logger, opts, w, stop, code)
}

// bail is the only way out of Run.
func (r *Runtime) bail(logger *slog.Logger, opts Options, w *lineWriter, stopHeartbeat func(), code int) int {
	stopHeartbeat()
	if opts.SchedulerStart {
		w.Heart(r.heartbeat.Tick())
		w.Bye(code)
		if err := w.Err(); err != nil {
			logger.Warn("writing to scheduler failed", "error", err)
		}
	}
	logger.Info("agent exiting", "exit_code", code, "processed", r.heartbeat.Processed())
	return code
}

// dispatch reads one command per line until a control line or EOF. Lines of
// any length are accepted; an oversized line is just another non-id line.
func (r *Runtime) dispatch(ctx context.Context, logger *slog.Logger, in io.Reader) int {
	br := bufio.NewReader(in)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			line = strings.TrimRight(line, "\r\n")
			if isControlLine(line) {
				logger.Debug("control line", "line", line)
				return ExitOK
			}

			var n int64
			if uploadID := ParseUploadID(line); uploadID > 0 {
				if code := r.processUpload(ctx, logger, uploadID); code != ExitOK {
					return code
				}
				n = 1
			}
			r.heartbeat.RecordProcessed(n)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Warn("reading from scheduler failed", "error", err)
			}
			return ExitOK
		}
	}
}

// processUpload runs one unit of work between a pending and a finalized
// audit record. It returns ExitOK to continue the loop.
func (r *Runtime) processUpload(ctx context.Context, logger *slog.Logger, uploadID int64) int {
	logger = logger.With("upload_id", uploadID)

	arsID, err := r.store.InsertAuditRecord(ctx, r.cfg.Name, r.identity.ID, uploadID)
	if err != nil {
		logger.Error("cannot create audit record", "error", err)
		return ExitAuditError
	}

	start := time.Now()
	perr := safeProcess(ctx, r.processor, uploadID)
	status := ""
	if perr != nil {
		status = perr.Error()
	}

	if err := r.store.FinalizeAuditRecord(ctx, r.cfg.Name, arsID, perr == nil, status); err != nil {
		logger.Error("cannot finalize audit record", "ars_id", arsID, "error", err)
		return ExitAuditError
	}

	if perr != nil {
		logger.Error("processing failed", "ars_id", arsID, "duration", time.Since(start), "error", perr)
		return ExitFailure
	}
	logger.Info("upload processed", "ars_id", arsID, "duration", time.Since(start))
	return ExitOK
}
