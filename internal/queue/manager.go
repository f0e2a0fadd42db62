// Package queue creates jobs and enqueues agent tasks with their dependency
// edges, scheduling each (job, agent type) pair at most once.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/me/agentq/internal/scheduler"
	"github.com/me/agentq/internal/store"
	"github.com/me/agentq/pkg/model"
)

// Manager owns job, task and dependency rows.
type Manager struct {
	store    store.Store
	registry *Registry
	notifier scheduler.Notifier
	logger   *slog.Logger

	// flight collapses concurrent AddAgent calls for the same (job, agent)
	// within this process. Separate processes can still race; the tasks
	// table has no uniqueness constraint on (job_id, agent_type).
	flight singleflight.Group
}

// NewManager creates a Manager.
func NewManager(st store.Store, reg *Registry, n scheduler.Notifier, logger *slog.Logger) *Manager {
	if n == nil {
		n = scheduler.Nop{}
	}
	return &Manager{
		store:    st,
		registry: reg,
		notifier: n,
		logger:   logger.With("component", "queue"),
	}
}

// Registry returns the agent registry the manager schedules from.
func (m *Manager) Registry() *Registry { return m.registry }

// CreateJob inserts a job. A zero or nil uploadID creates a job that is not
// tied to an upload.
func (m *Manager) CreateJob(ctx context.Context, owner int64, name string, uploadID *int64, priority int) (*model.Job, error) {
	if uploadID != nil && *uploadID == 0 {
		uploadID = nil
	}
	job := &model.Job{
		OwnerUserID: owner,
		UploadID:    uploadID,
		Name:        name,
		Priority:    priority,
	}
	if err := m.store.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	m.logger.Info("job created", "job_id", job.ID, "name", name, "owner", owner)
	return job, nil
}

// EnqueueRequest describes one task to add to a job's queue.
type EnqueueRequest struct {
	JobID     int64
	AgentType string
	Args      string
	RunOnFile string
	DependsOn []int64
}

// EnqueueTask inserts a task and its dependency edges atomically. If any
// dependency does not exist nothing is written and the error wraps
// model.ErrDependencyNotFound.
func (m *Manager) EnqueueTask(ctx context.Context, req EnqueueRequest) (int64, error) {
	if req.JobID <= 0 {
		return 0, &model.ValidationError{Field: "job_id", Message: "must be positive"}
	}
	if err := model.ValidateAgentName(req.AgentType); err != nil {
		return 0, err
	}

	task := &model.Task{
		JobID:     req.JobID,
		AgentType: req.AgentType,
		Args:      req.Args,
		RunOnFile: req.RunOnFile,
	}
	if err := m.store.CreateTask(ctx, task, req.DependsOn); err != nil {
		return 0, err
	}
	m.logger.Debug("task enqueued", "task_id", task.ID, "job_id", req.JobID, "agent", req.AgentType, "depends_on", task.DependsOn)
	return task.ID, nil
}

// IsAlreadyScheduled returns the id of the task for agentType in jobID, or 0.
func (m *Manager) IsAlreadyScheduled(ctx context.Context, jobID int64, agentType string) (int64, error) {
	task, err := m.store.FindTask(ctx, jobID, agentType)
	if err != nil || task == nil {
		return 0, err
	}
	return task.ID, nil
}

// AddResult is the outcome of AddAgent. Exactly one of TaskID and
// AlreadyDone is set on success.
type AddResult struct {
	TaskID      int64 `json:"task_id,omitempty"`
	AlreadyDone bool  `json:"already_done,omitempty"`
}

// AddAgent schedules agentType for uploadID under jobID:
//
//  1. if the agent already has results for the upload, nothing is written
//     and AlreadyDone is returned;
//  2. if the job already holds a task for the agent, that task is returned;
//  3. otherwise each dependency is added the same way and a new task is
//     enqueued depending on the dependency tasks, after which the scheduler
//     is told to re-read the queue.
//
// Dependencies that are already done are not part of the new task's
// dependency set. If the scheduler cannot be notified the returned result
// still carries the persisted task id alongside a *model.TransportError.
//
// The dependency closure of agentType is checked first, so a cycle or an
// unregistered dependency fails before anything is written even when the
// registry was never validated as a whole.
func (m *Manager) AddAgent(ctx context.Context, jobID, uploadID int64, agentType string) (AddResult, error) {
	if err := m.registry.ValidateFrom(agentType); err != nil {
		return AddResult{}, err
	}
	return m.addAgent(ctx, jobID, uploadID, agentType, nil)
}

func (m *Manager) addAgent(ctx context.Context, jobID, uploadID int64, name string, path []string) (AddResult, error) {
	for _, p := range path {
		if p == name {
			return AddResult{}, fmt.Errorf("%w: %s", model.ErrDependencyCycle, strings.Join(append(path, name), " -> "))
		}
	}
	agent, err := m.registry.Get(name)
	if err != nil {
		return AddResult{}, err
	}
	path = append(path[:len(path):len(path)], name)

	key := strconv.FormatInt(jobID, 10) + "/" + name
	v, err, shared := m.flight.Do(key, func() (any, error) {
		return m.resolve(ctx, jobID, uploadID, agent, path)
	})
	if shared {
		m.logger.Debug("add agent shared", "job_id", jobID, "agent", name)
	}
	res, _ := v.(AddResult)
	return res, err
}

func (m *Manager) resolve(ctx context.Context, jobID, uploadID int64, agent Agent, path []string) (AddResult, error) {
	name := agent.Name()

	done, err := agent.HasResults(ctx, uploadID)
	if err != nil {
		return AddResult{}, fmt.Errorf("check results of %s: %w", name, err)
	}
	if done {
		m.logger.Debug("agent already has results", "job_id", jobID, "upload_id", uploadID, "agent", name)
		return AddResult{AlreadyDone: true}, nil
	}

	existing, err := m.IsAlreadyScheduled(ctx, jobID, name)
	if err != nil {
		return AddResult{}, err
	}
	if existing != 0 {
		return AddResult{TaskID: existing}, nil
	}

	var deps []int64
	for _, dep := range agent.Dependencies() {
		r, err := m.addAgent(ctx, jobID, uploadID, dep, path)
		if err != nil {
			return AddResult{}, fmt.Errorf("schedule %s dependency %s: %w", name, dep, err)
		}
		if !r.AlreadyDone {
			deps = append(deps, r.TaskID)
		}
	}

	id, err := m.EnqueueTask(ctx, EnqueueRequest{
		JobID:     jobID,
		AgentType: name,
		Args:      strconv.FormatInt(uploadID, 10),
		DependsOn: deps,
	})
	if err != nil {
		return AddResult{}, fmt.Errorf("enqueue %s: %w", name, err)
	}
	m.logger.Info("agent queued", "task_id", id, "job_id", jobID, "upload_id", uploadID, "agent", name, "depends_on", deps)

	if err := m.notifier.NotifyQueueChanged(ctx); err != nil {
		m.logger.Warn("task enqueued but scheduler not notified", "task_id", id, "agent", name, "error", err)
		return AddResult{TaskID: id}, err
	}
	return AddResult{TaskID: id}, nil
}

// AddUploadRequest describes a new upload. Name becomes the upload's
// filename and Origin records where its content came from.
type AddUploadRequest struct {
	UserID      int64
	Name        string
	Origin      string
	Description string
	Mode        int
	FolderID    int64
}

// AddUpload validates req and stores a new upload.
func (m *Manager) AddUpload(ctx context.Context, req AddUploadRequest) (*model.Upload, error) {
	switch {
	case req.UserID <= 0:
		return nil, &model.ValidationError{Field: "user_id", Message: "must be positive"}
	case strings.TrimSpace(req.Name) == "":
		return nil, &model.ValidationError{Field: "name", Message: "is required"}
	case strings.TrimSpace(req.Origin) == "":
		return nil, &model.ValidationError{Field: "origin", Message: "is required"}
	case req.Mode == 0:
		return nil, &model.ValidationError{Field: "mode", Message: "is required"}
	case req.FolderID <= 0:
		return nil, &model.ValidationError{Field: "folder_id", Message: "must be positive"}
	}

	u := &model.Upload{
		Filename:    req.Name,
		Origin:      req.Origin,
		Description: req.Description,
		Mode:        req.Mode,
		FolderID:    req.FolderID,
		UserID:      req.UserID,
	}
	if err := m.store.CreateUpload(ctx, u); err != nil {
		return nil, err
	}
	m.logger.Info("upload added", "upload_id", u.ID, "name", u.Filename, "user_id", u.UserID)
	return u, nil
}

// FindUpload resolves ref to an upload. A numeric ref is an upload id; any
// other ref is matched against filenames and the most recent upload wins.
func (m *Manager) FindUpload(ctx context.Context, ref string) (*model.Upload, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, &model.ValidationError{Field: "upload", Message: "is required"}
	}
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		if id <= 0 {
			return nil, &model.ValidationError{Field: "upload", Message: "id must be positive"}
		}
		u, err := m.store.GetUpload(ctx, id)
		if err != nil {
			return nil, err
		}
		if u == nil {
			return nil, &model.RecordNotFoundError{Resource: "upload", ID: id}
		}
		return u, nil
	}

	u, err := m.store.FindUploadByFilename(ctx, ref)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("upload %q: %w", ref, model.ErrRecordNotFound)
	}
	return u, nil
}

// RecordTaskProgress stores the scheduler-owned progress columns of a task.
func (m *Manager) RecordTaskProgress(ctx context.Context, taskID int64, p model.TaskProgress) error {
	if taskID <= 0 {
		return &model.ValidationError{Field: "task_id", Message: "must be positive"}
	}
	if p.StartTime != nil && p.EndTime != nil && p.EndTime.Before(*p.StartTime) {
		return &model.ValidationError{Field: "end_time", Message: "is before start_time"}
	}
	ok, err := m.store.TaskExists(ctx, taskID)
	if err != nil {
		return err
	}
	if !ok {
		return &model.RecordNotFoundError{Resource: "task", ID: taskID}
	}
	if err := m.store.UpdateTaskProgress(ctx, taskID, p); err != nil {
		return err
	}
	m.logger.Debug("task progress", "task_id", taskID, "end_bits", p.EndBits, "end_text", p.EndText)
	return nil
}

// JobStatus returns a job with its tasks and their dependencies.
func (m *Manager) JobStatus(ctx context.Context, jobID int64) (*model.JobStatus, error) {
	job, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, &model.RecordNotFoundError{Resource: "job", ID: jobID}
	}
	tasks, err := m.store.ListTasksByJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return &model.JobStatus{Job: job, Tasks: tasks}, nil
}

// TasksWithStatus returns the ids of tasks whose end text contains status.
func (m *Manager) TasksWithStatus(ctx context.Context, status string) ([]int64, error) {
	if status == "" {
		return nil, &model.ValidationError{Field: "status", Message: "is required"}
	}
	return m.store.ListTaskIDsByStatus(ctx, status)
}
