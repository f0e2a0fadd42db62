package store

import (
	"context"

	"github.com/me/agentq/pkg/model"
)

// Store defines the persistence layer for agent identities, audit records,
// uploads, jobs and the task queue.
//
// Lookups return (nil, nil) when the row does not exist. Every other failure
// is a *model.PersistenceError.
type Store interface {
	// Agent identities (append-only)
	FindAgent(ctx context.Context, name, version, revision string) (*model.Agent, error)
	LatestAgent(ctx context.Context, name string) (*model.Agent, error)
	RegisterAgent(ctx context.Context, a *model.Agent) error
	ListAgents(ctx context.Context) ([]*model.Agent, error)

	// Per-agent audit records
	EnsureAuditTable(ctx context.Context, agent string) error
	InsertAuditRecord(ctx context.Context, agent string, agentID, uploadID int64) (int64, error)
	FinalizeAuditRecord(ctx context.Context, agent string, id int64, success bool, status string) error
	GetAuditRecord(ctx context.Context, agent string, id int64) (*model.AuditRecord, error)
	ListAuditRecords(ctx context.Context, agent string, uploadID int64) ([]*model.AuditRecord, error)
	HasSuccessfulAudit(ctx context.Context, agent string, agentID, uploadID int64) (bool, error)

	// Uploads
	CreateUpload(ctx context.Context, u *model.Upload) error
	GetUpload(ctx context.Context, id int64) (*model.Upload, error)
	FindUploadByFilename(ctx context.Context, filename string) (*model.Upload, error)
	ListUploads(ctx context.Context, opts model.ListOptions) ([]*model.Upload, int, error)

	// Jobs
	CreateJob(ctx context.Context, job *model.Job) error
	GetJob(ctx context.Context, id int64) (*model.Job, error)
	ListJobs(ctx context.Context, opts model.ListOptions) ([]*model.Job, int, error)

	// Task queue
	CreateTask(ctx context.Context, task *model.Task, dependsOn []int64) error
	TaskExists(ctx context.Context, id int64) (bool, error)
	FindTask(ctx context.Context, jobID int64, agentType string) (*model.Task, error)
	GetTask(ctx context.Context, id int64) (*model.Task, error)
	ListTasksByJob(ctx context.Context, jobID int64) ([]*model.Task, error)
	ListTaskIDsByStatus(ctx context.Context, status string) ([]int64, error)
	UpdateTaskProgress(ctx context.Context, id int64, p model.TaskProgress) error

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
