package queue

import (
	"context"
	"fmt"

	"github.com/me/agentq/pkg/model"
)

// BulkRequest schedules every agent in Agents against every upload in
// UploadIDs, each upload under a fresh job owned by Owner.
type BulkRequest struct {
	Owner     int64
	UploadIDs []int64
	Agents    []string
	Verbose   bool
}

// AgentOutcome is the result of scheduling one agent for one upload.
type AgentOutcome struct {
	Agent       string `json:"agent"`
	TaskID      int64  `json:"task_id,omitempty"`
	AlreadyDone bool   `json:"already_done,omitempty"`
	Error       string `json:"error,omitempty"`

	err error
}

// Err returns the scheduling error, if any.
func (o *AgentOutcome) Err() error { return o.err }

// OK reports whether the agent was queued or already had results.
func (o *AgentOutcome) OK() bool { return o.Error == "" }

// UploadOutcome is the result of scheduling all requested agents for one upload.
type UploadOutcome struct {
	UploadID int64          `json:"upload_id"`
	Filename string         `json:"filename,omitempty"`
	JobID    int64          `json:"job_id,omitempty"`
	Error    string         `json:"error,omitempty"`
	Agents   []AgentOutcome `json:"agents,omitempty"`
}

// BulkReport collects per-upload and per-agent outcomes of BulkSchedule.
type BulkReport struct {
	Uploads []UploadOutcome `json:"uploads"`
}

// Failures counts failed uploads plus failed agent schedulings.
func (r *BulkReport) Failures() int {
	n := 0
	for _, u := range r.Uploads {
		if u.Error != "" {
			n++
		}
		for _, a := range u.Agents {
			if !a.OK() {
				n++
			}
		}
	}
	return n
}

// BulkSchedule creates one job per upload, named after the upload, and adds
// each requested agent to it. Failures are recorded in the report and never
// stop the remaining agents or uploads. Non-positive upload ids are skipped.
func (m *Manager) BulkSchedule(ctx context.Context, req BulkRequest) *BulkReport {
	report := &BulkReport{}

	for _, uploadID := range req.UploadIDs {
		if uploadID <= 0 {
			continue
		}
		if ctx.Err() != nil {
			report.Uploads = append(report.Uploads, UploadOutcome{UploadID: uploadID, Error: ctx.Err().Error()})
			continue
		}
		report.Uploads = append(report.Uploads, m.scheduleUpload(ctx, req, uploadID))
	}
	return report
}

func (m *Manager) scheduleUpload(ctx context.Context, req BulkRequest, uploadID int64) UploadOutcome {
	out := UploadOutcome{UploadID: uploadID}

	upload, err := m.store.GetUpload(ctx, uploadID)
	if err == nil && upload == nil {
		err = &model.RecordNotFoundError{Resource: "upload", ID: uploadID}
	}
	if err != nil {
		m.logger.Error("cannot schedule upload", "upload_id", uploadID, "error", err)
		out.Error = err.Error()
		return out
	}
	out.Filename = upload.Filename

	job, err := m.CreateJob(ctx, req.Owner, upload.Filename, &upload.ID, 0)
	if err != nil {
		m.logger.Error("cannot create job", "upload_id", uploadID, "error", err)
		out.Error = err.Error()
		return out
	}
	out.JobID = job.ID

	for _, name := range req.Agents {
		if name == "" {
			continue
		}
		ao := AgentOutcome{Agent: name}
		res, err := m.AddAgent(ctx, job.ID, uploadID, name)
		ao.TaskID = res.TaskID
		ao.AlreadyDone = res.AlreadyDone
		if err != nil {
			ao.err = err
			ao.Error = err.Error()
			m.logger.Error("scheduling failed", "agent", name, "upload_id", uploadID, "job_id", job.ID, "error", err)
		} else if req.Verbose {
			m.logger.Info(fmt.Sprintf("%s is queued to run on %d:%s", name, uploadID, upload.Filename),
				"agent", name, "upload_id", uploadID, "task_id", res.TaskID, "already_done", res.AlreadyDone)
		}
		out.Agents = append(out.Agents, ao)
	}
	return out
}

// ScheduleAll runs BulkSchedule over every upload in the store.
func (m *Manager) ScheduleAll(ctx context.Context, owner int64, agents []string, verbose bool) (*BulkReport, error) {
	var ids []int64
	opts := model.ListOptions{Limit: 100}
	for {
		page, total, err := m.store.ListUploads(ctx, opts)
		if err != nil {
			return nil, err
		}
		for _, u := range page {
			ids = append(ids, u.ID)
		}
		opts.Offset += len(page)
		if len(page) == 0 || opts.Offset >= total {
			break
		}
	}
	return m.BulkSchedule(ctx, BulkRequest{Owner: owner, UploadIDs: ids, Agents: agents, Verbose: verbose}), nil
}
