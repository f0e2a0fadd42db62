package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/me/agentq/internal/queue"
	"github.com/me/agentq/pkg/model"
)

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var req struct {
		OwnerUserID int64  `json:"owner_user_id"`
		Name        string `json:"name"`
		UploadID    int64  `json:"upload_id"`
		Priority    int    `json:"priority"`
	}
	if !decodeJSON(w, r, reqID, &req) {
		return
	}
	if req.OwnerUserID == 0 {
		req.OwnerUserID = s.defaultOwner
	}

	var uploadID *int64
	if req.UploadID != 0 {
		u, err := s.store.GetUpload(r.Context(), req.UploadID)
		if err != nil {
			respondDomainError(w, reqID, err)
			return
		}
		if u == nil {
			respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("upload", req.UploadID))
			return
		}
		uploadID = &u.ID
		if req.Name == "" {
			req.Name = u.Filename
		}
	}
	if req.Name == "" {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError("missing required field",
				model.FieldError{Field: "name", Message: "name is required without an upload_id"}))
		return
	}

	job, err := s.queue.CreateJob(r.Context(), req.OwnerUserID, req.Name, uploadID, req.Priority)
	if err != nil {
		respondDomainError(w, reqID, err)
		return
	}
	respondCreated(w, reqID, job)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	opts := model.ListOptionsFromQuery(r.URL.Query())
	jobs, total, err := s.store.ListJobs(r.Context(), opts)
	if err != nil {
		respondDomainError(w, reqID, err)
		return
	}
	if jobs == nil {
		jobs = []*model.Job{}
	}
	respondList(w, reqID, jobs, model.NewPagination(opts, total))
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id, ok := idParam(w, r, reqID)
	if !ok {
		return
	}

	status, err := s.queue.JobStatus(r.Context(), id)
	if err != nil {
		respondDomainError(w, reqID, err)
		return
	}
	respondOK(w, reqID, status)
}

// handleAddAgent schedules an agent, and the agents it depends on, for the
// job's upload.
func (s *Server) handleAddAgent(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id, ok := idParam(w, r, reqID)
	if !ok {
		return
	}

	var req struct {
		Agent string `json:"agent"`
	}
	if !decodeJSON(w, r, reqID, &req) {
		return
	}
	if req.Agent == "" {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError("missing required field", model.FieldError{Field: "agent", Message: "agent is required"}))
		return
	}

	job, err := s.store.GetJob(r.Context(), id)
	if err != nil {
		respondDomainError(w, reqID, err)
		return
	}
	if job == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("job", id))
		return
	}
	if job.UploadID == nil {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError("job has no upload", model.FieldError{Field: "id", Message: "agents run on a job's upload"}))
		return
	}

	res, err := s.queue.AddAgent(r.Context(), job.ID, *job.UploadID, req.Agent)
	if err != nil {
		if res.TaskID != 0 && errors.Is(err, model.ErrTransport) {
			// The task is stored; only the scheduler notification failed.
			respondJSON(w, http.StatusBadGateway, reqID, res, nil, &model.APIError{
				Code:    model.ErrUnavailable,
				Message: fmt.Sprintf("task %d enqueued but scheduler not notified: %v", res.TaskID, err),
			})
			return
		}
		respondDomainError(w, reqID, err)
		return
	}
	if res.AlreadyDone {
		respondOK(w, reqID, res)
		return
	}
	respondCreated(w, reqID, res)
}

// handleEnqueueTask adds one task with explicit dependency ids, bypassing
// the agent registry.
func (s *Server) handleEnqueueTask(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id, ok := idParam(w, r, reqID)
	if !ok {
		return
	}

	var req struct {
		AgentType string  `json:"agent_type"`
		Args      string  `json:"args"`
		RunOnFile string  `json:"run_on_file"`
		DependsOn []int64 `json:"depends_on"`
	}
	if !decodeJSON(w, r, reqID, &req) {
		return
	}

	job, err := s.store.GetJob(r.Context(), id)
	if err != nil {
		respondDomainError(w, reqID, err)
		return
	}
	if job == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("job", id))
		return
	}

	taskID, err := s.queue.EnqueueTask(r.Context(), queue.EnqueueRequest{
		JobID:     job.ID,
		AgentType: req.AgentType,
		Args:      req.Args,
		RunOnFile: req.RunOnFile,
		DependsOn: req.DependsOn,
	})
	if err != nil {
		respondDomainError(w, reqID, err)
		return
	}

	task, err := s.store.GetTask(r.Context(), taskID)
	if err != nil {
		respondDomainError(w, reqID, err)
		return
	}
	respondCreated(w, reqID, task)
}
