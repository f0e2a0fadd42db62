package server

import (
	"net/http"
	"time"

	"github.com/me/agentq/pkg/model"
)

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	ids, err := s.queue.TasksWithStatus(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		respondDomainError(w, reqID, err)
		return
	}
	respondOK(w, reqID, map[string]any{"task_ids": ids})
}

// handleTaskProgress records the scheduler-owned columns of a task.
func (s *Server) handleTaskProgress(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id, ok := idParam(w, r, reqID)
	if !ok {
		return
	}

	var req struct {
		StartTime *time.Time `json:"start_time"`
		EndTime   *time.Time `json:"end_time"`
		EndBits   int        `json:"end_bits"`
		EndText   string     `json:"end_text"`
	}
	if !decodeJSON(w, r, reqID, &req) {
		return
	}

	p := model.TaskProgress{
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		EndBits:   req.EndBits,
		EndText:   req.EndText,
	}
	if err := s.queue.RecordTaskProgress(r.Context(), id, p); err != nil {
		respondDomainError(w, reqID, err)
		return
	}
	respondOK(w, reqID, map[string]any{"task_id": id, "state": taskState(p)})
}

func taskState(p model.TaskProgress) model.TaskState {
	t := model.Task{StartTime: p.StartTime, EndTime: p.EndTime}
	return t.State()
}
