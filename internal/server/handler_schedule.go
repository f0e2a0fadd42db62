package server

import (
	"net/http"

	"github.com/me/agentq/internal/queue"
	"github.com/me/agentq/pkg/model"
)

type scheduleResponse struct {
	*queue.BulkReport
	Failures int `json:"failures"`
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var req struct {
		OwnerUserID int64    `json:"owner_user_id"`
		UploadIDs   []int64  `json:"upload_ids"`
		All         bool     `json:"all"`
		Agents      []string `json:"agents"`
		Verbose     bool     `json:"verbose"`
	}
	if !decodeJSON(w, r, reqID, &req) {
		return
	}
	if len(req.Agents) == 0 {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError("missing required field", model.FieldError{Field: "agents", Message: "at least one agent is required"}))
		return
	}
	if !req.All && len(req.UploadIDs) == 0 {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError("missing required field", model.FieldError{Field: "upload_ids", Message: "upload_ids or all is required"}))
		return
	}
	if req.OwnerUserID == 0 {
		req.OwnerUserID = s.defaultOwner
	}

	var report *queue.BulkReport
	if req.All {
		var err error
		report, err = s.queue.ScheduleAll(r.Context(), req.OwnerUserID, req.Agents, req.Verbose)
		if err != nil {
			respondDomainError(w, reqID, err)
			return
		}
	} else {
		report = s.queue.BulkSchedule(r.Context(), queue.BulkRequest{
			Owner:     req.OwnerUserID,
			UploadIDs: req.UploadIDs,
			Agents:    req.Agents,
			Verbose:   req.Verbose,
		})
	}

	s.logger.Info("bulk schedule", "uploads", len(report.Uploads), "failures", report.Failures())
	respondOK(w, reqID, scheduleResponse{BulkReport: report, Failures: report.Failures()})
}
