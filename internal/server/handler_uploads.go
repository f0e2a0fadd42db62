package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/me/agentq/internal/queue"
	"github.com/me/agentq/pkg/model"
)

func (s *Server) handleCreateUpload(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var req struct {
		UserID      int64  `json:"user_id"`
		Name        string `json:"name"`
		Origin      string `json:"origin"`
		Description string `json:"description"`
		Mode        int    `json:"mode"`
		FolderID    int64  `json:"folder_id"`
	}
	if !decodeJSON(w, r, reqID, &req) {
		return
	}
	if req.UserID == 0 {
		req.UserID = s.defaultOwner
	}

	u, err := s.queue.AddUpload(r.Context(), queue.AddUploadRequest{
		UserID:      req.UserID,
		Name:        req.Name,
		Origin:      req.Origin,
		Description: req.Description,
		Mode:        req.Mode,
		FolderID:    req.FolderID,
	})
	if err != nil {
		respondDomainError(w, reqID, err)
		return
	}
	respondCreated(w, reqID, u)
}

func (s *Server) handleListUploads(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	opts := model.ListOptionsFromQuery(r.URL.Query())
	uploads, total, err := s.store.ListUploads(r.Context(), opts)
	if err != nil {
		respondDomainError(w, reqID, err)
		return
	}
	if uploads == nil {
		uploads = []*model.Upload{}
	}
	respondList(w, reqID, uploads, model.NewPagination(opts, total))
}

// handleGetUpload accepts an upload id or a filename. A filename resolves
// to the most recent upload carrying it.
func (s *Server) handleGetUpload(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	u, err := s.queue.FindUpload(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		respondDomainError(w, reqID, err)
		return
	}
	respondOK(w, reqID, u)
}
