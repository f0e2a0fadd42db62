package server

import "net/http"

type endpointInfo struct {
	Path        string   `json:"path"`
	Methods     []string `json:"methods"`
	Description string   `json:"description"`
}

type discoveryResponse struct {
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	Description string         `json:"description"`
	Endpoints   []endpointInfo `json:"endpoints"`
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, discoveryResponse{
		Name:        "agentq API",
		Version:     "v1",
		Description: "Dependency-aware job queue for analysis agents",
		Endpoints: []endpointInfo{
			{"/api/v1/agents", []string{"GET"}, "Registered agent types with their dependencies and identities"},
			{"/api/v1/uploads", []string{"GET", "POST"}, "Upload records"},
			{"/api/v1/uploads/{ref}", []string{"GET"}, "Single upload by id or filename"},
			{"/api/v1/jobs", []string{"GET", "POST"}, "Jobs"},
			{"/api/v1/jobs/{id}", []string{"GET"}, "Job with its tasks and dependency edges"},
			{"/api/v1/jobs/{id}/agents", []string{"POST"}, "Schedule an agent and its dependencies for the job's upload"},
			{"/api/v1/jobs/{id}/tasks", []string{"POST"}, "Enqueue a raw task with explicit dependencies"},
			{"/api/v1/schedule", []string{"POST"}, "Schedule agents across uploads, one job per upload"},
			{"/api/v1/tasks", []string{"GET"}, "Task ids whose end text contains ?status="},
			{"/api/v1/tasks/{id}/progress", []string{"POST"}, "Record scheduler progress for a task"},
			{"/api/v1/health", []string{"GET"}, "Server health and version"},
		},
	})
}
