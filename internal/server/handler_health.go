package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/me/agentq/pkg/model"
)

type healthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Uptime    string `json:"uptime"`
	Scheduler string `json:"scheduler"`
	Store     string `json:"store"`
	Agents    int    `json:"agents"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	status, storeState := "healthy", "ok"
	if _, _, err := s.store.ListJobs(r.Context(), model.ListOptions{Limit: 1}); err != nil {
		s.logger.Warn("health check: store unavailable", "error", err)
		status, storeState = "degraded", "unavailable"
	}

	sched := "disabled"
	if s.scheduler != "" {
		sched = s.scheduler
	}

	respondOK(w, reqID, healthResponse{
		Status:    status,
		Version:   Version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Scheduler: sched,
		Store:     storeState,
		Agents:    len(s.queue.Registry().Names()),
	})
}
