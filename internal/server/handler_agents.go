package server

import (
	"net/http"

	"github.com/me/agentq/pkg/model"
)

type agentInfo struct {
	Name      string       `json:"name"`
	DependsOn []string     `json:"depends_on"`
	Latest    *model.Agent `json:"latest,omitempty"`
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	reg := s.queue.Registry()

	var data []agentInfo
	for _, name := range reg.Names() {
		a, err := reg.Get(name)
		if err != nil {
			respondDomainError(w, reqID, err)
			return
		}
		latest, err := s.store.LatestAgent(r.Context(), name)
		if err != nil {
			respondDomainError(w, reqID, err)
			return
		}
		deps := a.Dependencies()
		if deps == nil {
			deps = []string{}
		}
		data = append(data, agentInfo{Name: name, DependsOn: deps, Latest: latest})
	}
	if data == nil {
		data = []agentInfo{}
	}
	respondOK(w, reqID, data)
}
