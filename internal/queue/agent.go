package queue

import (
	"context"
	"log/slog"

	"github.com/me/agentq/internal/config"
	"github.com/me/agentq/internal/store"
)

// StoreAgent is an Agent whose results are read from its audit table.
type StoreAgent struct {
	name  string
	deps  []string
	store store.Store
}

var _ Agent = (*StoreAgent)(nil)

// NewStoreAgent returns an Agent named name depending on deps.
func NewStoreAgent(st store.Store, name string, deps ...string) *StoreAgent {
	return &StoreAgent{name: name, deps: deps, store: st}
}

func (a *StoreAgent) Name() string { return a.name }

func (a *StoreAgent) Dependencies() []string { return a.deps }

// HasResults is answered by content: a successful audit record by the most
// recently registered revision of the agent. Older revisions do not count,
// so upgrading an agent makes its uploads eligible again.
func (a *StoreAgent) HasResults(ctx context.Context, uploadID int64) (bool, error) {
	latest, err := a.store.LatestAgent(ctx, a.name)
	if err != nil {
		return false, err
	}
	if latest == nil {
		return false, nil
	}
	return a.store.HasSuccessfulAudit(ctx, a.name, latest.ID, uploadID)
}

// LoadRegistry registers a StoreAgent for every configured agent definition
// and validates the resulting dependency graph.
func LoadRegistry(st store.Store, defs []config.AgentDef, logger *slog.Logger) (*Registry, error) {
	reg := NewRegistry(logger)
	for _, d := range defs {
		if err := reg.Register(NewStoreAgent(st, d.Name, d.DependsOn...)); err != nil {
			return nil, err
		}
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return reg, nil
}
