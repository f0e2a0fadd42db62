package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/me/agentq/pkg/model"
)

// Agent is an agent type the manager can schedule.
type Agent interface {
	// Name is the agent type, also used as the task's agent_type.
	Name() string

	// Dependencies lists the agent types that must be queued before this one.
	Dependencies() []string

	// HasResults reports whether the latest revision of this agent already
	// processed uploadID successfully.
	HasResults(ctx context.Context, uploadID int64) (bool, error)
}

// Registry maps agent type names to their Agent implementations.
// Registration happens at startup before concurrent access, so no mutex is needed.
type Registry struct {
	agents map[string]Agent
	logger *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		agents: make(map[string]Agent),
		logger: logger.With("component", "agent-registry"),
	}
}

// Register adds an Agent to the registry, keyed by its Name().
func (r *Registry) Register(a Agent) error {
	name := a.Name()
	if err := model.ValidateAgentName(name); err != nil {
		return err
	}
	if _, dup := r.agents[name]; dup {
		return fmt.Errorf("agent %q already registered", name)
	}
	r.agents[name] = a
	r.logger.Info("agent registered", "name", name, "depends_on", a.Dependencies())
	return nil
}

// Get returns the Agent for name or an *model.UnknownAgentError.
func (r *Registry) Get(name string) (Agent, error) {
	a, ok := r.agents[name]
	if !ok {
		return nil, &model.UnknownAgentError{Name: name}
	}
	return a, nil
}

// Names returns the registered agent types in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks that every dependency is registered and that the
// dependency graph has no cycles.
func (r *Registry) Validate() error {
	return r.validate(r.Names())
}

// ValidateFrom runs the same checks as Validate over the agents reachable
// from name only.
func (r *Registry) ValidateFrom(name string) error {
	return r.validate([]string{name})
}

func (r *Registry) validate(roots []string) error {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(r.agents))

	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		a, err := r.Get(name)
		if err != nil {
			if len(path) > 0 {
				return fmt.Errorf("agent %q: %w", path[len(path)-1], err)
			}
			return err
		}
		switch state[name] {
		case visiting:
			return fmt.Errorf("%w: %s", model.ErrDependencyCycle, strings.Join(append(path, name), " -> "))
		case done:
			return nil
		}
		state[name] = visiting
		for _, dep := range a.Dependencies() {
			if err := visit(dep, append(path, name)); err != nil {
				return err
			}
		}
		state[name] = done
		return nil
	}

	for _, name := range roots {
		if err := visit(name, nil); err != nil {
			return err
		}
	}
	return nil
}
