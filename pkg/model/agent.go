package model

import (
	"fmt"
	"regexp"
	"time"
)

// Agent is a registered agent identity. Identities are append-only: a new
// revision of an agent gets a new row so historical audit records stay
// attributable to the revision that produced them.
type Agent struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	Revision    string    `json:"revision"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// AuditTable returns the name of the per-agent audit table.
func AuditTable(agentName string) string {
	return agentName + "_ars"
}

var agentNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// ValidateAgentName checks that name can be used as an agent type and as the
// prefix of its audit table.
func ValidateAgentName(name string) error {
	if !agentNamePattern.MatchString(name) {
		return &ValidationError{Field: "agent", Message: fmt.Sprintf("invalid agent name %q", name)}
	}
	return nil
}
