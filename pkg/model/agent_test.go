package model

import (
	"errors"
	"testing"
)

func TestValidateAgentName(t *testing.T) {
	for _, name := range []string{"nomos", "unpack", "copyright_v2", "a1"} {
		if err := ValidateAgentName(name); err != nil {
			t.Errorf("ValidateAgentName(%q) = %v", name, err)
		}
	}
	for _, name := range []string{"", "Nomos", "9lives", "mon k", "x;drop table agents", "ünpack"} {
		if err := ValidateAgentName(name); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("ValidateAgentName(%q) = %v, want ErrInvalidInput", name, err)
		}
	}
}

func TestAuditTableAgent(t *testing.T) {
	if got := AuditTable("nomos"); got != "nomos_ars" {
		t.Errorf("AuditTable = %q", got)
	}
}
