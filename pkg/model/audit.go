package model

import "time"

// AuditRecord is one agent identity's attempt to process one upload.
// It is created pending at dispatch time and finalized exactly once.
type AuditRecord struct {
	ID         int64        `json:"id"`
	AgentID    int64        `json:"agent_id"`
	UploadID   int64        `json:"upload_id"`
	StartTime  time.Time    `json:"start_time"`
	EndTime    *time.Time   `json:"end_time,omitempty"`
	Outcome    AuditOutcome `json:"outcome"`
	StatusText string       `json:"status_text,omitempty"`
}

// Success reports the tri-state success column: nil while pending.
func (r *AuditRecord) Success() *bool {
	if !r.Outcome.IsTerminal() {
		return nil
	}
	ok := r.Outcome == AuditSucceeded
	return &ok
}
