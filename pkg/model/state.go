package model

// AuditOutcome is the tri-state result column of an audit record.
type AuditOutcome string

const (
	AuditPending   AuditOutcome = "PENDING"
	AuditSucceeded AuditOutcome = "SUCCEEDED"
	AuditFailed    AuditOutcome = "FAILED"
)

// String returns the string representation of the outcome.
func (o AuditOutcome) String() string {
	return string(o)
}

// IsTerminal returns true once the audit record has been finalized.
func (o AuditOutcome) IsTerminal() bool {
	return o == AuditSucceeded || o == AuditFailed
}

// ValidAuditTransitions defines the allowed outcome transitions. An audit
// record is finalized exactly once.
var ValidAuditTransitions = map[AuditOutcome][]AuditOutcome{
	AuditPending: {AuditSucceeded, AuditFailed},
}

// CanTransitionTo returns true if moving from the current outcome to next is valid.
func (o AuditOutcome) CanTransitionTo(next AuditOutcome) bool {
	for _, allowed := range ValidAuditTransitions[o] {
		if allowed == next {
			return true
		}
	}
	return false
}

// OutcomeOf maps a finished unit of work to its audit outcome.
func OutcomeOf(success bool) AuditOutcome {
	if success {
		return AuditSucceeded
	}
	return AuditFailed
}

// TaskState is the progress of a queue entry as recorded by the scheduler.
// The queue manager only ever creates tasks in TaskStateQueued.
type TaskState string

const (
	TaskStateQueued   TaskState = "QUEUED"
	TaskStateStarted  TaskState = "STARTED"
	TaskStateFinished TaskState = "FINISHED"
)

// String returns the string representation of the task state.
func (s TaskState) String() string {
	return string(s)
}

// IsTerminal returns true if the task is in a final state.
func (s TaskState) IsTerminal() bool {
	return s == TaskStateFinished
}
