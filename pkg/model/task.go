package model

import (
	"time"
)

// Task is one agent invocation queued under a job.
type Task struct {
	ID        int64  `json:"id"`
	JobID     int64  `json:"job_id"`
	AgentType string `json:"agent_type"`
	Args      string `json:"args"`

	// RunOnFile is the optional run-on-file hint passed through to the scheduler.
	RunOnFile string `json:"run_on_file,omitempty"`

	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	EndBits   int        `json:"end_bits"`
	EndText   string     `json:"end_text,omitempty"`

	// DependsOn lists the ids of the tasks this task waits for.
	DependsOn []int64 `json:"depends_on"`
}

// State derives the task's progress from its recorded times.
func (t *Task) State() TaskState {
	switch {
	case t.EndTime != nil:
		return TaskStateFinished
	case t.StartTime != nil:
		return TaskStateStarted
	default:
		return TaskStateQueued
	}
}

// TaskProgress carries the scheduler-owned columns of a task.
type TaskProgress struct {
	StartTime *time.Time
	EndTime   *time.Time
	EndBits   int
	EndText   string
}
