package model

import "time"

// Job groups the tasks triggered together, e.g. "analyze this upload".
type Job struct {
	ID          int64     `json:"id"`
	OwnerUserID int64     `json:"owner_user_id"`
	UploadID    *int64    `json:"upload_id,omitempty"`
	Name        string    `json:"name"`
	Priority    int       `json:"priority"`
	QueuedTime  time.Time `json:"queued_time"`
}

// JobStatus is a job together with its tasks, as rendered on status pages.
type JobStatus struct {
	Job   *Job    `json:"job"`
	Tasks []*Task `json:"tasks"`
}
