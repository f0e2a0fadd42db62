package model

import "time"

// Upload modes. Uploads from a local file and from the server share a mode.
const (
	UploadModeURL  = 1 << 2
	UploadModeFile = 1 << 3
)

// Upload is the unit of content an agent analyzes. The queue subsystem never
// mutates an upload after it is created.
type Upload struct {
	ID          int64     `json:"id"`
	Filename    string    `json:"filename"`
	Description string    `json:"description"`
	Mode        int       `json:"mode"`
	Origin      string    `json:"origin"`
	FolderID    int64     `json:"folder_id"`
	UserID      int64     `json:"user_id"`
	CreatedAt   time.Time `json:"created_at"`
}
