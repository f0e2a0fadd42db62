package model

import (
	"net/url"
	"strconv"
	"time"
)

// Response is the envelope every agentq API answer is wrapped in.
type Response struct {
	Status     string      `json:"status"`
	RequestID  string      `json:"request_id"`
	Timestamp  time.Time   `json:"timestamp"`
	Data       any         `json:"data"`
	Pagination *Pagination `json:"pagination,omitempty"`
	Error      *APIError   `json:"error"`
}

// Pagination describes the window of a job or upload listing.
type Pagination struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

// NewPagination describes the page opts selected out of total rows.
func NewPagination(opts ListOptions, total int) *Pagination {
	return &Pagination{
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
		HasMore: opts.Offset+opts.Limit < total,
	}
}

// Listing limits.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// ListOptions selects a page of uploads or jobs, newest first.
type ListOptions struct {
	Limit  int
	Offset int
	UserID int64 // owner filter; 0 lists every user's rows
}

// DefaultListOptions returns the first page with the default limit.
func DefaultListOptions() ListOptions {
	return ListOptions{Limit: DefaultListLimit}
}

// ListOptionsFromQuery reads limit, offset and user_id. Missing or
// malformed values keep their defaults and the result is clamped.
func ListOptionsFromQuery(q url.Values) ListOptions {
	opts := DefaultListOptions()
	if v, err := strconv.Atoi(q.Get("limit")); err == nil {
		opts.Limit = v
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil {
		opts.Offset = v
	}
	if v, err := strconv.ParseInt(q.Get("user_id"), 10, 64); err == nil && v > 0 {
		opts.UserID = v
	}
	opts.Clamp()
	return opts
}

// Clamp keeps Limit within 1..MaxListLimit and Offset non-negative.
func (o *ListOptions) Clamp() {
	if o.Limit <= 0 {
		o.Limit = DefaultListLimit
	}
	if o.Limit > MaxListLimit {
		o.Limit = MaxListLimit
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
}
