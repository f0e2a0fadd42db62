// Package scheduler talks to the external job scheduler over its line-based
// command socket.
package scheduler

import "context"

// Notifier tells the scheduler that the job queue changed and should be
// re-read.
type Notifier interface {
	NotifyQueueChanged(ctx context.Context) error
}

// Nop is a Notifier for deployments without a scheduler.
type Nop struct{}

// NotifyQueueChanged does nothing.
func (Nop) NotifyQueueChanged(context.Context) error { return nil }
