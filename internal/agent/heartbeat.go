package agent

import (
	"sync/atomic"
	"time"
)

// Heartbeat holds the counters reported to the scheduler. The dispatch loop
// records work and the ticker goroutine takes snapshots; both sides only
// touch atomics.
type Heartbeat struct {
	processed atomic.Int64
	alive     atomic.Bool
}

// RecordProcessed adds n finished units and marks the agent alive. It is
// called after every dispatch iteration, with n = 0 for ignored lines.
func (h *Heartbeat) RecordProcessed(n int64) {
	if n > 0 {
		h.processed.Add(n)
	}
	h.alive.Store(true)
}

// Tick returns the cumulative processed count and whether the agent did
// anything since the previous tick, and clears the liveness flag.
func (h *Heartbeat) Tick() (processed int64, alive bool) {
	return h.processed.Load(), h.alive.Swap(false)
}

// Processed returns the cumulative processed count.
func (h *Heartbeat) Processed() int64 {
	return h.processed.Load()
}

// startHeartbeat writes a HEART line every interval until the returned stop
// function is called. stop waits for the goroutine to exit so no heartbeat
// can follow the BYE line.
func startHeartbeat(h *Heartbeat, w *lineWriter, interval time.Duration) (stop func()) {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	exited := make(chan struct{})

	go func() {
		defer close(exited)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				w.Heart(h.Tick())
			}
		}
	}()

	return func() {
		close(done)
		<-exited
	}
}
