package sequence

import (
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// Runner timing.
const (
	JoinTimeout = time.Second
	SleepChunk  = 50 * time.Millisecond
)

// Handle is given to a running loop. Its stop signal belongs to that run
// only, so a loop abandoned after a join timeout never observes a later run.
type Handle struct {
	stop <-chan struct{}
}

// Stopped reports whether a stop was requested.
func (h Handle) Stopped() bool {
	select {
	case <-h.stop:
		return true
	default:
		return false
	}
}

// Sleep waits for d in chunks of at most SleepChunk and returns false as
// soon as a stop is requested.
func (h Handle) Sleep(d time.Duration) bool {
	for d > 0 {
		chunk := min(d, SleepChunk)
		select {
		case <-h.stop:
			return false
		case <-time.After(chunk):
		}
		d -= chunk
	}
	return !h.Stopped()
}

// Runner owns one background loop with a cooperative stop.
type Runner struct {
	name   string
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewRunner creates a runner. The name is used in logs.
func NewRunner(name string, logger *slog.Logger) *Runner {
	return &Runner{name: name, logger: logger}
}

// Start runs loop in a new goroutine. It returns false without doing
// anything when the runner is already running.
func (r *Runner) Start(loop func(Handle)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return false
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	r.stop, r.done, r.running = stop, done, true

	go func() {
		defer close(done)
		defer r.finished(done)
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("sequence loop panicked", "sequence", r.name, "panic", rec, "stack", string(debug.Stack()))
			}
		}()
		loop(Handle{stop: stop})
	}()
	return true
}

// Stop signals the loop and waits up to JoinTimeout for it to exit.
// A loop that does not exit in time is abandoned and logged.
// Stopping a stopped runner is a no-op.
func (r *Runner) Stop() bool {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return false
	}
	stop, done := r.stop, r.done
	r.running = false
	r.mu.Unlock()

	close(stop)

	select {
	case <-done:
	case <-time.After(JoinTimeout):
		r.logger.Warn("sequence did not stop in time, abandoning", "sequence", r.name, "timeout", JoinTimeout)
	}
	return true
}

// finished marks the runner idle when the run that owns done returned on
// its own. A stopped or superseded run leaves the state alone.
func (r *Runner) finished(done chan struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done == done && r.running {
		r.running = false
		r.logger.Debug("sequence loop returned", "sequence", r.name)
	}
}

// Running reports whether a loop is running. It turns false after Stop or
// once the loop returns on its own.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}
