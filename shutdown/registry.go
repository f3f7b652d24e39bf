package shutdown

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"promptbatch/core"
)

// Priority bands for Register. Lower runs first.
const (
	PriorityStopWork = 10 // stop runners, cancel in-flight jobs
	PriorityFlush    = 20 // drain async writers, write summaries
	PriorityClose    = 30 // close databases and files
	PriorityFinal    = 40 // temp file cleanup, log sync
)

type shutdownEntry struct {
	name     string
	fn       core.ShutdownFunc
	priority int
	seq      int
}

// ShutdownRegistry holds cleanup functions ordered by priority, then by
// registration order.
type ShutdownRegistry struct {
	mu      sync.Mutex
	entries []shutdownEntry
	closed  bool
}

// NewShutdownRegistry creates an empty registry.
func NewShutdownRegistry() *ShutdownRegistry {
	return &ShutdownRegistry{}
}

// Register adds fn under name. Registration after Shutdown is a no-op.
func (r *ShutdownRegistry) Register(name string, priority int, fn core.ShutdownFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.entries = append(r.entries, shutdownEntry{
		name:     name,
		fn:       fn,
		priority: priority,
		seq:      len(r.entries),
	})
}

// Shutdown runs every function in order, even after failures, and returns
// the failures prefixed with the handler name. Only the first call runs
// anything.
func (r *ShutdownRegistry) Shutdown(ctx context.Context) []error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	sorted := r.sortedLocked()
	r.mu.Unlock()

	var errs []error
	for _, entry := range sorted {
		if err := entry.fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", entry.name, err))
		}
	}
	return errs
}

// Names returns handler names in execution order.
func (r *ShutdownRegistry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	sorted := r.sortedLocked()
	names := make([]string, len(sorted))
	for i, entry := range sorted {
		names[i] = entry.name
	}
	return names
}

// Count returns the number of registered functions.
func (r *ShutdownRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// IsClosed reports whether Shutdown has been called.
func (r *ShutdownRegistry) IsClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *ShutdownRegistry) sortedLocked() []shutdownEntry {
	sorted := slices.Clone(r.entries)
	slices.SortFunc(sorted, func(a, b shutdownEntry) int {
		if a.priority != b.priority {
			return a.priority - b.priority
		}
		return a.seq - b.seq
	})
	return sorted
}
