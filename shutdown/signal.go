package shutdown

import (
	"os"
	"sync"
	"syscall"

	"promptbatch/core"
)

// SignalCounter implements "first signal drains, second signal forces".
// It remembers the first signal so the process can exit with the matching
// code.
type SignalCounter struct {
	mu         sync.Mutex
	count      int
	first      os.Signal
	forceAfter int
	onForce    func()
}

// NewSignalCounter calls onForce (may be nil) once forceAfter signals have
// been received.
func NewSignalCounter(forceAfter int, onForce func()) *SignalCounter {
	return &SignalCounter{forceAfter: forceAfter, onForce: onForce}
}

// Record counts sig and returns the new count. onForce runs under the lock.
func (s *SignalCounter) Record(sig os.Signal) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.count++
	if s.count == 1 {
		s.first = sig
	}
	if s.count >= s.forceAfter && s.onForce != nil {
		s.onForce()
	}
	return s.count
}

// Count returns the number of signals received.
func (s *SignalCounter) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// ExitCode maps the first signal to 130 (SIGINT) or 143 (SIGTERM). It
// returns core.ExitCodeSuccess when no signal was received.
func (s *SignalCounter) ExitCode() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SignalExitCode(s.first)
}

// SignalExitCode maps a signal to its conventional exit code.
func SignalExitCode(sig os.Signal) int {
	switch sig {
	case nil:
		return core.ExitCodeSuccess
	case os.Interrupt:
		return core.ExitCodeSIGINT
	case syscall.SIGTERM:
		return core.ExitCodeSIGTERM
	default:
		return core.ExitCodeError
	}
}
