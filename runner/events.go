package runner

import (
	"time"

	"promptbatch/jobqueue"
)

// ProgressEvent reports a job state change.
type ProgressEvent struct {
	JobID      int64
	BatchID    string
	Status     jobqueue.Status
	RetryCount int

	// Index counts jobs that reached a terminal state during this run,
	// including this one. It is zero for non-terminal events.
	Index int
	// Total is the number of jobs the queue has accepted.
	Total int
	// Elapsed is the time since Run started.
	Elapsed time.Duration

	// Error and ErrorCode describe the failure behind a retry or a failed
	// job.
	Error     string
	ErrorCode string

	// Result is set on completion.
	Result *jobqueue.Result
}

// Terminal reports whether the event ends the job.
func (e ProgressEvent) Terminal() bool {
	return e.Status.IsTerminal()
}

// Observer receives progress events. Events are delivered synchronously
// from worker goroutines, so implementations must be safe for concurrent
// use and should return quickly.
type Observer interface {
	OnProgress(ev ProgressEvent)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ev ProgressEvent)

// OnProgress calls f.
func (f ObserverFunc) OnProgress(ev ProgressEvent) {
	f(ev)
}

// Observers fans events out to several observers in order. Nil entries
// are skipped.
func Observers(obs ...Observer) Observer {
	var list multiObserver
	for _, o := range obs {
		if o != nil {
			list = append(list, o)
		}
	}
	return list
}

type multiObserver []Observer

func (m multiObserver) OnProgress(ev ProgressEvent) {
	for _, o := range m {
		o.OnProgress(ev)
	}
}
