package runner

import (
	"context"

	"promptbatch/jobqueue"
	"promptbatch/prompt"
)

// Submission is one attempt at a job, as sent to the generation service.
type Submission struct {
	JobID      int64
	BatchID    string
	Attempt    int // 1 for the first try
	Prompt     prompt.Resolved
	Parameters jobqueue.Parameters
}

// Client submits jobs to an image generation service.
//
// Submit must honour ctx: the runner cancels it on timeout, on job
// cancellation and on shutdown. Errors are classified with Classify;
// return a *ServiceError to control retry behaviour explicitly.
type Client interface {
	Submit(ctx context.Context, s Submission) (*jobqueue.Result, error)
}

// Canceler is implemented by clients that can interrupt work already
// running on the service side.
type Canceler interface {
	Cancel(ctx context.Context, jobID int64) error
}

// ClientFunc adapts a function to the Client interface.
type ClientFunc func(ctx context.Context, s Submission) (*jobqueue.Result, error)

// Submit calls f.
func (f ClientFunc) Submit(ctx context.Context, s Submission) (*jobqueue.Result, error) {
	return f(ctx, s)
}
