package imagegen

import (
	"context"
	"time"

	"promptbatch/jobqueue"
	"promptbatch/runner"
)

// NullProvider renders a flat placeholder image for every job. It needs
// no service and is used for dry runs and tests.
type NullProvider struct {
	delay time.Duration
}

var _ runner.Client = (*NullProvider)(nil)

// NewNullProvider creates a NullProvider that waits delay per job.
func NewNullProvider(delay time.Duration) *NullProvider {
	return &NullProvider{delay: delay}
}

// Submit returns one placeholder image at the requested size.
func (p *NullProvider) Submit(ctx context.Context, s runner.Submission) (*jobqueue.Result, error) {
	start := time.Now()
	if p.delay > 0 {
		t := time.NewTimer(p.delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	params := s.Parameters.WithDefaults()
	seed := params.Seed
	if seed < 0 {
		seed = s.JobID
	}
	data, err := PlaceholderPNG(params.Width, params.Height, seed)
	if err != nil {
		return nil, runner.NewPermanent(runner.CodeBadRequest, err.Error(), err)
	}
	return &jobqueue.Result{
		Images:   []jobqueue.Image{{Data: data, Format: "png", Width: params.Width, Height: params.Height}},
		Seed:     seed,
		Backend:  "null",
		Duration: time.Since(start),
	}, nil
}
