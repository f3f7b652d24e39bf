package imagegen

import (
	"context"
	"time"

	"promptbatch/imagegen/sd"
	"promptbatch/jobqueue"
	"promptbatch/runner"
)

// SDProvider adapts a local sd.Client to runner.Client.
type SDProvider struct {
	client sd.Client
}

var _ runner.Client = (*SDProvider)(nil)

// NewSDProvider wraps client.
func NewSDProvider(client sd.Client) *SDProvider {
	return &SDProvider{client: client}
}

// Close releases the local runtime.
func (p *SDProvider) Close() error {
	return p.client.Close()
}

// SDRequest maps a submission onto a local generation request.
func SDRequest(s runner.Submission) (sd.GenerationRequest, error) {
	params := s.Parameters.WithDefaults()
	method, err := sd.ParseSampleMethod(params.Sampler)
	if err != nil {
		return sd.GenerationRequest{}, err
	}
	req := sd.DefaultRequest()
	req.Prompt = s.Prompt.Prompt
	req.NegativePrompt = s.Prompt.NegativePrompt
	req.Width = params.Width
	req.Height = params.Height
	req.Steps = params.Steps
	req.CFGScale = params.CFGScale
	req.Seed = params.Seed
	req.SampleMethod = method
	if params.ClipSkip > 0 {
		req.ClipSkip = params.ClipSkip
	}
	return req, nil
}

// Submit generates one image locally.
func (p *SDProvider) Submit(ctx context.Context, s runner.Submission) (*jobqueue.Result, error) {
	start := time.Now()
	req, err := SDRequest(s)
	if err != nil {
		return nil, runner.NewPermanent(runner.CodeBadRequest, err.Error(), err)
	}
	resp, err := p.client.Generate(ctx, req)
	if err != nil {
		// sd.GenerationError carries IsRetryable and ErrorCode, which
		// runner.Classify understands.
		return nil, err
	}
	if resp == nil || !resp.IsValid() {
		return nil, runner.NewPermanent(runner.CodeInternal, "local runtime returned no image", nil)
	}
	img, err := InspectImage(resp.ImageData)
	if err != nil {
		return nil, runner.NewPermanent(runner.CodeInternal, "unreadable image", err)
	}
	took := resp.Duration
	if took == 0 {
		took = time.Since(start)
	}
	return &jobqueue.Result{
		Images:   []jobqueue.Image{img},
		Seed:     resp.Seed,
		Backend:  "sd",
		Duration: took,
	}, nil
}
