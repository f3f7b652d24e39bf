package batch

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"promptbatch/jobqueue"
	"promptbatch/logging"
	"promptbatch/prompt"
	"promptbatch/wildcard"
)

// Plan is a fully resolved batch, ready to enqueue.
type Plan struct {
	BatchID string
	Name    string
	Seed    int64 // resolution seed
	Items   []jobqueue.Item
	JobIDs  []int64 // set once enqueued
}

// Planner resolves batch specs and enqueues them.
type Planner struct {
	builder *prompt.Builder
	queue   *jobqueue.Queue
	policy  wildcard.VariantPolicy
	logger  *logging.Logger
	newID   func() string
	random  func() int64
}

// PlannerOption configures a Planner.
type PlannerOption func(*Planner)

// WithDefaultPolicy sets the variant policy for specs that do not name
// one.
func WithDefaultPolicy(p wildcard.VariantPolicy) PlannerOption {
	return func(pl *Planner) { pl.policy = p }
}

// WithPlannerLogger sets the logger.
func WithPlannerLogger(l *logging.Logger) PlannerOption {
	return func(pl *Planner) {
		if l != nil {
			pl.logger = l.Named("planner")
		}
	}
}

// WithIDSource replaces uuid batch ids, mainly for tests.
func WithIDSource(fn func() string) PlannerOption {
	return func(pl *Planner) { pl.newID = fn }
}

// WithRandomSource replaces RandomSeed, mainly for tests.
func WithRandomSource(fn func() int64) PlannerOption {
	return func(pl *Planner) { pl.random = fn }
}

// NewPlanner creates a Planner. queue may be nil when only Prepare is
// used.
func NewPlanner(builder *prompt.Builder, queue *jobqueue.Queue, opts ...PlannerOption) *Planner {
	p := &Planner{
		builder: builder,
		queue:   queue,
		logger:  logging.NewNop(),
		newID:   uuid.NewString,
		random:  RandomSeed,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Prepare resolves every prompt of spec. Nothing is enqueued.
func (p *Planner) Prepare(spec Spec) (*Plan, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	tpl := spec.Template()
	if err := p.builder.Validate(tpl); err != nil {
		return nil, fmt.Errorf("batch %q: %w", spec.Name, err)
	}

	seed := p.random()
	if spec.Seed != nil && *spec.Seed >= 0 {
		seed = *spec.Seed
	}

	var prompts []prompt.Resolved
	if spec.Combinatorial {
		var opts []prompt.AllOption
		if spec.MaxCombinations > 0 {
			opts = append(opts, prompt.WithLimit(spec.MaxCombinations))
		}
		all, err := p.builder.BuildAll(tpl, opts...)
		if err != nil {
			return nil, fmt.Errorf("batch %q: %w", spec.Name, err)
		}
		for r := range all.All() {
			if spec.Count > 0 && len(prompts) == spec.Count {
				break
			}
			prompts = append(prompts, r)
		}
	} else {
		count := spec.Count
		if count == 0 {
			count = 1
		}
		rc := wildcard.NewContext(seed, wildcard.WithVariantPolicy(spec.policy(p.policy)))
		built, err := p.builder.Build(tpl, count, rc)
		if err != nil {
			return nil, fmt.Errorf("batch %q: %w", spec.Name, err)
		}
		prompts = built
	}

	base := int64(-1)
	if spec.Seed != nil {
		base = *spec.Seed
	}
	seeds := Seeds(spec.SeedMode, base, len(prompts), p.random)
	params := spec.Parameters.WithDefaults()

	plan := &Plan{
		BatchID: p.newID(),
		Name:    spec.Name,
		Seed:    seed,
		Items:   make([]jobqueue.Item, len(prompts)),
	}
	for i, r := range prompts {
		plan.Items[i] = jobqueue.Item{Prompt: r, Parameters: params.WithSeed(seeds[i])}
	}
	return plan, nil
}

// Enqueue adds every item of plan to the queue in one step, so either
// the whole batch is queued or none of it is.
func (p *Planner) Enqueue(plan *Plan) error {
	if p.queue == nil {
		return fmt.Errorf("batch %q: planner has no queue", plan.Name)
	}
	ids, err := p.queue.EnqueueBatch(plan.BatchID, plan.Items)
	if err != nil {
		return fmt.Errorf("batch %q: %w", plan.Name, err)
	}
	plan.JobIDs = ids
	p.logger.Info("batch enqueued",
		zap.String(logging.KeyBatchID, plan.BatchID),
		zap.String("name", plan.Name),
		zap.Int("jobs", len(ids)),
		zap.Int64("seed", plan.Seed))
	return nil
}

// Plan prepares and enqueues spec.
func (p *Planner) Plan(spec Spec) (*Plan, error) {
	plan, err := p.Prepare(spec)
	if err != nil {
		return nil, err
	}
	if err := p.Enqueue(plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// PlanAll prepares every spec before enqueueing any, so a resolution
// error in a later batch leaves the queue untouched.
func (p *Planner) PlanAll(specs []Spec) ([]*Plan, error) {
	plans := make([]*Plan, 0, len(specs))
	for _, s := range specs {
		plan, err := p.Prepare(s)
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}
	for _, plan := range plans {
		if err := p.Enqueue(plan); err != nil {
			return plans, err
		}
	}
	return plans, nil
}
