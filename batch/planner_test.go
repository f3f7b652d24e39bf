package batch

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"promptbatch/jobqueue"
	"promptbatch/logging"
	"promptbatch/prompt"
	"promptbatch/wildcard"
)

func newTestPlanner(t *testing.T, q *jobqueue.Queue, opts ...PlannerOption) *Planner {
	t.Helper()
	store, err := wildcard.NewStore(
		wildcard.NewList("color", []string{"red", "green", "blue"}),
		wildcard.NewList("animal", []string{"fox", "owl"}),
	)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	ids := 0
	base := []PlannerOption{
		WithIDSource(func() string {
			ids++
			return fmt.Sprintf("batch-%d", ids)
		}),
		WithRandomSource(counter(1000)),
	}
	return NewPlanner(prompt.NewBuilder(wildcard.NewResolver(store)), q, append(base, opts...)...)
}

func seed(n int64) *int64 { return &n }

func TestPlan_RandomDraws(t *testing.T) {
	q := jobqueue.New()
	p := newTestPlanner(t, q)

	plan, err := p.Plan(Spec{
		Name:           "foxes",
		Prompt:         "a __color__ __animal__",
		NegativePrompt: "blurry",
		Count:          5,
		Seed:           seed(40),
		SeedMode:       SeedIncrement,
		Parameters:     jobqueue.Parameters{Steps: 12},
	})
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if plan.BatchID != "batch-1" || plan.Seed != 40 {
		t.Errorf("plan = %+v", plan)
	}
	if len(plan.JobIDs) != 5 {
		t.Fatalf("JobIDs = %v, want 5 ids", plan.JobIDs)
	}

	jobs := q.Batch(plan.BatchID)
	if len(jobs) != 5 {
		t.Fatalf("queue batch has %d jobs, want 5", len(jobs))
	}
	for i, j := range jobs {
		if j.BatchIndex != i {
			t.Errorf("job %d BatchIndex = %d", i, j.BatchIndex)
		}
		if j.Parameters.Seed != 40+int64(i) {
			t.Errorf("job %d seed = %d, want %d", i, j.Parameters.Seed, 40+i)
		}
		if j.Parameters.Steps != 12 || j.Parameters.Width != jobqueue.DefaultWidth {
			t.Errorf("job %d parameters = %+v", i, j.Parameters)
		}
		if strings.Contains(j.Prompt.Prompt, "__") || j.Prompt.NegativePrompt != "blurry" {
			t.Errorf("job %d prompt = %+v", i, j.Prompt)
		}
	}
}

func TestPrepare_Reproducible(t *testing.T) {
	p := newTestPlanner(t, nil)
	spec := Spec{Prompt: "__color__ {a|b|c} __animal__", Count: 8, Seed: seed(3)}

	first, err := p.Prepare(spec)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	second, err := p.Prepare(spec)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	for i := range first.Items {
		if first.Items[i].Prompt != second.Items[i].Prompt {
			t.Errorf("item %d differs: %q vs %q", i, first.Items[i].Prompt, second.Items[i].Prompt)
		}
	}
}

func TestPrepare_DefaultCountAndRandomSeed(t *testing.T) {
	p := newTestPlanner(t, nil)
	plan, err := p.Prepare(Spec{Prompt: "__animal__"})
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if len(plan.Items) != 1 {
		t.Fatalf("Items = %d, want 1", len(plan.Items))
	}
	if plan.Seed != 1001 {
		t.Errorf("Seed = %d, want first random value", plan.Seed)
	}
	if plan.JobIDs != nil {
		t.Errorf("Prepare() set JobIDs = %v", plan.JobIDs)
	}
}

func TestPrepare_Combinatorial(t *testing.T) {
	p := newTestPlanner(t, nil)

	tests := []struct {
		name string
		spec Spec
		want int
	}{
		{"all", Spec{Prompt: "__color__ __animal__", Combinatorial: true}, 6},
		{"count caps", Spec{Prompt: "__color__ __animal__", Combinatorial: true, Count: 4}, 4},
		{"with negatives", Spec{Prompt: "__animal__", NegativePrompt: "{dark|bright}", Combinatorial: true}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := p.Prepare(tt.spec)
			if err != nil {
				t.Fatalf("Prepare() error = %v", err)
			}
			if len(plan.Items) != tt.want {
				t.Fatalf("Items = %d, want %d", len(plan.Items), tt.want)
			}
			seen := map[prompt.Resolved]bool{}
			for _, it := range plan.Items {
				if seen[it.Prompt] {
					t.Errorf("duplicate combination %+v", it.Prompt)
				}
				seen[it.Prompt] = true
			}
		})
	}
}

func TestPrepare_CombinationLimit(t *testing.T) {
	p := newTestPlanner(t, nil)
	_, err := p.Prepare(Spec{Prompt: "__color__ __animal__", Combinatorial: true, MaxCombinations: 5})
	if !errors.Is(err, wildcard.ErrCombinatorialLimit) {
		t.Errorf("Prepare() error = %v, want ErrCombinatorialLimit", err)
	}
}

func TestPlan_ResolutionErrorEnqueuesNothing(t *testing.T) {
	q := jobqueue.New()
	p := newTestPlanner(t, q)

	_, err := p.Plan(Spec{Name: "broken", Prompt: "a __missing__", Count: 3})
	if !errors.Is(err, wildcard.ErrWildcardNotFound) {
		t.Fatalf("Plan() error = %v, want ErrWildcardNotFound", err)
	}
	if got := q.Stats().Enqueued; got != 0 {
		t.Errorf("Enqueued = %d, want 0", got)
	}
}

func TestPlanAll_PreparesBeforeEnqueueing(t *testing.T) {
	q := jobqueue.New()
	p := newTestPlanner(t, q)

	_, err := p.PlanAll([]Spec{
		{Name: "ok", Prompt: "__animal__", Count: 2},
		{Name: "bad", Prompt: "{a|b", Count: 2},
	})
	if err == nil {
		t.Fatal("PlanAll() error = nil")
	}
	if got := q.Stats().Enqueued; got != 0 {
		t.Errorf("Enqueued = %d, want 0", got)
	}

	plans, err := p.PlanAll([]Spec{
		{Name: "one", Prompt: "__animal__", Count: 2},
		{Name: "two", Prompt: "__color__", Count: 3},
	})
	if err != nil {
		t.Fatalf("PlanAll() error = %v", err)
	}
	if len(plans) != 2 || q.Stats().Enqueued != 5 {
		t.Errorf("plans = %d, enqueued = %d", len(plans), q.Stats().Enqueued)
	}
	if plans[0].BatchID == plans[1].BatchID {
		t.Error("batches share an id")
	}
}

func TestEnqueue_Errors(t *testing.T) {
	p := newTestPlanner(t, nil)
	plan, err := p.Prepare(Spec{Prompt: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Enqueue(plan); err == nil {
		t.Error("Enqueue() without a queue: error = nil")
	}

	q := jobqueue.New()
	q.Close()
	p = newTestPlanner(t, q)
	if _, err := p.Plan(Spec{Prompt: "x"}); !errors.Is(err, jobqueue.ErrQueueClosed) {
		t.Errorf("Plan() on closed queue error = %v", err)
	}
}

func TestPlan_LogsBatch(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	p := newTestPlanner(t, jobqueue.New(), WithPlannerLogger(logging.NewFromZap(zap.New(core))))

	if _, err := p.Plan(Spec{Name: "owls", Prompt: "__animal__", Count: 2}); err != nil {
		t.Fatal(err)
	}
	entries := logs.FilterMessage("batch enqueued").All()
	if len(entries) != 1 {
		t.Fatalf("got %d log entries, want 1", len(entries))
	}
	ctx := entries[0].ContextMap()
	if ctx["name"] != "owls" || ctx["jobs"] != int64(2) {
		t.Errorf("log context = %v", ctx)
	}
}
