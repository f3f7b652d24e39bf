package jobqueue

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"promptbatch/prompt"
)

func rp(s string) prompt.Resolved {
	return prompt.Resolved{Prompt: s}
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestQueue_FIFO(t *testing.T) {
	q := New()
	for _, p := range []string{"a", "b", "c"} {
		if _, err := q.Enqueue(rp(p), DefaultParameters()); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}

	for _, want := range []string{"a", "b", "c"} {
		j, ok := q.Dequeue()
		if !ok {
			t.Fatalf("Dequeue() returned nothing, want %q", want)
		}
		if j.Prompt.Prompt != want {
			t.Errorf("Dequeue() = %q, want %q", j.Prompt.Prompt, want)
		}
		if j.Status != StatusRunning || j.StartedAt == nil {
			t.Errorf("dequeued job status = %s, startedAt = %v", j.Status, j.StartedAt)
		}
	}
	if _, ok := q.Dequeue(); ok {
		t.Error("Dequeue() on empty queue returned a job")
	}
}

func TestQueue_Lifecycle(t *testing.T) {
	q := New()
	id, _ := q.Enqueue(rp("x"), DefaultParameters())

	if j, ok := q.Peek(); !ok || j.ID != id || j.Status != StatusQueued {
		t.Fatalf("Peek() = %+v, %v", j, ok)
	}
	q.Dequeue()

	res := &Result{Seed: 9, Images: []Image{{Format: "png", Data: []byte{1}}}}
	if err := q.Complete(id, res); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	j, err := q.Get(id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if j.Status != StatusCompleted || j.FinishedAt == nil || j.Result == nil || j.Result.Seed != 9 {
		t.Errorf("completed job = %+v", j)
	}

	if err := q.Fail(id, "X", "late"); !errors.Is(err, ErrJobTerminal) {
		t.Errorf("Fail() on completed job error = %v, want ErrJobTerminal", err)
	}
	if err := q.Cancel(id); err != nil {
		t.Errorf("Cancel() on completed job error = %v, want nil", err)
	}
	if j, _ := q.Get(id); j.Status != StatusCompleted {
		t.Errorf("terminal job changed to %s", j.Status)
	}
}

func TestQueue_InvalidTransitions(t *testing.T) {
	q := New()
	id, _ := q.Enqueue(rp("x"), DefaultParameters())

	if err := q.Complete(id, nil); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Complete() on queued job error = %v, want ErrInvalidTransition", err)
	}
	if err := q.Retry(id, time.Now(), "", ""); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Retry() on queued job error = %v, want ErrInvalidTransition", err)
	}
	if err := q.Complete(999, nil); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Complete() on unknown job error = %v, want ErrJobNotFound", err)
	}
}

func TestQueue_NotFound(t *testing.T) {
	q := New()
	if _, err := q.Get(1); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Get() error = %v, want ErrJobNotFound", err)
	}
	if err := q.Cancel(1); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Cancel() error = %v, want ErrJobNotFound", err)
	}
	if err := q.Remove(1); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Remove() error = %v, want ErrJobNotFound", err)
	}
}

func TestQueue_CancelQueued(t *testing.T) {
	q := New()
	a, _ := q.Enqueue(rp("a"), DefaultParameters())
	b, _ := q.Enqueue(rp("b"), DefaultParameters())

	if err := q.Cancel(a); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	j, ok := q.Dequeue()
	if !ok || j.ID != b {
		t.Errorf("Dequeue() after cancel = %d, want %d", j.ID, b)
	}
	if j, _ := q.Get(a); j.Status != StatusCancelled {
		t.Errorf("cancelled job status = %s", j.Status)
	}
}

func TestQueue_CancelCallsHooks(t *testing.T) {
	q := New()
	var (
		got     []int64
		running []bool
	)
	q.OnCancel(func(j Job, wasRunning bool) {
		got = append(got, j.ID)
		running = append(running, wasRunning)
		if j.Status != StatusCancelled {
			t.Errorf("hook saw job %d as %s, want cancelled", j.ID, j.Status)
		}
	})

	id, _ := q.Enqueue(rp("a"), DefaultParameters())
	queued, _ := q.Enqueue(rp("b"), DefaultParameters())
	q.Dequeue()

	q.Cancel(queued)
	q.Cancel(id)

	if len(got) != 2 || got[0] != queued || got[1] != id {
		t.Fatalf("cancel hooks called for %v, want [%d %d]", got, queued, id)
	}
	if running[0] || !running[1] {
		t.Errorf("wasRunning = %v, want [false true]", running)
	}
	q.Cancel(id)
	if len(got) != 2 {
		t.Errorf("cancelling a terminal job called the hooks again: %v", got)
	}
	if err := q.Complete(id, &Result{}); !errors.Is(err, ErrJobTerminal) {
		t.Errorf("Complete() after cancel error = %v, want ErrJobTerminal", err)
	}
	if !q.Idle() {
		t.Error("Idle() = false after every job was cancelled")
	}
}

func TestQueue_RetryWaitsForBackoff(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1000, 0)}
	q := New(WithClock(clk.Now))

	a, _ := q.Enqueue(rp("a"), DefaultParameters())
	b, _ := q.Enqueue(rp("b"), DefaultParameters())
	q.Dequeue()

	if err := q.Retry(a, clk.Now().Add(2*time.Second), "TIMEOUT", "timed out"); err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	j, _ := q.Get(a)
	if j.Status != StatusQueued || j.RetryCount != 1 || j.ErrorCode != "TIMEOUT" {
		t.Errorf("retried job = %+v", j)
	}

	next, ok := q.Dequeue()
	if !ok || next.ID != b {
		t.Fatalf("Dequeue() = %d, want %d while %d backs off", next.ID, b, a)
	}
	if _, ok := q.Dequeue(); ok {
		t.Fatal("Dequeue() dispatched a job still in backoff")
	}

	clk.Advance(2 * time.Second)
	next, ok = q.Dequeue()
	if !ok || next.ID != a {
		t.Errorf("Dequeue() after backoff = %d, %v; want %d", next.ID, ok, a)
	}
}

func TestQueue_ReleaseKeepsRetryCount(t *testing.T) {
	q := New()
	id, _ := q.Enqueue(rp("a"), DefaultParameters())
	q.Dequeue()
	if err := q.Release(id); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	j, _ := q.Get(id)
	if j.Status != StatusQueued || j.RetryCount != 0 {
		t.Errorf("released job = %s retry %d, want queued retry 0", j.Status, j.RetryCount)
	}
}

func TestQueue_EnqueueBatch(t *testing.T) {
	q := New()
	ids, err := q.EnqueueBatch("b1", []Item{
		{Prompt: rp("x"), Parameters: DefaultParameters()},
		{Prompt: rp("y"), Parameters: DefaultParameters()},
	})
	if err != nil {
		t.Fatalf("EnqueueBatch() error = %v", err)
	}
	if len(ids) != 2 || ids[1] != ids[0]+1 {
		t.Errorf("ids = %v, want consecutive", ids)
	}
	jobs := q.Batch("b1")
	if len(jobs) != 2 || jobs[1].BatchIndex != 1 {
		t.Errorf("Batch() = %+v", jobs)
	}

	q.Close()
	if _, err := q.EnqueueBatch("b2", []Item{{Prompt: rp("z")}}); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("EnqueueBatch() after Close error = %v, want ErrQueueClosed", err)
	}
	if got := len(q.List()); got != 2 {
		t.Errorf("List() has %d jobs after rejected batch, want 2", got)
	}
}

func TestQueue_RemoveAndStats(t *testing.T) {
	q := New()
	a, _ := q.Enqueue(rp("a"), DefaultParameters())
	q.Enqueue(rp("b"), DefaultParameters())
	q.Dequeue()

	if err := q.Remove(a); !errors.Is(err, ErrJobActive) {
		t.Errorf("Remove() on running job error = %v, want ErrJobActive", err)
	}
	q.Fail(a, "BAD", "nope")
	if err := q.Remove(a); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := q.Get(a); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Get() after Remove error = %v", err)
	}

	want := Stats{Queued: 1, Failed: 1, Enqueued: 2}
	if got := q.Stats(); got != want {
		t.Errorf("Stats() = %+v, want %+v", got, want)
	}
}

func TestQueue_SnapshotsAreCopies(t *testing.T) {
	q := New()
	params := DefaultParameters()
	params.Extras = map[string]string{"k": "v"}
	id, _ := q.Enqueue(rp("a"), params)

	params.Extras["k"] = "changed"
	j, _ := q.Get(id)
	j.Parameters.Extras["k"] = "changed again"
	j.Status = StatusFailed

	j, _ = q.Get(id)
	if j.Parameters.Extras["k"] != "v" || j.Status != StatusQueued {
		t.Errorf("stored job mutated through a copy: %+v", j)
	}
}

func TestQueue_ConcurrentEnqueueDistinctIDs(t *testing.T) {
	const producers, perProducer = 8, 250
	q := New()

	var wg sync.WaitGroup
	ids := make(chan int64, producers*perProducer)
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				id, err := q.Enqueue(rp("x"), DefaultParameters())
				if err != nil {
					t.Error(err)
					return
				}
				ids <- id
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool)
	for id := range ids {
		if seen[id] {
			t.Fatalf("id %d issued twice", id)
		}
		seen[id] = true
	}
	if len(seen) != producers*perProducer {
		t.Errorf("got %d ids, want %d", len(seen), producers*perProducer)
	}
}

func TestQueue_NextBlocksUntilEnqueue(t *testing.T) {
	q := New()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan Job, 1)
	go func() {
		j, err := q.Next(ctx)
		if err != nil {
			t.Error(err)
		}
		got <- j
	}()

	time.Sleep(20 * time.Millisecond)
	id, _ := q.Enqueue(rp("late"), DefaultParameters())

	select {
	case j := <-got:
		if j.ID != id {
			t.Errorf("Next() = %d, want %d", j.ID, id)
		}
	case <-ctx.Done():
		t.Fatal("Next() never returned")
	}
}

func TestQueue_NextAfterClose(t *testing.T) {
	q := New()
	id, _ := q.Enqueue(rp("a"), DefaultParameters())
	q.Close()

	ctx := context.Background()
	j, err := q.Next(ctx)
	if err != nil || j.ID != id {
		t.Fatalf("Next() = %d, %v; want queued job before close takes effect", j.ID, err)
	}
	q.Complete(id, &Result{})
	if _, err := q.Next(ctx); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Next() on drained closed queue error = %v, want ErrQueueClosed", err)
	}
}

func TestQueue_NextOrIdle(t *testing.T) {
	q := New()
	if _, err := q.NextOrIdle(context.Background()); !errors.Is(err, ErrQueueIdle) {
		t.Errorf("NextOrIdle() on empty queue error = %v, want ErrQueueIdle", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	q.Enqueue(rp("a"), DefaultParameters())
	q.Dequeue()
	if _, err := q.NextOrIdle(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("NextOrIdle() with running job error = %v, want context.Canceled", err)
	}
}

// TestQueue_TerminalStatesAreFinal drives random operations against a
// queue and checks that no job ever leaves a terminal state.
func TestQueue_TerminalStatesAreFinal(t *testing.T) {
	for seed := int64(0); seed < 25; seed++ {
		rng := rand.New(rand.NewSource(seed))
		q := New()
		final := map[int64]Status{}

		for step := 0; step < 400; step++ {
			jobs := q.List()
			var id int64
			if len(jobs) > 0 {
				id = jobs[rng.Intn(len(jobs))].ID
			}

			switch rng.Intn(7) {
			case 0:
				q.Enqueue(rp("p"), DefaultParameters())
			case 1:
				q.Dequeue()
			case 2:
				q.Complete(id, &Result{})
			case 3:
				q.Fail(id, "E", "boom")
			case 4:
				q.Retry(id, time.Time{}, "T", "again")
			case 5:
				q.Cancel(id)
			case 6:
				q.Release(id)
			}

			for _, j := range q.List() {
				if want, ok := final[j.ID]; ok && j.Status != want {
					t.Fatalf("seed %d step %d: job %d left terminal state %s for %s", seed, step, j.ID, want, j.Status)
				}
				if j.Status.IsTerminal() {
					final[j.ID] = j.Status
				}
			}
		}

		s := q.Stats()
		if s.Queued+s.Running+s.Completed+s.Failed+s.Cancelled != s.Enqueued {
			t.Errorf("seed %d: stats do not add up: %+v", seed, s)
		}
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusQueued, StatusRunning, true},
		{StatusQueued, StatusCancelled, true},
		{StatusQueued, StatusCompleted, false},
		{StatusRunning, StatusQueued, true},
		{StatusRunning, StatusFailed, true},
		{StatusCompleted, StatusQueued, false},
		{StatusFailed, StatusRunning, false},
		{StatusCancelled, StatusQueued, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}
