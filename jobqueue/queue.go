// Package jobqueue holds generation jobs and enforces their lifecycle.
//
// Jobs move Queued -> Running -> Completed, may return to Queued for a
// retry, and end in Completed, Failed or Cancelled. Terminal jobs never
// change again. All methods are safe for concurrent use.
package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"promptbatch/prompt"
)

// Queue errors.
var (
	ErrJobNotFound       = errors.New("jobqueue: job not found")
	ErrInvalidTransition = errors.New("jobqueue: invalid status transition")
	ErrJobTerminal       = errors.New("jobqueue: job is in a terminal state")
	ErrJobActive         = errors.New("jobqueue: job is not in a terminal state")
	ErrQueueClosed       = errors.New("jobqueue: queue is closed")
	ErrQueueIdle         = errors.New("jobqueue: no jobs pending or running")
)

// Stats counts jobs by status. Removed jobs still count toward their
// final status.
type Stats struct {
	Queued    int `json:"queued"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
	// Enqueued is the number of jobs ever accepted.
	Enqueued int `json:"enqueued"`
}

// Option configures a Queue.
type Option func(*Queue)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// Queue is an in-memory FIFO of jobs.
type Queue struct {
	mu      sync.Mutex
	nextID  int64
	jobs    map[int64]*Job
	pending []int64 // queued ids, ascending
	running int
	removed map[Status]int
	closed  bool
	changed chan struct{}
	hooks   []func(job Job, wasRunning bool)
	now     func() time.Time
}

// New creates an empty queue.
func New(opts ...Option) *Queue {
	q := &Queue{
		jobs:    make(map[int64]*Job),
		removed: make(map[Status]int),
		changed: make(chan struct{}),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue adds one job and returns its id.
func (q *Queue) Enqueue(p prompt.Resolved, params Parameters) (int64, error) {
	ids, err := q.EnqueueBatch("", []Item{{Prompt: p, Parameters: params}})
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

// EnqueueBatch adds all items under batchID with consecutive ids. Either
// every item is queued or none is.
func (q *Queue) EnqueueBatch(batchID string, items []Item) ([]int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrQueueClosed
	}

	now := q.now()
	ids := make([]int64, len(items))
	for i, it := range items {
		q.nextID++
		id := q.nextID
		q.jobs[id] = &Job{
			ID:         id,
			BatchID:    batchID,
			BatchIndex: i,
			Prompt:     it.Prompt,
			Parameters: it.Parameters.Clone(),
			Status:     StatusQueued,
			CreatedAt:  now,
		}
		q.pending = append(q.pending, id)
		ids[i] = id
	}
	if len(items) > 0 {
		q.notify()
	}
	return ids, nil
}

// Get returns a snapshot of the job.
func (q *Queue) Get(id int64) (Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, ok := q.jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("%w: %d", ErrJobNotFound, id)
	}
	return j.clone(), nil
}

// List returns snapshots of every job in id order.
func (q *Queue) List() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Job, 0, len(q.jobs))
	for _, j := range q.jobs {
		out = append(out, j.clone())
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out
}

// Batch returns snapshots of every job in batchID, in batch order.
func (q *Queue) Batch(batchID string) []Job {
	var out []Job
	for _, j := range q.List() {
		if j.BatchID == batchID {
			out = append(out, j)
		}
	}
	return out
}

// Stats returns job counts.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := Stats{
		Completed: q.removed[StatusCompleted],
		Failed:    q.removed[StatusFailed],
		Cancelled: q.removed[StatusCancelled],
		Enqueued:  int(q.nextID),
	}
	for _, j := range q.jobs {
		switch j.Status {
		case StatusQueued:
			s.Queued++
		case StatusRunning:
			s.Running++
		case StatusCompleted:
			s.Completed++
		case StatusFailed:
			s.Failed++
		case StatusCancelled:
			s.Cancelled++
		}
	}
	return s
}

// Idle reports whether no job is queued or running.
func (q *Queue) Idle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending) == 0 && q.running == 0
}

// OnCancel registers fn to be called, outside the queue lock, whenever a
// queued or running job is cancelled. wasRunning reports whether an
// attempt was in flight.
func (q *Queue) OnCancel(fn func(job Job, wasRunning bool)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.hooks = append(q.hooks, fn)
}

// Cancel stops a job and invokes the cancel hooks. Queued jobs leave the
// pending list; running jobs are marked cancelled so the hooks can
// interrupt the attempt. Cancelling a terminal job is a no-op.
func (q *Queue) Cancel(id int64) error {
	q.mu.Lock()
	j, ok := q.jobs[id]
	if !ok {
		q.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrJobNotFound, id)
	}
	if j.Status.IsTerminal() {
		q.mu.Unlock()
		return nil
	}

	wasRunning := j.Status == StatusRunning
	if wasRunning {
		q.running--
	} else {
		q.dropPending(id)
	}
	j.Status = StatusCancelled
	t := q.now()
	j.FinishedAt = &t
	snap := j.clone()
	hooks := slices.Clone(q.hooks)
	q.notify()
	q.mu.Unlock()

	for _, fn := range hooks {
		fn(snap, wasRunning)
	}
	return nil
}

// Remove deletes a terminal job from the queue. Its final status keeps
// counting in Stats.
func (q *Queue) Remove(id int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, ok := q.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrJobNotFound, id)
	}
	if !j.Status.IsTerminal() {
		return fmt.Errorf("%w: job %d is %s", ErrJobActive, id, j.Status)
	}
	q.removed[j.Status]++
	delete(q.jobs, id)
	return nil
}

// Close stops the queue from accepting new jobs. Jobs already queued are
// still dispatched; Next reports ErrQueueClosed once they are done.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		q.notify()
	}
}

// Closed reports whether Close has been called.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Peek returns the job that Dequeue would dispatch next, without
// changing it.
func (q *Queue) Peek() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	id, ok, _ := q.firstReady()
	if !ok {
		return Job{}, false
	}
	return q.jobs[id].clone(), true
}

// Dequeue marks the oldest ready job Running and returns it. It does not
// block.
func (q *Queue) Dequeue() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dispatch()
}

// Next blocks until a job is ready and dispatches it. It returns
// ErrQueueClosed once the queue is closed and drained.
func (q *Queue) Next(ctx context.Context) (Job, error) {
	return q.next(ctx, false)
}

// NextOrIdle is Next, except it returns ErrQueueIdle as soon as no job is
// queued or running.
func (q *Queue) NextOrIdle(ctx context.Context) (Job, error) {
	return q.next(ctx, true)
}

func (q *Queue) next(ctx context.Context, stopWhenIdle bool) (Job, error) {
	var err error
	for {
		q.mu.Lock()
		if j, ok := q.dispatch(); ok {
			q.mu.Unlock()
			return j, nil
		}
		drained := len(q.pending) == 0 && q.running == 0
		closed := q.closed
		_, _, wake := q.firstReady()
		changed := q.changed
		q.mu.Unlock()

		if drained && closed {
			return Job{}, ErrQueueClosed
		}
		if drained && stopWhenIdle {
			return Job{}, ErrQueueIdle
		}

		var (
			timer *time.Timer
			fire  <-chan time.Time
		)
		if !wake.IsZero() {
			timer = time.NewTimer(time.Until(wake))
			fire = timer.C
		}
		select {
		case <-ctx.Done():
			err = ctx.Err()
		case <-changed:
		case <-fire:
		}
		if timer != nil {
			timer.Stop()
		}
		if err != nil {
			return Job{}, err
		}
	}
}

// Complete records a successful attempt.
func (q *Queue) Complete(id int64, res *Result) error {
	return q.finish(id, StatusCompleted, func(j *Job) {
		j.Result = res
		j.Error, j.ErrorCode = "", ""
	})
}

// Fail records a permanent failure.
func (q *Queue) Fail(id int64, code, msg string) error {
	return q.finish(id, StatusFailed, func(j *Job) {
		j.Error, j.ErrorCode = msg, code
	})
}

// Retry returns a running job to the queue after a transient failure. The
// job is not dispatched again before readyAt.
func (q *Queue) Retry(id int64, readyAt time.Time, code, msg string) error {
	return q.requeue(id, func(j *Job) {
		j.RetryCount++
		j.NextAttemptAt = readyAt
		j.Error, j.ErrorCode = msg, code
	})
}

// Release returns a running job to the queue without counting a retry,
// for attempts interrupted by shutdown.
func (q *Queue) Release(id int64) error {
	return q.requeue(id, func(j *Job) {
		j.NextAttemptAt = time.Time{}
	})
}

func (q *Queue) finish(id int64, to Status, mutate func(*Job)) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, err := q.transition(id, to)
	if err != nil {
		return err
	}
	q.running--
	mutate(j)
	t := q.now()
	j.FinishedAt = &t
	q.notify()
	return nil
}

func (q *Queue) requeue(id int64, mutate func(*Job)) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, err := q.transition(id, StatusQueued)
	if err != nil {
		return err
	}
	q.running--
	mutate(j)
	q.insertPending(id)
	q.notify()
	return nil
}

// transition validates and applies a status change. Caller holds q.mu.
func (q *Queue) transition(id int64, to Status) (*Job, error) {
	j, ok := q.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrJobNotFound, id)
	}
	if j.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: job %d is %s", ErrJobTerminal, id, j.Status)
	}
	if !CanTransition(j.Status, to) {
		return nil, fmt.Errorf("%w: job %d %s -> %s", ErrInvalidTransition, id, j.Status, to)
	}
	j.Status = to
	return j, nil
}

// dispatch moves the first ready job to Running. Caller holds q.mu.
func (q *Queue) dispatch() (Job, bool) {
	id, ok, _ := q.firstReady()
	if !ok {
		return Job{}, false
	}
	j, _ := q.transition(id, StatusRunning)
	q.dropPending(id)
	q.running++
	if j.StartedAt == nil {
		t := q.now()
		j.StartedAt = &t
	}
	return j.clone(), true
}

// firstReady returns the lowest queued id whose backoff has elapsed, or the
// earliest time a delayed job becomes ready. Caller holds q.mu.
func (q *Queue) firstReady() (int64, bool, time.Time) {
	now := q.now()
	var wake time.Time
	for _, id := range q.pending {
		at := q.jobs[id].NextAttemptAt
		if !at.After(now) {
			return id, true, time.Time{}
		}
		if wake.IsZero() || at.Before(wake) {
			wake = at
		}
	}
	return 0, false, wake
}

func (q *Queue) insertPending(id int64) {
	i := sort.Search(len(q.pending), func(i int) bool { return q.pending[i] >= id })
	q.pending = append(q.pending, 0)
	copy(q.pending[i+1:], q.pending[i:])
	q.pending[i] = id
}

func (q *Queue) dropPending(id int64) {
	for i, p := range q.pending {
		if p == id {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			return
		}
	}
}

// notify wakes every goroutine blocked in Next. Caller holds q.mu.
func (q *Queue) notify() {
	close(q.changed)
	q.changed = make(chan struct{})
}
