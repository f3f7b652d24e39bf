// Package runner dispatches queued jobs to a generation service.
//
// A Runner pulls jobs from a jobqueue.Queue, submits them with a
// per-attempt timeout and records the outcome: transient failures are
// requeued with exponential backoff until retries run out, permanent
// failures fail the job. Every state change is reported to an Observer.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"promptbatch/jobqueue"
	"promptbatch/logging"
)

// Defaults.
const (
	DefaultMaxRetries     = 3
	DefaultAttemptTimeout = 120 * time.Second
	DefaultWorkers        = 1
)

// Option configures a Runner.
type Option func(*Runner)

// WithMaxRetries sets how many times a transiently failing job is retried.
func WithMaxRetries(n int) Option {
	return func(r *Runner) {
		if n >= 0 {
			r.maxRetries = n
		}
	}
}

// WithAttemptTimeout bounds a single Submit call. Hitting it counts as a
// transient failure.
func WithAttemptTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.attemptTimeout = d
		}
	}
}

// WithBackoff sets the retry delay policy.
func WithBackoff(b *Backoff) Option {
	return func(r *Runner) {
		if b != nil {
			r.backoff = b
		}
	}
}

// WithWorkers sets the number of concurrent dispatchers.
func WithWorkers(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithObserver sets the progress observer.
func WithObserver(o Observer) Option {
	return func(r *Runner) {
		if o != nil {
			r.observer = o
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l.Named("runner")
		}
	}
}

// WithDrain makes Run return once no job is queued or running, instead
// of waiting for more work.
func WithDrain(drain bool) Option {
	return func(r *Runner) { r.drain = drain }
}

// Runner executes jobs from a queue.
type Runner struct {
	queue          *jobqueue.Queue
	client         Client
	maxRetries     int
	attemptTimeout time.Duration
	backoff        *Backoff
	workers        int
	drain          bool
	observer       Observer
	logger         *logging.Logger

	mu       sync.Mutex
	active   map[int64]context.CancelFunc
	started  time.Time
	finished atomic.Int64
	running  atomic.Bool
}

// New creates a Runner for queue and client.
func New(queue *jobqueue.Queue, client Client, opts ...Option) *Runner {
	r := &Runner{
		queue:          queue,
		client:         client,
		maxRetries:     DefaultMaxRetries,
		attemptTimeout: DefaultAttemptTimeout,
		backoff:        DefaultBackoff(),
		workers:        DefaultWorkers,
		observer:       Observers(),
		logger:         logging.NewNop(),
		active:         make(map[int64]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(r)
	}
	queue.OnCancel(r.onCancel)
	return r
}

// Run dispatches jobs until ctx is cancelled, the queue is closed and
// drained, or (with WithDrain) the queue goes idle. Jobs interrupted by
// cancellation go back to the queue without using up a retry.
//
// Run returns ctx.Err() when stopped by ctx and nil otherwise. Failures
// of individual jobs never end the loop.
func (r *Runner) Run(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return errors.New("runner: already running")
	}
	defer r.running.Store(false)

	r.mu.Lock()
	r.started = time.Now()
	r.mu.Unlock()
	r.finished.Store(0)

	r.logger.Info("runner started",
		zap.Int("workers", r.workers),
		zap.Int("max_retries", r.maxRetries),
		zap.Duration("attempt_timeout", r.attemptTimeout),
		zap.Bool("drain", r.drain))

	var wg sync.WaitGroup
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r.work(ctx, worker)
		}(i)
	}
	wg.Wait()

	stats := r.queue.Stats()
	r.logger.Info("runner stopped",
		zap.Int64("finished", r.finished.Load()),
		zap.Int("completed", stats.Completed),
		zap.Int("failed", stats.Failed),
		zap.Int("cancelled", stats.Cancelled),
		zap.Int("queued", stats.Queued),
		zap.Duration("elapsed", r.elapsed()))
	return ctx.Err()
}

func (r *Runner) work(ctx context.Context, worker int) {
	log := r.logger.With(zap.Int("worker", worker))
	for {
		if ctx.Err() != nil {
			return
		}

		var (
			job jobqueue.Job
			err error
		)
		if r.drain {
			job, err = r.queue.NextOrIdle(ctx)
		} else {
			job, err = r.queue.Next(ctx)
		}
		switch {
		case errors.Is(err, jobqueue.ErrQueueClosed), errors.Is(err, jobqueue.ErrQueueIdle):
			log.Debug("no more jobs", zap.Error(err))
			return
		case err != nil:
			if ctx.Err() == nil {
				log.Error("fetching next job failed", zap.Error(err))
			}
			return
		}

		r.emit(job, jobqueue.StatusRunning, "", "", nil)
		r.process(ctx, log, job)
	}
}

// process runs one attempt and records its outcome.
func (r *Runner) process(ctx context.Context, log *logging.Logger, job jobqueue.Job) {
	log = log.With(logging.JobFields(job.ID, job.BatchID, job.RetryCount+1)...)

	attemptCtx, cancel := context.WithTimeout(ctx, r.attemptTimeout)
	r.track(job.ID, cancel)
	if current, err := r.queue.Get(job.ID); err == nil && current.Status == jobqueue.StatusCancelled {
		r.untrack(job.ID)
		cancel()
		return
	}
	start := time.Now()
	res, err := r.submit(attemptCtx, job)
	took := time.Since(start)
	r.untrack(job.ID)
	timedOut := errors.Is(attemptCtx.Err(), context.DeadlineExceeded)
	cancel()

	if err == nil {
		if res == nil {
			res = &jobqueue.Result{}
		}
		if res.Duration == 0 {
			res.Duration = took
		}
		if r.record(log, r.queue.Complete(job.ID, res)) {
			log.Info("job completed", zap.Duration("duration", took), zap.Int("images", len(res.Images)))
			r.emit(job, jobqueue.StatusCompleted, "", "", res)
		}
		return
	}

	if ctx.Err() != nil {
		// Shutdown, not the job's fault.
		if r.record(log, r.queue.Release(job.ID)) {
			log.Info("job released on shutdown")
			r.emit(job, jobqueue.StatusQueued, err.Error(), "", nil)
		}
		return
	}

	if current, gerr := r.queue.Get(job.ID); gerr == nil && current.Status == jobqueue.StatusCancelled {
		log.Debug("attempt ended after cancellation", zap.Error(err))
		return
	}

	kind, code := Classify(err)
	if timedOut {
		kind, code = Transient, CodeTimeout
		err = fmt.Errorf("attempt timed out after %s: %w", r.attemptTimeout, err)
	}

	if kind == Transient && job.RetryCount < r.maxRetries {
		delay := r.backoff.Delay(job.RetryCount + 1)
		if r.record(log, r.queue.Retry(job.ID, time.Now().Add(delay), code, err.Error())) {
			log.Warn("job failed, will retry",
				zap.Error(err),
				zap.String("code", code),
				zap.Duration("backoff", delay),
				zap.Int("retries_left", r.maxRetries-job.RetryCount-1))
			job.RetryCount++
			r.emit(job, jobqueue.StatusQueued, err.Error(), code, nil)
		}
		return
	}

	if kind == Transient {
		err = fmt.Errorf("retries exhausted after %d attempts: %w", job.RetryCount+1, err)
	}
	if r.record(log, r.queue.Fail(job.ID, code, err.Error())) {
		log.Error("job failed", zap.Error(err), zap.String("code", code), zap.String("kind", kind.String()))
		r.emit(job, jobqueue.StatusFailed, err.Error(), code, nil)
	}
}

// submit calls the client, turning a panic into a permanent failure.
func (r *Runner) submit(ctx context.Context, job jobqueue.Job) (res *jobqueue.Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			res, err = nil, NewPermanent(CodePanic, fmt.Sprintf("client panicked: %v", p), nil)
		}
	}()
	return r.client.Submit(ctx, Submission{
		JobID:      job.ID,
		BatchID:    job.BatchID,
		Attempt:    job.RetryCount + 1,
		Prompt:     job.Prompt,
		Parameters: job.Parameters,
	})
}

// record logs a queue update that lost a race, typically with Cancel.
// It reports whether the update was applied.
func (r *Runner) record(log *logging.Logger, err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, jobqueue.ErrJobTerminal) || errors.Is(err, jobqueue.ErrJobNotFound) {
		log.Debug("job changed during attempt", zap.Error(err))
	} else {
		log.Error("recording job outcome failed", zap.Error(err))
	}
	return false
}

func (r *Runner) track(id int64, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[id] = cancel
}

func (r *Runner) untrack(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, id)
}

// onCancel is the queue's cancel hook. Only a running job has an attempt
// to interrupt and a service-side request to cancel.
func (r *Runner) onCancel(job jobqueue.Job, wasRunning bool) {
	if wasRunning {
		r.mu.Lock()
		cancel, ok := r.active[job.ID]
		r.mu.Unlock()
		if ok {
			cancel()
		}

		if c, ok := r.client.(Canceler); ok {
			ctx, done := context.WithTimeout(context.Background(), 10*time.Second)
			if err := c.Cancel(ctx, job.ID); err != nil {
				r.logger.Warn("service-side cancel failed", zap.Int64("job_id", job.ID), zap.Error(err))
			}
			done()
		}
	}
	r.logger.Info("job cancelled", zap.Int64("job_id", job.ID), zap.Bool("was_running", wasRunning))
	r.emit(job, jobqueue.StatusCancelled, "", "", nil)
}

func (r *Runner) emit(job jobqueue.Job, status jobqueue.Status, errMsg, code string, res *jobqueue.Result) {
	ev := ProgressEvent{
		JobID:      job.ID,
		BatchID:    job.BatchID,
		Status:     status,
		RetryCount: job.RetryCount,
		Total:      r.queue.Stats().Enqueued,
		Elapsed:    r.elapsed(),
		Error:      errMsg,
		ErrorCode:  code,
		Result:     res,
	}
	if status.IsTerminal() {
		ev.Index = int(r.finished.Add(1))
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("observer panicked", zap.Any("panic", p), zap.Int64("job_id", job.ID))
		}
	}()
	r.observer.OnProgress(ev)
}

func (r *Runner) elapsed() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started.IsZero() {
		return 0
	}
	return time.Since(r.started)
}
