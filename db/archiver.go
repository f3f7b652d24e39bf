package db

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"promptbatch/jobqueue"
	"promptbatch/logging"
	"promptbatch/runner"
)

// Archiver moves finished jobs from the queue into job_history. Place it
// last in the observer chain: once a job is archived it is removed from
// the queue.
type Archiver struct {
	repo   *JobRepository
	queue  *jobqueue.Queue
	runID  string
	async  *AsyncWriter
	logger *logging.Logger
	keep   bool
}

var _ runner.Observer = (*Archiver)(nil)

// ArchiverOption configures an Archiver.
type ArchiverOption func(*Archiver)

// WithAsyncWriter routes inserts through w instead of writing inline.
func WithAsyncWriter(w *AsyncWriter) ArchiverOption {
	return func(a *Archiver) { a.async = w }
}

// WithArchiverLogger sets the logger.
func WithArchiverLogger(l *logging.Logger) ArchiverOption {
	return func(a *Archiver) {
		if l != nil {
			a.logger = l.Named("archiver")
		}
	}
}

// WithKeepJobs leaves archived jobs in the queue.
func WithKeepJobs(keep bool) ArchiverOption {
	return func(a *Archiver) { a.keep = keep }
}

// NewArchiver creates an Archiver writing rows tagged with runID.
func NewArchiver(repo *JobRepository, queue *jobqueue.Queue, runID string, opts ...ArchiverOption) *Archiver {
	a := &Archiver{
		repo:   repo,
		queue:  queue,
		runID:  runID,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// OnProgress archives the job behind a terminal event.
func (a *Archiver) OnProgress(ev runner.ProgressEvent) {
	if !ev.Terminal() {
		return
	}
	if err := a.archive(ev.JobID); err != nil {
		a.logger.Warn("failed to archive job", zap.Int64(logging.KeyJobID, ev.JobID), zap.Error(err))
	}
}

// Sweep archives every terminal job still in the queue, such as jobs
// cancelled before they ever ran. It returns how many were archived.
func (a *Archiver) Sweep() int {
	n := 0
	for _, job := range a.queue.List() {
		if !job.Status.IsTerminal() {
			continue
		}
		if err := a.archive(job.ID); err != nil {
			a.logger.Warn("failed to archive job", zap.Int64(logging.KeyJobID, job.ID), zap.Error(err))
			continue
		}
		n++
	}
	return n
}

// Close flushes pending async writes.
func (a *Archiver) Close(ctx context.Context) error {
	if a.async == nil {
		return nil
	}
	err := a.async.Stop(ctx)
	written, failed, dropped := a.async.Stats()
	a.logger.Info("history writer stopped",
		zap.Int64("written", written),
		zap.Int64("failed", failed),
		zap.Int64("dropped", dropped))
	return err
}

func (a *Archiver) archive(id int64) error {
	job, err := a.queue.Get(id)
	if errors.Is(err, jobqueue.ErrJobNotFound) {
		// Already archived.
		return nil
	}
	if err != nil {
		return err
	}
	rec := RecordFromJob(a.runID, job)

	if a.async != nil {
		if !a.async.Write(rec) {
			return errors.New("history buffer full")
		}
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		_, err := a.repo.InsertJob(ctx, rec)
		cancel()
		if err != nil {
			return err
		}
	}

	if a.keep {
		return nil
	}
	if err := a.queue.Remove(id); err != nil && !errors.Is(err, jobqueue.ErrJobNotFound) {
		return err
	}
	return nil
}
