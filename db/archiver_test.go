package db

import (
	"context"
	"errors"
	"testing"

	"promptbatch/jobqueue"
	"promptbatch/logging"
	"promptbatch/runner"
)

func TestArchiver_ArchivesTerminalEvents(t *testing.T) {
	repo := NewJobRepository(openTestDB(t))
	q := jobqueue.New()
	a := NewArchiver(repo, q, "run-a", WithArchiverLogger(logging.NewNop()))

	done := runJob(t, q, "a red fox", jobqueue.StatusCompleted)
	failed := runJob(t, q, "a blue owl", jobqueue.StatusFailed)

	a.OnProgress(runner.ProgressEvent{JobID: done, Status: jobqueue.StatusCompleted})
	a.OnProgress(runner.ProgressEvent{JobID: failed, Status: jobqueue.StatusFailed})

	counts, err := repo.CountByStatus(context.Background())
	if err != nil {
		t.Fatalf("CountByStatus() error = %v", err)
	}
	if counts[jobqueue.StatusCompleted] != 1 || counts[jobqueue.StatusFailed] != 1 {
		t.Errorf("CountByStatus() = %v", counts)
	}

	if _, err := q.Get(done); !errors.Is(err, jobqueue.ErrJobNotFound) {
		t.Errorf("archived job still in queue: %v", err)
	}
	if s := q.Stats(); s.Completed != 1 || s.Failed != 1 {
		t.Errorf("Stats() = %+v, removed jobs should keep counting", s)
	}

	// A repeated event for an archived job is a no-op.
	a.OnProgress(runner.ProgressEvent{JobID: done, Status: jobqueue.StatusCompleted})
	recs, _ := repo.RecentJobs(context.Background(), 10)
	if len(recs) != 2 {
		t.Errorf("RecentJobs() returned %d, want 2", len(recs))
	}
}

func TestArchiver_IgnoresNonTerminal(t *testing.T) {
	repo := NewJobRepository(openTestDB(t))
	q := jobqueue.New()
	a := NewArchiver(repo, q, "run-a")

	id := runJob(t, q, "a red fox", jobqueue.StatusCompleted)
	a.OnProgress(runner.ProgressEvent{JobID: id, Status: jobqueue.StatusRunning})

	if _, err := q.Get(id); err != nil {
		t.Errorf("job removed on non-terminal event: %v", err)
	}
	recs, _ := repo.RecentJobs(context.Background(), 10)
	if len(recs) != 0 {
		t.Errorf("RecentJobs() returned %d, want 0", len(recs))
	}
}

func TestArchiver_SweepAndKeep(t *testing.T) {
	repo := NewJobRepository(openTestDB(t))
	q := jobqueue.New()
	a := NewArchiver(repo, q, "run-a", WithKeepJobs(true))

	cancelled := runJob(t, q, "never ran", jobqueue.StatusCancelled)
	runJob(t, q, "done", jobqueue.StatusCompleted)
	if _, err := q.Enqueue(jobqueueResolved("still queued"), jobqueue.DefaultParameters()); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	if n := a.Sweep(); n != 2 {
		t.Errorf("Sweep() = %d, want 2", n)
	}
	if _, err := q.Get(cancelled); err != nil {
		t.Errorf("WithKeepJobs removed job: %v", err)
	}
	counts, _ := repo.CountByStatus(context.Background())
	if counts[jobqueue.StatusCancelled] != 1 || counts[jobqueue.StatusCompleted] != 1 {
		t.Errorf("CountByStatus() = %v", counts)
	}
}

func TestArchiver_Async(t *testing.T) {
	repo := NewJobRepository(openTestDB(t))
	q := jobqueue.New()
	w := NewAsyncWriter(repo.InsertJob)
	w.Start()
	a := NewArchiver(repo, q, "run-a", WithAsyncWriter(w))

	for i := 0; i < 3; i++ {
		id := runJob(t, q, "fox", jobqueue.StatusCompleted)
		a.OnProgress(runner.ProgressEvent{JobID: id, Status: jobqueue.StatusCompleted})
	}
	if err := a.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	recs, err := repo.RecentJobs(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentJobs() error = %v", err)
	}
	if len(recs) != 3 {
		t.Errorf("RecentJobs() returned %d, want 3", len(recs))
	}
}
