package db

import (
	"path/filepath"
	"testing"
	"time"

	"promptbatch/jobqueue"
	"promptbatch/prompt"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	d, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

// runJob pushes one job through the queue to the given terminal status.
func runJob(t *testing.T, q *jobqueue.Queue, text string, status jobqueue.Status) int64 {
	t.Helper()
	params := jobqueue.DefaultParameters().WithSeed(42)
	id, err := q.Enqueue(prompt.Resolved{Prompt: text, NegativePrompt: "blurry"}, params)
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if status == jobqueue.StatusCancelled {
		if err := q.Cancel(id); err != nil {
			t.Fatalf("Cancel() error = %v", err)
		}
		return id
	}
	if _, ok := q.Dequeue(); !ok {
		t.Fatal("Dequeue() returned nothing")
	}
	switch status {
	case jobqueue.StatusCompleted:
		err = q.Complete(id, &jobqueue.Result{
			Images:   []jobqueue.Image{{Data: []byte("png"), Format: "png", Width: 512, Height: 512}},
			Seed:     42,
			Backend:  "null",
			Duration: 1500 * time.Millisecond,
		})
	case jobqueue.StatusFailed:
		err = q.Fail(id, "BAD_REQUEST", "prompt rejected")
	}
	if err != nil {
		t.Fatalf("finishing job %d: %v", id, err)
	}
	return id
}

func sampleRecord(runID string, jobID int64, status jobqueue.Status, finished time.Time) HistoryRecord {
	return HistoryRecord{
		RunID:      runID,
		JobID:      jobID,
		BatchID:    "batch-1",
		BatchIndex: int(jobID),
		Prompt:     "a red fox",
		Parameters: jobqueue.DefaultParameters().WithSeed(jobID),
		Status:     status,
		Seed:       jobID,
		Duration:   2 * time.Second,
		CreatedAt:  finished.Add(-time.Minute),
		FinishedAt: finished,
	}
}

func jobqueueResolved(text string) prompt.Resolved {
	return prompt.Resolved{Prompt: text}
}
