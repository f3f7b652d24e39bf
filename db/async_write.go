package db

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultChannelCapacity is the default buffer size for async writes.
const DefaultChannelCapacity = 256

// WriteFunc persists one record.
type WriteFunc func(ctx context.Context, rec HistoryRecord) error

// AsyncWriter moves history inserts off the worker goroutines. Records are
// written in submission order by a single background goroutine.
//
//	w := db.NewAsyncWriter(repo.InsertJob, db.WithErrorHandler(logErr))
//	w.Start()
//	defer w.Stop(ctx)
type AsyncWriter struct {
	ch      chan HistoryRecord
	write   WriteFunc
	onError func(HistoryRecord, error)

	mu      sync.Mutex
	started bool
	stopped bool
	done    chan struct{}

	written atomic.Int64
	failed  atomic.Int64
	dropped atomic.Int64
}

// AsyncOption configures an AsyncWriter.
type AsyncOption func(*AsyncWriter)

// WithCapacity sets the buffer size.
func WithCapacity(n int) AsyncOption {
	return func(w *AsyncWriter) {
		if n > 0 {
			w.ch = make(chan HistoryRecord, n)
		}
	}
}

// WithErrorHandler is called from the writer goroutine for each failed
// write.
func WithErrorHandler(fn func(HistoryRecord, error)) AsyncOption {
	return func(w *AsyncWriter) {
		w.onError = fn
	}
}

// NewAsyncWriter creates a stopped writer around write.
func NewAsyncWriter(write func(context.Context, HistoryRecord) (int64, error), opts ...AsyncOption) *AsyncWriter {
	w := &AsyncWriter{
		ch: make(chan HistoryRecord, DefaultChannelCapacity),
		write: func(ctx context.Context, rec HistoryRecord) error {
			_, err := write(ctx, rec)
			return err
		},
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start launches the writer goroutine. Repeated calls are no-ops.
func (w *AsyncWriter) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started || w.stopped {
		return
	}
	w.started = true
	go w.loop()
}

func (w *AsyncWriter) loop() {
	defer close(w.done)
	for rec := range w.ch {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := w.write(ctx, rec)
		cancel()
		if err != nil {
			w.failed.Add(1)
			if w.onError != nil {
				w.onError(rec, err)
			}
			continue
		}
		w.written.Add(1)
	}
}

// Write queues rec without blocking. It returns false, counting the record
// as dropped, when the buffer is full or the writer is stopped.
func (w *AsyncWriter) Write(rec HistoryRecord) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		w.dropped.Add(1)
		return false
	}
	select {
	case w.ch <- rec:
		return true
	default:
		w.dropped.Add(1)
		return false
	}
}

// Pending returns the number of buffered records.
func (w *AsyncWriter) Pending() int {
	return len(w.ch)
}

// Stats returns written, failed and dropped counts.
func (w *AsyncWriter) Stats() (written, failed, dropped int64) {
	return w.written.Load(), w.failed.Load(), w.dropped.Load()
}

// Stop rejects new writes and waits for the buffer to drain or ctx to end.
// A writer that was never started drops its buffer.
func (w *AsyncWriter) Stop(ctx context.Context) error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	close(w.ch)
	started := w.started
	w.mu.Unlock()

	if !started {
		w.dropped.Add(int64(len(w.ch)))
		return nil
	}
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
