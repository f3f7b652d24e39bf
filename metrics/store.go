package metrics

import (
	"maps"
	"sync"
	"time"

	"promptbatch/jobqueue"
	"promptbatch/runner"
)

// StoreConfig configures a Store.
type StoreConfig struct {
	// HistoryCapacity is the number of recent jobs retained.
	HistoryCapacity int
	Version         string
}

// DefaultStoreConfig returns a 100-job history.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{HistoryCapacity: 100, Version: "dev"}
}

// Store is an in-memory Collector. It is also a runner.Observer: terminal
// events become JobRecords and retry events are counted.
//
//	store := metrics.NewStore(metrics.DefaultStoreConfig(), time.Now())
//	r := runner.New(q, client, runner.WithObserver(store))
type Store struct {
	mu sync.RWMutex

	history []JobRecord
	cap     int
	head    int
	size    int

	totals        Counts
	retries       int64
	images        int64
	totalDuration time.Duration
	timedJobs     int64
	errorCodes    map[string]int64
	batches       map[string]*batchStats

	startTime time.Time
	version   string
	now       func() time.Time
}

type batchStats struct {
	counts        Counts
	retries       int64
	images        int64
	totalDuration time.Duration
	timedJobs     int64
}

// NewStore creates a Store; startTime anchors Uptime.
func NewStore(config StoreConfig, startTime time.Time) *Store {
	capacity := config.HistoryCapacity
	if capacity < 1 {
		capacity = 100
	}
	return &Store{
		history:    make([]JobRecord, capacity),
		cap:        capacity,
		errorCodes: make(map[string]int64),
		batches:    make(map[string]*batchStats),
		startTime:  startTime,
		version:    config.Version,
		now:        time.Now,
	}
}

// OnProgress implements runner.Observer.
func (s *Store) OnProgress(ev runner.ProgressEvent) {
	switch {
	case ev.Terminal():
		rec := JobRecord{
			JobID:      ev.JobID,
			BatchID:    ev.BatchID,
			Status:     ev.Status,
			Retries:    ev.RetryCount,
			ErrorCode:  ev.ErrorCode,
			ErrorMsg:   ev.Error,
			FinishedAt: s.now(),
		}
		if ev.Result != nil {
			rec.Images = len(ev.Result.Images)
			rec.Duration = ev.Result.Duration
		}
		s.RecordJob(rec)
	case ev.Status == jobqueue.StatusQueued && ev.ErrorCode != "":
		s.RecordRetry(ev.BatchID, ev.ErrorCode)
	}
}

// RecordJob implements Collector. Non-terminal records are ignored.
func (s *Store) RecordJob(rec JobRecord) {
	if !rec.Status.IsTerminal() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history[s.head] = rec
	s.head = (s.head + 1) % s.cap
	if s.size < s.cap {
		s.size++
	}

	s.totals.add(rec.Status)
	s.images += int64(rec.Images)
	if rec.Duration > 0 {
		s.totalDuration += rec.Duration
		s.timedJobs++
	}
	if rec.Status == jobqueue.StatusFailed && rec.ErrorCode != "" {
		s.errorCodes[rec.ErrorCode]++
	}

	if rec.BatchID == "" {
		return
	}
	b := s.batch(rec.BatchID)
	b.counts.add(rec.Status)
	b.images += int64(rec.Images)
	if rec.Duration > 0 {
		b.totalDuration += rec.Duration
		b.timedJobs++
	}
}

// RecordRetry implements Collector.
func (s *Store) RecordRetry(batchID string, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.retries++
	if batchID != "" {
		s.batch(batchID).retries++
	}
}

func (s *Store) batch(id string) *batchStats {
	b, ok := s.batches[id]
	if !ok {
		b = &batchStats{}
		s.batches[id] = b
	}
	return b
}

// Snapshot implements Collector.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Counts:      s.totals,
		Retries:     s.retries,
		Images:      s.images,
		AvgDuration: average(s.totalDuration, s.timedJobs),
		ErrorCodes:  maps.Clone(s.errorCodes),
		Batches:     make(map[string]*BatchMetrics, len(s.batches)),
		Version:     s.version,
		Uptime:      s.now().Sub(s.startTime),
	}
	for id, b := range s.batches {
		snap.Batches[id] = &BatchMetrics{
			Counts:      b.counts,
			Retries:     b.retries,
			Images:      b.images,
			AvgDuration: average(b.totalDuration, b.timedJobs),
		}
	}
	return snap
}

// RecentJobs implements Collector.
func (s *Store) RecentJobs(limit int) []JobRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || s.size == 0 {
		return []JobRecord{}
	}
	if limit > s.size {
		limit = s.size
	}
	out := make([]JobRecord, limit)
	for i := 0; i < limit; i++ {
		out[i] = s.history[(s.head-limit+i+s.cap)%s.cap]
	}
	return out
}

func average(total time.Duration, n int64) time.Duration {
	if n == 0 {
		return 0
	}
	return total / time.Duration(n)
}

var (
	_ Collector       = (*Store)(nil)
	_ runner.Observer = (*Store)(nil)
)
