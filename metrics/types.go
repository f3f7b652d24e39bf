// Package metrics aggregates finished jobs into run statistics: totals by
// status, retry counts, attempt durations and per-batch breakdowns.
package metrics

import (
	"time"

	"promptbatch/jobqueue"
)

// JobRecord is one finished job.
type JobRecord struct {
	JobID      int64           `json:"job_id"`
	BatchID    string          `json:"batch_id,omitempty"`
	Status     jobqueue.Status `json:"status"`
	Retries    int             `json:"retries"`
	Images     int             `json:"images"`
	Duration   time.Duration   `json:"duration"`
	ErrorCode  string          `json:"error_code,omitempty"`
	ErrorMsg   string          `json:"error_msg,omitempty"`
	FinishedAt time.Time       `json:"finished_at"`
}

// Counts tallies finished jobs by terminal status.
type Counts struct {
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Cancelled int64 `json:"cancelled"`
}

// Total returns the number of finished jobs.
func (c Counts) Total() int64 {
	return c.Completed + c.Failed + c.Cancelled
}

// SuccessRate is the completed share as a percentage, 0 when empty.
func (c Counts) SuccessRate() float64 {
	if c.Total() == 0 {
		return 0
	}
	return float64(c.Completed) / float64(c.Total()) * 100
}

func (c *Counts) add(s jobqueue.Status) {
	switch s {
	case jobqueue.StatusCompleted:
		c.Completed++
	case jobqueue.StatusFailed:
		c.Failed++
	case jobqueue.StatusCancelled:
		c.Cancelled++
	}
}

// BatchMetrics summarizes the finished jobs of one batch.
type BatchMetrics struct {
	Counts
	Retries     int64         `json:"retries"`
	Images      int64         `json:"images"`
	AvgDuration time.Duration `json:"avg_duration"`
}

// Snapshot is a point-in-time copy of the aggregated statistics.
type Snapshot struct {
	Counts
	// Retries counts scheduled retries, including those of jobs that
	// later completed.
	Retries     int64                    `json:"retries"`
	Images      int64                    `json:"images"`
	AvgDuration time.Duration            `json:"avg_duration"`
	ErrorCodes  map[string]int64         `json:"error_codes,omitempty"`
	Batches     map[string]*BatchMetrics `json:"batches,omitempty"`
	Version     string                   `json:"version"`
	Uptime      time.Duration            `json:"uptime"`
}

// Throughput is finished jobs per minute of uptime.
func (s Snapshot) Throughput() float64 {
	if s.Uptime <= 0 {
		return 0
	}
	return float64(s.Total()) / s.Uptime.Minutes()
}
