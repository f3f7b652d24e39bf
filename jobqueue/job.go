package jobqueue

import (
	"time"

	"promptbatch/prompt"
)

// Image is one generated image.
type Image struct {
	Data   []byte `json:"-"`
	Format string `json:"format"` // "png", "jpeg" or "webp"
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Result is what the generation backend returned for a job.
type Result struct {
	Images   []Image       `json:"images"`
	Seed     int64         `json:"seed"`
	Backend  string        `json:"backend,omitempty"`
	Info     string        `json:"info,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Job is a single generation request and its lifecycle record.
// Values returned by the queue are snapshots; changing them has no effect.
type Job struct {
	ID         int64
	BatchID    string
	BatchIndex int

	Prompt     prompt.Resolved
	Parameters Parameters

	Status     Status
	RetryCount int

	CreatedAt     time.Time
	StartedAt     *time.Time
	FinishedAt    *time.Time
	NextAttemptAt time.Time

	Result    *Result
	Error     string
	ErrorCode string
}

// Item is the input for EnqueueBatch.
type Item struct {
	Prompt     prompt.Resolved
	Parameters Parameters
}

// Duration returns the time from first dispatch to completion, or zero.
func (j Job) Duration() time.Duration {
	if j.StartedAt == nil || j.FinishedAt == nil {
		return 0
	}
	return j.FinishedAt.Sub(*j.StartedAt)
}

func (j *Job) clone() Job {
	c := *j
	c.Parameters = j.Parameters.Clone()
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		c.FinishedAt = &t
	}
	if j.Result != nil {
		r := *j.Result
		r.Images = append([]Image(nil), j.Result.Images...)
		c.Result = &r
	}
	return c
}
