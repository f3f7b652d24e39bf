package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"promptbatch/jobqueue"
)

// HistoryRecord is one archived job.
type HistoryRecord struct {
	ID             int64
	RunID          string // identifies the process run; job ids restart per run
	JobID          int64
	BatchID        string
	BatchIndex     int
	Prompt         string
	NegativePrompt string
	Parameters     jobqueue.Parameters
	Status         jobqueue.Status
	RetryCount     int
	ErrorCode      string
	ErrorMessage   string
	Backend        string
	Seed           int64
	ImageCount     int
	Duration       time.Duration
	CreatedAt      time.Time
	FinishedAt     time.Time
}

// RecordFromJob converts a terminal job snapshot.
func RecordFromJob(runID string, job jobqueue.Job) HistoryRecord {
	rec := HistoryRecord{
		RunID:          runID,
		JobID:          job.ID,
		BatchID:        job.BatchID,
		BatchIndex:     job.BatchIndex,
		Prompt:         job.Prompt.Prompt,
		NegativePrompt: job.Prompt.NegativePrompt,
		Parameters:     job.Parameters,
		Status:         job.Status,
		RetryCount:     job.RetryCount,
		ErrorCode:      job.ErrorCode,
		ErrorMessage:   job.Error,
		Seed:           job.Parameters.Seed,
		Duration:       job.Duration(),
		CreatedAt:      job.CreatedAt,
		FinishedAt:     time.Now(),
	}
	if job.FinishedAt != nil {
		rec.FinishedAt = *job.FinishedAt
	}
	if job.Result != nil {
		rec.Backend = job.Result.Backend
		rec.Seed = job.Result.Seed
		rec.ImageCount = len(job.Result.Images)
	}
	return rec
}

// JobRepository reads and writes job_history.
type JobRepository struct {
	db *Database
}

// NewJobRepository wraps d.
func NewJobRepository(d *Database) *JobRepository {
	return &JobRepository{db: d}
}

const historyColumns = `id, run_id, job_id, batch_id, batch_index, prompt, negative_prompt,
	parameters, status, retry_count, error_code, error_message, backend, seed,
	image_count, duration_ms, created_at, finished_at`

// InsertJob stores rec and returns its row id. Re-archiving the same run
// and job id replaces the earlier row.
func (r *JobRepository) InsertJob(ctx context.Context, rec HistoryRecord) (int64, error) {
	conn, err := r.db.conn()
	if err != nil {
		return 0, err
	}
	if !rec.Status.IsTerminal() {
		return 0, fmt.Errorf("job %d is %s, only finished jobs are archived", rec.JobID, rec.Status)
	}
	params, err := json.Marshal(rec.Parameters)
	if err != nil {
		return 0, fmt.Errorf("failed to encode parameters: %w", err)
	}

	res, err := conn.ExecContext(ctx, `
		INSERT OR REPLACE INTO job_history (
			run_id, job_id, batch_id, batch_index, prompt, negative_prompt,
			parameters, status, retry_count, error_code, error_message, backend, seed,
			image_count, duration_ms, created_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.JobID, rec.BatchID, rec.BatchIndex, rec.Prompt, rec.NegativePrompt,
		string(params), string(rec.Status), rec.RetryCount, rec.ErrorCode, rec.ErrorMessage,
		rec.Backend, rec.Seed, rec.ImageCount, rec.Duration.Milliseconds(),
		rec.CreatedAt.UTC(), rec.FinishedAt.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert job %d: %w", rec.JobID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}
	return id, nil
}

// RecentJobs returns up to limit records, newest first. A limit of 0 or
// less means 20.
func (r *JobRepository) RecentJobs(ctx context.Context, limit int) ([]HistoryRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	return r.query(ctx, `SELECT `+historyColumns+` FROM job_history
		ORDER BY finished_at DESC, id DESC LIMIT ?`, limit)
}

// JobsForBatch returns a batch's records in batch order.
func (r *JobRepository) JobsForBatch(ctx context.Context, batchID string) ([]HistoryRecord, error) {
	return r.query(ctx, `SELECT `+historyColumns+` FROM job_history
		WHERE batch_id = ? ORDER BY batch_index, id`, batchID)
}

// CountByStatus tallies archived jobs by status.
func (r *JobRepository) CountByStatus(ctx context.Context) (map[jobqueue.Status]int, error) {
	conn, err := r.db.conn()
	if err != nil {
		return nil, err
	}
	rows, err := conn.QueryContext(ctx, `SELECT status, COUNT(*) FROM job_history GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[jobqueue.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[jobqueue.Status(status)] = n
	}
	return counts, rows.Err()
}

// Prune deletes records finished before cutoff and returns how many went.
func (r *JobRepository) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	conn, err := r.db.conn()
	if err != nil {
		return 0, err
	}
	res, err := conn.ExecContext(ctx, `DELETE FROM job_history WHERE finished_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune history: %w", err)
	}
	return res.RowsAffected()
}

func (r *JobRepository) query(ctx context.Context, query string, args ...interface{}) ([]HistoryRecord, error) {
	conn, err := r.db.conn()
	if err != nil {
		return nil, err
	}
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query job history: %w", err)
	}
	defer rows.Close()

	var out []HistoryRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanRecord(rows *sql.Rows) (HistoryRecord, error) {
	var (
		rec        HistoryRecord
		params     string
		status     string
		durationMS int64
	)
	err := rows.Scan(
		&rec.ID, &rec.RunID, &rec.JobID, &rec.BatchID, &rec.BatchIndex,
		&rec.Prompt, &rec.NegativePrompt, &params, &status, &rec.RetryCount,
		&rec.ErrorCode, &rec.ErrorMessage, &rec.Backend, &rec.Seed,
		&rec.ImageCount, &durationMS, &rec.CreatedAt, &rec.FinishedAt,
	)
	if err != nil {
		return rec, fmt.Errorf("failed to scan job history row: %w", err)
	}
	if err := json.NewDecoder(strings.NewReader(params)).Decode(&rec.Parameters); err != nil {
		return rec, fmt.Errorf("failed to decode parameters of job %d: %w", rec.JobID, err)
	}
	rec.Status = jobqueue.Status(status)
	rec.Duration = time.Duration(durationMS) * time.Millisecond
	return rec, nil
}
