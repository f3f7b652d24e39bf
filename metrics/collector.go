package metrics

// Collector accumulates finished jobs. Implementations are safe for
// concurrent use.
type Collector interface {
	// RecordJob adds one finished job.
	RecordJob(rec JobRecord)

	// RecordRetry counts one scheduled retry.
	RecordRetry(batchID string, code string)

	// Snapshot returns the aggregated statistics.
	Snapshot() Snapshot

	// RecentJobs returns up to limit of the most recent records, oldest
	// first.
	RecentJobs(limit int) []JobRecord
}
