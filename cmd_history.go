package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"promptbatch/db"
	"promptbatch/jobqueue"
)

type historyOptions struct {
	limit     int
	batchID   string
	olderThan time.Duration
}

func newHistoryCmd(a *app) *cobra.Command {
	opts := &historyOptions{}
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show archived jobs from HISTORY_DB",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHistory(cmd.Context(), a, cmd.OutOrStdout(), opts)
		},
	}

	flags := cmd.Flags()
	flags.IntVarP(&opts.limit, "limit", "l", 20, "number of recent jobs to show")
	flags.StringVar(&opts.batchID, "batch", "", "show every job of one batch id")
	flags.DurationVar(&opts.olderThan, "prune", 0, "delete jobs that finished longer ago than this, e.g. 720h")
	return cmd
}

func runHistory(ctx context.Context, a *app, out io.Writer, opts *historyOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if !a.cfg.HistoryEnabled() {
		return fmt.Errorf("job history is disabled (HISTORY_DB=%q)", a.cfg.HistoryDB)
	}
	database, err := db.Open(a.cfg.HistoryDB)
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}
	defer database.Close()
	repo := db.NewJobRepository(database)

	if opts.olderThan > 0 {
		n, err := repo.Prune(ctx, time.Now().Add(-opts.olderThan))
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Pruned %d jobs older than %s\n", n, opts.olderThan)
		return nil
	}

	var records []db.HistoryRecord
	if opts.batchID != "" {
		records, err = repo.JobsForBatch(ctx, opts.batchID)
	} else {
		records, err = repo.RecentJobs(ctx, opts.limit)
	}
	if err != nil {
		return err
	}
	counts, err := repo.CountByStatus(ctx)
	if err != nil {
		return err
	}

	dim := color.New(color.FgHiBlack)
	if len(records) == 0 {
		fmt.Fprintln(out, "No archived jobs.")
	}
	for _, rec := range records {
		statusColor(rec.Status).Fprintf(out, "%-9s", rec.Status)
		fmt.Fprintf(out, " %s  %s\n", shortID(rec.BatchID), rec.Prompt)
		dim.Fprintf(out, "          %s, seed %d", humanize.Time(rec.FinishedAt), rec.Seed)
		if rec.Backend != "" {
			dim.Fprintf(out, ", %s", rec.Backend)
		}
		if rec.Duration > 0 {
			dim.Fprintf(out, ", %s", rec.Duration.Round(10*time.Millisecond))
		}
		if rec.ErrorCode != "" {
			dim.Fprintf(out, ", %s: %s", rec.ErrorCode, rec.ErrorMessage)
		}
		fmt.Fprintln(out)
	}

	total := counts[jobqueue.StatusCompleted] + counts[jobqueue.StatusFailed] + counts[jobqueue.StatusCancelled]
	color.New(color.FgCyan, color.Bold).Fprintf(out, "%s jobs archived", humanize.Comma(int64(total)))
	dim.Fprintf(out, " (%d completed, %d failed, %d cancelled)\n",
		counts[jobqueue.StatusCompleted], counts[jobqueue.StatusFailed], counts[jobqueue.StatusCancelled])
	return nil
}

func statusColor(s jobqueue.Status) *color.Color {
	switch s {
	case jobqueue.StatusCompleted:
		return color.New(color.FgGreen)
	case jobqueue.StatusFailed:
		return color.New(color.FgRed)
	default:
		return color.New(color.FgYellow)
	}
}

// shortID trims a uuid to its first group.
func shortID(id string) string {
	if id == "" {
		return "-"
	}
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
