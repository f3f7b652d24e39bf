package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"promptbatch/batch"
	"promptbatch/core"
	"promptbatch/db"
	"promptbatch/imagegen"
	"promptbatch/jobqueue"
	"promptbatch/logging"
	"promptbatch/metrics"
	"promptbatch/prompt"
	"promptbatch/runner"
	"promptbatch/shutdown"
	"promptbatch/wildcard"
)

type runOptions struct {
	dryRun   bool
	keepJobs bool
	quiet    bool
	workers  int
}

func newRunCmd(a *app) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run <batch.yaml>",
		Short: "Resolve a batch file and generate its images",
		Long: `Resolve every batch in a YAML batch file, queue the prompts and submit
them to the configured backend. Images are written under OUTPUT_DIR and
finished jobs are recorded in HISTORY_DB.

Exit status is 0 when every job completed, 2 when some failed or were
cancelled, and 130/143 when interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd.Context(), a, cmd.OutOrStdout(), args[0], opts)
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&opts.dryRun, "dry-run", false, "resolve and print the prompts without generating")
	flags.BoolVar(&opts.keepJobs, "keep-jobs", false, "keep archived jobs in the in-memory queue")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "only print the summary")
	flags.IntVar(&opts.workers, "workers", 0, "concurrent submissions (default WORKERS)")
	return cmd
}

func runBatch(ctx context.Context, a *app, out io.Writer, path string, opts *runOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	specs, err := batch.LoadFile(path)
	if err != nil {
		return err
	}
	resolver, err := a.resolver()
	if err != nil {
		return err
	}

	q := jobqueue.New()
	planner := batch.NewPlanner(prompt.NewBuilder(resolver), q,
		batch.WithDefaultPolicy(wildcard.ParseVariantPolicy(a.cfg.VariantPolicy)),
		batch.WithPlannerLogger(a.logger),
	)

	if opts.dryRun {
		for _, spec := range specs {
			plan, err := planner.Prepare(spec)
			if err != nil {
				return err
			}
			printPlan(out, plan)
		}
		return nil
	}

	plans, err := planner.PlanAll(specs)
	if err != nil {
		return err
	}

	mgr := shutdown.NewManager(a.logger, shutdown.WithParent(ctx))
	mgr.Start()
	defer mgr.Shutdown()

	client, closer, err := imagegen.NewFromConfig(a.cfg, nil)
	if err != nil {
		return err
	}
	mgr.Register("backend", shutdown.PriorityClose, shutdown.Close(closer))
	mgr.Register("queue", shutdown.PriorityStopWork, func(context.Context) error {
		q.Close()
		return nil
	})

	runID := uuid.NewString()
	stats := metrics.NewStore(metrics.StoreConfig{HistoryCapacity: 1000, Version: core.GetVersion()}, time.Now())
	sink := imagegen.NewFileSink(a.cfg.OutputDir,
		imagegen.WithThumbnails(a.cfg.ThumbnailSize),
		imagegen.WithSinkLogger(a.logger),
	)
	observers := []runner.Observer{stats, sink}
	if !opts.quiet {
		observers = append(observers, newProgressPrinter(out, plans))
	}

	var archiver *db.Archiver
	if a.cfg.HistoryEnabled() {
		archiver, err = openArchiver(a, mgr, q, runID, opts.keepJobs)
		if err != nil {
			return err
		}
		// Last, so the other observers see jobs before they leave the queue.
		observers = append(observers, archiver)
	}
	mgr.Register("partial outputs", shutdown.PriorityFinal, shutdown.CleanupPartialOutputs(a.logger, a.cfg.OutputDir))
	mgr.Register("logger", shutdown.PriorityFinal, shutdown.SyncLogger(a.logger))

	workers := a.cfg.Workers
	if opts.workers > 0 {
		workers = opts.workers
	}
	r := runner.New(q, client,
		runner.WithMaxRetries(a.cfg.MaxRetries),
		runner.WithAttemptTimeout(a.cfg.AttemptTimeout),
		runner.WithBackoff(&runner.Backoff{
			Initial:    a.cfg.RetryDelay,
			Max:        a.cfg.RetryMaxDelay,
			Multiplier: runner.DefaultBackoffMultiplier,
			Jitter:     runner.DefaultBackoffJitter,
		}),
		runner.WithWorkers(workers),
		runner.WithObserver(runner.Observers(observers...)),
		runner.WithLogger(a.logger),
		runner.WithDrain(true),
	)

	a.logger.Info("Run starting",
		zap.String("run_id", runID),
		zap.Int("batches", len(plans)),
		zap.Int("jobs", q.Stats().Enqueued),
		zap.String("backend", a.cfg.Backend),
		zap.Int("workers", workers),
	)
	start := time.Now()
	runErr := mgr.WrapOperation(mgr.Context(), "run", r.Run)
	interrupted := mgr.Interrupted()

	if archiver != nil {
		archiver.Sweep()
	}
	if err := mgr.Shutdown(); err != nil {
		a.logger.Warn("Shutdown incomplete", zap.Error(err))
	}

	snap := stats.Snapshot()
	printSummary(out, plans, snap, q.Stats(), sink.Written(), time.Since(start))

	switch {
	case interrupted:
		return &exitError{code: mgr.ExitCode()}
	case runErr != nil && !errors.Is(runErr, context.Canceled):
		return runErr
	case snap.Failed > 0 || snap.Cancelled > 0:
		return &exitError{code: core.ExitCodeJobsFailed}
	}
	return nil
}

// openArchiver opens the history database and returns an observer that
// moves finished jobs into it.
func openArchiver(a *app, mgr *shutdown.Manager, q *jobqueue.Queue, runID string, keep bool) (*db.Archiver, error) {
	database, err := db.Open(a.cfg.HistoryDB)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	repo := db.NewJobRepository(database)

	log := a.logger.Named("history")
	async := db.NewAsyncWriter(repo.InsertJob, db.WithErrorHandler(func(rec db.HistoryRecord, err error) {
		log.Warn("Failed to archive job", zap.Int64(logging.KeyJobID, rec.JobID), zap.Error(err))
	}))
	async.Start()

	archiver := db.NewArchiver(repo, q, runID,
		db.WithAsyncWriter(async),
		db.WithArchiverLogger(a.logger),
		db.WithKeepJobs(keep),
	)
	mgr.Register("history writer", shutdown.PriorityFlush, archiver.Close)
	mgr.Register("history database", shutdown.PriorityClose, shutdown.Close(database))
	return archiver, nil
}
