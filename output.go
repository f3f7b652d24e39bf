package main

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"promptbatch/batch"
	"promptbatch/jobqueue"
	"promptbatch/metrics"
	"promptbatch/runner"
)

// progressPrinter prints one line per finished job and per retry.
type progressPrinter struct {
	mu    sync.Mutex
	out   io.Writer
	names map[string]string
}

func newProgressPrinter(out io.Writer, plans []*batch.Plan) *progressPrinter {
	names := make(map[string]string, len(plans))
	for _, p := range plans {
		names[p.BatchID] = p.Name
	}
	return &progressPrinter{out: out, names: names}
}

func (p *progressPrinter) OnProgress(ev runner.ProgressEvent) {
	var (
		mark string
		clr  *color.Color
	)
	switch {
	case ev.Status == jobqueue.StatusCompleted:
		mark, clr = "ok", color.New(color.FgGreen)
	case ev.Status == jobqueue.StatusFailed:
		mark, clr = "FAIL", color.New(color.FgRed)
	case ev.Status == jobqueue.StatusCancelled:
		mark, clr = "cancel", color.New(color.FgHiBlack)
	case ev.Status == jobqueue.StatusQueued && ev.ErrorCode != "":
		mark, clr = "retry", color.New(color.FgYellow)
	default:
		return
	}
	dim := color.New(color.FgHiBlack)

	p.mu.Lock()
	defer p.mu.Unlock()

	if ev.Terminal() {
		fmt.Fprintf(p.out, "[%*d/%d] ", digits(ev.Total), ev.Index, ev.Total)
	} else {
		fmt.Fprintf(p.out, "[%*s] ", 2*digits(ev.Total)+1, "")
	}
	clr.Fprintf(p.out, "%-6s", mark)
	fmt.Fprintf(p.out, " %s #%d", p.names[ev.BatchID], ev.JobID)

	switch {
	case ev.Result != nil:
		dim.Fprintf(p.out, "  %s, seed %d, %d image(s)", ev.Result.Duration.Round(10*time.Millisecond), ev.Result.Seed, len(ev.Result.Images))
	case ev.Error != "":
		dim.Fprintf(p.out, "  %s: %s", ev.ErrorCode, ev.Error)
	}
	fmt.Fprintln(p.out)
}

func digits(n int) int {
	d := 1
	for n >= 10 {
		n /= 10
		d++
	}
	return d
}

// printPlan lists the prompts of a prepared batch.
func printPlan(out io.Writer, plan *batch.Plan) {
	color.New(color.FgCyan, color.Bold).Fprintf(out, "%s ", plan.Name)
	color.New(color.FgHiBlack).Fprintf(out, "(%d jobs, seed %d)\n", len(plan.Items), plan.Seed)
	dim := color.New(color.FgHiBlack)
	for i, it := range plan.Items {
		fmt.Fprintf(out, "%4d. %s\n", i+1, it.Prompt.Prompt)
		if it.Prompt.NegativePrompt != "" {
			dim.Fprintf(out, "      negative: %s\n", it.Prompt.NegativePrompt)
		}
		dim.Fprintf(out, "      seed %d, %dx%d, %d steps\n",
			it.Parameters.Seed, it.Parameters.Width, it.Parameters.Height, it.Parameters.Steps)
	}
}

// printSummary reports the outcome of a run.
func printSummary(out io.Writer, plans []*batch.Plan, snap metrics.Snapshot, stats jobqueue.Stats, saved int64, took time.Duration) {
	fmt.Fprintln(out)
	color.New(color.FgCyan, color.Bold).Fprintln(out, "Summary")
	dim := color.New(color.FgHiBlack)

	ordered := make([]*batch.Plan, len(plans))
	copy(ordered, plans)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Name < ordered[j].Name })
	for _, p := range ordered {
		b, ok := snap.Batches[p.BatchID]
		if !ok {
			b = &metrics.BatchMetrics{}
		}
		fmt.Fprintf(out, "  %-20s %d/%d completed", p.Name, b.Completed, len(p.Items))
		if b.Failed > 0 {
			color.New(color.FgRed).Fprintf(out, ", %d failed", b.Failed)
		}
		if b.Cancelled > 0 {
			color.New(color.FgYellow).Fprintf(out, ", %d cancelled", b.Cancelled)
		}
		if b.AvgDuration > 0 {
			dim.Fprintf(out, "  avg %s", b.AvgDuration.Round(10*time.Millisecond))
		}
		fmt.Fprintln(out)
	}

	codes := make([]string, 0, len(snap.ErrorCodes))
	for code := range snap.ErrorCodes {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		dim.Fprintf(out, "  error %s: %d\n", code, snap.ErrorCodes[code])
	}
	if stats.Queued > 0 {
		color.New(color.FgYellow).Fprintf(out, "  %d jobs not run\n", stats.Queued)
	}

	line := color.New(color.FgGreen, color.Bold)
	if snap.Failed > 0 || snap.Cancelled > 0 || stats.Queued > 0 {
		line = color.New(color.FgRed, color.Bold)
	}
	line.Fprintf(out, "%d/%d jobs completed", snap.Completed, stats.Enqueued)
	dim.Fprintf(out, " (%s images saved, %d retries, %s)\n",
		humanize.Comma(saved), snap.Retries, took.Round(time.Millisecond))
}
