// Package pipeline runs a stage over a set of chapters, one at a time.
package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/valpere/chaptran/internal/processor"
)

type ProcessFunc func(ctx context.Context, chapter int) processor.Outcome

type Summary struct {
	Total          int
	Done           int
	Skipped        int
	Failed         int
	FailedChapters []int
	// Remaining counts chapters never started because the run was cancelled.
	Remaining int
}

// Succeeded counts chapters whose output exists after the run.
func (s Summary) Succeeded() int {
	return s.Done + s.Skipped
}

type Runner struct {
	Process ProcessFunc
	// Delay separates consecutive chapters. No delay follows the last one.
	Delay  time.Duration
	Logger *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

func NewRunner(process ProcessFunc, delay time.Duration, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{Process: process, Delay: delay, Logger: logger, sleep: sleepWithCtx}
}

// Run processes chapters in order. A failed chapter never stops the run;
// only ctx cancellation does.
func (r *Runner) Run(ctx context.Context, chapters []int) Summary {
	sum := Summary{Total: len(chapters)}
	if len(chapters) == 0 {
		r.Logger.Warn("no chapters to process")
		return sum
	}

	r.Logger.Info("starting run", "chapters", len(chapters), "first", chapters[0], "last", chapters[len(chapters)-1])

	for i, n := range chapters {
		if ctx.Err() != nil {
			sum.Remaining = len(chapters) - i
			r.Logger.Warn("run cancelled", "remaining", sum.Remaining)
			break
		}

		out := r.Process(ctx, n)
		switch out.Status {
		case processor.Done:
			sum.Done++
		case processor.Skipped:
			sum.Skipped++
		default:
			sum.Failed++
			sum.FailedChapters = append(sum.FailedChapters, n)
		}

		if i < len(chapters)-1 {
			if err := r.sleep(ctx, r.Delay); err != nil {
				sum.Remaining = len(chapters) - i - 1
				r.Logger.Warn("run cancelled", "remaining", sum.Remaining)
				break
			}
		}
	}

	r.logSummary(sum)
	return sum
}

func (r *Runner) logSummary(s Summary) {
	rule := strings.Repeat("=", 60)
	r.Logger.Info(rule)
	r.Logger.Info("run complete")
	r.Logger.Info("succeeded", "count", s.Succeeded(), "of", s.Total, "done", s.Done, "skipped", s.Skipped)
	if s.Failed > 0 {
		r.Logger.Info("failed", "count", s.Failed, "of", s.Total, "chapters", s.FailedChapters)
	} else {
		r.Logger.Info("failed", "count", 0, "of", s.Total)
	}
	r.Logger.Info(rule)
}

// Range returns count consecutive chapter numbers starting at start.
func Range(start, count int) []int {
	if count <= 0 {
		return nil
	}
	out := make([]int, count)
	for i := range out {
		out[i] = start + i
	}
	return out
}

func sleepWithCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
