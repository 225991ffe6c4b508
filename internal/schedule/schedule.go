package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cshealth/internal/clock"
	"cshealth/internal/config"

	"github.com/robfig/cron/v3"
)

// Job is one scheduled activation.
type Job func(ctx context.Context) error

// Runner invokes job at every cron activation until context is cancelled.
// Params: parsed schedule, job, clock, and logger.
// Returns: blocking loop started with Run.
type Runner struct {
	name     string
	schedule cron.Schedule
	job      Job
	clock    clock.Clock
	logger   *slog.Logger
}

// New parses 5-field cron expression and builds runner.
// Params: runner name for logs, cron expression, job, clock, and logger.
// Returns: runner or parse error.
func New(name, expr string, job Job, clk clock.Clock, logger *slog.Logger) (*Runner, error) {
	sched, err := config.ParseCron(expr)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", expr, err)
	}
	return NewWithSchedule(name, sched, job, clk, logger), nil
}

// NewWithSchedule builds runner from already parsed schedule.
func NewWithSchedule(name string, sched cron.Schedule, job Job, clk clock.Clock, logger *slog.Logger) *Runner {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{name: name, schedule: sched, job: job, clock: clk, logger: logger}
}

// Run waits for each activation and invokes the job; job errors are logged.
// Params: context controlling loop lifetime.
// Returns: context error after cancellation.
func (r *Runner) Run(ctx context.Context) error {
	for {
		now := r.clock.Now()
		next := r.schedule.Next(now)
		if next.IsZero() {
			r.logger.Warn("schedule has no further activations", "schedule", r.name)
			<-ctx.Done()
			return ctx.Err()
		}
		wait := next.Sub(now)
		r.logger.Debug("next scheduled run", "schedule", r.name, "at", next, "in", wait.Round(time.Second))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		started := r.clock.Now()
		if err := r.job(ctx); err != nil {
			r.logger.Error("scheduled run failed", "schedule", r.name, "error", err)
			continue
		}
		r.logger.Info("scheduled run complete", "schedule", r.name, "took", r.clock.Now().Sub(started).Round(time.Millisecond))
	}
}
