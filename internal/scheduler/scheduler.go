// Package scheduler polls the run table for queued runs and executes them.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/abdulachik/recast/internal/db"
	"github.com/abdulachik/recast/internal/pipeline"
)

const (
	DefaultInterval  = 30 * time.Second
	DefaultBatchSize = 10
)

// RunQueue is the run table as seen by the scheduler.
type RunQueue interface {
	ListQueuedRuns(ctx context.Context, limit int) ([]db.Run, error)
	ClaimRun(ctx context.Context, id string) (bool, error)
	UpdateRunStatus(ctx context.Context, id, status, message string) error
}

// Executor runs one pipeline request.
type Executor interface {
	Run(ctx context.Context, req pipeline.Request) *pipeline.Result
}

// Scheduler executes queued runs one at a time.
type Scheduler struct {
	queue    RunQueue
	runner   Executor
	interval time.Duration
	batch    int
	health   *Health
}

// Config holds scheduler configuration.
type Config struct {
	Queue     RunQueue
	Runner    Executor
	Interval  time.Duration
	BatchSize int
	Health    *Health
}

// New creates a new scheduler.
func New(cfg Config) *Scheduler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	health := cfg.Health
	if health == nil {
		health = NewHealth()
	}
	return &Scheduler{
		queue:    cfg.Queue,
		runner:   cfg.Runner,
		interval: interval,
		batch:    batch,
		health:   health,
	}
}

// Run polls until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	slog.Info("starting scheduler", "poll_interval", s.interval, "batch_size", s.batch)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Poll(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler shutting down")
			return ctx.Err()
		case <-ticker.C:
			s.Poll(ctx)
		}
	}
}

// Poll claims and executes the queued runs visible now. It returns the
// number of runs executed.
func (s *Scheduler) Poll(ctx context.Context) int {
	runs, err := s.queue.ListQueuedRuns(ctx, s.batch)
	if err != nil {
		s.health.SetUnhealthy("queue", err)
		slog.Error("failed to list queued runs", "error", err)
		return 0
	}
	s.health.SetHealthy("queue", "polled")
	if len(runs) == 0 {
		slog.Debug("no queued runs")
		return 0
	}

	executed := 0
	for _, run := range runs {
		if ctx.Err() != nil {
			break
		}
		claimed, err := s.queue.ClaimRun(ctx, run.ID)
		if err != nil {
			slog.Warn("failed to claim run", "run_id", run.ID, "error", err)
			continue
		}
		if !claimed {
			// Another worker took it.
			continue
		}

		req, err := pipeline.RequestFromRun(run)
		if err != nil {
			if uerr := s.queue.UpdateRunStatus(ctx, run.ID, db.RunFailed, err.Error()); uerr != nil {
				slog.Warn("failed to mark run failed", "run_id", run.ID, "error", uerr)
			}
			continue
		}

		res := s.runner.Run(ctx, req)
		executed++
		if ok, msg := res.OK(); ok {
			s.health.SetHealthy("pipeline", msg)
		} else {
			s.health.SetUnhealthy("pipeline", res.Err)
		}
	}
	return executed
}

// Health returns the health tracker.
func (s *Scheduler) Health() *Health {
	return s.health
}
