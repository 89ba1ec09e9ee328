// Package scheduler owns cron/interval-triggered invocations of sync and
// job cleanup (§4.9), adapted from the teacher's cleanup service loop.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/sjafferali/stashhog-sub000/internal/config"
	"github.com/sjafferali/stashhog-sub000/internal/jobs"
	"github.com/sjafferali/stashhog-sub000/internal/model"
)

// fullSyncGrace and incrementalGrace bound how late a missed fire may still
// run (§4.9); beyond them a fire is dropped rather than executed.
const (
	fullSyncGrace    = time.Hour
	incrementalGrace = 5 * time.Minute
	tickInterval     = 15 * time.Second
)

// JobSubmitter is the subset of *jobs.Manager the Scheduler drives. An
// interface keeps the ticking logic testable without a worker pool.
type JobSubmitter interface {
	Submit(ctx context.Context, jobType model.JobType, metadata map[string]any) (string, error)
	SweepStale(ctx context.Context, staleAfter time.Duration) (int, error)
}

var _ JobSubmitter = (*jobs.Manager)(nil)

// Scheduler runs the three timers described in §4.9: a cron-triggered full
// sync, an interval-triggered incremental sync, and a periodic stale-job
// sweep. Each sync fire submits a Job rather than running the engine
// inline, so the worker pool owns execution and JobManager's lifecycle
// guarantees apply regardless of trigger source. The cleanup timer calls
// SweepStale directly with cfg.StaleJobAfter instead of submitting a Job.
type Scheduler struct {
	cfg    config.SchedulerConfig
	jobs   JobSubmitter
	cron   *Schedule
	nowFn  func() time.Time
	cancel context.CancelFunc
	done   chan struct{}

	nextFullSync  time.Time
	nextIncrement time.Time
	nextCleanup   time.Time
}

// New constructs a Scheduler. cfg.FullSyncCron must parse as a 5-field cron
// expression.
func New(cfg config.SchedulerConfig, submitter JobSubmitter) (*Scheduler, error) {
	cron, err := ParseCron(cfg.FullSyncCron)
	if err != nil {
		return nil, err
	}
	return &Scheduler{cfg: cfg, jobs: submitter, cron: cron, nowFn: time.Now}, nil
}

// Start launches the background scheduling loop.
func (s *Scheduler) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	now := s.nowFn()
	next, err := s.cron.Next(now.Add(-time.Minute))
	if err != nil {
		slog.Error("scheduler: invalid full sync cron, full sync disabled", "error", err)
		next = time.Time{}
	}
	s.nextFullSync = next
	s.nextIncrement = now.Add(s.incrementalInterval())
	s.nextCleanup = now.Add(s.cleanupInterval())

	go s.run(ctx)

	slog.Info("scheduler started",
		"full_sync_cron", s.cfg.FullSyncCron,
		"incremental_minutes", s.cfg.IncrementalSyncMinutes,
		"cleanup_minutes", s.cfg.CleanupIntervalMinutes)
}

// Stop signals the loop to exit and waits for it to finish.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("scheduler stopped")
}

func (s *Scheduler) incrementalInterval() time.Duration {
	minutes := s.cfg.IncrementalSyncMinutes
	if minutes < 5 {
		minutes = 5
	}
	return time.Duration(minutes) * time.Minute
}

func (s *Scheduler) cleanupInterval() time.Duration {
	minutes := s.cfg.CleanupIntervalMinutes
	if minutes <= 0 {
		minutes = 30
	}
	return time.Duration(minutes) * time.Minute
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	now := s.nowFn()
	s.checkFullSync(ctx, now)
	s.checkIncrementalSync(ctx, now)
	s.checkCleanup(ctx, now)
}

func (s *Scheduler) checkFullSync(ctx context.Context, now time.Time) {
	if s.nextFullSync.IsZero() || now.Before(s.nextFullSync) {
		return
	}
	fireAt := s.nextFullSync
	next, err := s.cron.Next(fireAt)
	if err != nil {
		slog.Error("scheduler: failed to compute next full sync fire", "error", err)
	} else {
		s.nextFullSync = next
	}

	if now.Sub(fireAt) > fullSyncGrace {
		slog.Warn("scheduler: dropped late full sync fire", "scheduled_for", fireAt, "now", now)
		return
	}
	s.submit(ctx, model.JobTypeFullSync, map[string]any{"force": s.cfg.FullSyncForce})
}

func (s *Scheduler) checkIncrementalSync(ctx context.Context, now time.Time) {
	if now.Before(s.nextIncrement) {
		return
	}
	fireAt := s.nextIncrement
	s.nextIncrement = fireAt.Add(s.incrementalInterval())

	if now.Sub(fireAt) > incrementalGrace {
		slog.Warn("scheduler: dropped late incremental sync fire", "scheduled_for", fireAt, "now", now)
		return
	}
	s.submit(ctx, model.JobTypeIncrementalSync, nil)
}

func (s *Scheduler) checkCleanup(ctx context.Context, now time.Time) {
	if now.Before(s.nextCleanup) {
		return
	}
	s.nextCleanup = now.Add(s.cleanupInterval())

	recovered, err := s.jobs.SweepStale(ctx, s.cfg.StaleJobAfter)
	if err != nil {
		slog.Error("scheduler: stale job sweep failed", "error", err)
		return
	}
	if recovered > 0 {
		slog.Info("scheduler: recovered stale jobs", "count", recovered)
	}
}

func (s *Scheduler) submit(ctx context.Context, jobType model.JobType, metadata map[string]any) {
	id, err := s.jobs.Submit(ctx, jobType, metadata)
	if err != nil {
		slog.Error("scheduler: failed to submit job", "job_type", jobType, "error", err)
		return
	}
	slog.Info("scheduler: submitted job", "job_type", jobType, "job_id", id)
}
