package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/sjafferali/stashhog-sub000/internal/model"
	"github.com/sjafferali/stashhog-sub000/internal/storage"
)

// WorkerConfig tunes a single Worker's polling and execution behaviour.
type WorkerConfig struct {
	PollInterval       time.Duration
	PollIntervalJitter time.Duration
	HeartbeatInterval  time.Duration
	JobTimeout         time.Duration
	MaxConcurrentJobs  int
}

// Worker polls JobRepository for claimable jobs and runs them via Executor.
type Worker struct {
	id       string
	jobs     *storage.JobRepository
	executor Executor
	cfg      WorkerConfig
	registry CancelRegistry

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu            sync.RWMutex
	status        WorkerStatus
	currentJobID  string
	jobsProcessed int
	lastActivity  time.Time
}

// NewWorker constructs a Worker.
func NewWorker(id string, jobRepo *storage.JobRepository, executor Executor, cfg WorkerConfig, registry CancelRegistry) *Worker {
	return &Worker{
		id:           id,
		jobs:         jobRepo,
		executor:     executor,
		cfg:          cfg,
		registry:     registry,
		stopCh:       make(chan struct{}),
		status:       WorkerStatusIdle,
		lastActivity: time.Now(),
	}
}

// Start begins the worker polling loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for its current job to finish.
// Safe to call multiple times.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// Health reports the worker's current activity.
func (w *Worker) Health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:            w.id,
		Status:        w.status,
		CurrentJobID:  w.currentJobID,
		JobsProcessed: w.jobsProcessed,
		LastActivity:  w.lastActivity,
	}
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	log := slog.With("worker_id", w.id)
	log.Info("job worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("job worker shutting down")
			return
		case <-ctx.Done():
			log.Info("context cancelled, job worker shutting down")
			return
		default:
			if err := w.pollAndProcess(ctx); err != nil {
				if errors.Is(err, storage.ErrNoJobsAvailable) || errors.Is(err, ErrAtCapacity) {
					w.sleep(w.pollInterval())
					continue
				}
				log.Error("error processing job", "error", err)
				w.sleep(time.Second)
			}
		}
	}
}

func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

func (w *Worker) pollInterval() time.Duration {
	base, jitter := w.cfg.PollInterval, w.cfg.PollIntervalJitter
	if jitter <= 0 {
		return base
	}
	offset := time.Duration(rand.Int64N(int64(2 * jitter)))
	return base - jitter + offset
}

func (w *Worker) pollAndProcess(ctx context.Context) error {
	if w.cfg.MaxConcurrentJobs > 0 {
		running, err := w.jobs.CountByStatus(ctx, model.JobStatusRunning)
		if err != nil {
			return fmt.Errorf("checking active job count: %w", err)
		}
		if running >= w.cfg.MaxConcurrentJobs {
			return ErrAtCapacity
		}
	}

	job, err := w.jobs.ClaimNext(ctx)
	if err != nil {
		return err
	}

	log := slog.With("job_id", job.ID, "worker_id", w.id, "job_type", job.Type)
	log.Info("job claimed")

	w.setStatus(WorkerStatusWorking, job.ID)
	defer w.setStatus(WorkerStatusIdle, "")

	jobCtx, cancel := context.WithTimeout(ctx, w.cfg.JobTimeout)
	defer cancel()

	w.registry.RegisterJob(job.ID, cancel)
	defer w.registry.UnregisterJob(job.ID)

	heartbeatCtx, cancelHeartbeat := context.WithCancel(jobCtx)
	defer cancelHeartbeat()
	go w.runHeartbeat(heartbeatCtx, job.ID)

	lastReport := time.Time{}
	progress := func(pct int, message string) {
		if time.Since(lastReport) < time.Second && pct < 100 {
			return
		}
		lastReport = time.Now()
		if err := w.jobs.UpdateProgress(context.Background(), job.ID, pct, message); err != nil {
			log.Warn("failed to record job progress", "error", err)
		}
	}

	result := w.executor.Execute(jobCtx, job, progress)
	result = synthesizeResult(result, jobCtx)
	cancelHeartbeat()

	if err := w.jobs.Complete(context.Background(), job.ID, result.Status, result.Message, result.Result); err != nil {
		return fmt.Errorf("completing job %s: %w", job.ID, err)
	}

	w.mu.Lock()
	w.jobsProcessed++
	w.mu.Unlock()

	log.Info("job finished", "status", result.Status)
	return nil
}

// synthesizeResult guards against a nil or partially-specified
// ExecutionResult, deriving a terminal status from the job context's
// cancellation cause (§4.10).
func synthesizeResult(result *ExecutionResult, jobCtx context.Context) *ExecutionResult {
	if result != nil && result.Status != "" {
		return result
	}
	switch {
	case errors.Is(jobCtx.Err(), context.DeadlineExceeded):
		return &ExecutionResult{Status: model.JobStatusFailed, Message: "job timed out", Err: jobCtx.Err()}
	case errors.Is(jobCtx.Err(), context.Canceled):
		return &ExecutionResult{Status: model.JobStatusCancelled, Message: "job cancelled", Err: jobCtx.Err()}
	default:
		return &ExecutionResult{Status: model.JobStatusFailed, Message: "executor returned no result"}
	}
}

func (w *Worker) runHeartbeat(ctx context.Context, jobID string) {
	ticker := time.NewTicker(w.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.jobs.Heartbeat(context.Background(), jobID); err != nil {
				slog.Warn("job heartbeat failed", "job_id", jobID, "error", err)
			}
		}
	}
}

func (w *Worker) setStatus(status WorkerStatus, jobID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.currentJobID = jobID
	w.lastActivity = time.Now()
}
