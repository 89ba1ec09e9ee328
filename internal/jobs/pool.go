package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sjafferali/stashhog-sub000/internal/storage"
)

// WorkerPool manages a fixed-size pool of job Workers sharing one
// JobRepository and a cancel-function registry for manual job cancellation.
type WorkerPool struct {
	podID    string
	jobs     *storage.JobRepository
	executor Executor
	cfg      WorkerConfig
	count    int

	workers  []*Worker
	stopOnce sync.Once
	started  bool

	mu        sync.RWMutex
	cancelFns map[string]context.CancelFunc
}

// NewWorkerPool constructs a WorkerPool with workerCount Workers, each
// polling independently.
func NewWorkerPool(podID string, jobRepo *storage.JobRepository, executor Executor, cfg WorkerConfig, workerCount int) *WorkerPool {
	return &WorkerPool{
		podID:     podID,
		jobs:      jobRepo,
		executor:  executor,
		cfg:       cfg,
		count:     workerCount,
		workers:   make([]*Worker, 0, workerCount),
		cancelFns: make(map[string]context.CancelFunc),
	}
}

// Start spawns the pool's workers. Safe to call once; subsequent calls are
// no-ops.
func (p *WorkerPool) Start(ctx context.Context) {
	if p.started {
		slog.Warn("job worker pool already started, ignoring duplicate Start call", "pod_id", p.podID)
		return
	}
	p.started = true

	for i := 0; i < p.count; i++ {
		id := fmt.Sprintf("%s-worker-%d", p.podID, i)
		w := NewWorker(id, p.jobs, p.executor, p.cfg, p)
		p.workers = append(p.workers, w)
		w.Start(ctx)
	}
	slog.Info("job worker pool started", "pod_id", p.podID, "worker_count", p.count)
}

// Stop signals every worker to stop and waits for in-flight jobs to finish.
// Safe to call multiple times.
func (p *WorkerPool) Stop() {
	p.stopOnce.Do(func() {
		for _, w := range p.workers {
			w.Stop()
		}
		slog.Info("job worker pool stopped", "pod_id", p.podID)
	})
}

// RegisterJob stores a job's cancel function for later manual cancellation.
func (p *WorkerPool) RegisterJob(jobID string, cancel context.CancelFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelFns[jobID] = cancel
}

// UnregisterJob removes a job's cancel function once processing ends.
func (p *WorkerPool) UnregisterJob(jobID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.cancelFns, jobID)
}

// CancelJob triggers cancellation for a job running on this pod. Returns
// false if the job isn't active here (it may be running on another pod, or
// already finished).
func (p *WorkerPool) CancelJob(jobID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if cancel, ok := p.cancelFns[jobID]; ok {
		cancel()
		return true
	}
	return false
}

// Health reports the pool's and each worker's current state.
func (p *WorkerPool) Health() PoolHealth {
	stats := make([]WorkerHealth, len(p.workers))
	active := 0
	for i, w := range p.workers {
		h := w.Health()
		stats[i] = h
		if h.Status == WorkerStatusWorking {
			active++
		}
	}
	return PoolHealth{
		PodID:          p.podID,
		ActiveWorkers:  active,
		TotalWorkers:   len(p.workers),
		WorkerStats:    stats,
		QueueReachable: true,
	}
}
