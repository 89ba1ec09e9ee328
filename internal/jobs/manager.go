package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sjafferali/stashhog-sub000/internal/metrics"
	"github.com/sjafferali/stashhog-sub000/internal/model"
	"github.com/sjafferali/stashhog-sub000/internal/storage"
)

// Manager is the façade components submit jobs through: it creates the
// pending row and delegates claiming/execution to the WorkerPool (§4.10).
type Manager struct {
	jobs    *storage.JobRepository
	pool    *WorkerPool
	metrics *metrics.Registry
}

// NewManager constructs a Manager backed by the given WorkerPool. reg may be
// nil, in which case submission counts are not recorded.
func NewManager(jobRepo *storage.JobRepository, pool *WorkerPool, reg *metrics.Registry) *Manager {
	return &Manager{jobs: jobRepo, pool: pool, metrics: reg}
}

// Start starts the underlying worker pool.
func (m *Manager) Start(ctx context.Context) {
	m.pool.Start(ctx)
}

// Stop stops the underlying worker pool, waiting for in-flight jobs.
func (m *Manager) Stop() {
	m.pool.Stop()
}

// Submit creates a new pending job of the given type and returns its id.
func (m *Manager) Submit(ctx context.Context, jobType model.JobType, metadata map[string]any) (string, error) {
	id := uuid.NewString()
	job := &model.Job{
		ID:        id,
		Type:      jobType,
		Status:    model.JobStatusPending,
		Metadata:  metadata,
		CreatedAt: time.Now(),
	}
	if err := m.jobs.Create(ctx, job); err != nil {
		return "", fmt.Errorf("submit job: %w", err)
	}
	if m.metrics != nil {
		m.metrics.JobsSubmitted.WithLabelValues(string(jobType)).Inc()
	}
	return id, nil
}

// Get returns a job's current state.
func (m *Manager) Get(ctx context.Context, jobID string) (*model.Job, error) {
	return m.jobs.Get(ctx, jobID)
}

// Cancel requests cancellation of a job. If the job is running on this
// pod's pool, its context is cancelled immediately; otherwise any
// non-terminal row, pending or running on another pod, is marked cancelled,
// so a pending job is never claimed. A job running on another pod is not
// signalled; only its row changes.
func (m *Manager) Cancel(ctx context.Context, jobID string) error {
	if m.pool.CancelJob(jobID) {
		return nil
	}
	job, err := m.jobs.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("cancel job %s: %w", jobID, err)
	}
	if job.Status.Terminal() {
		return nil
	}
	return m.jobs.Cancel(ctx, jobID, "cancelled by request")
}

// Health reports the underlying worker pool's health.
func (m *Manager) Health() PoolHealth {
	return m.pool.Health()
}

// SweepStale marks as FAILED every running job whose heartbeat is older than
// staleAfter, recovering orphans left behind by a crashed worker (§4.9).
// Every pod runs this independently; marking an already-terminal job is a
// no-op so the sweep is safe to run redundantly.
func (m *Manager) SweepStale(ctx context.Context, staleAfter time.Duration) (int, error) {
	cutoff := time.Now().Add(-staleAfter)
	staleIDs, err := m.jobs.ListStale(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list stale jobs: %w", err)
	}
	recovered := 0
	for _, id := range staleIDs {
		if err := m.jobs.Complete(ctx, id, model.JobStatusFailed, "orphaned: no heartbeat before cutoff", nil); err != nil {
			continue
		}
		recovered++
	}
	return recovered, nil
}
