// Package jobs implements the uniform job lifecycle (§3, §4.10): a worker
// pool claims pending jobs with FOR UPDATE SKIP LOCKED, runs them to a
// terminal state, and exposes progress/cancellation/health to callers.
package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/sjafferali/stashhog-sub000/internal/model"
)

// ErrAtCapacity indicates the configured max-concurrent-jobs limit has been
// reached; the worker backs off and retries later.
var ErrAtCapacity = errors.New("jobs: at capacity")

// Executor runs one job to completion. Implementations report progress via
// the supplied ProgressFunc, throttled to at most once per second unless
// forced (§4.10), and must return promptly after ctx is cancelled.
type Executor interface {
	Execute(ctx context.Context, job *model.Job, progress ProgressFunc) *ExecutionResult
}

// ProgressFunc reports a job's progress percentage (0-100) and a
// human-readable status message.
type ProgressFunc func(progress int, message string)

// ExecutionResult is the terminal outcome an Executor reports. Nil is
// treated as an executor bug and synthesized into a failed result by the
// worker (mirrors the nil-guard in the session-processing pattern this
// package is adapted from).
type ExecutionResult struct {
	Status  model.JobStatus
	Message string
	Result  any
	Err     error
}

// CancelRegistry is the subset of WorkerPool a Worker uses to register and
// unregister a running job's cancel function, and the subset JobManager
// uses to trigger it from CancelJob.
type CancelRegistry interface {
	RegisterJob(jobID string, cancel context.CancelFunc)
	UnregisterJob(jobID string)
	CancelJob(jobID string) bool
}

// PoolHealth reports the health of the whole worker pool.
type PoolHealth struct {
	PodID          string         `json:"pod_id"`
	ActiveWorkers  int            `json:"active_workers"`
	TotalWorkers   int            `json:"total_workers"`
	WorkerStats    []WorkerHealth `json:"worker_stats"`
	QueueReachable bool           `json:"queue_reachable"`
}

// WorkerStatus is a single worker's current activity.
type WorkerStatus string

const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)

// WorkerHealth reports a single worker's health.
type WorkerHealth struct {
	ID            string       `json:"id"`
	Status        WorkerStatus `json:"status"`
	CurrentJobID  string       `json:"current_job_id,omitempty"`
	JobsProcessed int          `json:"jobs_processed"`
	LastActivity  time.Time    `json:"last_activity"`
}
