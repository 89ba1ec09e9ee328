package storage

import (
	"context"
	stdsql "database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sjafferali/stashhog-sub000/internal/model"
)

// ErrNoJobsAvailable is returned by ClaimNext when no pending job exists.
var ErrNoJobsAvailable = errors.New("storage: no jobs available")

// JobRepository persists Job rows and provides the FOR UPDATE SKIP LOCKED
// claim used by JobManager's worker pool (§4.10, §5).
type JobRepository struct {
	db *DB
}

// NewJobRepository constructs a JobRepository.
func NewJobRepository(db *DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new pending job.
func (r *JobRepository) Create(ctx context.Context, j *model.Job) error {
	metadata, err := json.Marshal(j.Metadata)
	if err != nil {
		return fmt.Errorf("marshal job metadata: %w", err)
	}
	_, err = r.db.conn.ExecContext(ctx, `
		INSERT INTO jobs (id, type, status, metadata, progress, message, result, created_at, started_at, completed_at)
		VALUES ($1,$2,$3,$4,$5,$6,NULL,$7,NULL,NULL)
	`, j.ID, j.Type, j.Status, metadata, j.Progress, j.Message, j.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert job %s: %w", j.ID, err)
	}
	return nil
}

// CountByStatus returns the number of jobs in the given status, used by the
// worker pool's capacity check before claiming a new job (§4.10, §5).
func (r *JobRepository) CountByStatus(ctx context.Context, status model.JobStatus) (int, error) {
	var count int
	row := r.db.conn.QueryRowContext(ctx, `SELECT count(*) FROM jobs WHERE status = $1`, status)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count jobs by status %s: %w", status, err)
	}
	return count, nil
}

// ClaimNext atomically claims the oldest pending job, FIFO, skipping rows
// another worker already has locked. Claiming sets status to running and
// stamps started_at within the same transaction.
func (r *JobRepository) ClaimNext(ctx context.Context) (*model.Job, error) {
	tx, err := r.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var j model.Job
	var metadata []byte
	row := tx.QueryRowContext(ctx, `
		SELECT id, type, status, metadata, progress, message, created_at
		FROM jobs WHERE status = $1
		ORDER BY created_at ASC LIMIT 1 FOR UPDATE SKIP LOCKED
	`, model.JobStatusPending)
	if err := row.Scan(&j.ID, &j.Type, &j.Status, &metadata, &j.Progress, &j.Message, &j.CreatedAt); err != nil {
		if errors.Is(err, stdsql.ErrNoRows) {
			return nil, ErrNoJobsAvailable
		}
		return nil, fmt.Errorf("claim next job: %w", err)
	}
	if err := json.Unmarshal(metadata, &j.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal job %s metadata: %w", j.ID, err)
	}

	now := time.Now()
	if _, err := tx.ExecContext(ctx, `
		UPDATE jobs SET status = $2, started_at = $3, last_heartbeat = $3 WHERE id = $1
	`, j.ID, model.JobStatusRunning, now); err != nil {
		return nil, fmt.Errorf("claim job %s: %w", j.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}

	j.Status = model.JobStatusRunning
	j.StartedAt = &now
	return &j, nil
}

// UpdateProgress writes progress/message for a running job. Callers throttle
// invocation frequency themselves (§4.10: at most once per second unless
// forced).
func (r *JobRepository) UpdateProgress(ctx context.Context, jobID string, progress int, message string) error {
	_, err := r.db.conn.ExecContext(ctx, `
		UPDATE jobs SET progress = $2, message = $3 WHERE id = $1
	`, jobID, progress, message)
	if err != nil {
		return fmt.Errorf("update job %s progress: %w", jobID, err)
	}
	return nil
}

// Heartbeat stamps last_heartbeat so the scheduler's stale-job sweep can
// distinguish a slow-but-alive job from an orphan left behind by a crashed
// worker (§4.9, §4.10).
func (r *JobRepository) Heartbeat(ctx context.Context, jobID string) error {
	_, err := r.db.conn.ExecContext(ctx, `UPDATE jobs SET last_heartbeat = $2 WHERE id = $1`, jobID, time.Now())
	if err != nil {
		return fmt.Errorf("heartbeat job %s: %w", jobID, err)
	}
	return nil
}

// Complete stamps a job's terminal status, result payload, and
// completed_at. Invariant: CompletedAt is set iff Status is terminal (§3).
func (r *JobRepository) Complete(ctx context.Context, jobID string, status model.JobStatus, message string, result any) error {
	if !status.Terminal() {
		return fmt.Errorf("cannot complete job %s with non-terminal status %s", jobID, status)
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal job %s result: %w", jobID, err)
	}
	now := time.Now()
	_, err = r.db.conn.ExecContext(ctx, `
		UPDATE jobs SET status = $2, message = $3, result = $4, completed_at = $5 WHERE id = $1
	`, jobID, status, message, resultJSON, now)
	if err != nil {
		return fmt.Errorf("complete job %s: %w", jobID, err)
	}
	return nil
}

// Get loads a job by id.
func (r *JobRepository) Get(ctx context.Context, jobID string) (*model.Job, error) {
	j := &model.Job{ID: jobID}
	var metadata []byte
	var result stdsql.NullString
	var startedAt, completedAt stdsql.NullTime
	row := r.db.conn.QueryRowContext(ctx, `
		SELECT type, status, metadata, progress, message, result, created_at, started_at, completed_at
		FROM jobs WHERE id = $1
	`, jobID)
	if err := row.Scan(&j.Type, &j.Status, &metadata, &j.Progress, &j.Message, &result,
		&j.CreatedAt, &startedAt, &completedAt); err != nil {
		if errors.Is(err, stdsql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}
	if err := json.Unmarshal(metadata, &j.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal job %s metadata: %w", jobID, err)
	}
	if result.Valid {
		var r any
		if err := json.Unmarshal([]byte(result.String), &r); err != nil {
			return nil, fmt.Errorf("unmarshal job %s result: %w", jobID, err)
		}
		j.Result = r
	}
	if startedAt.Valid {
		t := startedAt.Time
		j.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		j.CompletedAt = &t
	}
	return j, nil
}

// ListStale returns running jobs whose last_heartbeat predates the cutoff,
// feeding the scheduler's orphan-job cleanup sweep (§4.9).
func (r *JobRepository) ListStale(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := r.db.conn.QueryContext(ctx, `
		SELECT id FROM jobs WHERE status = $1 AND (last_heartbeat < $2 OR last_heartbeat IS NULL)
	`, model.JobStatusRunning, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list stale jobs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan stale job id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Cancel marks a job cancelled regardless of its current status, used by
// jobs.Manager.Cancel for both pending and running jobs (§4.10).
func (r *JobRepository) Cancel(ctx context.Context, jobID, message string) error {
	now := time.Now()
	_, err := r.db.conn.ExecContext(ctx, `
		UPDATE jobs SET status = $2, message = $3, completed_at = $4 WHERE id = $1
	`, jobID, model.JobStatusCancelled, message, now)
	if err != nil {
		return fmt.Errorf("cancel job %s: %w", jobID, err)
	}
	return nil
}
