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

// SyncHistoryRepository persists SyncHistory rows, the basis for the
// incremental-sync watermark computation (§4.8).
type SyncHistoryRepository struct {
	db *DB
}

// NewSyncHistoryRepository constructs a SyncHistoryRepository.
func NewSyncHistoryRepository(db *DB) *SyncHistoryRepository {
	return &SyncHistoryRepository{db: db}
}

// Start inserts a running sync_history row under the caller-supplied id.
func (r *SyncHistoryRepository) Start(ctx context.Context, entityType model.SyncEntityType, startedAt time.Time, id string) error {
	_, err := r.db.conn.ExecContext(ctx, `
		INSERT INTO sync_history (id, entity_type, started_at, status, errors)
		VALUES ($1, $2, $3, $4, '[]')
	`, id, entityType, startedAt, model.SyncStatusRunning)
	if err != nil {
		return fmt.Errorf("start sync_history %s: %w", id, err)
	}
	return nil
}

// Complete finalizes a sync_history row with its outcome counters.
func (r *SyncHistoryRepository) Complete(ctx context.Context, id string, status model.SyncStatus, synced, created, updated, failed int, syncErrors []model.SyncEntityError) error {
	errsJSON, err := json.Marshal(syncErrors)
	if err != nil {
		return fmt.Errorf("marshal sync errors for %s: %w", id, err)
	}
	_, err = r.db.conn.ExecContext(ctx, `
		UPDATE sync_history SET status = $2, completed_at = $3, synced = $4, created = $5,
			updated = $6, failed = $7, errors = $8
		WHERE id = $1
	`, id, status, time.Now(), synced, created, updated, failed, errsJSON)
	if err != nil {
		return fmt.Errorf("complete sync_history %s: %w", id, err)
	}
	return nil
}

// LastSuccessfulWatermark returns the completed_at of the most recent
// success/partial sync for entityType, or zero time with ErrNotFound if
// none exists. The scene-type caller degrades straight to a full sync in
// that case; only the all-type incremental mode applies a 24h lookback
// fallback instead (§4.8).
func (r *SyncHistoryRepository) LastSuccessfulWatermark(ctx context.Context, entityType model.SyncEntityType) (time.Time, error) {
	var completedAt stdsql.NullTime
	row := r.db.conn.QueryRowContext(ctx, `
		SELECT completed_at FROM sync_history
		WHERE entity_type = $1 AND status IN ($2, $3) AND completed_at IS NOT NULL
		ORDER BY completed_at DESC LIMIT 1
	`, entityType, model.SyncStatusSuccess, model.SyncStatusPartial)
	err := row.Scan(&completedAt)
	if errors.Is(err, stdsql.ErrNoRows) || (err == nil && !completedAt.Valid) {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("last watermark for %s: %w", entityType, err)
	}
	return completedAt.Time, nil
}

// List returns the most recent sync_history rows for display, newest
// first.
func (r *SyncHistoryRepository) List(ctx context.Context, limit int) ([]model.SyncHistory, error) {
	rows, err := r.db.conn.QueryContext(ctx, `
		SELECT id, entity_type, started_at, completed_at, status, synced, created, updated, failed, errors
		FROM sync_history ORDER BY started_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sync_history: %w", err)
	}
	defer rows.Close()

	var out []model.SyncHistory
	for rows.Next() {
		var h model.SyncHistory
		var completedAt stdsql.NullTime
		var errsJSON []byte
		if err := rows.Scan(&h.ID, &h.EntityType, &h.StartedAt, &completedAt, &h.Status,
			&h.Synced, &h.Created, &h.Updated, &h.Failed, &errsJSON); err != nil {
			return nil, fmt.Errorf("scan sync_history: %w", err)
		}
		if completedAt.Valid {
			t := completedAt.Time
			h.CompletedAt = &t
		}
		if err := json.Unmarshal(errsJSON, &h.Errors); err != nil {
			return nil, fmt.Errorf("unmarshal sync_history %s errors: %w", h.ID, err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
