package storage

import (
	"context"
	stdsql "database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/sjafferali/stashhog-sub000/internal/model"
)

// PlanRepository persists AnalysisPlan and PlanChange rows (§4.7).
type PlanRepository struct {
	db *DB
}

// NewPlanRepository constructs a PlanRepository.
func NewPlanRepository(db *DB) *PlanRepository {
	return &PlanRepository{db: db}
}

// Create inserts a plan and its changes in one transaction.
func (r *PlanRepository) Create(ctx context.Context, p *model.AnalysisPlan) error {
	metadata, err := json.Marshal(p.Metadata)
	if err != nil {
		return fmt.Errorf("marshal plan metadata: %w", err)
	}

	tx, err := r.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO analysis_plans (id, name, description, status, created_at, applied_at, metadata)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, p.ID, p.Name, p.Description, p.Status, p.CreatedAt, p.AppliedAt, metadata)
	if err != nil {
		return fmt.Errorf("insert plan %s: %w", p.ID, err)
	}

	for _, c := range p.Changes {
		if err := insertChange(ctx, tx, &c); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func insertChange(ctx context.Context, tx *stdsql.Tx, c *model.PlanChange) error {
	currentValue, err := json.Marshal(c.CurrentValue)
	if err != nil {
		return fmt.Errorf("marshal current_value for change %s: %w", c.ID, err)
	}
	proposedValue, err := json.Marshal(c.ProposedValue)
	if err != nil {
		return fmt.Errorf("marshal proposed_value for change %s: %w", c.ID, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO plan_changes (id, plan_id, scene_id, field, action, current_value,
			proposed_value, confidence, reason, status, applied_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, c.ID, c.PlanID, c.SceneID, c.Field, c.Action, currentValue, proposedValue,
		c.Confidence, c.Reason, c.Status, c.AppliedAt)
	if err != nil {
		return fmt.Errorf("insert plan_change %s: %w", c.ID, err)
	}
	return nil
}

// Get loads a plan and all of its changes.
func (r *PlanRepository) Get(ctx context.Context, planID string) (*model.AnalysisPlan, error) {
	p := &model.AnalysisPlan{ID: planID}
	var metadata []byte
	row := r.db.conn.QueryRowContext(ctx, `
		SELECT name, description, status, created_at, applied_at, metadata
		FROM analysis_plans WHERE id = $1
	`, planID)
	var appliedAt stdsql.NullTime
	if err := row.Scan(&p.Name, &p.Description, &p.Status, &p.CreatedAt, &appliedAt, &metadata); err != nil {
		if errors.Is(err, stdsql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get plan %s: %w", planID, err)
	}
	if appliedAt.Valid {
		t := appliedAt.Time
		p.AppliedAt = &t
	}
	if err := json.Unmarshal(metadata, &p.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal plan %s metadata: %w", planID, err)
	}

	changes, err := r.ListChanges(ctx, planID)
	if err != nil {
		return nil, err
	}
	p.Changes = changes
	return p, nil
}

// ListChanges returns every PlanChange belonging to a plan, ordered by
// change id (not by insertion order).
func (r *PlanRepository) ListChanges(ctx context.Context, planID string) ([]model.PlanChange, error) {
	rows, err := r.db.conn.QueryContext(ctx, `
		SELECT id, plan_id, scene_id, field, action, current_value, proposed_value,
			confidence, reason, status, applied_at
		FROM plan_changes WHERE plan_id = $1 ORDER BY id
	`, planID)
	if err != nil {
		return nil, fmt.Errorf("list plan_changes for %s: %w", planID, err)
	}
	defer rows.Close()

	var out []model.PlanChange
	for rows.Next() {
		var c model.PlanChange
		var currentValue, proposedValue []byte
		var appliedAt stdsql.NullTime
		if err := rows.Scan(&c.ID, &c.PlanID, &c.SceneID, &c.Field, &c.Action, &currentValue,
			&proposedValue, &c.Confidence, &c.Reason, &c.Status, &appliedAt); err != nil {
			return nil, fmt.Errorf("scan plan_change: %w", err)
		}
		if err := json.Unmarshal(currentValue, &c.CurrentValue); err != nil {
			return nil, fmt.Errorf("unmarshal current_value for change %s: %w", c.ID, err)
		}
		if err := json.Unmarshal(proposedValue, &c.ProposedValue); err != nil {
			return nil, fmt.Errorf("unmarshal proposed_value for change %s: %w", c.ID, err)
		}
		if appliedAt.Valid {
			t := appliedAt.Time
			c.AppliedAt = &t
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// TryBeginApply atomically transitions a plan DRAFT -> REVIEWING, reporting
// whether the transition happened. A false result means the plan was not in
// DRAFT status, the guard PlanStore.ApplyPlan uses to disallow concurrent
// apply of the same plan (§4.7).
func (r *PlanRepository) TryBeginApply(ctx context.Context, planID string) (bool, error) {
	res, err := r.db.conn.ExecContext(ctx, `
		UPDATE analysis_plans SET status = $2 WHERE id = $1 AND status = $3
	`, planID, model.PlanStatusReviewing, model.PlanStatusDraft)
	if err != nil {
		return false, fmt.Errorf("begin apply for plan %s: %w", planID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("begin apply for plan %s: %w", planID, err)
	}
	return n == 1, nil
}

// UpdateStatus transitions a plan's status, stamping applied_at when moving
// to PlanStatusApplied (§3 invariant).
func (r *PlanRepository) UpdateStatus(ctx context.Context, planID string, status model.PlanStatus, appliedAt *time.Time) error {
	_, err := r.db.conn.ExecContext(ctx, `
		UPDATE analysis_plans SET status = $2, applied_at = $3 WHERE id = $1
	`, planID, status, appliedAt)
	if err != nil {
		return fmt.Errorf("update plan %s status: %w", planID, err)
	}
	return nil
}

// BulkUpdateChangeStatus updates the status of the named changes in one
// statement, used by the plan review UI's bulk-approve/reject action
// (§4.7).
func (r *PlanRepository) BulkUpdateChangeStatus(ctx context.Context, changeIDs []string, status model.ChangeStatus) error {
	if len(changeIDs) == 0 {
		return nil
	}
	_, err := r.db.conn.ExecContext(ctx, `
		UPDATE plan_changes SET status = $2 WHERE id = ANY($1)
	`, pq.Array(changeIDs), status)
	if err != nil {
		return fmt.Errorf("bulk update change status: %w", err)
	}
	return nil
}

// MarkChangeApplied flips a single change to applied and stamps applied_at,
// called once per change during PlanStore.ApplyPlan (§4.7, §7).
func (r *PlanRepository) MarkChangeApplied(ctx context.Context, changeID string, appliedAt time.Time) error {
	_, err := r.db.conn.ExecContext(ctx, `
		UPDATE plan_changes SET status = $2, applied_at = $3 WHERE id = $1
	`, changeID, model.ChangeStatusApplied, appliedAt)
	if err != nil {
		return fmt.Errorf("mark change %s applied: %w", changeID, err)
	}
	return nil
}

// Delete removes a plan and its changes (cascades via FK), used by
// PlanStore.DeletePlan (§4.7).
func (r *PlanRepository) Delete(ctx context.Context, planID string) error {
	_, err := r.db.conn.ExecContext(ctx, `DELETE FROM analysis_plans WHERE id = $1`, planID)
	if err != nil {
		return fmt.Errorf("delete plan %s: %w", planID, err)
	}
	return nil
}

// List returns a page of plan headers (metadata only, no changes loaded),
// newest first, optionally filtered by status, plus the total matching
// count for pagination (§4.7 list_plans).
func (r *PlanRepository) List(ctx context.Context, status *model.PlanStatus, limit, offset int) ([]model.AnalysisPlan, int, error) {
	args := []any{limit, offset}
	where := ""
	if status != nil {
		where = "WHERE status = $3"
		args = append(args, *status)
	}

	rows, err := r.db.conn.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, name, description, status, created_at, applied_at, metadata
		FROM analysis_plans %s ORDER BY created_at DESC LIMIT $1 OFFSET $2
	`, where), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var out []model.AnalysisPlan
	for rows.Next() {
		var p model.AnalysisPlan
		var metadata []byte
		var appliedAt stdsql.NullTime
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Status, &p.CreatedAt, &appliedAt, &metadata); err != nil {
			return nil, 0, fmt.Errorf("scan plan: %w", err)
		}
		if appliedAt.Valid {
			t := appliedAt.Time
			p.AppliedAt = &t
		}
		if err := json.Unmarshal(metadata, &p.Metadata); err != nil {
			return nil, 0, fmt.Errorf("unmarshal plan %s metadata: %w", p.ID, err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	countWhere := ""
	countArgs := []any{}
	if status != nil {
		countWhere = "WHERE status = $1"
		countArgs = append(countArgs, *status)
	}
	if err := r.db.conn.QueryRowContext(ctx, fmt.Sprintf(`SELECT count(*) FROM analysis_plans %s`, countWhere), countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count plans: %w", err)
	}
	return out, total, nil
}

// ListCreatedSince returns every plan created at or after since, used by
// AnalysisEngine.Stats to aggregate historical analysis activity over a
// window (§12).
func (r *PlanRepository) ListCreatedSince(ctx context.Context, since time.Time) ([]model.AnalysisPlan, error) {
	rows, err := r.db.conn.QueryContext(ctx, `
		SELECT id, name, description, status, created_at, applied_at, metadata
		FROM analysis_plans WHERE created_at >= $1 ORDER BY created_at
	`, since)
	if err != nil {
		return nil, fmt.Errorf("list plans since %s: %w", since, err)
	}
	defer rows.Close()

	var out []model.AnalysisPlan
	for rows.Next() {
		var p model.AnalysisPlan
		var metadata []byte
		var appliedAt stdsql.NullTime
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Status, &p.CreatedAt, &appliedAt, &metadata); err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		if appliedAt.Valid {
			t := appliedAt.Time
			p.AppliedAt = &t
		}
		if err := json.Unmarshal(metadata, &p.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal plan %s metadata: %w", p.ID, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetChange loads a single PlanChange, used by PlanStore before mutating its
// status so APPLIED changes can be rejected (§4.7 invariant).
func (r *PlanRepository) GetChange(ctx context.Context, changeID string) (*model.PlanChange, error) {
	var c model.PlanChange
	var currentValue, proposedValue []byte
	var appliedAt stdsql.NullTime
	row := r.db.conn.QueryRowContext(ctx, `
		SELECT id, plan_id, scene_id, field, action, current_value, proposed_value,
			confidence, reason, status, applied_at
		FROM plan_changes WHERE id = $1
	`, changeID)
	if err := row.Scan(&c.ID, &c.PlanID, &c.SceneID, &c.Field, &c.Action, &currentValue,
		&proposedValue, &c.Confidence, &c.Reason, &c.Status, &appliedAt); err != nil {
		if errors.Is(err, stdsql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get plan_change %s: %w", changeID, err)
	}
	if err := json.Unmarshal(currentValue, &c.CurrentValue); err != nil {
		return nil, fmt.Errorf("unmarshal current_value for change %s: %w", c.ID, err)
	}
	if err := json.Unmarshal(proposedValue, &c.ProposedValue); err != nil {
		return nil, fmt.Errorf("unmarshal proposed_value for change %s: %w", c.ID, err)
	}
	if appliedAt.Valid {
		t := appliedAt.Time
		c.AppliedAt = &t
	}
	return &c, nil
}

// UpdateChange sets a change's status and, when proposedValue is non-nil,
// overwrites its proposed_value (§4.7 update_change_status).
func (r *PlanRepository) UpdateChange(ctx context.Context, changeID string, status model.ChangeStatus, proposedValue any) error {
	if proposedValue == nil {
		_, err := r.db.conn.ExecContext(ctx, `UPDATE plan_changes SET status = $2 WHERE id = $1`, changeID, status)
		if err != nil {
			return fmt.Errorf("update change %s status: %w", changeID, err)
		}
		return nil
	}
	encoded, err := json.Marshal(proposedValue)
	if err != nil {
		return fmt.Errorf("marshal proposed_value for change %s: %w", changeID, err)
	}
	_, err = r.db.conn.ExecContext(ctx, `
		UPDATE plan_changes SET status = $2, proposed_value = $3 WHERE id = $1
	`, changeID, status, encoded)
	if err != nil {
		return fmt.Errorf("update change %s: %w", changeID, err)
	}
	return nil
}

// ListByStatus returns plan ids in a given status, newest first.
func (r *PlanRepository) ListByStatus(ctx context.Context, status model.PlanStatus) ([]string, error) {
	rows, err := r.db.conn.QueryContext(ctx, `
		SELECT id FROM analysis_plans WHERE status = $1 ORDER BY created_at DESC
	`, status)
	if err != nil {
		return nil, fmt.Errorf("list plans by status: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan plan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
