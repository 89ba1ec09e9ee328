package storage

import (
	"context"
	stdsql "database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/sjafferali/stashhog-sub000/internal/model"
)

// EntityRepository persists performers, tags, and studios mirrored from
// Catalog. All three share the same id/name/parent-or-aliases/last_synced
// shape, so one repository serves all three tables.
type EntityRepository struct {
	db *DB
}

// NewEntityRepository constructs an EntityRepository.
func NewEntityRepository(db *DB) *EntityRepository {
	return &EntityRepository{db: db}
}

// UpsertPerformer inserts or updates a Performer row.
func (r *EntityRepository) UpsertPerformer(ctx context.Context, p *model.Performer) error {
	_, err := r.db.conn.ExecContext(ctx, `
		INSERT INTO performers (id, name, aliases, last_synced)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, aliases = EXCLUDED.aliases, last_synced = EXCLUDED.last_synced
	`, p.ID, p.Name, pq.Array(p.Aliases), p.LastSynced)
	if err != nil {
		return fmt.Errorf("upsert performer %s: %w", p.ID, err)
	}
	return nil
}

// ListPerformers returns every mirrored performer, used by PerformerDetector
// to build its known-performer candidate list (§4.3).
func (r *EntityRepository) ListPerformers(ctx context.Context) ([]model.Performer, error) {
	rows, err := r.db.conn.QueryContext(ctx, `SELECT id, name, aliases, last_synced FROM performers ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list performers: %w", err)
	}
	defer rows.Close()

	var out []model.Performer
	for rows.Next() {
		var p model.Performer
		if err := rows.Scan(&p.ID, &p.Name, pq.Array(&p.Aliases), &p.LastSynced); err != nil {
			return nil, fmt.Errorf("scan performer: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpsertTag inserts or updates a Tag row.
func (r *EntityRepository) UpsertTag(ctx context.Context, t *model.Tag) error {
	_, err := r.db.conn.ExecContext(ctx, `
		INSERT INTO tags (id, name, parent_id, last_synced)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, parent_id = EXCLUDED.parent_id, last_synced = EXCLUDED.last_synced
	`, t.ID, t.Name, t.ParentID, t.LastSynced)
	if err != nil {
		return fmt.Errorf("upsert tag %s: %w", t.ID, err)
	}
	return nil
}

// ListTags returns every mirrored tag. TagDetector uses this as the
// available-tags constraint (§4.3, §8).
func (r *EntityRepository) ListTags(ctx context.Context) ([]model.Tag, error) {
	rows, err := r.db.conn.QueryContext(ctx, `SELECT id, name, parent_id, last_synced FROM tags ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	var out []model.Tag
	for rows.Next() {
		var t model.Tag
		var parentID stdsql.NullString
		if err := rows.Scan(&t.ID, &t.Name, &parentID, &t.LastSynced); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		if parentID.Valid {
			t.ParentID = &parentID.String
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpsertStudio inserts or updates a Studio row.
func (r *EntityRepository) UpsertStudio(ctx context.Context, s *model.Studio) error {
	_, err := r.db.conn.ExecContext(ctx, `
		INSERT INTO studios (id, name, parent_id, last_synced)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, parent_id = EXCLUDED.parent_id, last_synced = EXCLUDED.last_synced
	`, s.ID, s.Name, s.ParentID, s.LastSynced)
	if err != nil {
		return fmt.Errorf("upsert studio %s: %w", s.ID, err)
	}
	return nil
}

// ListStudios returns every mirrored studio. StudioDetector matches against
// these names (§4.3).
func (r *EntityRepository) ListStudios(ctx context.Context) ([]model.Studio, error) {
	rows, err := r.db.conn.QueryContext(ctx, `SELECT id, name, parent_id, last_synced FROM studios ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list studios: %w", err)
	}
	defer rows.Close()

	var out []model.Studio
	for rows.Next() {
		var s model.Studio
		var parentID stdsql.NullString
		if err := rows.Scan(&s.ID, &s.Name, &parentID, &s.LastSynced); err != nil {
			return nil, fmt.Errorf("scan studio: %w", err)
		}
		if parentID.Valid {
			s.ParentID = &parentID.String
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// FindPerformerByName looks up a performer by exact, case-insensitive name
// match, used by PlanStore.ApplyPlan to resolve a proposed performer name to
// an id before writing through the Catalog (§4.7).
func (r *EntityRepository) FindPerformerByName(ctx context.Context, name string) (*model.Performer, error) {
	var p model.Performer
	row := r.db.conn.QueryRowContext(ctx, `
		SELECT id, name, aliases, last_synced FROM performers WHERE lower(name) = lower($1)
	`, name)
	err := row.Scan(&p.ID, &p.Name, pq.Array(&p.Aliases), &p.LastSynced)
	if errors.Is(err, stdsql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find performer by name %q: %w", name, err)
	}
	return &p, nil
}

// FindTagByName looks up a tag by exact, case-insensitive name match. Unlike
// performers and studios, tag changes never create a tag on apply — a miss
// here is reported as a per-change apply error (§4.7).
func (r *EntityRepository) FindTagByName(ctx context.Context, name string) (*model.Tag, error) {
	var t model.Tag
	var parentID stdsql.NullString
	row := r.db.conn.QueryRowContext(ctx, `
		SELECT id, name, parent_id, last_synced FROM tags WHERE lower(name) = lower($1)
	`, name)
	err := row.Scan(&t.ID, &t.Name, &parentID, &t.LastSynced)
	if errors.Is(err, stdsql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find tag by name %q: %w", name, err)
	}
	if parentID.Valid {
		t.ParentID = &parentID.String
	}
	return &t, nil
}

// FindStudioByName looks up a studio by exact, case-insensitive name match.
func (r *EntityRepository) FindStudioByName(ctx context.Context, name string) (*model.Studio, error) {
	var s model.Studio
	var parentID stdsql.NullString
	row := r.db.conn.QueryRowContext(ctx, `
		SELECT id, name, parent_id, last_synced FROM studios WHERE lower(name) = lower($1)
	`, name)
	err := row.Scan(&s.ID, &s.Name, &parentID, &s.LastSynced)
	if errors.Is(err, stdsql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find studio by name %q: %w", name, err)
	}
	if parentID.Valid {
		s.ParentID = &parentID.String
	}
	return &s, nil
}
