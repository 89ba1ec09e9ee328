package storage

import (
	"context"
	stdsql "database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/sjafferali/stashhog-sub000/internal/model"
)

// ErrNotFound is returned by Get* methods when no row matches.
var ErrNotFound = errors.New("storage: not found")

// SceneRepository persists Scene rows, their files/markers, and the
// scene_performers/scene_tags join tables.
type SceneRepository struct {
	db *DB
}

// NewSceneRepository constructs a SceneRepository.
func NewSceneRepository(db *DB) *SceneRepository {
	return &SceneRepository{db: db}
}

// Upsert inserts or updates a Scene and fully replaces its files, markers,
// and performer/tag associations. Called by the sync engine's reconciler
// (§4.8) once per scene.
func (r *SceneRepository) Upsert(ctx context.Context, s *model.Scene) error {
	tx, err := r.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO scenes (id, title, details, url, organized, rating, studio_id,
			stash_created_at, stash_updated_at, stash_date, last_synced,
			analyzed, video_analyzed, manually_edited, sync_conflict)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			details = EXCLUDED.details,
			url = EXCLUDED.url,
			organized = EXCLUDED.organized,
			rating = EXCLUDED.rating,
			studio_id = EXCLUDED.studio_id,
			stash_created_at = EXCLUDED.stash_created_at,
			stash_updated_at = EXCLUDED.stash_updated_at,
			stash_date = EXCLUDED.stash_date,
			last_synced = EXCLUDED.last_synced,
			analyzed = EXCLUDED.analyzed,
			video_analyzed = EXCLUDED.video_analyzed,
			manually_edited = EXCLUDED.manually_edited,
			sync_conflict = EXCLUDED.sync_conflict
	`, s.ID, s.Title, s.Details, s.URL, s.Organized, s.Rating, s.StudioID,
		s.StashCreatedAt, s.StashUpdatedAt, s.StashDate, s.LastSynced,
		s.Analyzed, s.VideoAnalyzed, s.ManuallyEdited, s.SyncConflict)
	if err != nil {
		return fmt.Errorf("upsert scene: %w", err)
	}

	if err := replaceSceneFiles(ctx, tx, s.ID, s.Files); err != nil {
		return err
	}
	if err := replaceSceneMarkers(ctx, tx, s.ID, s.Markers); err != nil {
		return err
	}
	if err := replaceJoinRows(ctx, tx, "scene_performers", "performer_id", s.ID, s.PerformerIDs); err != nil {
		return err
	}
	if err := replaceJoinRows(ctx, tx, "scene_tags", "tag_id", s.ID, s.TagIDs); err != nil {
		return err
	}

	return tx.Commit()
}

func replaceSceneFiles(ctx context.Context, tx *stdsql.Tx, sceneID string, files []model.SceneFile) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM scene_files WHERE scene_id = $1`, sceneID); err != nil {
		return fmt.Errorf("clear scene_files: %w", err)
	}
	for _, f := range files {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO scene_files (id, scene_id, path, size, width, height,
				duration, frame_rate, codec, oshash, phash, is_primary)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		`, f.ID, sceneID, f.Path, f.Size, f.Width, f.Height, f.Duration,
			f.FrameRate, f.Codec, f.Oshash, f.Phash, f.IsPrimary)
		if err != nil {
			return fmt.Errorf("insert scene_file %s: %w", f.ID, err)
		}
	}
	return nil
}

func replaceSceneMarkers(ctx context.Context, tx *stdsql.Tx, sceneID string, markers []model.SceneMarker) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM scene_markers WHERE scene_id = $1`, sceneID); err != nil {
		return fmt.Errorf("clear scene_markers: %w", err)
	}
	for _, m := range markers {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO scene_markers (id, scene_id, seconds, end_seconds, title,
				primary_tag_id, tag_ids)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, m.ID, sceneID, m.Seconds, m.EndSeconds, m.Title, m.PrimaryTagID, pq.Array(m.TagIDs))
		if err != nil {
			return fmt.Errorf("insert scene_marker %s: %w", m.ID, err)
		}
	}
	return nil
}

func replaceJoinRows(ctx context.Context, tx *stdsql.Tx, table, column, sceneID string, ids []string) error {
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE scene_id = $1`, table), sceneID); err != nil {
		return fmt.Errorf("clear %s: %w", table, err)
	}
	for _, id := range ids {
		q := fmt.Sprintf(`INSERT INTO %s (scene_id, %s) VALUES ($1, $2) ON CONFLICT DO NOTHING`, table, column)
		if _, err := tx.ExecContext(ctx, q, sceneID, id); err != nil {
			return fmt.Errorf("insert %s row: %w", table, err)
		}
	}
	return nil
}

// Get loads a Scene by id including its files, markers, and associations.
func (r *SceneRepository) Get(ctx context.Context, id string) (*model.Scene, error) {
	s := &model.Scene{ID: id}
	var studioID stdsql.NullString
	var stashDate stdsql.NullTime
	var syncConflict stdsql.NullString

	row := r.db.conn.QueryRowContext(ctx, `
		SELECT title, details, url, organized, rating, studio_id,
			stash_created_at, stash_updated_at, stash_date, last_synced,
			analyzed, video_analyzed, manually_edited, sync_conflict
		FROM scenes WHERE id = $1
	`, id)
	err := row.Scan(&s.Title, &s.Details, &s.URL, &s.Organized, &s.Rating, &studioID,
		&s.StashCreatedAt, &s.StashUpdatedAt, &stashDate, &s.LastSynced,
		&s.Analyzed, &s.VideoAnalyzed, &s.ManuallyEdited, &syncConflict)
	if errors.Is(err, stdsql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get scene %s: %w", id, err)
	}
	if studioID.Valid {
		s.StudioID = &studioID.String
	}
	if stashDate.Valid {
		t := stashDate.Time
		s.StashDate = &t
	}
	if syncConflict.Valid {
		s.SyncConflict = &syncConflict.String
	}

	if s.Files, err = r.loadFiles(ctx, id); err != nil {
		return nil, err
	}
	if s.Markers, err = r.loadMarkers(ctx, id); err != nil {
		return nil, err
	}
	if s.PerformerIDs, err = loadJoinIDs(ctx, r.db.conn, "scene_performers", "performer_id", id); err != nil {
		return nil, err
	}
	if s.TagIDs, err = loadJoinIDs(ctx, r.db.conn, "scene_tags", "tag_id", id); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *SceneRepository) loadFiles(ctx context.Context, sceneID string) ([]model.SceneFile, error) {
	rows, err := r.db.conn.QueryContext(ctx, `
		SELECT id, path, size, width, height, duration, frame_rate, codec, oshash, phash, is_primary
		FROM scene_files WHERE scene_id = $1 ORDER BY id
	`, sceneID)
	if err != nil {
		return nil, fmt.Errorf("load scene_files: %w", err)
	}
	defer rows.Close()

	var files []model.SceneFile
	for rows.Next() {
		f := model.SceneFile{SceneID: sceneID}
		if err := rows.Scan(&f.ID, &f.Path, &f.Size, &f.Width, &f.Height, &f.Duration,
			&f.FrameRate, &f.Codec, &f.Oshash, &f.Phash, &f.IsPrimary); err != nil {
			return nil, fmt.Errorf("scan scene_file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

func (r *SceneRepository) loadMarkers(ctx context.Context, sceneID string) ([]model.SceneMarker, error) {
	rows, err := r.db.conn.QueryContext(ctx, `
		SELECT id, seconds, end_seconds, title, primary_tag_id, tag_ids
		FROM scene_markers WHERE scene_id = $1 ORDER BY seconds
	`, sceneID)
	if err != nil {
		return nil, fmt.Errorf("load scene_markers: %w", err)
	}
	defer rows.Close()

	var markers []model.SceneMarker
	for rows.Next() {
		m := model.SceneMarker{SceneID: sceneID}
		var end stdsql.NullFloat64
		if err := rows.Scan(&m.ID, &m.Seconds, &end, &m.Title, &m.PrimaryTagID, pq.Array(&m.TagIDs)); err != nil {
			return nil, fmt.Errorf("scan scene_marker: %w", err)
		}
		if end.Valid {
			m.EndSeconds = &end.Float64
		}
		markers = append(markers, m)
	}
	return markers, rows.Err()
}

func loadJoinIDs(ctx context.Context, conn *stdsql.DB, table, column, sceneID string) ([]string, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE scene_id = $1 ORDER BY %s`, column, table, column)
	rows, err := conn.QueryContext(ctx, q, sceneID)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", table, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListModifiedSince returns scenes whose stash_updated_at is at or after
// since, ordered for deterministic batch prefetch (§4.8).
func (r *SceneRepository) ListModifiedSince(ctx context.Context, since time.Time, limit, offset int) ([]string, error) {
	rows, err := r.db.conn.QueryContext(ctx, `
		SELECT id FROM scenes WHERE stash_updated_at >= $1
		ORDER BY stash_updated_at, id LIMIT $2 OFFSET $3
	`, since, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list modified scenes: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan scene id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListUnanalyzed returns scene ids with analyzed = false, used by
// AnalysisEngine's excludeAnalyzed option (§4.6).
func (r *SceneRepository) ListUnanalyzed(ctx context.Context, limit int) ([]string, error) {
	rows, err := r.db.conn.QueryContext(ctx, `
		SELECT id FROM scenes WHERE analyzed = false ORDER BY stash_created_at LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list unanalyzed scenes: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan scene id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// FindIDs returns scene ids matching filter's ANDed, non-nil fields,
// resolving AnalysisEngine's scene set when explicit ids are not supplied
// (§4.6 step 2).
func (r *SceneRepository) FindIDs(ctx context.Context, filter model.SceneFilter) ([]string, error) {
	var clauses []string
	var args []any

	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if filter.Organized != nil {
		add("organized = $%d", *filter.Organized)
	}
	if filter.Analyzed != nil {
		add("analyzed = $%d", *filter.Analyzed)
	}
	if filter.VideoAnalyzed != nil {
		add("video_analyzed = $%d", *filter.VideoAnalyzed)
	}
	if filter.StudioID != nil {
		add("studio_id = $%d", *filter.StudioID)
	}

	query := "SELECT id FROM scenes"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY id"

	rows, err := r.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find scene ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan scene id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MarkAnalyzed flips a scene's analyzed flag. AnalysisEngine calls it for
// every scene it processed without error, before the plan is built, also
// when the run yields no changes and no plan is stored (§4.6 step 8).
func (r *SceneRepository) MarkAnalyzed(ctx context.Context, sceneID string, videoAnalyzed bool) error {
	_, err := r.db.conn.ExecContext(ctx, `
		UPDATE scenes SET analyzed = true, video_analyzed = video_analyzed OR $2 WHERE id = $1
	`, sceneID, videoAnalyzed)
	if err != nil {
		return fmt.Errorf("mark scene %s analyzed: %w", sceneID, err)
	}
	return nil
}

// SetManuallyEdited sets the manually_edited flag used by the conflict
// resolver to detect local edits that should win over a remote sync
// (§4.8, Open Question).
func (r *SceneRepository) SetManuallyEdited(ctx context.Context, sceneID string, edited bool) error {
	_, err := r.db.conn.ExecContext(ctx, `UPDATE scenes SET manually_edited = $2 WHERE id = $1`, sceneID, edited)
	if err != nil {
		return fmt.Errorf("set manually_edited for %s: %w", sceneID, err)
	}
	return nil
}

// SetSyncConflict records an unresolved manual-policy conflict payload, or
// clears it when delta is nil (§4.8).
func (r *SceneRepository) SetSyncConflict(ctx context.Context, sceneID string, delta *string) error {
	_, err := r.db.conn.ExecContext(ctx, `UPDATE scenes SET sync_conflict = $2 WHERE id = $1`, sceneID, delta)
	if err != nil {
		return fmt.Errorf("set sync_conflict for %s: %w", sceneID, err)
	}
	return nil
}
