package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sjafferali/stashhog-sub000/internal/model"
)

func TestEngine_Run_FullSync_CreatesEntitiesAndScenes(t *testing.T) {
	scenes, entities, history := newTestStores(t)
	ctx := context.Background()

	fc := &fakeCatalog{
		performers: []map[string]any{{"id": "perf-1", "name": "Jane Doe"}},
		tags:       []map[string]any{{"id": "tag-1", "name": "1080p"}},
		studios:    []map[string]any{{"id": "studio-1", "name": "Sean Cody"}},
		scenes: []map[string]any{{
			"id": "scene-1", "title": "A Scene", "organized": true,
			"created_at": "2026-01-01T00:00:00Z", "updated_at": "2026-01-01T00:00:00Z",
			"files":      []map[string]any{{"id": "", "path": "/media/a.mp4"}},
			"performers": []map[string]any{{"id": "perf-1", "name": "Jane Doe"}},
			"tags":       []map[string]any{{"id": "tag-1", "name": "1080p"}},
			"studio":     map[string]any{"id": "studio-1", "name": "Sean Cody"},
		}},
	}
	catalog := newTestCatalogClient(t, fc)

	eng := New(Config{Catalog: catalog, Scenes: scenes, Entities: entities, History: history})
	result, err := eng.Run(ctx, Options{Mode: ModeFull}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, model.SyncStatusSuccess, result.Status)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 4, result.Created, "1 scene + 3 entities created")

	saved, err := scenes.Get(ctx, "scene-1")
	require.NoError(t, err)
	assert.Equal(t, "A Scene", saved.Title)
	require.Len(t, saved.Files, 1)
	assert.True(t, saved.Files[0].IsPrimary)
	assert.NotEmpty(t, saved.Files[0].ID, "a remote file with no id gets a deterministic one")

	performers, err := entities.ListPerformers(ctx)
	require.NoError(t, err)
	require.Len(t, performers, 1)
	assert.Equal(t, "Jane Doe", performers[0].Name)

	histories, err := history.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, histories, 1)
	assert.Equal(t, model.SyncEntityAll, histories[0].EntityType)
}

func TestEngine_Run_IncrementalSync_DegradesToFullWithoutPriorWatermark(t *testing.T) {
	scenes, entities, history := newTestStores(t)
	ctx := context.Background()

	fc := &fakeCatalog{
		scenes: []map[string]any{{
			"id": "scene-1", "title": "A Scene",
			"created_at": "2026-01-01T00:00:00Z", "updated_at": "2026-01-01T00:00:00Z",
			"files": []map[string]any{{"id": "f1", "path": "/media/a.mp4"}},
		}},
	}
	catalog := newTestCatalogClient(t, fc)
	eng := New(Config{Catalog: catalog, Scenes: scenes, Entities: entities, History: history})

	result, err := eng.Run(ctx, Options{Mode: ModeIncremental, EntityType: model.SyncEntityScene}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "full", result.Mode, "no prior successful sync means the run degrades to full")

	saved, err := scenes.Get(ctx, "scene-1")
	require.NoError(t, err)
	assert.Equal(t, "A Scene", saved.Title)
}

func TestEngine_Run_IncrementalSync_DegradesToFullWhenOnlyAllTypeWatermarkExists(t *testing.T) {
	scenes, entities, history := newTestStores(t)
	ctx := context.Background()

	// An all-type watermark exists (e.g. from a prior full sync), but no
	// scene-type watermark ever succeeded. A scene-type incremental run
	// must not borrow the all-type watermark's 24h fallback window — it
	// degrades straight to full (§4.8, spec.md:171).
	require.NoError(t, history.Start(ctx, model.SyncEntityAll, time.Now().Add(-time.Hour), "h-all"))
	require.NoError(t, history.Complete(ctx, "h-all", model.SyncStatusSuccess, 0, 0, 0, 0, nil))

	fc := &fakeCatalog{
		scenes: []map[string]any{{
			"id": "scene-1", "title": "A Scene",
			"created_at": "2026-01-01T00:00:00Z", "updated_at": "2026-01-01T00:00:00Z",
			"files": []map[string]any{{"id": "f1", "path": "/media/a.mp4"}},
		}},
	}
	catalog := newTestCatalogClient(t, fc)
	eng := New(Config{Catalog: catalog, Scenes: scenes, Entities: entities, History: history})

	result, err := eng.Run(ctx, Options{Mode: ModeIncremental, EntityType: model.SyncEntityScene}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "full", result.Mode, "the all-type watermark must not substitute for a missing scene-type one")

	saved, err := scenes.Get(ctx, "scene-1")
	require.NoError(t, err)
	assert.Equal(t, "A Scene", saved.Title)
}

func TestEngine_Run_TargetedSync_FetchesExplicitSceneIDs(t *testing.T) {
	scenes, entities, history := newTestStores(t)
	ctx := context.Background()

	fc := &fakeCatalog{
		scenes: []map[string]any{{
			"id": "scene-9", "title": "Targeted",
			"created_at": "2026-01-01T00:00:00Z", "updated_at": "2026-01-01T00:00:00Z",
		}},
	}
	catalog := newTestCatalogClient(t, fc)
	eng := New(Config{Catalog: catalog, Scenes: scenes, Entities: entities, History: history})

	result, err := eng.Run(ctx, Options{Mode: ModeTargeted, SceneIDs: []string{"scene-9"}}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)

	saved, err := scenes.Get(ctx, "scene-9")
	require.NoError(t, err)
	assert.Equal(t, "Targeted", saved.Title)
}

func TestEngine_Run_LocalWinsPolicy_KeepsLocalEditsOnResync(t *testing.T) {
	scenes, entities, history := newTestStores(t)
	ctx := context.Background()

	require.NoError(t, scenes.Upsert(ctx, &model.Scene{
		ID: "scene-1", Title: "local edit", ManuallyEdited: true,
	}))

	fc := &fakeCatalog{
		scenes: []map[string]any{{
			"id": "scene-1", "title": "remote title",
			"created_at": "2026-01-01T00:00:00Z", "updated_at": "2026-01-02T00:00:00Z",
		}},
	}
	catalog := newTestCatalogClient(t, fc)
	eng := New(Config{Catalog: catalog, Scenes: scenes, Entities: entities, History: history})

	_, err := eng.Run(ctx, Options{Mode: ModeFull, Policy: PolicyLocalWins}, nil, nil)
	require.NoError(t, err)

	saved, err := scenes.Get(ctx, "scene-1")
	require.NoError(t, err)
	assert.Equal(t, "local edit", saved.Title)
}

func TestEngine_Run_ManualPolicy_FlagsConflictWithoutMutating(t *testing.T) {
	scenes, entities, history := newTestStores(t)
	ctx := context.Background()

	require.NoError(t, scenes.Upsert(ctx, &model.Scene{
		ID: "scene-1", Title: "local edit",
	}))

	fc := &fakeCatalog{
		scenes: []map[string]any{{
			"id": "scene-1", "title": "remote title",
			"created_at": "2026-01-01T00:00:00Z", "updated_at": "2026-01-02T00:00:00Z",
		}},
	}
	catalog := newTestCatalogClient(t, fc)
	eng := New(Config{Catalog: catalog, Scenes: scenes, Entities: entities, History: history})

	_, err := eng.Run(ctx, Options{Mode: ModeFull, Policy: PolicyManual}, nil, nil)
	require.NoError(t, err)

	saved, err := scenes.Get(ctx, "scene-1")
	require.NoError(t, err)
	assert.Equal(t, "local edit", saved.Title, "manual policy must not overwrite the local row")
	require.NotNil(t, saved.SyncConflict)
	assert.Contains(t, *saved.SyncConflict, "title")
}
