package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sjafferali/stashhog-sub000/internal/model"
)

func seedStudioTagPerformer(t *testing.T, ctx context.Context, ents *EntityRepository) (studioID, tagID, performerID string) {
	t.Helper()
	studioID, tagID, performerID = uuid.NewString(), uuid.NewString(), uuid.NewString()
	require.NoError(t, ents.UpsertStudio(ctx, &model.Studio{ID: studioID, Name: "Sean Cody", LastSynced: time.Now()}))
	require.NoError(t, ents.UpsertTag(ctx, &model.Tag{ID: tagID, Name: "bareback", LastSynced: time.Now()}))
	require.NoError(t, ents.UpsertPerformer(ctx, &model.Performer{ID: performerID, Name: "Jane Doe", LastSynced: time.Now()}))
	return
}

func TestSceneRepository_UpsertAndGet_RoundTripsFilesMarkersAssociations(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	scenes := NewSceneRepository(db)
	ents := NewEntityRepository(db)

	studioID, tagID, performerID := seedStudioTagPerformer(t, ctx, ents)

	sceneID := uuid.NewString()
	fileID := uuid.NewString()
	markerID := uuid.NewString()
	end := 12.5

	scene := &model.Scene{
		ID:             sceneID,
		Title:          "Test Scene",
		Details:        "some details",
		StudioID:       &studioID,
		PerformerIDs:   []string{performerID},
		TagIDs:         []string{tagID},
		Files:          []model.SceneFile{{ID: fileID, SceneID: sceneID, Path: "/videos/a.mp4", IsPrimary: true, Width: 3840, Height: 2160}},
		Markers:        []model.SceneMarker{{ID: markerID, SceneID: sceneID, Seconds: 5, EndSeconds: &end, PrimaryTagID: tagID, TagIDs: []string{tagID}}},
		StashCreatedAt: time.Now().Add(-time.Hour),
		StashUpdatedAt: time.Now(),
		LastSynced:     time.Now(),
	}

	require.NoError(t, scenes.Upsert(ctx, scene))

	got, err := scenes.Get(ctx, sceneID)
	require.NoError(t, err)
	assert.Equal(t, "Test Scene", got.Title)
	assert.Equal(t, studioID, *got.StudioID)
	require.Len(t, got.Files, 1)
	assert.Equal(t, "/videos/a.mp4", got.Files[0].Path)
	assert.True(t, got.Files[0].IsPrimary)
	require.Len(t, got.Markers, 1)
	assert.Equal(t, 5.0, got.Markers[0].Seconds)
	require.NotNil(t, got.Markers[0].EndSeconds)
	assert.Equal(t, 12.5, *got.Markers[0].EndSeconds)
	assert.Equal(t, []string{performerID}, got.PerformerIDs)
	assert.Equal(t, []string{tagID}, got.TagIDs)

	// Re-upsert with fewer files/markers/associations; Upsert fully replaces them.
	scene.Files = nil
	scene.Markers = nil
	scene.TagIDs = nil
	require.NoError(t, scenes.Upsert(ctx, scene))

	got, err = scenes.Get(ctx, sceneID)
	require.NoError(t, err)
	assert.Empty(t, got.Files)
	assert.Empty(t, got.Markers)
	assert.Empty(t, got.TagIDs)
	assert.Equal(t, []string{performerID}, got.PerformerIDs)
}

func TestSceneRepository_Get_NotFound(t *testing.T) {
	db := newTestDB(t)
	scenes := NewSceneRepository(db)

	_, err := scenes.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSceneRepository_ListUnanalyzedAndMarkAnalyzed(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	scenes := NewSceneRepository(db)

	id := uuid.NewString()
	require.NoError(t, scenes.Upsert(ctx, &model.Scene{
		ID: id, StashCreatedAt: time.Now(), StashUpdatedAt: time.Now(), LastSynced: time.Now(),
	}))

	unanalyzed, err := scenes.ListUnanalyzed(ctx, 10)
	require.NoError(t, err)
	assert.Contains(t, unanalyzed, id)

	require.NoError(t, scenes.MarkAnalyzed(ctx, id, true))

	got, err := scenes.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, got.Analyzed)
	assert.True(t, got.VideoAnalyzed)

	unanalyzed, err = scenes.ListUnanalyzed(ctx, 10)
	require.NoError(t, err)
	assert.NotContains(t, unanalyzed, id)
}

func TestSceneRepository_ListModifiedSince(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	scenes := NewSceneRepository(db)

	cutoff := time.Now()
	old := uuid.NewString()
	fresh := uuid.NewString()
	require.NoError(t, scenes.Upsert(ctx, &model.Scene{
		ID: old, StashCreatedAt: cutoff.Add(-48 * time.Hour), StashUpdatedAt: cutoff.Add(-48 * time.Hour), LastSynced: time.Now(),
	}))
	require.NoError(t, scenes.Upsert(ctx, &model.Scene{
		ID: fresh, StashCreatedAt: cutoff, StashUpdatedAt: cutoff.Add(time.Minute), LastSynced: time.Now(),
	}))

	ids, err := scenes.ListModifiedSince(ctx, cutoff, 100, 0)
	require.NoError(t, err)
	assert.Contains(t, ids, fresh)
	assert.NotContains(t, ids, old)
}
