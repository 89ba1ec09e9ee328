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

func TestEntityRepository_PerformerUpsertAndList(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	ents := NewEntityRepository(db)

	id := uuid.NewString()
	p := &model.Performer{ID: id, Name: "Jane Doe", Aliases: []string{"J. Doe", "Jane D"}, LastSynced: time.Now()}
	require.NoError(t, ents.UpsertPerformer(ctx, p))

	list, err := ents.ListPerformers(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Jane Doe", list[0].Name)
	assert.ElementsMatch(t, []string{"J. Doe", "Jane D"}, list[0].Aliases)

	p.Name = "Jane D. Updated"
	require.NoError(t, ents.UpsertPerformer(ctx, p))
	list, err = ents.ListPerformers(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Jane D. Updated", list[0].Name)
}

func TestEntityRepository_TagHierarchyParentID(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	ents := NewEntityRepository(db)

	parentID := uuid.NewString()
	childID := uuid.NewString()
	require.NoError(t, ents.UpsertTag(ctx, &model.Tag{ID: parentID, Name: "bareback", LastSynced: time.Now()}))
	require.NoError(t, ents.UpsertTag(ctx, &model.Tag{ID: childID, Name: "raw", ParentID: &parentID, LastSynced: time.Now()}))

	tags, err := ents.ListTags(ctx)
	require.NoError(t, err)
	require.Len(t, tags, 2)

	byName := map[string]model.Tag{}
	for _, tag := range tags {
		byName[tag.Name] = tag
	}
	require.NotNil(t, byName["raw"].ParentID)
	assert.Equal(t, parentID, *byName["raw"].ParentID)
	assert.Nil(t, byName["bareback"].ParentID)
}

func TestEntityRepository_FindStudioByName_CaseInsensitive(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	ents := NewEntityRepository(db)

	id := uuid.NewString()
	require.NoError(t, ents.UpsertStudio(ctx, &model.Studio{ID: id, Name: "Sean Cody", LastSynced: time.Now()}))

	got, err := ents.FindStudioByName(ctx, "sean cody")
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)

	_, err = ents.FindStudioByName(ctx, "nonexistent studio")
	assert.ErrorIs(t, err, ErrNotFound)
}
