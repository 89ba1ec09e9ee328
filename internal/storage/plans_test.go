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

func TestPlanRepository_CreateGetUpdateStatus(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	plans := NewPlanRepository(db)

	planID := uuid.NewString()
	changeID := uuid.NewString()
	plan := &model.AnalysisPlan{
		ID:        planID,
		Name:      "weekly analysis",
		Status:    model.PlanStatusDraft,
		CreatedAt: time.Now(),
		Metadata: model.PlanMetadata{
			Statistics: model.PlanStatistics{TotalChanges: 1, ChangesByField: map[string]int{"tags": 1}},
		},
		Changes: []model.PlanChange{{
			ID: changeID, PlanID: planID, SceneID: "scene-1",
			Field: model.FieldTags, Action: model.ActionAdd,
			ProposedValue: "bareback_AI", Confidence: 0.9, Status: model.ChangeStatusPending,
		}},
	}
	require.NoError(t, plans.Create(ctx, plan))

	got, err := plans.Get(ctx, planID)
	require.NoError(t, err)
	assert.Equal(t, "weekly analysis", got.Name)
	assert.Equal(t, model.PlanStatusDraft, got.Status)
	require.Len(t, got.Changes, 1)
	assert.Equal(t, "scene-1", got.Changes[0].SceneID)
	assert.Equal(t, 1, got.Metadata.Statistics.TotalChanges)

	appliedAt := time.Now()
	require.NoError(t, plans.UpdateStatus(ctx, planID, model.PlanStatusApplied, &appliedAt))
	got, err = plans.Get(ctx, planID)
	require.NoError(t, err)
	assert.Equal(t, model.PlanStatusApplied, got.Status)
	require.NotNil(t, got.AppliedAt)
}

func TestPlanRepository_BulkUpdateChangeStatusAndMarkApplied(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	plans := NewPlanRepository(db)

	planID := uuid.NewString()
	c1, c2 := uuid.NewString(), uuid.NewString()
	plan := &model.AnalysisPlan{
		ID: planID, Name: "p", Status: model.PlanStatusDraft, CreatedAt: time.Now(),
		Changes: []model.PlanChange{
			{ID: c1, PlanID: planID, SceneID: "s1", Field: model.FieldTags, Action: model.ActionAdd, Status: model.ChangeStatusPending},
			{ID: c2, PlanID: planID, SceneID: "s2", Field: model.FieldTags, Action: model.ActionAdd, Status: model.ChangeStatusPending},
		},
	}
	require.NoError(t, plans.Create(ctx, plan))

	require.NoError(t, plans.BulkUpdateChangeStatus(ctx, []string{c1, c2}, model.ChangeStatusApproved))
	changes, err := plans.ListChanges(ctx, planID)
	require.NoError(t, err)
	for _, c := range changes {
		assert.Equal(t, model.ChangeStatusApproved, c.Status)
	}

	require.NoError(t, plans.MarkChangeApplied(ctx, c1, time.Now()))
	changes, err = plans.ListChanges(ctx, planID)
	require.NoError(t, err)
	for _, c := range changes {
		if c.ID == c1 {
			assert.Equal(t, model.ChangeStatusApplied, c.Status)
			assert.NotNil(t, c.AppliedAt)
		}
	}
}

func TestPlanRepository_DeleteCascadesChanges(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	plans := NewPlanRepository(db)

	planID := uuid.NewString()
	require.NoError(t, plans.Create(ctx, &model.AnalysisPlan{
		ID: planID, Name: "p", Status: model.PlanStatusDraft, CreatedAt: time.Now(),
		Changes: []model.PlanChange{{ID: uuid.NewString(), PlanID: planID, SceneID: "s1", Field: model.FieldTags, Action: model.ActionAdd, Status: model.ChangeStatusPending}},
	}))

	require.NoError(t, plans.Delete(ctx, planID))
	_, err := plans.Get(ctx, planID)
	assert.ErrorIs(t, err, ErrNotFound)
}
