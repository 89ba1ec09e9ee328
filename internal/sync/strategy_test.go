package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sjafferali/stashhog-sub000/internal/model"
)

func TestFullSyncStrategy_AlwaysSyncs(t *testing.T) {
	s := FullSyncStrategy{}
	local := &model.Scene{StashUpdatedAt: time.Now()}
	remote := model.Scene{StashUpdatedAt: time.Now().Add(-time.Hour)}
	assert.True(t, s.ShouldSync(local, remote))
	assert.True(t, s.ShouldSync(nil, remote))
}

func TestFullSyncStrategy_Merge_PreservesLocalBookkeeping(t *testing.T) {
	s := FullSyncStrategy{}
	local := &model.Scene{Analyzed: true, VideoAnalyzed: true, ManuallyEdited: true}
	remote := model.Scene{Title: "new title"}
	merged := s.Merge(local, remote)
	assert.Equal(t, "new title", merged.Title)
	assert.True(t, merged.Analyzed)
	assert.True(t, merged.VideoAnalyzed)
	assert.True(t, merged.ManuallyEdited)
}

func TestIncrementalSyncStrategy_SyncsOnlyWhenRemoteNewer(t *testing.T) {
	s := IncrementalSyncStrategy{}
	now := time.Now()
	local := &model.Scene{StashUpdatedAt: now}

	assert.False(t, s.ShouldSync(local, model.Scene{StashUpdatedAt: now.Add(-time.Minute)}))
	assert.False(t, s.ShouldSync(local, model.Scene{StashUpdatedAt: now}))
	assert.True(t, s.ShouldSync(local, model.Scene{StashUpdatedAt: now.Add(time.Minute)}))
	assert.True(t, s.ShouldSync(nil, model.Scene{StashUpdatedAt: now}))
}

func TestSmartSyncStrategy_SyncsOnChecksumMismatchEvenWithoutNewerTimestamp(t *testing.T) {
	s := SmartSyncStrategy{}
	now := time.Now()
	local := &model.Scene{StashUpdatedAt: now, Title: "old title"}
	remote := model.Scene{StashUpdatedAt: now, Title: "new title"}
	assert.True(t, s.ShouldSync(local, remote))
}

func TestSmartSyncStrategy_NoSyncWhenIdenticalAndNotNewer(t *testing.T) {
	s := SmartSyncStrategy{}
	now := time.Now()
	local := &model.Scene{StashUpdatedAt: now, Title: "same"}
	remote := model.Scene{StashUpdatedAt: now, Title: "same"}
	assert.False(t, s.ShouldSync(local, remote))
}

func TestSmartSyncStrategy_Merge_PreservesTextFieldsWhenManuallyEdited(t *testing.T) {
	s := SmartSyncStrategy{}
	local := &model.Scene{Title: "local title", Details: "local details", ManuallyEdited: true}
	remote := model.Scene{Title: "remote title", Details: "remote details", Files: []model.SceneFile{{Path: "/a.mp4"}}}

	merged := s.Merge(local, remote)
	assert.Equal(t, "local title", merged.Title)
	assert.Equal(t, "local details", merged.Details)
	assert.Equal(t, remote.Files, merged.Files, "file fields are always taken from remote")
}

func TestSmartSyncStrategy_Merge_TakesRemoteTextFieldsWhenNotManuallyEdited(t *testing.T) {
	s := SmartSyncStrategy{}
	local := &model.Scene{Title: "local title"}
	remote := model.Scene{Title: "remote title"}
	merged := s.Merge(local, remote)
	assert.Equal(t, "remote title", merged.Title)
}

func TestSceneChecksum_StableAcrossPerformerOrder(t *testing.T) {
	a := model.Scene{PerformerIDs: []string{"p2", "p1"}}
	b := model.Scene{PerformerIDs: []string{"p1", "p2"}}
	assert.Equal(t, SceneChecksum(a), SceneChecksum(b))
}

func TestSceneChecksum_DiffersOnDetailsChange(t *testing.T) {
	a := model.Scene{Details: "one"}
	b := model.Scene{Details: "two"}
	assert.NotEqual(t, SceneChecksum(a), SceneChecksum(b))
}

func TestStrategyFor(t *testing.T) {
	assert.IsType(t, FullSyncStrategy{}, StrategyFor(ModeFull))
	assert.IsType(t, IncrementalSyncStrategy{}, StrategyFor(ModeIncremental))
	assert.IsType(t, SmartSyncStrategy{}, StrategyFor(ModeTargeted))
}
