package analysis

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sjafferali/stashhog-sub000/internal/detectors"
	"github.com/sjafferali/stashhog-sub000/internal/model"
)

func newDetectorOnlyEngine(t *testing.T) *Engine {
	t.Helper()
	studioDetector, err := detectors.NewStudioDetector(nil)
	require.NoError(t, err)
	return New(Config{
		StudioDetector:    studioDetector,
		PerformerDetector: detectors.NewPerformerDetector(),
		TagDetector:       detectors.NewTagDetector(nil),
	})
}

func TestAnalyzeScene_SkipsStudioDetectionWhenAlreadySet(t *testing.T) {
	eng := newDetectorOnlyEngine(t)
	existing := "studio-1"
	scene := &model.Scene{
		ID:       "scene-1",
		StudioID: &existing,
		Files:    []model.SceneFile{{Path: "/media/Sean Cody/video.mp4", IsPrimary: true}},
	}
	ref := referenceData{studioNames: []string{"Sean Cody"}}

	changes, err := eng.analyzeScene(context.Background(), scene, Options{DetectStudios: true}.normalized(), ref)
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestAnalyzeScene_ProposesStudioFromPathComponent(t *testing.T) {
	eng := newDetectorOnlyEngine(t)
	scene := &model.Scene{
		ID:    "scene-1",
		Files: []model.SceneFile{{Path: "/media/Sean Cody/video.mp4", IsPrimary: true}},
	}
	ref := referenceData{studioNames: []string{"Sean Cody"}}

	changes, err := eng.analyzeScene(context.Background(), scene, Options{DetectStudios: true}.normalized(), ref)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, model.FieldStudio, changes[0].Field)
	assert.Equal(t, model.ActionSet, changes[0].Action)
	assert.Equal(t, "Sean Cody", changes[0].ProposedValue)
}

func TestAnalyzeScene_SkipsPerformerAlreadyOnScene(t *testing.T) {
	eng := newDetectorOnlyEngine(t)
	scene := &model.Scene{
		ID:           "scene-1",
		PerformerIDs: []string{"perf-1"},
		Files:        []model.SceneFile{{Path: "/media/Jane Doe/video.mp4", IsPrimary: true}},
	}
	ref := referenceData{
		knownPerformers:   []detectors.KnownPerformer{{ID: "perf-1", Name: "Jane Doe"}},
		performerNameByID: map[string]string{"perf-1": "Jane Doe"},
	}

	changes, err := eng.analyzeScene(context.Background(), scene, Options{DetectPerformers: true}.normalized(), ref)
	require.NoError(t, err)
	assert.Empty(t, changes, "Jane Doe is already on the scene, so no add change is proposed")
}

func TestAnalyzeScene_TagProposalOutsideAvailableSetIsDropped(t *testing.T) {
	eng := newDetectorOnlyEngine(t)
	scene := &model.Scene{
		ID:    "scene-1",
		Files: []model.SceneFile{{Path: "/media/video.mp4", IsPrimary: true, Width: 3840, Height: 2160}},
	}
	// "4K" is a technical-tag proposal but is absent from the local mirror.
	ref := referenceData{availableTags: []string{"1080p"}}

	changes, err := eng.analyzeScene(context.Background(), scene, Options{DetectTags: true, ConfidenceThreshold: 0.5}.normalized(), ref)
	require.NoError(t, err)
	for _, c := range changes {
		assert.NotEqual(t, "4K", c.ProposedValue)
	}
}

func TestAnalyzeScene_DetailsProposalOnlyWhenCleaningChangesText(t *testing.T) {
	eng := New(Config{})
	scene := &model.Scene{ID: "scene-1", Details: "<p>Hello <a href=\"http://x\">world</a></p>"}

	changes, err := eng.analyzeScene(context.Background(), scene, Options{DetectDetails: true}.normalized(), referenceData{})
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, model.FieldDetails, changes[0].Field)
	assert.Equal(t, model.ActionUpdate, changes[0].Action)
}

func TestAnalyzeScene_VideoTagsSynthesizesAIStatusTags(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"result":{"video_tag_info":{"video_tags":{"a":["blowjob"]},"tag_timespans":{}}}}`))
	}))
	defer server.Close()

	eng := New(Config{
		VideoDetector:  detectors.NewVideoTagDetector(http.DefaultClient, server.URL),
		VideoTagConfig: VideoTagConfig{FrameInterval: 2, Threshold: 0.5},
	})
	scene := &model.Scene{ID: "scene-1", TagIDs: []string{"tag-me"}}
	ref := referenceData{tagNameByID: map[string]string{"tag-me": aiStatusTagMe}}

	changes, err := eng.analyzeScene(context.Background(), scene, Options{DetectVideoTags: true}.normalized(), ref)
	require.NoError(t, err)

	var sawRemoveTagMe, sawAddTagged bool
	for _, c := range changes {
		if c.Field != model.FieldTags {
			continue
		}
		if c.Action == model.ActionRemove && c.CurrentValue == aiStatusTagMe {
			sawRemoveTagMe = true
		}
		if c.Action == model.ActionAdd && c.ProposedValue == aiStatusTagTagged {
			sawAddTagged = true
		}
	}
	assert.True(t, sawRemoveTagMe)
	assert.True(t, sawAddTagged)
}

// When video-tag detection fails alongside another enabled detector, the
// failure degrades gracefully to an AI_Errored status tag and the scene's
// other changes still come through (§7).
func TestAnalyzeScene_VideoTagsErroredOnFailureWhenOtherDetectorsEnabled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	eng := New(Config{
		VideoDetector:  detectors.NewVideoTagDetector(http.DefaultClient, server.URL),
		VideoTagConfig: VideoTagConfig{FrameInterval: 2, Threshold: 0.5},
	})
	scene := &model.Scene{ID: "scene-1", TagIDs: []string{"tag-me"}, Details: "fine already"}
	ref := referenceData{tagNameByID: map[string]string{"tag-me": aiStatusTagMe}}

	changes, err := eng.analyzeScene(context.Background(), scene,
		Options{DetectVideoTags: true, DetectDetails: true}.normalized(), ref)
	require.NoError(t, err)
	// The details tier proposes "fine already." (terminal punctuation added)
	// ahead of the video tier's AI_Errored status tag.
	require.Len(t, changes, 2)
	assert.Equal(t, model.FieldDetails, changes[0].Field)
	assert.Equal(t, aiStatusTagErrored, changes[1].ProposedValue)
}

// When video-tag detection is the only enabled detector, a failure has no
// other tier to fall back on, so the engine surfaces the real error instead
// of synthesizing an AI_Errored tag (§4.6, §7).
func TestAnalyzeScene_VideoTagsPropagatesErrorWhenSoleDetector(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	eng := New(Config{
		VideoDetector:  detectors.NewVideoTagDetector(http.DefaultClient, server.URL),
		VideoTagConfig: VideoTagConfig{FrameInterval: 2, Threshold: 0.5},
	})
	scene := &model.Scene{ID: "scene-1", TagIDs: []string{"tag-me"}}
	ref := referenceData{tagNameByID: map[string]string{"tag-me": aiStatusTagMe}}

	changes, err := eng.analyzeScene(context.Background(), scene, Options{DetectVideoTags: true}.normalized(), ref)
	require.Error(t, err)
	assert.Empty(t, changes)
}
