package detectors

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sjafferali/stashhog-sub000/internal/model"
)

func TestVideoTagDetector_Analyze_ModernShape(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"result": map[string]any{
				"video_tag_info": map[string]any{
					"video_tags": map[string]any{"category": []string{"kissing"}},
					"tag_timespans": map[string]any{
						"category": map[string]any{
							"kissing": []map[string]any{{"start": 1.0, "end": 5.0}},
						},
					},
				},
			},
		})
	}))
	defer server.Close()

	d := NewVideoTagDetector(server.Client(), server.URL)
	tags, occs, err := d.Analyze(context.Background(), VideoTagRequest{Path: "/x.mp4"})
	require.NoError(t, err)
	assert.Contains(t, tags, "kissing")
	require.Len(t, occs, 1)
	assert.Equal(t, "kissing", occs[0].Tag)
}

func TestVideoTagDetector_Analyze_LegacyStringEncodedShape(t *testing.T) {
	inner := `{"timespans":{"cat":{"oral":[{"start":1,"end":3,"confidence":0.8}]}}}`
	encoded, _ := json.Marshal(inner)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"result":{"json_result":` + string(encoded) + `}}`))
	}))
	defer server.Close()

	d := NewVideoTagDetector(server.Client(), server.URL)
	tags, occs, err := d.Analyze(context.Background(), VideoTagRequest{Path: "/x.mp4"})
	require.NoError(t, err)
	assert.Contains(t, tags, "oral")
	require.Len(t, occs, 1)
	assert.Equal(t, 0.8, occs[0].Confidence)
}

func TestVideoTagDetector_Analyze_MergesCategoriesDifferingOnlyByCase(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"result": map[string]any{
				"video_tag_info": map[string]any{
					"video_tags": map[string]any{},
					"tag_timespans": map[string]any{
						" Actions ": map[string]any{
							"kissing": []map[string]any{{"start": 1.0, "end": 5.0}},
						},
						"actions": map[string]any{
							"kissing": []map[string]any{{"start": 6.0, "end": 9.0}},
						},
					},
				},
			},
		})
	}))
	defer server.Close()

	d := NewVideoTagDetector(server.Client(), server.URL)
	_, occs, err := d.Analyze(context.Background(), VideoTagRequest{Path: "/x.mp4"})
	require.NoError(t, err)
	require.Len(t, occs, 2, "both categories fold into one normalized key but keep their own spans")
}

func TestNormalizeCategory_LowercasesAndTrims(t *testing.T) {
	assert.Equal(t, "actions", normalizeCategory("  Actions  "))
}

func TestMergeOccurrences_MergesCloseConfidenceMatchingSpans(t *testing.T) {
	occs := []VideoOccurrence{
		{Tag: "kissing", Start: 0, End: 5, Confidence: 0.90},
		{Tag: "kissing", Start: 5.5, End: 10, Confidence: 0.905},
		{Tag: "kissing", Start: 50, End: 55, Confidence: 0.5},
	}
	merged := MergeOccurrences(occs, 1.0) // maxGap = 1.1

	require.Len(t, merged, 2)
	assert.Equal(t, 0.0, merged[0].Start)
	assert.Equal(t, 10.0, merged[0].End)
	assert.Equal(t, 50.0, merged[1].Start)
}

func TestMergeOccurrences_Stable(t *testing.T) {
	occs := []VideoOccurrence{
		{Tag: "a", Start: 0, End: 2, Confidence: 0.9},
		{Tag: "a", Start: 2.5, End: 4, Confidence: 0.9},
	}
	once := MergeOccurrences(occs, 1.0)
	twice := MergeOccurrences(once, 1.0)
	assert.Equal(t, once, twice)
}

func TestWithAISuffix_Idempotent(t *testing.T) {
	assert.Equal(t, "kissing_AI", withAISuffix("kissing"))
	assert.Equal(t, "kissing_AI", withAISuffix("kissing_AI"))
}

func TestBuildMarkerChanges_RemovesAbsentAIMarkers(t *testing.T) {
	existing := []model.SceneMarker{
		{ID: "m1", Seconds: 99, Title: "old_AI", PrimaryTagID: "t1"},
	}
	tagNames := map[string]string{"t1": "old_AI"}

	changes := BuildMarkerChanges("scene1", nil, existing, tagNames)
	require.Len(t, changes, 1)
	assert.Equal(t, model.ActionRemove, changes[0].Action)
}
