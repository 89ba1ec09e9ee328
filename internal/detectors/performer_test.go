package detectors

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPerformerDetector_PathExtraction(t *testing.T) {
	d := NewPerformerDetector()
	known := []KnownPerformer{{ID: "1", Name: "John Smith"}, {ID: "2", Name: "Jane Doe"}}

	results := d.Detect(context.Background(), "/Videos/John Smith and Jane Doe/scene.mp4", known, nil)

	require.Len(t, results, 2)
	for _, r := range results {
		assert.Contains(t, []string{"John Smith", "Jane Doe"}, r.Value)
		assert.GreaterOrEqual(t, r.Confidence, 0.8)
	}
}

func TestPerformerDetector_AliasMatch(t *testing.T) {
	d := NewPerformerDetector()
	known := []KnownPerformer{{ID: "1", Name: "Jane Doe", Aliases: []string{"JD"}}}

	results := d.Detect(context.Background(), "/videos/JD_solo/clip.mp4", known, nil)
	require.NotEmpty(t, results)
}

func TestPerformerDetector_CandidateValidation(t *testing.T) {
	assert.True(t, isValidCandidate("Jo"))
	assert.False(t, isValidCandidate("J"))
	assert.False(t, isValidCandidate("12345"))
	assert.False(t, isValidCandidate(""))
}

func TestPerformerDetector_UnionKeepsMaxConfidence(t *testing.T) {
	d := NewPerformerDetector()
	known := []KnownPerformer{{ID: "1", Name: "Jane Doe"}}

	ai := func(ctx context.Context, path string) ([]DetectionResult, error) {
		return []DetectionResult{{Value: "Jane Doe", Confidence: 0.99, Source: SourceAI}}, nil
	}

	// The exact path match (1.0) outranks the AI's 0.99 for "Jane Doe"; the
	// file name adds an unmatched "clip" candidate at 0.5.
	results := d.Detect(context.Background(), "/videos/Jane Doe/clip.mp4", known, ai)
	require.Len(t, results, 2)
	assert.Equal(t, "Jane Doe", results[0].Value)
	assert.Equal(t, 1.0, results[0].Confidence)
}

func TestPerformerDetector_NoSeparatorFallsBackToCapitalizedWords(t *testing.T) {
	d := NewPerformerDetector()
	results := d.Detect(context.Background(), "/videos/JaneDoeSolo/JaneDoe.mp4", nil, nil)
	assert.NotEmpty(t, results)
}
