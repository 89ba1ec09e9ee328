package detectors

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStudioDetector_PathMatch(t *testing.T) {
	d, err := NewStudioDetector(nil)
	require.NoError(t, err)

	results := d.Detect(context.Background(), "/videos/SeanCody/SC1234_Test.mp4", []string{"Sean Cody"}, nil)
	require.Len(t, results, 1)
	assert.Equal(t, "Sean Cody", results[0].Value)
	assert.Equal(t, 0.95, results[0].Confidence)
	assert.Equal(t, SourcePath, results[0].Source)
}

func TestStudioDetector_FilenamePattern(t *testing.T) {
	d, err := NewStudioDetector(map[string]string{"Sean Cody": `(?i)^SC\d+`})
	require.NoError(t, err)

	results := d.Detect(context.Background(), "/videos/unsorted/SC9999_x.mp4", nil, nil)
	require.Len(t, results, 1)
	assert.Equal(t, "Sean Cody", results[0].Value)
	assert.Equal(t, 0.9, results[0].Confidence)
}

func TestStudioDetector_InvalidPatternFailsFast(t *testing.T) {
	_, err := NewStudioDetector(map[string]string{"bad": "(["})
	require.Error(t, err)
}

func TestStudioDetector_RegisterPatternAtRuntime(t *testing.T) {
	d, err := NewStudioDetector(nil)
	require.NoError(t, err)

	require.NoError(t, d.RegisterPattern("Test Studio", `TS\d+`))
	require.Error(t, d.RegisterPattern("bad", "(["))

	results := d.Detect(context.Background(), "/x/TS001.mp4", nil, nil)
	require.Len(t, results, 1)
	assert.Equal(t, "Test Studio", results[0].Value)
}

func TestStudioDetector_AIFallback(t *testing.T) {
	d, err := NewStudioDetector(nil)
	require.NoError(t, err)

	ai := func(ctx context.Context, path string) (string, float64, error) {
		return "Guessed Studio", 0.6, nil
	}
	results := d.Detect(context.Background(), "/no/signal/here.mp4", nil, ai)
	require.Len(t, results, 1)
	assert.Equal(t, "Guessed Studio", results[0].Value)
	assert.Equal(t, SourceAI, results[0].Source)
}

func TestStudioDetector_NoMatch(t *testing.T) {
	d, err := NewStudioDetector(nil)
	require.NoError(t, err)
	assert.Empty(t, d.Detect(context.Background(), "/x/y/z.mp4", nil, nil))
}

func TestStudioDetector_ExactMatchAtAnyAncestorDepth(t *testing.T) {
	d, err := NewStudioDetector(nil)
	require.NoError(t, err)

	// "Sean Cody" sits 5 directories up from the file; the exact-component
	// tier scans every ancestor directory with no depth cap, matching the
	// original detector's unbounded path_parts scan.
	results := d.Detect(context.Background(),
		"/Sean Cody/archive/2020/originals/encoded/clip.mp4",
		[]string{"Sean Cody"}, nil)
	require.Len(t, results, 1)
	assert.Equal(t, "Sean Cody", results[0].Value)
	assert.Equal(t, 0.95, results[0].Confidence)
}
