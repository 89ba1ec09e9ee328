package analysis

import (
	"context"
	"strings"

	"github.com/sjafferali/stashhog-sub000/internal/aiclient"
	"github.com/sjafferali/stashhog-sub000/internal/detectors"
)

// Logical operation names AIClient's cost accumulator tags completions
// under (§4.4).
const (
	opStudioDetection    = "studio_detection"
	opPerformerDetection = "performer_detection"
	opTagDetection       = "tag_detection"
)

const studioPromptTemplate = `Given the file path below, guess the studio that produced this scene, if any is evident from the path or filename.

file_path: {{file_path}}
title: {{title}}

Respond with JSON: {"studio": "<name or empty>", "confidence": <0-1>}`

var studioGuessSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"studio":     map[string]any{"type": "string"},
		"confidence": map[string]any{"type": "number"},
	},
}

type structuredStudioGuess struct {
	Studio     string  `json:"studio"`
	Confidence float64 `json:"confidence"`
}

// studioAIGuesser builds the StudioDetector AI-delegation hook, or nil when
// no AIClient is configured so Detect skips that tier entirely.
func (e *Engine) studioAIGuesser() detectors.AIStudioGuesser {
	if e.ai == nil {
		return nil
	}
	return func(ctx context.Context, path string) (string, float64, error) {
		prompt := aiclient.RenderPrompt(studioPromptTemplate, aiclient.SceneFields{FilePath: path})
		var out structuredStudioGuess
		if err := e.ai.CompleteStructured(ctx, prompt, studioGuessSchema, opStudioDetection, &out); err != nil {
			return "", 0, err
		}
		return out.Studio, out.Confidence, nil
	}
}

const performerPromptTemplate = `Given the file path below, list any performer names you can identify from the path, filename, or title.

file_path: {{file_path}}
title: {{title}}

Respond with JSON: {"performers": [{"name": "<name>", "confidence": <0-1>}]}`

var performerGuessSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"performers": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name":       map[string]any{"type": "string"},
					"confidence": map[string]any{"type": "number"},
				},
			},
		},
	},
}

type structuredPerformerGuess struct {
	Performers []struct {
		Name       string  `json:"name"`
		Confidence float64 `json:"confidence"`
	} `json:"performers"`
}

func (e *Engine) performerAIGuesser() detectors.AIPerformerGuesser {
	if e.ai == nil {
		return nil
	}
	return func(ctx context.Context, path string) ([]detectors.DetectionResult, error) {
		prompt := aiclient.RenderPrompt(performerPromptTemplate, aiclient.SceneFields{FilePath: path})
		var out structuredPerformerGuess
		if err := e.ai.CompleteStructured(ctx, prompt, performerGuessSchema, opPerformerDetection, &out); err != nil {
			return nil, err
		}
		results := make([]detectors.DetectionResult, 0, len(out.Performers))
		for _, p := range out.Performers {
			if p.Name == "" {
				continue
			}
			results = append(results, detectors.DetectionResult{Value: p.Name, Confidence: p.Confidence, Source: detectors.SourceAI})
		}
		return results, nil
	}
}

const tagPromptTemplate = `Given the scene below, choose any tags from the available list that apply. Only choose from the available tags.

title: {{title}}
details: {{details}}
available tags: {{tags}}

Respond with JSON: {"tags": [{"name": "<name>", "confidence": <0-1>}]}`

var tagGuessSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"tags": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name":       map[string]any{"type": "string"},
					"confidence": map[string]any{"type": "number"},
				},
			},
		},
	},
}

type structuredTagGuess struct {
	Tags []struct {
		Name       string  `json:"name"`
		Confidence float64 `json:"confidence"`
	} `json:"tags"`
}

// tagAIGuesser builds the TagDetector AI-delegation hook. Results are
// pre-filtered to availableTags here too, matching TagDetector.Detect's own
// filter, since a proposal outside the available set can never be applied
// (§4.6 step 4, §4.7).
func (e *Engine) tagAIGuesser() detectors.AITagGuesser {
	if e.ai == nil {
		return nil
	}
	return func(ctx context.Context, path string, availableTags []string) ([]detectors.DetectionResult, error) {
		prompt := aiclient.RenderPrompt(tagPromptTemplate, aiclient.SceneFields{Tags: strings.Join(availableTags, ", ")})
		var out structuredTagGuess
		if err := e.ai.CompleteStructured(ctx, prompt, tagGuessSchema, opTagDetection, &out); err != nil {
			return nil, err
		}

		available := make(map[string]bool, len(availableTags))
		for _, t := range availableTags {
			available[strings.ToLower(t)] = true
		}

		results := make([]detectors.DetectionResult, 0, len(out.Tags))
		for _, t := range out.Tags {
			if t.Name == "" || !available[strings.ToLower(t.Name)] {
				continue
			}
			results = append(results, detectors.DetectionResult{Value: t.Name, Confidence: t.Confidence, Source: detectors.SourceAI})
		}
		return results, nil
	}
}
