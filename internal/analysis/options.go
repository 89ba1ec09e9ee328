// Package analysis implements AnalysisEngine (§4.6): it orchestrates the
// detector pipeline over a scene set via BatchProcessor, aggregates
// per-scene ProposedChanges, and produces a Plan through PlanStore.
package analysis

import (
	"github.com/sjafferali/stashhog-sub000/internal/batch"
	"github.com/sjafferali/stashhog-sub000/internal/detectors"
)

// DefaultBatchSize is the batch size AnalysisEngine uses when Options does
// not specify one (§4.6).
const DefaultBatchSize = 15

// Options configures one Analyze run. All detector toggles default false.
type Options struct {
	DetectStudios       bool
	DetectPerformers    bool
	DetectTags          bool
	DetectDetails       bool
	DetectVideoTags     bool
	ExcludeAnalyzed     bool
	ConfidenceThreshold float64
	BatchSize           int
	Concurrency         int
}

func (o Options) normalized() Options {
	if o.ConfidenceThreshold <= 0 {
		o.ConfidenceThreshold = detectors.DefaultConfidenceThreshold
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	return o
}

func (o Options) batchOptions() batch.Options {
	return batch.Options{BatchSize: o.BatchSize, Concurrency: o.Concurrency}
}

// soleDetectorIsVideoTags reports whether video-tag detection is the only
// enabled detector tier. It is the one case where a detection failure is
// not worth degrading gracefully: with nothing else running, the real
// error is the only useful signal the operator has (§4.6, §7).
func (o Options) soleDetectorIsVideoTags() bool {
	return o.DetectVideoTags && !o.DetectStudios && !o.DetectPerformers && !o.DetectTags && !o.DetectDetails
}

// ProgressFunc reports batch-level progress; it shares BatchProcessor's
// shape so a caller can pass one straight through (§4.6 step 3, step 8).
type ProgressFunc = batch.ProgressFunc

// CancellationToken is checked between batches and between per-scene
// iterations (§5).
type CancellationToken = batch.CancellationToken

// VideoTagConfig parameterizes the request AnalysisEngine sends to the
// remote video-analysis service when DetectVideoTags is enabled (§6).
type VideoTagConfig struct {
	FrameInterval float64
	Threshold     float64
}

// aiStatusTagMe and its successor/failure tags keep operator-visible state
// consistent with video tag detection outcomes (§4.6 step 5).
const (
	aiStatusTagMe      = "AI_TagMe"
	aiStatusTagTagged  = "AI_Tagged"
	aiStatusTagErrored = "AI_Errored"
)
