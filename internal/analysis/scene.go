package analysis

import (
	"context"
	"strings"

	"github.com/sjafferali/stashhog-sub000/internal/detectors"
	"github.com/sjafferali/stashhog-sub000/internal/model"
)

// analyzeScene runs the enabled detectors over one scene in the fixed order
// {studio, performers, tags, details, video_tags}, skipping a candidate
// already present on the scene, and returns the resulting ProposedChanges
// (§4.6 step 4).
//
// A video-tag detection failure is normally captured into the returned
// changes as an AI_Errored status tag rather than propagated (§7). The one
// exception is when video-tag detection is the sole enabled detector: there
// is no graceful degradation left to fall back on, so the error is returned
// instead, letting the caller surface the real cause.
func (e *Engine) analyzeScene(ctx context.Context, scene *model.Scene, opts Options, ref referenceData) ([]model.PlanChange, error) {
	var changes []model.PlanChange

	if opts.DetectStudios && scene.StudioID == nil && e.studioDetector != nil {
		changes = append(changes, e.recordDetector("studio", e.detectStudio(ctx, scene, opts, ref))...)
	}
	if opts.DetectPerformers && e.performerDetector != nil {
		changes = append(changes, e.recordDetector("performer", e.detectPerformers(ctx, scene, opts, ref))...)
	}
	if opts.DetectTags && e.tagDetector != nil {
		changes = append(changes, e.recordDetector("tag", e.detectTags(ctx, scene, opts, ref))...)
	}
	if opts.DetectDetails {
		changes = append(changes, e.recordDetector("details", e.detectDetails(scene, opts))...)
	}
	if opts.DetectVideoTags && e.videoDetector != nil {
		videoChanges, err := e.detectVideoTags(ctx, scene, ref)
		if err != nil && opts.soleDetectorIsVideoTags() {
			return nil, err
		}
		changes = append(changes, e.recordDetector("video_tags", videoChanges)...)
	}

	return changes, nil
}

// recordDetector increments DetectorsInvoked for one detector tier's run
// over a single scene, labeled by whether it proposed any change, and
// passes the changes through unmodified.
func (e *Engine) recordDetector(name string, changes []model.PlanChange) []model.PlanChange {
	if e.metrics == nil {
		return changes
	}
	outcome := "no_change"
	if len(changes) > 0 {
		outcome = "changes"
	}
	e.metrics.DetectorsInvoked.WithLabelValues(name, outcome).Inc()
	return changes
}

func (e *Engine) detectStudio(ctx context.Context, scene *model.Scene, opts Options, ref referenceData) []model.PlanChange {
	path := primaryPath(scene)
	results := detectors.Filter(e.studioDetector.Detect(ctx, path, ref.studioNames, e.studioAIGuesser()), opts.ConfidenceThreshold)
	if len(results) == 0 {
		return nil
	}
	r := results[0]
	return []model.PlanChange{{
		SceneID:       scene.ID,
		Field:         model.FieldStudio,
		Action:        model.ActionSet,
		ProposedValue: r.Value,
		Confidence:    r.Confidence,
		Reason:        string(r.Source),
		Status:        model.ChangeStatusPending,
	}}
}

func (e *Engine) detectPerformers(ctx context.Context, scene *model.Scene, opts Options, ref referenceData) []model.PlanChange {
	path := primaryPath(scene)
	results := detectors.Filter(e.performerDetector.Detect(ctx, path, ref.knownPerformers, e.performerAIGuesser()), opts.ConfidenceThreshold)

	var changes []model.PlanChange
	for _, r := range results {
		if scene.HasPerformerName(r.Value, ref.performerNameByID) {
			continue
		}
		changes = append(changes, model.PlanChange{
			SceneID:       scene.ID,
			Field:         model.FieldPerformers,
			Action:        model.ActionAdd,
			ProposedValue: r.Value,
			Confidence:    r.Confidence,
			Reason:        string(r.Source),
			Status:        model.ChangeStatusPending,
		})
	}
	return changes
}

func (e *Engine) detectTags(ctx context.Context, scene *model.Scene, opts Options, ref referenceData) []model.PlanChange {
	var width, height int
	var duration, frameRate float64
	if f := scene.PrimaryFile(); f != nil {
		width, height, duration, frameRate = f.Width, f.Height, f.Duration, f.FrameRate
	}

	existingTagNames := namesFor(scene.TagIDs, ref.tagNameByID)
	results := detectors.Filter(
		e.tagDetector.Detect(ctx, width, height, duration, frameRate, ref.availableTags, existingTagNames, e.tagAIGuesser()),
		opts.ConfidenceThreshold,
	)

	available := make(map[string]bool, len(ref.availableTags))
	for _, t := range ref.availableTags {
		available[strings.ToLower(t)] = true
	}

	var changes []model.PlanChange
	for _, r := range results {
		// A proposal absent from the local tag mirror can never be applied
		// (PlanStore.applyTagChange is constrained to existing tags), so it
		// is dropped here rather than staged (§4.6 step 4, §4.7).
		if !available[strings.ToLower(r.Value)] {
			continue
		}
		changes = append(changes, model.PlanChange{
			SceneID:       scene.ID,
			Field:         model.FieldTags,
			Action:        model.ActionAdd,
			ProposedValue: r.Value,
			Confidence:    r.Confidence,
			Reason:        string(r.Source),
			Status:        model.ChangeStatusPending,
		})
	}
	return changes
}

func (e *Engine) detectDetails(scene *model.Scene, opts Options) []model.PlanChange {
	result := detectors.DetailsCleanProposal(scene.Details)
	if result == nil || result.Confidence < opts.ConfidenceThreshold {
		return nil
	}
	return []model.PlanChange{{
		SceneID:       scene.ID,
		Field:         model.FieldDetails,
		Action:        model.ActionUpdate,
		CurrentValue:  scene.Details,
		ProposedValue: result.Value,
		Confidence:    result.Confidence,
		Status:        model.ChangeStatusPending,
	}}
}

// detectVideoTags delegates to the remote video-analysis service and
// synthesizes AI-status-tag changes so operator-visible state stays
// consistent with the outcome (§4.6 step 5). The underlying error, if any,
// is always returned alongside whatever degrade-path changes it produced —
// the caller decides whether to keep those changes or propagate the error,
// depending on whether other detectors are also running (§7).
func (e *Engine) detectVideoTags(ctx context.Context, scene *model.Scene, ref referenceData) ([]model.PlanChange, error) {
	path := primaryPath(scene)
	tags, occs, err := e.videoDetector.Analyze(ctx, detectors.VideoTagRequest{
		Path:             path,
		FrameInterval:    e.videoCfg.FrameInterval,
		Threshold:        e.videoCfg.Threshold,
		ReturnConfidence: true,
	})

	hasTagMe := scene.HasTagName(aiStatusTagMe, ref.tagNameByID)

	if err != nil {
		if hasTagMe {
			return []model.PlanChange{statusTagChange(scene.ID, aiStatusTagErrored)}, err
		}
		return nil, err
	}

	var changes []model.PlanChange
	changes = append(changes, detectors.BuildTagChanges(scene.ID, tags, videoTagConfidence)...)

	merged := detectors.MergeOccurrences(occs, e.videoCfg.FrameInterval)
	changes = append(changes, detectors.BuildMarkerChanges(scene.ID, merged, scene.Markers, ref.tagNameByID)...)

	if hasTagMe {
		changes = append(changes,
			model.PlanChange{SceneID: scene.ID, Field: model.FieldTags, Action: model.ActionRemove, CurrentValue: aiStatusTagMe, Confidence: 1.0, Status: model.ChangeStatusPending},
			statusTagChange(scene.ID, aiStatusTagTagged),
		)
	}
	return changes, nil
}

// videoTagConfidence is the uniform confidence assigned to video-detected
// tags: the remote service reports per-occurrence confidence for markers,
// but not a separate score for the deduplicated tag set (§4.3).
const videoTagConfidence = 0.9

func statusTagChange(sceneID, tagName string) model.PlanChange {
	return model.PlanChange{
		SceneID:       sceneID,
		Field:         model.FieldTags,
		Action:        model.ActionAdd,
		ProposedValue: tagName,
		Confidence:    1.0,
		Status:        model.ChangeStatusPending,
	}
}

func primaryPath(scene *model.Scene) string {
	if f := scene.PrimaryFile(); f != nil {
		return f.Path
	}
	return ""
}

func namesFor(ids []string, names map[string]string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if n, ok := names[id]; ok {
			out = append(out, n)
		}
	}
	return out
}

