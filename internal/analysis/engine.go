package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/sjafferali/stashhog-sub000/internal/aiclient"
	"github.com/sjafferali/stashhog-sub000/internal/batch"
	"github.com/sjafferali/stashhog-sub000/internal/detectors"
	"github.com/sjafferali/stashhog-sub000/internal/entitycache"
	"github.com/sjafferali/stashhog-sub000/internal/metrics"
	"github.com/sjafferali/stashhog-sub000/internal/model"
	"github.com/sjafferali/stashhog-sub000/internal/planstore"
	"github.com/sjafferali/stashhog-sub000/internal/storage"
)

// Engine is AnalysisEngine (§4.6): it loads reference data from the mirror
// DB, runs the detector pipeline over a scene set via BatchProcessor, and
// stages the aggregated ProposedChanges as a Plan.
type Engine struct {
	cache    *entitycache.Cache
	scenes   *storage.SceneRepository
	entities *storage.EntityRepository
	plans    *planstore.PlanStore
	ai       *aiclient.Client

	studioDetector    *detectors.StudioDetector
	performerDetector *detectors.PerformerDetector
	tagDetector       *detectors.TagDetector
	videoDetector     *detectors.VideoTagDetector
	videoCfg          VideoTagConfig
	metrics           *metrics.Registry
}

// Config bundles the components Engine wires together. ai, videoDetector,
// and Metrics are optional: when nil, the corresponding detector tier,
// AI-delegation hooks, or instrumentation are skipped.
type Config struct {
	Cache             *entitycache.Cache
	Scenes            *storage.SceneRepository
	Entities          *storage.EntityRepository
	Plans             *planstore.PlanStore
	AI                *aiclient.Client
	StudioDetector    *detectors.StudioDetector
	PerformerDetector *detectors.PerformerDetector
	TagDetector       *detectors.TagDetector
	VideoDetector     *detectors.VideoTagDetector
	VideoTagConfig    VideoTagConfig
	Metrics           *metrics.Registry
}

// New constructs an Engine from cfg.
func New(cfg Config) *Engine {
	return &Engine{
		cache:             cfg.Cache,
		scenes:            cfg.Scenes,
		entities:          cfg.Entities,
		plans:             cfg.Plans,
		ai:                cfg.AI,
		studioDetector:    cfg.StudioDetector,
		performerDetector: cfg.PerformerDetector,
		tagDetector:       cfg.TagDetector,
		videoDetector:     cfg.VideoDetector,
		videoCfg:          cfg.VideoTagConfig,
		metrics:           cfg.Metrics,
	}
}

// Analyze resolves a scene set, runs the enabled detectors over it with
// bounded concurrency, and returns the resulting Plan (§4.6).
//
// sceneIDs, when non-empty, names the scene set explicitly; otherwise
// filter resolves it from the mirror DB. progress and cancel may be nil.
func (e *Engine) Analyze(ctx context.Context, sceneIDs []string, filter model.SceneFilter, opts Options, progress ProgressFunc, cancel CancellationToken) (*model.AnalysisPlan, error) {
	start := time.Now()
	if e.metrics != nil {
		defer func() { e.metrics.AnalysisDuration.Observe(time.Since(start).Seconds()) }()
	}

	opts = opts.normalized()

	ref, err := e.loadReference(ctx)
	if err != nil {
		return nil, fmt.Errorf("load reference data: %w", err)
	}

	ids := sceneIDs
	if len(ids) == 0 {
		switch {
		case opts.ExcludeAnalyzed:
			ids, err = e.scenes.ListUnanalyzed(ctx, maxCandidateScenes)
		default:
			ids, err = e.scenes.FindIDs(ctx, filter)
		}
		if err != nil {
			return nil, fmt.Errorf("resolve scene set: %w", err)
		}
	}

	totalBatches := batchCount(len(ids), opts.BatchSize)
	if progress != nil {
		progress(0, totalBatches, 0, len(ids))
	}

	items := make([]any, len(ids))
	for i, id := range ids {
		items[i] = id
	}

	analyzer := func(ctx context.Context, items []any) []batch.Result {
		results := make([]batch.Result, len(items))
		for i, item := range items {
			if cancel != nil && cancel.Cancelled() {
				break
			}
			id := item.(string)
			scene, err := e.scenes.Get(ctx, id)
			if err != nil {
				results[i] = batch.Result{Item: id, Err: fmt.Errorf("load scene %s: %w", id, err)}
				continue
			}
			changes, err := e.analyzeScene(ctx, scene, opts, ref)
			if err != nil {
				results[i] = batch.Result{Item: id, Err: err}
				continue
			}
			results[i] = batch.Result{Item: id, Value: changes}
		}
		return results
	}

	batchResults := batch.Process(ctx, items, analyzer, progress, cancel, opts.batchOptions())

	outcomes := make([]sceneOutcome, len(batchResults))
	var allChanges []model.PlanChange
	var processedIDs []string
	for i, r := range batchResults {
		id, _ := r.Item.(string)
		var changes []model.PlanChange
		if r.Value != nil {
			changes, _ = r.Value.([]model.PlanChange)
		}
		outcomes[i] = sceneOutcome{sceneID: id, changes: changes, err: r.Err}
		if r.Err == nil && id != "" {
			processedIDs = append(processedIDs, id)
			allChanges = append(allChanges, changes...)
		}
	}

	// When video-tag detection is the only enabled detector, there is no
	// other tier's output to fall back on, so a per-scene failure is the
	// real cause of the run rather than a recoverable, continue-anyway
	// condition: it propagates out of Analyze instead of only being folded
	// into the plan's per-scene error statistics (§7).
	if opts.soleDetectorIsVideoTags() {
		for _, o := range outcomes {
			if o.err != nil {
				return nil, fmt.Errorf("video tag detection: %w", o.err)
			}
		}
	}

	stats := computeStatistics(outcomes)

	if progress != nil {
		progress(totalBatches, totalBatches, len(ids), len(ids))
	}

	for _, id := range processedIDs {
		if err := e.scenes.MarkAnalyzed(ctx, id, opts.DetectVideoTags); err != nil {
			return nil, fmt.Errorf("mark scene %s analyzed: %w", id, err)
		}
	}

	return e.buildPlan(ctx, allChanges, stats, opts)
}

func (e *Engine) buildPlan(ctx context.Context, changes []model.PlanChange, stats model.PlanStatistics, opts Options) (*model.AnalysisPlan, error) {
	var costUsage model.AICostSnapshot
	if e.ai != nil {
		costUsage = e.ai.Costs.Snapshot()
	}

	metadata := model.PlanMetadata{
		Settings:   settingsSnapshot(opts),
		Statistics: stats,
		CostUsage:  costUsage,
	}

	name := fmt.Sprintf("Analysis %s", time.Now().UTC().Format(time.RFC3339))

	if len(changes) == 0 {
		now := time.Now()
		return &model.AnalysisPlan{
			Name:      name,
			Status:    model.PlanStatusApplied,
			CreatedAt: now,
			AppliedAt: &now,
			Metadata:  metadata,
		}, nil
	}

	plan, err := e.plans.CreatePlan(ctx, name, "", changes, metadata)
	if err != nil {
		return nil, fmt.Errorf("create plan: %w", err)
	}
	return plan, nil
}

func settingsSnapshot(opts Options) map[string]any {
	return map[string]any{
		"detect_studios":       opts.DetectStudios,
		"detect_performers":    opts.DetectPerformers,
		"detect_tags":          opts.DetectTags,
		"detect_details":       opts.DetectDetails,
		"detect_video_tags":    opts.DetectVideoTags,
		"exclude_analyzed":     opts.ExcludeAnalyzed,
		"confidence_threshold": opts.ConfidenceThreshold,
		"batch_size":           opts.BatchSize,
	}
}

// maxCandidateScenes bounds a single excludeAnalyzed scan, mirroring the
// page size the original get_scenes_for_analysis query used.
const maxCandidateScenes = 5000

func batchCount(items, batchSize int) int {
	if items == 0 {
		return 0
	}
	return (items + batchSize - 1) / batchSize
}
