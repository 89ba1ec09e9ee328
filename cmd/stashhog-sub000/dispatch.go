package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sjafferali/stashhog-sub000/internal/analysis"
	"github.com/sjafferali/stashhog-sub000/internal/config"
	"github.com/sjafferali/stashhog-sub000/internal/jobs"
	"github.com/sjafferali/stashhog-sub000/internal/metrics"
	"github.com/sjafferali/stashhog-sub000/internal/model"
	"github.com/sjafferali/stashhog-sub000/internal/planstore"
	"github.com/sjafferali/stashhog-sub000/internal/sync"
)

// dispatcher is the single jobs.Executor the worker pool is constructed
// with; it routes each Job to the engine its JobType names, and bridges
// that engine's batch-shaped ProgressFunc and CancellationToken into the
// 2-arg, context-driven shapes jobs.Worker deals in (§4.10).
type dispatcher struct {
	sync            *sync.Engine
	analysis        *analysis.Engine
	plans           *planstore.PlanStore
	jobs            *jobs.Manager
	metrics         *metrics.Registry
	defaultAnalysis config.AnalysisConfig
}

func (d *dispatcher) Execute(ctx context.Context, job *model.Job, progress jobs.ProgressFunc) *jobs.ExecutionResult {
	start := time.Now()
	d.metrics.JobsInFlight.WithLabelValues(string(job.Type)).Inc()
	result := d.dispatch(ctx, job, progress)
	d.metrics.JobsInFlight.WithLabelValues(string(job.Type)).Dec()
	d.metrics.JobDuration.WithLabelValues(string(job.Type)).Observe(time.Since(start).Seconds())
	d.metrics.JobsCompleted.WithLabelValues(string(job.Type), string(result.Status)).Inc()
	return result
}

func (d *dispatcher) dispatch(ctx context.Context, job *model.Job, progress jobs.ProgressFunc) *jobs.ExecutionResult {
	switch job.Type {
	case model.JobTypeFullSync:
		return d.runSync(ctx, job, sync.ModeFull, progress)
	case model.JobTypeIncrementalSync:
		return d.runSync(ctx, job, sync.ModeIncremental, progress)
	case model.JobTypeTargetedSync:
		return d.runSync(ctx, job, sync.ModeTargeted, progress)
	case model.JobTypeAnalysis:
		return d.runAnalysis(ctx, job, progress)
	case model.JobTypePlanApply:
		return d.runPlanApply(ctx, job)
	case model.JobTypeCleanup:
		return d.runCleanup(ctx)
	default:
		return &jobs.ExecutionResult{Status: model.JobStatusFailed, Message: fmt.Sprintf("unknown job type %q", job.Type)}
	}
}

func (d *dispatcher) runSync(ctx context.Context, job *model.Job, mode sync.Mode, progress jobs.ProgressFunc) *jobs.ExecutionResult {
	opts := sync.Options{
		Mode:     mode,
		Force:    boolMeta(job.Metadata, "force"),
		SceneIDs: stringSliceMeta(job.Metadata, "scene_ids"),
	}
	if policy := stringMeta(job.Metadata, "policy"); policy != "" {
		opts.Policy = sync.ConflictPolicy(policy)
	}

	start := time.Now()
	result, err := d.sync.Run(ctx, opts, batchProgressAdapter(progress), tokenAdapter(ctx))
	d.metrics.SyncDuration.WithLabelValues(string(mode)).Observe(time.Since(start).Seconds())
	if err != nil {
		return &jobs.ExecutionResult{Status: model.JobStatusFailed, Message: err.Error(), Err: err}
	}
	d.metrics.ScenesSynced.WithLabelValues(string(result.Status)).Add(float64(result.Processed))
	return &jobs.ExecutionResult{Status: model.JobStatusCompleted, Message: "sync complete", Result: result}
}

func (d *dispatcher) runAnalysis(ctx context.Context, job *model.Job, progress jobs.ProgressFunc) *jobs.ExecutionResult {
	opts := analysis.Options{
		DetectStudios:       boolMeta(job.Metadata, "detect_studios"),
		DetectPerformers:    boolMeta(job.Metadata, "detect_performers"),
		DetectTags:          boolMeta(job.Metadata, "detect_tags"),
		DetectDetails:       boolMeta(job.Metadata, "detect_details"),
		DetectVideoTags:     boolMeta(job.Metadata, "detect_video_tags"),
		ExcludeAnalyzed:     boolMeta(job.Metadata, "exclude_analyzed"),
		ConfidenceThreshold: floatMeta(job.Metadata, "confidence_threshold", d.defaultAnalysis.ConfidenceThreshold),
		BatchSize:           intMeta(job.Metadata, "batch_size", d.defaultAnalysis.BatchSize),
		Concurrency:         intMeta(job.Metadata, "concurrency", d.defaultAnalysis.MaxConcurrent),
	}
	sceneIDs := stringSliceMeta(job.Metadata, "scene_ids")
	filter := model.SceneFilter{}

	plan, err := d.analysis.Analyze(ctx, sceneIDs, filter, opts, batchProgressAdapter(progress), tokenAdapter(ctx))
	if err != nil {
		return &jobs.ExecutionResult{Status: model.JobStatusFailed, Message: err.Error(), Err: err}
	}
	d.metrics.ScenesAnalyzed.WithLabelValues("completed").Add(float64(len(plan.Changes)))
	return &jobs.ExecutionResult{Status: model.JobStatusCompleted, Message: "analysis complete", Result: plan}
}

func (d *dispatcher) runPlanApply(ctx context.Context, job *model.Job) *jobs.ExecutionResult {
	planID := stringMeta(job.Metadata, "plan_id")
	if planID == "" {
		return &jobs.ExecutionResult{Status: model.JobStatusFailed, Message: "plan_apply job missing plan_id"}
	}
	var filter *planstore.ApplyFilter
	if changeIDs := stringSliceMeta(job.Metadata, "change_ids"); len(changeIDs) > 0 {
		filter = &planstore.ApplyFilter{ChangeIDs: changeIDs}
	}

	result, err := d.plans.ApplyPlan(ctx, planID, filter)
	if err != nil {
		return &jobs.ExecutionResult{Status: model.JobStatusFailed, Message: err.Error(), Err: err}
	}
	return &jobs.ExecutionResult{Status: model.JobStatusCompleted, Message: "plan applied", Result: result}
}

func (d *dispatcher) runCleanup(ctx context.Context) *jobs.ExecutionResult {
	recovered, err := d.jobs.SweepStale(ctx, 5*time.Minute)
	if err != nil {
		return &jobs.ExecutionResult{Status: model.JobStatusFailed, Message: err.Error(), Err: err}
	}
	d.metrics.JobsStaleSwept.Add(float64(recovered))
	return &jobs.ExecutionResult{Status: model.JobStatusCompleted, Message: fmt.Sprintf("recovered %d stale jobs", recovered)}
}

// batchProgressAdapter folds BatchProcessor's 4-arg batch progress shape
// down into the 2-arg (percent, message) shape JobManager persists (§4.10).
func batchProgressAdapter(progress jobs.ProgressFunc) func(completed, total, processedItems, totalItems int) {
	if progress == nil {
		return nil
	}
	return func(completed, total, processedItems, totalItems int) {
		percent := 0
		if total > 0 {
			percent = completed * 100 / total
		}
		progress(percent, fmt.Sprintf("%d/%d items processed", processedItems, totalItems))
	}
}

// ctxCancelToken adapts ctx.Done() into batch.CancellationToken's
// Cancelled() bool shape.
type ctxCancelToken struct {
	ctx context.Context
}

func (c ctxCancelToken) Cancelled() bool {
	select {
	case <-c.ctx.Done():
		return true
	default:
		return false
	}
}

func tokenAdapter(ctx context.Context) ctxCancelToken {
	return ctxCancelToken{ctx: ctx}
}

func boolMeta(metadata map[string]any, key string) bool {
	v, ok := metadata[key].(bool)
	return ok && v
}

// floatMeta reads a numeric job-metadata override, falling back to def
// (the operator's configured default from AnalysisConfig) when the key is
// absent or of the wrong type. Job payloads decode numbers as float64
// regardless of the caller's original type.
func floatMeta(metadata map[string]any, key string, def float64) float64 {
	if v, ok := metadata[key].(float64); ok {
		return v
	}
	return def
}

func intMeta(metadata map[string]any, key string, def int) int {
	if v, ok := metadata[key].(float64); ok {
		return int(v)
	}
	return def
}

func stringMeta(metadata map[string]any, key string) string {
	v, _ := metadata[key].(string)
	return v
}

func stringSliceMeta(metadata map[string]any, key string) []string {
	raw, ok := metadata[key]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
