package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sjafferali/stashhog-sub000/internal/batch"
	"github.com/sjafferali/stashhog-sub000/internal/catalogclient"
	"github.com/sjafferali/stashhog-sub000/internal/metrics"
	"github.com/sjafferali/stashhog-sub000/internal/model"
	"github.com/sjafferali/stashhog-sub000/internal/storage"
)

// Engine is SyncEngine (§4.8): it refreshes the entity mirror, resolves a
// scene set per Mode, and reconciles each scene's fields, relationships,
// files, and markers against a Strategy/Resolver pair.
type Engine struct {
	catalog  *catalogclient.Client
	scenes   *storage.SceneRepository
	entities *storage.EntityRepository
	history  *storage.SyncHistoryRepository
	metrics  *metrics.Registry
}

// Config bundles the components Engine wires together. Metrics is optional:
// when nil, instrumentation is skipped.
type Config struct {
	Catalog  *catalogclient.Client
	Scenes   *storage.SceneRepository
	Entities *storage.EntityRepository
	History  *storage.SyncHistoryRepository
	Metrics  *metrics.Registry
}

// New constructs an Engine from cfg.
func New(cfg Config) *Engine {
	return &Engine{
		catalog:  cfg.Catalog,
		scenes:   cfg.Scenes,
		entities: cfg.Entities,
		history:  cfg.History,
		metrics:  cfg.Metrics,
	}
}

// Run executes one sync per opts.Mode, returning the aggregated result.
// progress and cancel may be nil (§4.8, §5).
func (e *Engine) Run(ctx context.Context, opts Options, progress ProgressFunc, cancel CancellationToken) (*model.SyncResult, error) {
	opts = opts.normalized()
	started := time.Now()
	historyID := uuid.NewString()

	if err := e.history.Start(ctx, opts.EntityType, started, historyID); err != nil {
		return nil, fmt.Errorf("start sync_history: %w", err)
	}

	result, runErr := e.run(ctx, opts, progress, cancel)

	status := model.SyncStatusSuccess
	switch {
	case runErr != nil:
		status = model.SyncStatusFailed
	case result.Failed > 0 && result.Processed > result.Failed:
		status = model.SyncStatusPartial
	case result.Failed > 0:
		status = model.SyncStatusFailed
	}
	result.Status = status
	result.Started = started
	result.Completed = time.Now()
	result.Mode = string(opts.Mode)

	if err := e.history.Complete(ctx, historyID, status, result.Processed, result.Created, result.Updated, result.Failed, result.Errors); err != nil {
		return result, fmt.Errorf("complete sync_history: %w", err)
	}
	if runErr != nil {
		return result, runErr
	}
	return result, nil
}

func (e *Engine) run(ctx context.Context, opts Options, progress ProgressFunc, cancel CancellationToken) (*model.SyncResult, error) {
	result := &model.SyncResult{}

	mirror, err := loadEntityMirror(ctx, e.entities)
	if err != nil {
		return result, err
	}

	entityOutcome, err := syncEntities(ctx, e.catalog, e.entities, mirror, e.metrics)
	if err != nil {
		return result, err
	}
	result.Created += entityOutcome.created
	result.Updated += entityOutcome.updated
	result.Failed += entityOutcome.failed
	result.Errors = append(result.Errors, entityOutcome.errors...)

	remoteScenes, mode, err := e.resolveSceneSet(ctx, opts)
	if err != nil {
		return result, err
	}

	strategy := StrategyFor(mode)
	resolver := Resolver{Policy: opts.Policy}

	result.Processed += len(remoteScenes)

	batches := chunkScenes(remoteScenes, opts.BatchSize)
	var offset int
	for _, chunk := range batches {
		if cancel != nil && cancel.Cancelled() {
			break
		}
		if err := ensureMinimalEntities(ctx, e.entities, mirror, chunk); err != nil {
			return result, fmt.Errorf("prefetch relationships: %w", err)
		}

		chunkItems := make([]any, len(chunk))
		for i, s := range chunk {
			chunkItems[i] = s
		}

		analyzer := func(ctx context.Context, analyzeItems []any) []batch.Result {
			results := make([]batch.Result, len(analyzeItems))
			for i, item := range analyzeItems {
				remote := item.(model.Scene)
				results[i] = batch.Result{Item: remote.ID, Value: e.reconcileScene(ctx, strategy, resolver, opts.Force, remote)}
			}
			return results
		}

		batchResults := batch.Process(ctx, chunkItems, analyzer, nil, cancel, opts.batchOptions())
		for _, r := range batchResults {
			outcome, _ := r.Value.(sceneSyncOutcome)
			switch {
			case outcome.err != nil:
				result.Failed++
				result.Errors = append(result.Errors, model.SyncEntityError{EntityID: outcome.sceneID, Message: outcome.err.Error()})
			case outcome.created:
				result.Created++
			case outcome.updated:
				result.Updated++
			}
		}

		offset += len(chunk)
		if progress != nil {
			progress(offset/max1(opts.BatchSize), batchCount(len(remoteScenes), opts.BatchSize), offset, len(remoteScenes))
		}
	}

	return result, nil
}

// sceneSyncOutcome is the per-scene result of reconcileScene, folded into
// the run's aggregate SyncResult counters.
type sceneSyncOutcome struct {
	sceneID string
	created bool
	updated bool
	err     error
}

// reconcileScene applies the scene-sync procedure to one remote scene
// (§4.8 steps 1-4): find-or-create locally, apply strategy.merge,
// reconcile files/markers, resolve conflicts, and persist.
func (e *Engine) reconcileScene(ctx context.Context, strategy Strategy, resolver Resolver, force bool, remote model.Scene) sceneSyncOutcome {
	local, err := e.scenes.Get(ctx, remote.ID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return sceneSyncOutcome{sceneID: remote.ID, err: fmt.Errorf("load local scene %s: %w", remote.ID, err)}
	}
	var localPtr *model.Scene
	if err == nil {
		localPtr = local
	}

	if !force && !strategy.ShouldSync(localPtr, remote) {
		return sceneSyncOutcome{sceneID: remote.ID}
	}

	merged := strategy.Merge(localPtr, remote)
	merged.Files = reconcileFiles(localPtr, remote.Files)
	merged.Markers = reconcileMarkers(remote.Markers)

	final, conflicted := resolver.Apply(localPtr, merged)
	final.LastSynced = time.Now()

	if conflicted {
		delta, err := ConflictDelta(*localPtr, merged)
		if err != nil {
			return sceneSyncOutcome{sceneID: remote.ID, err: err}
		}
		if err := e.scenes.SetSyncConflict(ctx, remote.ID, &delta); err != nil {
			return sceneSyncOutcome{sceneID: remote.ID, err: err}
		}
		if e.metrics != nil {
			e.metrics.SyncConflicts.WithLabelValues(string(resolver.Policy)).Inc()
		}
		return sceneSyncOutcome{sceneID: remote.ID, updated: true}
	}

	// final.SyncConflict is nil here (remote scenes never carry one), so
	// persisting it clears any previously-recorded conflict in one write.
	if err := e.scenes.Upsert(ctx, &final); err != nil {
		return sceneSyncOutcome{sceneID: remote.ID, err: fmt.Errorf("upsert scene %s: %w", remote.ID, err)}
	}

	return sceneSyncOutcome{sceneID: remote.ID, created: localPtr == nil, updated: localPtr != nil}
}

// resolveSceneSet fetches the remote scene list for opts.Mode, degrading
// a scene-type incremental run with no prior watermark to a full sync; an
// all-type incremental run with no prior watermark uses the last 24h
// instead (§4.8).
func (e *Engine) resolveSceneSet(ctx context.Context, opts Options) ([]model.Scene, Mode, error) {
	switch opts.Mode {
	case ModeIncremental:
		if opts.EntityType == model.SyncEntityAll {
			since, err := e.history.LastSuccessfulWatermark(ctx, model.SyncEntityAll)
			if errors.Is(err, storage.ErrNotFound) {
				since, err = time.Now().Add(-24*time.Hour), nil
			}
			if err != nil {
				return nil, opts.Mode, fmt.Errorf("resolve watermark: %w", err)
			}
			scenes, err := e.catalog.GetScenesSince(ctx, since)
			return scenes, opts.Mode, err
		}
		wm, err := resolveSceneWatermark(ctx, e.history)
		if err != nil {
			return nil, opts.Mode, fmt.Errorf("resolve watermark: %w", err)
		}
		if wm.degradeAll {
			scenes, err := e.catalog.FindScenes(ctx, "", toCatalogFilter(opts.Filter))
			return scenes, ModeFull, err
		}
		scenes, err := e.catalog.GetScenesSince(ctx, wm.since)
		return scenes, opts.Mode, err

	case ModeTargeted:
		if len(opts.SceneIDs) > 0 {
			scenes := make([]model.Scene, 0, len(opts.SceneIDs))
			for _, id := range opts.SceneIDs {
				s, err := e.catalog.GetScene(ctx, id)
				if err != nil {
					return nil, opts.Mode, fmt.Errorf("fetch scene %s: %w", id, err)
				}
				scenes = append(scenes, *s)
			}
			return scenes, opts.Mode, nil
		}
		scenes, err := e.catalog.FindScenes(ctx, "", toCatalogFilter(opts.Filter))
		return scenes, opts.Mode, err

	default: // ModeFull
		scenes, err := e.catalog.FindScenes(ctx, "", toCatalogFilter(opts.Filter))
		return scenes, ModeFull, err
	}
}

func chunkScenes(scenes []model.Scene, size int) [][]model.Scene {
	if size <= 0 {
		size = DefaultBatchSize
	}
	var out [][]model.Scene
	for i := 0; i < len(scenes); i += size {
		end := i + size
		if end > len(scenes) {
			end = len(scenes)
		}
		out = append(out, scenes[i:end])
	}
	return out
}

func batchCount(items, batchSize int) int {
	if items == 0 {
		return 0
	}
	return (items + batchSize - 1) / batchSize
}

func max1(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}
