package sync

import (
	"github.com/sjafferali/stashhog-sub000/internal/batch"
	"github.com/sjafferali/stashhog-sub000/internal/model"
)

// DefaultBatchSize is the batch size SyncEngine uses when Options does not
// specify one (§4.8 batch prefetch).
const DefaultBatchSize = 25

// Options configures one SyncEngine run.
type Options struct {
	Mode Mode

	// Force bypasses Strategy.ShouldSync, writing every resolved scene
	// regardless of timestamp or checksum — an operator-triggered resync.
	Force bool

	// SceneIDs names the scene set explicitly for targeted mode. When
	// empty in targeted mode, Filter resolves the set instead.
	SceneIDs []string
	Filter   model.SceneFilter

	// Policy governs conflict handling; zero value is PolicyRemoteWins.
	Policy ConflictPolicy

	// EntityType tags the SyncHistory row this run writes, overriding the
	// mode-derived default (full -> SyncEntityAll, incremental/targeted
	// -> SyncEntityScene). The job dispatcher leaves it unset; an
	// incremental run with SyncEntityAll uses the all-type watermark.
	EntityType model.SyncEntityType

	BatchSize   int
	Concurrency int
}

func (o Options) normalized() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.Mode == "" {
		o.Mode = ModeFull
	}
	if o.EntityType == "" {
		if o.Mode == ModeFull {
			o.EntityType = model.SyncEntityAll
		} else {
			o.EntityType = model.SyncEntityScene
		}
	}
	return o
}

func (o Options) batchOptions() batch.Options {
	return batch.Options{BatchSize: o.BatchSize, Concurrency: o.Concurrency}
}

// ProgressFunc reports batch-level progress; it shares BatchProcessor's
// shape (§4.8: "checked between batches in SyncEngine").
type ProgressFunc = batch.ProgressFunc

// CancellationToken is checked between batches.
type CancellationToken = batch.CancellationToken
