package sync

import (
	"context"
	"errors"
	"time"

	"github.com/sjafferali/stashhog-sub000/internal/model"
	"github.com/sjafferali/stashhog-sub000/internal/storage"
)

// watermarkResult reports the resolved incremental cutoff, or that the
// caller should degrade to a full sync.
type watermarkResult struct {
	since      time.Time
	degradeAll bool
}

// resolveSceneWatermark computes the cutoff for an incremental scene sync:
// the last successful scene-type watermark, degrading straight to a full
// sync when it has never succeeded. The 24-hour fallback window is
// specific to the all-type incremental mode (§4.8, spec.md:171) and does
// not apply here — an ordinary scene-type run never substitutes the
// all-type watermark for its own.
func resolveSceneWatermark(ctx context.Context, history *storage.SyncHistoryRepository) (watermarkResult, error) {
	since, err := history.LastSuccessfulWatermark(ctx, model.SyncEntityScene)
	if err == nil {
		return watermarkResult{since: since}, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return watermarkResult{}, err
	}

	return watermarkResult{degradeAll: true}, nil
}
