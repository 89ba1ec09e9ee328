package sync

import (
	"github.com/sjafferali/stashhog-sub000/internal/catalogclient"
	"github.com/sjafferali/stashhog-sub000/internal/model"
)

// toCatalogFilter maps the mirror DB's SceneFilter onto the subset
// CatalogClient can express. Analyzed and VideoAnalyzed are mirror-only
// bookkeeping columns Catalog has no concept of, so they are dropped —
// a sync by definition fetches remote state, it cannot filter on the
// mirror's own analysis progress.
func toCatalogFilter(f model.SceneFilter) catalogclient.SceneFilter {
	return catalogclient.SceneFilter{
		Organized: f.Organized,
		StudioID:  f.StudioID,
	}
}
