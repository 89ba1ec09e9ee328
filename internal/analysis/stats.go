package analysis

import (
	"context"
	"fmt"
	"time"
)

// Stats summarizes analysis activity across plans created since the given
// time, grounded on the historical reporting the original implementation's
// get_analysis_stats exposed (§12).
type Stats struct {
	PlansCreated      int
	ScenesAnalyzed    int
	TotalChanges      int
	TotalCostUSD      float64
	TotalPromptTokens int64
	TotalOutputTokens int64
}

// Stats aggregates every plan created at or after since into a single
// summary. Plans with zero changes (no-op analysis runs) still count toward
// PlansCreated but contribute nothing else.
func (e *Engine) Stats(ctx context.Context, since time.Time) (Stats, error) {
	plans, err := e.plans.ListPlansSince(ctx, since)
	if err != nil {
		return Stats{}, fmt.Errorf("list plans since %s: %w", since, err)
	}

	var out Stats
	out.PlansCreated = len(plans)
	for _, p := range plans {
		out.ScenesAnalyzed += p.Metadata.Statistics.ScenesWithChanges
		out.TotalChanges += p.Metadata.Statistics.TotalChanges
		out.TotalCostUSD += p.Metadata.CostUsage.TotalCostUSD
		out.TotalPromptTokens += p.Metadata.CostUsage.PromptTokens
		out.TotalOutputTokens += p.Metadata.CostUsage.CompletionTokens
	}
	return out, nil
}
