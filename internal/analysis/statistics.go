package analysis

import "github.com/sjafferali/stashhog-sub000/internal/model"

// sceneOutcome is one scene's detection result, aggregated across a batch
// run (§4.6 step 6).
type sceneOutcome struct {
	sceneID string
	changes []model.PlanChange
	err     error
}

// computeStatistics summarizes a run's outcomes into PlanStatistics
// (§4.6 step 6).
func computeStatistics(outcomes []sceneOutcome) model.PlanStatistics {
	stats := model.PlanStatistics{ChangesByField: make(map[string]int)}

	var confidenceSum float64
	for _, o := range outcomes {
		if o.err != nil {
			stats.ScenesWithErrors++
			continue
		}
		if len(o.changes) == 0 {
			continue
		}
		stats.ScenesWithChanges++
		for _, c := range o.changes {
			stats.TotalChanges++
			stats.ChangesByField[string(c.Field)]++
			confidenceSum += c.Confidence
		}
	}
	if stats.TotalChanges > 0 {
		stats.MeanConfidence = confidenceSum / float64(stats.TotalChanges)
	}
	return stats
}
