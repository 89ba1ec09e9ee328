package planstore

import (
	"context"
	"fmt"
	"time"

	"github.com/sjafferali/stashhog-sub000/internal/model"
)

// PlanCostSummary is the AI cost usage recorded against a single plan at
// creation time, read back out of its metadata (§12).
type PlanCostSummary struct {
	PlanID           string
	PromptTokens     int64
	CompletionTokens int64
	TotalCostUSD     float64
	ByModel          map[string]float64
}

// ListPlansSince returns every plan created at or after since, used by
// AnalysisEngine.Stats to aggregate historical activity over a window
// (§12).
func (s *PlanStore) ListPlansSince(ctx context.Context, since time.Time) ([]model.AnalysisPlan, error) {
	return s.plans.ListCreatedSince(ctx, since)
}

// GetPlanCosts reads the AI cost usage recorded in a plan's metadata at
// creation time (§12, mirroring get_plan_costs in the original service).
func (s *PlanStore) GetPlanCosts(ctx context.Context, planID string) (PlanCostSummary, error) {
	plan, err := s.plans.Get(ctx, planID)
	if err != nil {
		return PlanCostSummary{}, fmt.Errorf("get plan %s: %w", planID, err)
	}
	usage := plan.Metadata.CostUsage
	return PlanCostSummary{
		PlanID:           planID,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalCostUSD:     usage.TotalCostUSD,
		ByModel:          usage.ByModel,
	}, nil
}
