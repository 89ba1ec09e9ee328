// Package planstore implements PlanStore (§4.7): it persists AnalysisPlans
// and their PlanChanges, manages the plan/change review lifecycle, and
// writes accepted changes through to the Catalog on apply. Persistence is
// delegated to internal/storage; this package owns only the lifecycle
// rules and the apply-semantics mapping from a PlanChange to CatalogClient
// calls.
package planstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sjafferali/stashhog-sub000/internal/catalogclient"
	"github.com/sjafferali/stashhog-sub000/internal/model"
	"github.com/sjafferali/stashhog-sub000/internal/storage"
)

// Sentinel errors surfaced by the lifecycle guards (§4.7).
var (
	ErrChangeApplied      = errors.New("planstore: change is already applied")
	ErrPlanApplied        = errors.New("planstore: cannot delete an applied plan")
	ErrPlanNotCancellable = errors.New("planstore: plan can only be cancelled from draft or reviewing")
	ErrPlanNotDraft       = errors.New("planstore: plan is not in draft status (already applying, applied, or cancelled)")
)

// BulkAction enumerates bulk_update_changes actions (§4.7).
type BulkAction string

const (
	BulkAcceptAll          BulkAction = "accept_all"
	BulkRejectAll          BulkAction = "reject_all"
	BulkAcceptByField      BulkAction = "accept_by_field"
	BulkAcceptByConfidence BulkAction = "accept_by_confidence"
)

// BulkParams carries the action-specific parameter for BulkUpdateChanges.
type BulkParams struct {
	Field      model.ChangeField
	Confidence float64
}

// ApplyFilter narrows ApplyPlan to a subset of a plan's approved changes
// (§4.7 apply_plan filter/change_ids).
type ApplyFilter struct {
	Field     *model.ChangeField
	ChangeIDs []string
}

// PlanStore is the façade over plan persistence and apply-to-Catalog
// write-through.
type PlanStore struct {
	plans    *storage.PlanRepository
	scenes   *storage.SceneRepository
	entities *storage.EntityRepository
	catalog  *catalogclient.Client
}

// New constructs a PlanStore.
func New(plans *storage.PlanRepository, scenes *storage.SceneRepository, entities *storage.EntityRepository, catalog *catalogclient.Client) *PlanStore {
	return &PlanStore{plans: plans, scenes: scenes, entities: entities, catalog: catalog}
}

// CreatePlan persists a new plan and its changes in a single transaction,
// augmenting metadata with total_changes and scene_count (§4.7).
func (s *PlanStore) CreatePlan(ctx context.Context, name, description string, changes []model.PlanChange, metadata model.PlanMetadata) (*model.AnalysisPlan, error) {
	planID := uuid.NewString()
	sceneSet := make(map[string]struct{}, len(changes))
	for i := range changes {
		if changes[i].ID == "" {
			changes[i].ID = uuid.NewString()
		}
		changes[i].PlanID = planID
		if changes[i].Status == "" {
			changes[i].Status = model.ChangeStatusPending
		}
		sceneSet[changes[i].SceneID] = struct{}{}
	}
	metadata.TotalChanges = len(changes)
	metadata.SceneCount = len(sceneSet)

	plan := &model.AnalysisPlan{
		ID:          planID,
		Name:        name,
		Description: description,
		Status:      model.PlanStatusDraft,
		CreatedAt:   time.Now(),
		Metadata:    metadata,
		Changes:     changes,
	}
	if err := s.plans.Create(ctx, plan); err != nil {
		return nil, fmt.Errorf("create plan: %w", err)
	}
	return plan, nil
}

// GetPlan loads a plan and all of its changes.
func (s *PlanStore) GetPlan(ctx context.Context, id string) (*model.AnalysisPlan, error) {
	return s.plans.Get(ctx, id)
}

// ListPlans returns a page of plan headers, optionally filtered by status.
func (s *PlanStore) ListPlans(ctx context.Context, status *model.PlanStatus, page, perPage int) ([]model.AnalysisPlan, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	return s.plans.List(ctx, status, perPage, (page-1)*perPage)
}

// BulkUpdateChanges applies one of the bulk review actions to every PENDING
// change in a plan matching the action's selector, returning the count
// mutated. Non-pending changes are left untouched (§4.7).
func (s *PlanStore) BulkUpdateChanges(ctx context.Context, planID string, action BulkAction, params BulkParams) (int, error) {
	changes, err := s.plans.ListChanges(ctx, planID)
	if err != nil {
		return 0, fmt.Errorf("bulk update changes for plan %s: %w", planID, err)
	}

	var target []string
	for _, c := range changes {
		if c.Status != model.ChangeStatusPending {
			continue
		}
		switch action {
		case BulkAcceptAll, BulkRejectAll:
			target = append(target, c.ID)
		case BulkAcceptByField:
			if c.Field == params.Field {
				target = append(target, c.ID)
			}
		case BulkAcceptByConfidence:
			if c.Confidence >= params.Confidence {
				target = append(target, c.ID)
			}
		default:
			return 0, fmt.Errorf("bulk update changes: unknown action %q", action)
		}
	}
	if len(target) == 0 {
		return 0, nil
	}

	newStatus := model.ChangeStatusApproved
	if action == BulkRejectAll {
		newStatus = model.ChangeStatusRejected
	}
	if err := s.plans.BulkUpdateChangeStatus(ctx, target, newStatus); err != nil {
		return 0, fmt.Errorf("bulk update changes for plan %s: %w", planID, err)
	}
	return len(target), nil
}

// UpdateChangeStatus transitions a single change's status and, when
// proposedValue is non-nil, overwrites its proposed value. Forbidden once
// the change has already been applied (§4.7).
func (s *PlanStore) UpdateChangeStatus(ctx context.Context, changeID string, status model.ChangeStatus, proposedValue any) error {
	existing, err := s.plans.GetChange(ctx, changeID)
	if err != nil {
		return fmt.Errorf("update change %s: %w", changeID, err)
	}
	if existing.Status == model.ChangeStatusApplied {
		return ErrChangeApplied
	}
	if err := s.plans.UpdateChange(ctx, changeID, status, proposedValue); err != nil {
		return fmt.Errorf("update change %s: %w", changeID, err)
	}
	return nil
}

// DeletePlan removes a plan and its changes. Forbidden once the plan has
// been applied (§4.7).
func (s *PlanStore) DeletePlan(ctx context.Context, id string) error {
	plan, err := s.plans.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("delete plan %s: %w", id, err)
	}
	if plan.Status == model.PlanStatusApplied {
		return ErrPlanApplied
	}
	if err := s.plans.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete plan %s: %w", id, err)
	}
	return nil
}

// CancelPlan transitions a plan to CANCELLED. Allowed only from DRAFT or
// REVIEWING (§4.7).
func (s *PlanStore) CancelPlan(ctx context.Context, id string) error {
	plan, err := s.plans.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("cancel plan %s: %w", id, err)
	}
	if plan.Status != model.PlanStatusDraft && plan.Status != model.PlanStatusReviewing {
		return ErrPlanNotCancellable
	}
	if err := s.plans.UpdateStatus(ctx, id, model.PlanStatusCancelled, nil); err != nil {
		return fmt.Errorf("cancel plan %s: %w", id, err)
	}
	return nil
}
