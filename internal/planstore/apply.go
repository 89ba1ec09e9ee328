package planstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sjafferali/stashhog-sub000/internal/catalogclient"
	"github.com/sjafferali/stashhog-sub000/internal/model"
	"github.com/sjafferali/stashhog-sub000/internal/storage"
)

// ApplyPlan writes every APPROVED change through the Catalog, optionally
// narrowed by filter. The plan transitions DRAFT -> REVIEWING at the start
// as a guard against a concurrent apply of the same plan, and REVIEWING ->
// APPLIED at the end regardless of per-change outcome. A per-change failure
// is recorded in the result and never aborts the run (§4.7).
func (s *PlanStore) ApplyPlan(ctx context.Context, planID string, filter *ApplyFilter) (*model.ApplyResult, error) {
	began, err := s.plans.TryBeginApply(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("apply plan %s: %w", planID, err)
	}
	if !began {
		return nil, ErrPlanNotDraft
	}

	result := &model.ApplyResult{PlanID: planID, SuccessRate: 1.0}
	defer func() {
		// Runs even if ctx was cancelled mid-apply, so a plan never gets
		// stuck in REVIEWING forever (§4.7: transitions to APPLIED at end
		// even on partial failure).
		finalCtx := context.WithoutCancel(ctx)
		appliedAt := time.Now()
		if err := s.plans.UpdateStatus(finalCtx, planID, model.PlanStatusApplied, &appliedAt); err != nil {
			slog.Error("mark plan applied", "plan_id", planID, "error", err)
		}
	}()

	changes, err := s.plans.ListChanges(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("apply plan %s: list changes: %w", planID, err)
	}

	wantIDs := make(map[string]bool, len(filterChangeIDs(filter)))
	for _, id := range filterChangeIDs(filter) {
		wantIDs[id] = true
	}

	editedScenes := make(map[string]bool)
	for _, c := range changes {
		if c.Status != model.ChangeStatusApproved {
			continue
		}
		if filter != nil {
			if filter.Field != nil && c.Field != *filter.Field {
				continue
			}
			if len(filter.ChangeIDs) > 0 && !wantIDs[c.ID] {
				continue
			}
		}

		result.Total++
		if err := s.applyChange(ctx, &c); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, model.ApplyError{ChangeID: c.ID, SceneID: c.SceneID, Message: err.Error()})
			slog.Error("apply plan change failed", "plan_id", planID, "change_id", c.ID, "scene_id", c.SceneID, "error", err)
			continue
		}
		if err := s.plans.MarkChangeApplied(ctx, c.ID, time.Now()); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, model.ApplyError{ChangeID: c.ID, SceneID: c.SceneID, Message: err.Error()})
			continue
		}
		result.Applied++
		editedScenes[c.SceneID] = true
	}
	// A plan with zero approved changes is a no-op and stays at the 1.0
	// default set above (§8: success_rate=1.0 for an empty apply).
	if result.Total > 0 {
		result.SuccessRate = float64(result.Applied) / float64(result.Total)
	}

	// An operator-approved change applied through this plan is the
	// mechanism that flips manually_edited: SmartSyncStrategy treats the
	// scene as locally authoritative on its next sync (§9 open question).
	for sceneID := range editedScenes {
		if err := s.scenes.SetManuallyEdited(ctx, sceneID, true); err != nil {
			slog.Error("mark scene manually edited", "scene_id", sceneID, "error", err)
		}
	}
	return result, nil
}

func filterChangeIDs(filter *ApplyFilter) []string {
	if filter == nil {
		return nil
	}
	return filter.ChangeIDs
}

// applyChange dispatches a single change to its field-specific apply
// semantics (§4.7).
func (s *PlanStore) applyChange(ctx context.Context, c *model.PlanChange) error {
	switch c.Field {
	case model.FieldStudio:
		return s.applyStudioChange(ctx, c)
	case model.FieldPerformers:
		return s.applyPerformerChange(ctx, c)
	case model.FieldTags:
		return s.applyTagChange(ctx, c)
	case model.FieldDetails:
		return s.applyDetailsChange(ctx, c)
	case model.FieldMarkers:
		return s.applyMarkerChange(ctx, c)
	default:
		return fmt.Errorf("unknown change field %q", c.Field)
	}
}

func (s *PlanStore) applyStudioChange(ctx context.Context, c *model.PlanChange) error {
	if c.Action != model.ActionSet {
		return fmt.Errorf("unsupported studio action %q", c.Action)
	}
	name, ok := c.ProposedValue.(string)
	if !ok || name == "" {
		return errors.New("studio change proposed_value must be a non-empty name")
	}
	id, err := s.resolveOrCreateStudio(ctx, name)
	if err != nil {
		return err
	}
	return s.catalog.UpdateScene(ctx, c.SceneID, catalogclient.SceneUpdate{StudioID: &id})
}

func (s *PlanStore) resolveOrCreateStudio(ctx context.Context, name string) (string, error) {
	studio, err := s.entities.FindStudioByName(ctx, name)
	if err == nil {
		return studio.ID, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return "", fmt.Errorf("resolve studio %q: %w", name, err)
	}
	id, err := s.catalog.CreateStudio(ctx, name)
	if err != nil {
		return "", fmt.Errorf("create studio %q: %w", name, err)
	}
	if err := s.entities.UpsertStudio(ctx, &model.Studio{ID: id, Name: name, LastSynced: time.Now()}); err != nil {
		return "", fmt.Errorf("mirror new studio %q: %w", name, err)
	}
	return id, nil
}

func (s *PlanStore) resolveOrCreatePerformer(ctx context.Context, name string) (string, error) {
	performer, err := s.entities.FindPerformerByName(ctx, name)
	if err == nil {
		return performer.ID, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return "", fmt.Errorf("resolve performer %q: %w", name, err)
	}
	id, err := s.catalog.CreatePerformer(ctx, name, nil)
	if err != nil {
		return "", fmt.Errorf("create performer %q: %w", name, err)
	}
	if err := s.entities.UpsertPerformer(ctx, &model.Performer{ID: id, Name: name, LastSynced: time.Now()}); err != nil {
		return "", fmt.Errorf("mirror new performer %q: %w", name, err)
	}
	return id, nil
}

func (s *PlanStore) applyPerformerChange(ctx context.Context, c *model.PlanChange) error {
	scene, err := s.scenes.Get(ctx, c.SceneID)
	if err != nil {
		return fmt.Errorf("load scene %s: %w", c.SceneID, err)
	}

	switch c.Action {
	case model.ActionAdd:
		name, ok := c.ProposedValue.(string)
		if !ok || name == "" {
			return errors.New("performer add proposed_value must be a non-empty name")
		}
		id, err := s.resolveOrCreatePerformer(ctx, name)
		if err != nil {
			return err
		}
		return s.catalog.UpdateScene(ctx, c.SceneID, catalogclient.SceneUpdate{PerformerIDs: unionID(scene.PerformerIDs, id)})
	case model.ActionRemove:
		name, ok := c.CurrentValue.(string)
		if !ok || name == "" {
			return errors.New("performer remove current_value must be a non-empty name")
		}
		performer, err := s.entities.FindPerformerByName(ctx, name)
		if err != nil {
			return fmt.Errorf("resolve performer %q: %w", name, err)
		}
		return s.catalog.UpdateScene(ctx, c.SceneID, catalogclient.SceneUpdate{PerformerIDs: removeID(scene.PerformerIDs, performer.ID)})
	default:
		return fmt.Errorf("unsupported performer action %q", c.Action)
	}
}

// applyTagChange is constrained to tags already present in the local tag
// set: unlike studios and performers, apply never creates a tag (§4.7).
func (s *PlanStore) applyTagChange(ctx context.Context, c *model.PlanChange) error {
	scene, err := s.scenes.Get(ctx, c.SceneID)
	if err != nil {
		return fmt.Errorf("load scene %s: %w", c.SceneID, err)
	}

	switch c.Action {
	case model.ActionAdd:
		name, ok := c.ProposedValue.(string)
		if !ok || name == "" {
			return errors.New("tag add proposed_value must be a non-empty name")
		}
		tag, err := s.entities.FindTagByName(ctx, name)
		if err != nil {
			return fmt.Errorf("tag %q not present in local tag set: %w", name, err)
		}
		return s.catalog.UpdateScene(ctx, c.SceneID, catalogclient.SceneUpdate{TagIDs: unionID(scene.TagIDs, tag.ID)})
	case model.ActionRemove:
		name, ok := c.CurrentValue.(string)
		if !ok || name == "" {
			return errors.New("tag remove current_value must be a non-empty name")
		}
		tag, err := s.entities.FindTagByName(ctx, name)
		if err != nil {
			return fmt.Errorf("tag %q not present in local tag set: %w", name, err)
		}
		return s.catalog.UpdateScene(ctx, c.SceneID, catalogclient.SceneUpdate{TagIDs: removeID(scene.TagIDs, tag.ID)})
	default:
		return fmt.Errorf("unsupported tag action %q", c.Action)
	}
}

func (s *PlanStore) applyDetailsChange(ctx context.Context, c *model.PlanChange) error {
	if c.Action != model.ActionSet && c.Action != model.ActionUpdate {
		return fmt.Errorf("unsupported details action %q", c.Action)
	}
	details, ok := c.ProposedValue.(string)
	if !ok {
		return errors.New("details change proposed_value must be a string")
	}
	return s.catalog.UpdateScene(ctx, c.SceneID, catalogclient.SceneUpdate{Details: &details})
}

// markerProposal is the wire shape detectors and operators use for
// field=markers changes (§4.3, §4.7).
type markerProposal struct {
	Seconds    float64  `json:"seconds"`
	EndSeconds *float64 `json:"end_seconds"`
	Title      string   `json:"title"`
	Tags       []string `json:"tags"`
}

func decodeMarkerValue(v any) (markerProposal, error) {
	var m markerProposal
	encoded, err := json.Marshal(v)
	if err != nil {
		return m, fmt.Errorf("encoding marker value: %w", err)
	}
	if err := json.Unmarshal(encoded, &m); err != nil {
		return m, fmt.Errorf("decoding marker value: %w", err)
	}
	return m, nil
}

func (s *PlanStore) applyMarkerChange(ctx context.Context, c *model.PlanChange) error {
	switch c.Action {
	case model.ActionAdd:
		proposal, err := decodeMarkerValue(c.ProposedValue)
		if err != nil {
			return fmt.Errorf("marker add: %w", err)
		}
		tagIDs := make([]string, 0, len(proposal.Tags))
		for _, name := range proposal.Tags {
			tag, err := s.entities.FindTagByName(ctx, name)
			if err != nil {
				return fmt.Errorf("marker tag %q not present in local tag set: %w", name, err)
			}
			tagIDs = append(tagIDs, tag.ID) // first tag stays primary: position 0 preserved
		}
		_, err = s.catalog.CreateMarker(ctx, c.SceneID, proposal.Seconds, proposal.Title, tagIDs)
		return err
	case model.ActionRemove:
		proposal, err := decodeMarkerValue(c.CurrentValue)
		if err != nil {
			return fmt.Errorf("marker remove: %w", err)
		}
		scene, err := s.scenes.Get(ctx, c.SceneID)
		if err != nil {
			return fmt.Errorf("load scene %s: %w", c.SceneID, err)
		}
		for _, m := range scene.Markers {
			if m.Seconds == proposal.Seconds {
				return s.catalog.DeleteMarker(ctx, c.SceneID, m.ID)
			}
		}
		return fmt.Errorf("no marker at %.3fs on scene %s", proposal.Seconds, c.SceneID)
	default:
		return fmt.Errorf("unsupported marker action %q", c.Action)
	}
}

func unionID(ids []string, add string) []string {
	for _, id := range ids {
		if id == add {
			return ids
		}
	}
	out := make([]string, 0, len(ids)+1)
	out = append(out, ids...)
	return append(out, add)
}

func removeID(ids []string, remove string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != remove {
			out = append(out, id)
		}
	}
	return out
}
