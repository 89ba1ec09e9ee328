package model

import "time"

// PlanStatus is the lifecycle state of an AnalysisPlan.
type PlanStatus string

// Plan lifecycle states (§3). DRAFT -> REVIEWING -> APPLIED is the normal
// path during apply; CANCELLED is reachable from DRAFT/REVIEWING.
const (
	PlanStatusDraft     PlanStatus = "draft"
	PlanStatusReviewing PlanStatus = "reviewing"
	PlanStatusApplied   PlanStatus = "applied"
	PlanStatusCancelled PlanStatus = "cancelled"
)

// ChangeField enumerates the scene fields a PlanChange may target.
type ChangeField string

const (
	FieldStudio     ChangeField = "studio"
	FieldPerformers ChangeField = "performers"
	FieldTags       ChangeField = "tags"
	FieldDetails    ChangeField = "details"
	FieldMarkers    ChangeField = "markers"
)

// ChangeAction enumerates the mutation a PlanChange performs.
type ChangeAction string

const (
	ActionSet    ChangeAction = "set"
	ActionAdd    ChangeAction = "add"
	ActionRemove ChangeAction = "remove"
	ActionUpdate ChangeAction = "update"
)

// ChangeStatus is the lifecycle state of a single PlanChange.
type ChangeStatus string

// PlanChange lifecycle states. APPLIED is terminal (§3 invariant).
const (
	ChangeStatusPending  ChangeStatus = "pending"
	ChangeStatusApproved ChangeStatus = "approved"
	ChangeStatusRejected ChangeStatus = "rejected"
	ChangeStatusApplied  ChangeStatus = "applied"
)

// AnalysisPlan is a reviewable batch of proposed metadata changes.
type AnalysisPlan struct {
	ID          string
	Name        string
	Description string
	Status      PlanStatus
	CreatedAt   time.Time
	AppliedAt   *time.Time
	Metadata    PlanMetadata
	Changes     []PlanChange
}

// PlanMetadata is the structured settings/statistics/cost snapshot attached
// to a Plan at creation (§3, §4.6 step 6-7).
type PlanMetadata struct {
	Settings     map[string]any   `json:"settings,omitempty"`
	Statistics   PlanStatistics   `json:"statistics"`
	CostUsage    AICostSnapshot   `json:"cost_usage"`
	TotalChanges int              `json:"total_changes"`
	SceneCount   int              `json:"scene_count"`
}

// PlanStatistics summarizes a plan's ProposedChanges (§4.6 step 6).
type PlanStatistics struct {
	TotalChanges       int            `json:"total_changes"`
	ScenesWithChanges  int            `json:"scenes_with_changes"`
	ScenesWithErrors   int            `json:"scenes_with_errors"`
	ChangesByField     map[string]int `json:"changes_by_field"`
	MeanConfidence     float64        `json:"mean_confidence"`
}

// AICostSnapshot is a point-in-time copy of the AIClient cost accumulator,
// embedded in plan metadata so historical plans retain their own cost even
// as the live accumulator keeps incrementing (§4.4).
type AICostSnapshot struct {
	PromptTokens     int64              `json:"prompt_tokens"`
	CompletionTokens int64              `json:"completion_tokens"`
	TotalCostUSD     float64            `json:"total_cost_usd"`
	ByOperation      map[string]float64 `json:"by_operation,omitempty"`
	ByModel          map[string]float64 `json:"by_model,omitempty"`
}

// PlanChange is a single atomic field-level edit proposal.
type PlanChange struct {
	ID            string
	PlanID        string
	SceneID       string
	Field         ChangeField
	Action        ChangeAction
	CurrentValue  any
	ProposedValue any
	Confidence    float64
	Reason        string
	Status        ChangeStatus
	AppliedAt     *time.Time
}

// ApplyResult is returned by PlanStore.ApplyPlan (§4.7, §7).
type ApplyResult struct {
	PlanID      string
	Total       int
	Applied     int
	Failed      int
	Errors      []ApplyError
	SuccessRate float64
}

// ApplyError records a single per-change apply failure; it never aborts the
// run (§4.7, §7).
type ApplyError struct {
	ChangeID string
	SceneID  string
	Message  string
}
