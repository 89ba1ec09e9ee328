package sync

import (
	"encoding/json"
	"fmt"

	"github.com/sjafferali/stashhog-sub000/internal/model"
)

// ConflictPolicy governs what SyncEngine does when a local scene and its
// freshly-merged remote counterpart disagree (§4.8).
type ConflictPolicy string

const (
	// PolicyRemoteWins is the default: the strategy's merge candidate is
	// committed as-is.
	PolicyRemoteWins ConflictPolicy = "remote_wins"
	// PolicyLocalWins discards the merge candidate and keeps the local
	// row untouched other than last_synced.
	PolicyLocalWins ConflictPolicy = "local_wins"
	// PolicyMerge takes file-level fields from remote unconditionally and
	// text fields from remote unless the local row is manually_edited.
	PolicyMerge ConflictPolicy = "merge"
	// PolicyManual records the delta on sync_conflict and skips mutation
	// entirely, leaving the row for an operator to resolve.
	PolicyManual ConflictPolicy = "manual"
)

// Resolver applies a ConflictPolicy to decide the scene SyncEngine
// actually writes, once a Strategy has already decided a sync is due and
// produced a merge candidate (§4.8).
type Resolver struct {
	Policy ConflictPolicy
}

// Apply returns the final scene to persist and whether it represents an
// unresolved conflict (policy manual only). local is nil on first sync,
// in which case every policy simply accepts merged — there is nothing to
// conflict with yet.
func (r Resolver) Apply(local *model.Scene, merged model.Scene) (final model.Scene, conflicted bool) {
	if local == nil || !differs(*local, merged) {
		return merged, false
	}

	switch r.Policy {
	case PolicyLocalWins:
		kept := *local
		return kept, false
	case PolicyMerge:
		return mergeFields(*local, merged), false
	case PolicyManual:
		return *local, true
	case PolicyRemoteWins, "":
		return merged, false
	default:
		return merged, false
	}
}

// differs reports whether local and merged disagree on any
// content-significant field, the trigger for conflict handling.
func differs(local, merged model.Scene) bool {
	return SceneChecksum(local) != SceneChecksum(merged)
}

// mergeFields implements the "merge" conflict policy: file-level fields
// always come from merged (remote is authoritative for the physical
// file), text fields come from merged unless local carries manual edits.
func mergeFields(local, merged model.Scene) model.Scene {
	out := merged
	if local.ManuallyEdited {
		out.Title = local.Title
		out.Details = local.Details
		out.URL = local.URL
		out.Rating = local.Rating
	}
	return out
}

// ConflictDelta renders the field-level disagreement between local and
// merged as a JSON object, the payload SyncEngine stores on sync_conflict
// under the manual policy.
func ConflictDelta(local, merged model.Scene) (string, error) {
	delta := map[string]map[string]any{}
	add := func(field string, localVal, remoteVal any) {
		delta[field] = map[string]any{"local": localVal, "remote": remoteVal}
	}
	if local.Title != merged.Title {
		add("title", local.Title, merged.Title)
	}
	if local.Details != merged.Details {
		add("details", local.Details, merged.Details)
	}
	if local.URL != merged.URL {
		add("url", local.URL, merged.URL)
	}
	if local.Rating != merged.Rating {
		add("rating", local.Rating, merged.Rating)
	}
	if local.Organized != merged.Organized {
		add("organized", local.Organized, merged.Organized)
	}
	if !samePtr(local.StudioID, merged.StudioID) {
		add("studio_id", derefOrNil(local.StudioID), derefOrNil(merged.StudioID))
	}

	b, err := json.Marshal(delta)
	if err != nil {
		return "", fmt.Errorf("marshal conflict delta: %w", err)
	}
	return string(b), nil
}

func samePtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func derefOrNil(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
