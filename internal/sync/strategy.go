// Package sync implements SyncEngine (§4.8): it pulls performers, tags,
// studios, and scenes from the Catalog into the mirror DB under one of
// three modes, reconciles each scene's files/markers/relationships, and
// resolves conflicts between a locally-edited scene and the incoming
// remote version.
package sync

import (
	"strconv"
	"strings"

	"github.com/sjafferali/stashhog-sub000/internal/model"
)

// Mode selects how SyncEngine resolves the scene set to pull (§4.8).
type Mode string

const (
	ModeFull        Mode = "full"
	ModeIncremental Mode = "incremental"
	ModeTargeted    Mode = "targeted"
)

// Strategy decides whether a remote scene should overwrite the local
// mirror and how to merge the two when it does (§4.8). Each Mode is
// backed by exactly one Strategy.
type Strategy interface {
	// ShouldSync reports whether remote's data should be applied over
	// local. local is nil when the scene does not yet exist locally, in
	// which case every strategy always syncs.
	ShouldSync(local *model.Scene, remote model.Scene) bool

	// Merge produces the candidate scene to write, given the current
	// local row (nil on first sync) and the freshly-fetched remote one.
	Merge(local *model.Scene, remote model.Scene) model.Scene
}

// FullSyncStrategy always syncs and always takes the remote scene
// verbatim (§4.8: full mode re-pulls every scene unconditionally).
type FullSyncStrategy struct{}

func (FullSyncStrategy) ShouldSync(local *model.Scene, remote model.Scene) bool { return true }

func (FullSyncStrategy) Merge(local *model.Scene, remote model.Scene) model.Scene {
	return overwriteWithRemote(local, remote)
}

// IncrementalSyncStrategy syncs only when the remote scene is newer than
// the local mirror's last-known Catalog timestamp, and then takes the
// remote scene verbatim (§4.8).
type IncrementalSyncStrategy struct{}

func (IncrementalSyncStrategy) ShouldSync(local *model.Scene, remote model.Scene) bool {
	if local == nil {
		return true
	}
	return remote.StashUpdatedAt.After(local.StashUpdatedAt)
}

func (IncrementalSyncStrategy) Merge(local *model.Scene, remote model.Scene) model.Scene {
	return overwriteWithRemote(local, remote)
}

// SmartSyncStrategy syncs on either a newer remote timestamp or a content
// checksum mismatch, and merges field-by-field: file metadata always
// comes from remote (Catalog is the source of truth for the physical
// file), while text fields are taken from remote unless the local scene
// has been hand-edited since its last sync (§4.8).
type SmartSyncStrategy struct{}

func (SmartSyncStrategy) ShouldSync(local *model.Scene, remote model.Scene) bool {
	if local == nil {
		return true
	}
	if remote.StashUpdatedAt.After(local.StashUpdatedAt) {
		return true
	}
	return SceneChecksum(*local) != SceneChecksum(remote)
}

func (SmartSyncStrategy) Merge(local *model.Scene, remote model.Scene) model.Scene {
	merged := overwriteWithRemote(local, remote)
	if local != nil && local.ManuallyEdited {
		merged.Title = local.Title
		merged.Details = local.Details
		merged.URL = local.URL
		merged.Rating = local.Rating
	}
	return merged
}

// overwriteWithRemote builds the merge candidate that takes every remote
// field, preserving only the local bookkeeping columns remote never
// carries (analyzed state, manual-edit flag).
func overwriteWithRemote(local *model.Scene, remote model.Scene) model.Scene {
	merged := remote
	if local != nil {
		merged.Analyzed = local.Analyzed
		merged.VideoAnalyzed = local.VideoAnalyzed
		merged.ManuallyEdited = local.ManuallyEdited
	}
	return merged
}

// SceneChecksum hashes the fields SmartSyncStrategy treats as
// content-significant, so a sync can be triggered even when Catalog fails
// to bump updated_at (§4.8).
func SceneChecksum(s model.Scene) string {
	var b strings.Builder
	b.WriteString(s.Title)
	b.WriteByte('\x00')
	b.WriteString(s.Details)
	b.WriteByte('\x00')
	b.WriteString(s.URL)
	b.WriteByte('\x00')
	if s.StashDate != nil {
		b.WriteString(s.StashDate.Format("2006-01-02"))
	}
	b.WriteByte('\x00')
	b.WriteString(strconv.Itoa(s.Rating))
	b.WriteByte('\x00')
	b.WriteString(strconv.FormatBool(s.Organized))
	b.WriteByte('\x00')
	if s.StudioID != nil {
		b.WriteString(*s.StudioID)
	}
	b.WriteByte('\x00')
	writeSorted(&b, s.PerformerIDs)
	b.WriteByte('\x00')
	writeSorted(&b, s.TagIDs)
	b.WriteByte('\x00')
	for _, f := range s.Files {
		b.WriteString(f.Path)
		b.WriteByte(',')
	}
	return b.String()
}

func writeSorted(b *strings.Builder, ids []string) {
	sorted := append([]string(nil), ids...)
	sortStrings(sorted)
	b.WriteString(strings.Join(sorted, ","))
}

// sortStrings is a tiny insertion sort: the id slices SceneChecksum hashes
// are small (a scene rarely carries more than a handful of performers or
// tags), so pulling in sort.Strings for this is unnecessary ceremony.
func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// StrategyFor returns the Strategy backing mode.
func StrategyFor(mode Mode) Strategy {
	switch mode {
	case ModeIncremental:
		return IncrementalSyncStrategy{}
	case ModeTargeted:
		return SmartSyncStrategy{}
	default:
		return FullSyncStrategy{}
	}
}
