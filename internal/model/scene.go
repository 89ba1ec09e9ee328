// Package model defines the core data-model types shared by every
// component: the mirror database rows, plan/change records, and job
// bookkeeping. Types here carry no behavior beyond small invariant helpers —
// persistence lives in internal/storage, business logic in the component
// packages.
package model

import (
	"strings"
	"time"
)

// Scene is the mirror-database representation of a Catalog scene.
type Scene struct {
	ID              string
	Title           string
	Details         string
	URL             string
	Organized       bool
	Rating          int // 0-5, internal scale
	StudioID        *string
	PerformerIDs    []string
	TagIDs          []string
	Files           []SceneFile
	Markers         []SceneMarker
	StashCreatedAt  time.Time
	StashUpdatedAt  time.Time
	StashDate       *time.Time
	LastSynced      time.Time
	Analyzed        bool
	VideoAnalyzed   bool
	ManuallyEdited  bool
	SyncConflict    *string // JSON delta blob when the conflict policy is "manual"
}

// PrimaryFile returns the SceneFile marked primary, or nil when the scene
// has no files.
func (s *Scene) PrimaryFile() *SceneFile {
	for i := range s.Files {
		if s.Files[i].IsPrimary {
			return &s.Files[i]
		}
	}
	return nil
}

// HasTagName reports whether the scene already carries the named tag,
// case-insensitively, resolved against the supplied id→name map.
func (s *Scene) HasTagName(name string, tagNames map[string]string) bool {
	return containsNameCI(s.TagIDs, name, tagNames)
}

// HasPerformerName reports whether the scene already carries the named
// performer, case-insensitively.
func (s *Scene) HasPerformerName(name string, performerNames map[string]string) bool {
	return containsNameCI(s.PerformerIDs, name, performerNames)
}

func containsNameCI(ids []string, name string, names map[string]string) bool {
	target := strings.ToLower(name)
	for _, id := range ids {
		if strings.ToLower(names[id]) == target {
			return true
		}
	}
	return false
}

// SceneFile is one physical media file backing a Scene.
// Invariant (§3): at most one SceneFile per Scene is primary; if any file
// exists, exactly one is primary.
type SceneFile struct {
	ID          string
	SceneID     string
	Path        string
	Size        int64
	Width       int
	Height      int
	Duration    float64 // seconds
	FrameRate   float64
	Codec       string
	Oshash      string
	Phash       string
	IsPrimary   bool
}

// SceneMarker is a timecoded annotation on a Scene.
// Invariant (§3): PrimaryTagID is required; EndSeconds >= Seconds when set.
type SceneMarker struct {
	ID           string
	SceneID      string
	Seconds      float64
	EndSeconds   *float64
	Title        string
	PrimaryTagID string
	TagIDs       []string
}

// Valid reports whether the marker satisfies its data-model invariants.
func (m *SceneMarker) Valid() bool {
	if m.PrimaryTagID == "" {
		return false
	}
	if m.EndSeconds != nil && *m.EndSeconds < m.Seconds {
		return false
	}
	return true
}

// SceneFilter narrows AnalysisEngine's scene-set resolution to the mirror
// DB when explicit scene ids are not supplied; fields are ANDed (§4.6 step
// 2). A nil field is not constrained.
type SceneFilter struct {
	Organized     *bool
	Analyzed      *bool
	VideoAnalyzed *bool
	StudioID      *string
}
