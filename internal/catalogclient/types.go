package catalogclient

import (
	"time"

	"github.com/sjafferali/stashhog-sub000/internal/model"
)

// Wire shapes mirror the Catalog GraphQL contract in spec §6. Fields not
// used by this client are tolerated but ignored — the client must not break
// when unknown fields appear in responses (§6), which json.Unmarshal gives
// us for free as long as we never use a strict decoder.

type wireFingerprint struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type wireFile struct {
	ID           string            `json:"id"`
	Path         string            `json:"path"`
	Size         int64             `json:"size"`
	Width        int               `json:"width"`
	Height       int               `json:"height"`
	Duration     float64           `json:"duration"`
	FrameRate    float64           `json:"frame_rate"`
	BitRate      int64             `json:"bit_rate"`
	VideoCodec   string            `json:"video_codec"`
	Fingerprints []wireFingerprint `json:"fingerprints"`
}

type wireRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type wireMarker struct {
	ID         string    `json:"id"`
	Seconds    float64   `json:"seconds"`
	EndSeconds *float64  `json:"end_seconds"`
	Title      string    `json:"title"`
	PrimaryTag wireRef   `json:"primary_tag"`
	Tags       []wireRef `json:"tags"`
}

type wireScene struct {
	ID         string       `json:"id"`
	Title      string       `json:"title"`
	Details    string       `json:"details"`
	URL        string       `json:"url"`
	Date       *string      `json:"date"`
	Rating100  *int         `json:"rating100"`
	Organized  bool         `json:"organized"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
	Files      []wireFile   `json:"files"`
	Performers []wireRef    `json:"performers"`
	Tags       []wireRef    `json:"tags"`
	Studio     *wireRef     `json:"studio"`
	Markers    []wireMarker `json:"markers"`
}

// toModelScene normalizes a wire scene into the local data model: string
// identifiers, files flattened to the primary-file abstraction, rating
// divided from the external 0-100 scale to the internal 0-5 scale (§4.1).
func toModelScene(w wireScene) model.Scene {
	s := model.Scene{
		ID:             w.ID,
		Title:          w.Title,
		Details:        w.Details,
		URL:            w.URL,
		Organized:      w.Organized,
		StashCreatedAt: w.CreatedAt,
		StashUpdatedAt: w.UpdatedAt,
	}
	if w.Rating100 != nil {
		s.Rating = *w.Rating100 / 20 // 0-100 -> 0-5
	}
	if w.Date != nil {
		if t, err := time.Parse("2006-01-02", *w.Date); err == nil {
			s.StashDate = &t
		}
	}
	if w.Studio != nil {
		id := w.Studio.ID
		s.StudioID = &id
	}
	for _, p := range w.Performers {
		s.PerformerIDs = append(s.PerformerIDs, p.ID)
	}
	for _, t := range w.Tags {
		s.TagIDs = append(s.TagIDs, t.ID)
	}

	primarySet := false
	for _, f := range w.Files {
		file := model.SceneFile{
			ID:        f.ID,
			SceneID:   w.ID,
			Path:      f.Path,
			Size:      f.Size,
			Width:     f.Width,
			Height:    f.Height,
			Duration:  f.Duration,
			FrameRate: f.FrameRate,
			Codec:     f.VideoCodec,
		}
		for _, fp := range f.Fingerprints {
			switch fp.Type {
			case "oshash":
				file.Oshash = fp.Value
			case "phash":
				file.Phash = fp.Value
			}
		}
		if !primarySet {
			file.IsPrimary = true
			primarySet = true
		}
		s.Files = append(s.Files, file)
	}

	for _, m := range w.Markers {
		if m.PrimaryTag.ID == "" {
			continue // a marker lacking a primary tag is not usable (§3)
		}
		marker := model.SceneMarker{
			ID:           m.ID,
			SceneID:      w.ID,
			Seconds:      m.Seconds,
			EndSeconds:   m.EndSeconds,
			Title:        m.Title,
			PrimaryTagID: m.PrimaryTag.ID,
		}
		for _, t := range m.Tags {
			marker.TagIDs = append(marker.TagIDs, t.ID)
		}
		s.Markers = append(s.Markers, marker)
	}

	return s
}

// SceneFilter narrows get_scenes/find_scenes (spec §4.1).
type SceneFilter struct {
	Organized     *bool
	StudioID      *string
	Query         string
}

// SortOption is accepted by GetScenes but not sent to the Catalog; results
// come back in the Catalog's default order.
type SortOption struct {
	Field     string
	Ascending bool
}

// Stats mirrors the Catalog's get_stats summary.
type Stats struct {
	SceneCount     int `json:"scene_count"`
	PerformerCount int `json:"performer_count"`
	TagCount       int `json:"tag_count"`
	StudioCount    int `json:"studio_count"`
}
