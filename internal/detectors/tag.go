package detectors

import (
	"context"
	"strings"
)

// tagHierarchy maps a parent tag to its more-specific children (§4.3).
// Proposing a child when the parent is present, or a parent when a child is
// present, is redundant and filtered out.
var tagHierarchy = map[string][]string{
	"bareback": {"raw", "no condom"},
	"group":    {"threesome", "orgy", "gangbang"},
	"outdoor":  {"public", "beach", "poolside"},
}

// resolutionBuckets maps a minimum (width, height) to the tags it implies,
// checked from highest resolution down (§4.3).
var resolutionBuckets = []struct {
	minWidth, minHeight int
	tags                []string
}{
	{3840, 2160, []string{"4K", "UHD", "2160p"}},
	{1920, 1080, []string{"1080p", "Full HD"}},
	{1280, 720, []string{"720p", "HD"}},
}

// durationBuckets maps a minimum duration in seconds to the tag it implies,
// checked from longest down (§4.3).
var durationBuckets = []struct {
	minSeconds float64
	tag        string
}{
	{900, "long"},  // >= 15m
	{300, "medium"}, // >= 5m
	{0, "short"},    // 0-5m
}

// AITagGuesser is the optional AI delegation hook, constrained by the
// caller to the available-tag set (§4.3 tier ii).
type AITagGuesser func(ctx context.Context, path string, availableTags []string) ([]DetectionResult, error)

// TagDetector proposes technical tags from scene metrics and optionally
// AI-proposed tags constrained to an available-tag set, then filters
// redundant proposals via the tag hierarchy (§4.3).
type TagDetector struct {
	hierarchy map[string][]string
}

// NewTagDetector constructs a TagDetector using the built-in hierarchy
// table, merged with any caller-supplied overrides.
func NewTagDetector(extraHierarchy map[string][]string) *TagDetector {
	merged := make(map[string][]string, len(tagHierarchy)+len(extraHierarchy))
	for k, v := range tagHierarchy {
		merged[k] = v
	}
	for k, v := range extraHierarchy {
		merged[k] = append(merged[k], v...)
	}
	return &TagDetector{hierarchy: merged}
}

// TechnicalTags derives deterministic tags from resolution, duration, and
// frame rate (§4.3 tier i, §8 scenario 3).
func TechnicalTags(width, height int, durationSeconds, frameRate float64) []DetectionResult {
	var out []DetectionResult

	for _, b := range resolutionBuckets {
		if width >= b.minWidth && height >= b.minHeight {
			for _, tag := range b.tags {
				out = append(out, DetectionResult{Value: tag, Confidence: 0.95, Source: SourceTechnical})
			}
			break
		}
	}

	for _, b := range durationBuckets {
		if durationSeconds >= b.minSeconds {
			out = append(out, DetectionResult{Value: b.tag, Confidence: 0.9, Source: SourceTechnical})
			break
		}
	}
	if durationSeconds >= 1800 {
		out = append(out, DetectionResult{Value: "full scene", Confidence: 0.9, Source: SourceTechnical})
	}

	if frameRate >= 60 {
		out = append(out, DetectionResult{Value: "60fps", Confidence: 0.95, Source: SourceTechnical})
	}

	return out
}

// Detect runs technical tag derivation plus an optional AI pass constrained
// to availableTags, then filters redundant proposals using the hierarchy
// table (§4.3).
func (d *TagDetector) Detect(ctx context.Context, width, height int, durationSeconds, frameRate float64, availableTags []string, existingTags []string, ai AITagGuesser) []DetectionResult {
	results := TechnicalTags(width, height, durationSeconds, frameRate)

	if ai != nil {
		if aiResults, err := ai(ctx, "", availableTags); err == nil {
			available := make(map[string]bool, len(availableTags))
			for _, t := range availableTags {
				available[strings.ToLower(t)] = true
			}
			for _, r := range aiResults {
				if len(availableTags) > 0 && !available[strings.ToLower(r.Value)] {
					continue // §8: proposed.lower() must be in available.lower()
				}
				results = append(results, r)
			}
		}
	}

	return d.filterRedundant(results, existingTags)
}

// filterRedundant drops a proposed child when its parent is already
// present, and drops a proposed parent when any of its specific children is
// already present (§4.3).
func (d *TagDetector) filterRedundant(proposed []DetectionResult, existing []string) []DetectionResult {
	existingSet := make(map[string]bool, len(existing))
	for _, e := range existing {
		existingSet[strings.ToLower(e)] = true
	}

	out := make([]DetectionResult, 0, len(proposed))
	for _, p := range proposed {
		lower := strings.ToLower(p.Value)
		if existingSet[lower] {
			continue // already present, not a new proposal
		}
		if d.isRedundant(lower, existingSet) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func (d *TagDetector) isRedundant(lowerTag string, existing map[string]bool) bool {
	for parent, children := range d.hierarchy {
		if lowerTag == parent {
			continue // handled by the child loop below for the inverse case
		}
		for _, child := range children {
			if strings.ToLower(child) == lowerTag && existing[strings.ToLower(parent)] {
				return true // proposed child, parent already present
			}
		}
	}
	if children, ok := d.hierarchy[lowerTag]; ok {
		for _, child := range children {
			if existing[strings.ToLower(child)] {
				return true // proposed parent, a specific child already present
			}
		}
	}
	return false
}
