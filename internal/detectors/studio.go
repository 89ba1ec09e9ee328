package detectors

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// StudioPattern is a named, compiled regular expression matched against a
// file path or one of its ancestor directory components.
type StudioPattern struct {
	Studio string
	re     *regexp.Regexp
}

// StudioDetector tries compiled path patterns, then a known-studio
// substring match, then optionally delegates to AI (§4.3).
type StudioDetector struct {
	patterns []StudioPattern
}

// NewStudioDetector builds a detector with a starting pattern table.
// Invalid regular expressions fail fast rather than being silently dropped.
func NewStudioDetector(patterns map[string]string) (*StudioDetector, error) {
	d := &StudioDetector{}
	for studio, pattern := range patterns {
		if err := d.RegisterPattern(studio, pattern); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// RegisterPattern compiles and adds a pattern at runtime. An invalid
// expression returns an error immediately rather than being registered.
func (d *StudioDetector) RegisterPattern(studio, pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("studio pattern %q for %q: %w", pattern, studio, err)
	}
	d.patterns = append(d.patterns, StudioPattern{Studio: studio, re: re})
	return nil
}

// AIStudioGuesser is the optional AI delegation hook (§4.3 tier iii).
type AIStudioGuesser func(ctx context.Context, path string) (studio string, confidence float64, err error)

// Detect runs the three tiers in order, returning as soon as a tier yields
// a match: an exact directory-component match against known_studios first
// (0.95), then filename pattern (0.9), then directory pattern (0.85), then
// a plain substring match against known_studios, then AI delegation.
func (d *StudioDetector) Detect(ctx context.Context, path string, knownStudios []string, ai AIStudioGuesser) []DetectionResult {
	dir, file := filepath.Split(path)
	components := splitPathComponents(dir)

	// Tier exact-directory-component: compared with separators/case folded
	// out, so "SeanCody" matches the known studio "Sean Cody" (§8 scenario 1).
	for _, comp := range components {
		for _, known := range knownStudios {
			if normalizeStudioName(comp) == normalizeStudioName(known) {
				return []DetectionResult{{Value: known, Confidence: 0.95, Source: SourcePath}}
			}
		}
	}

	for _, p := range d.patterns {
		if p.re.MatchString(file) {
			return []DetectionResult{{Value: p.Studio, Confidence: 0.9, Source: SourcePattern}}
		}
	}
	for _, p := range d.patterns {
		if p.re.MatchString(dir) {
			return []DetectionResult{{Value: p.Studio, Confidence: 0.85, Source: SourcePattern}}
		}
	}

	// Tier (ii): substring match against the known-studio list.
	lowerPath := strings.ToLower(path)
	for _, known := range knownStudios {
		if known == "" {
			continue
		}
		if strings.Contains(lowerPath, strings.ToLower(known)) {
			return []DetectionResult{{Value: known, Confidence: 0.8, Source: SourcePath}}
		}
	}

	// Tier (iii): AI delegation.
	if ai != nil {
		if studio, confidence, err := ai(ctx, path); err == nil && studio != "" {
			return []DetectionResult{{Value: studio, Confidence: confidence, Source: SourceAI}}
		}
	}
	return nil
}

func splitPathComponents(dir string) []string {
	dir = strings.Trim(dir, string(filepath.Separator))
	if dir == "" {
		return nil
	}
	return strings.Split(dir, string(filepath.Separator))
}

func normalizeStudioName(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if r == ' ' || r == '_' || r == '-' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
