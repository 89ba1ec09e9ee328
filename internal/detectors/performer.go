package detectors

import (
	"context"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// performerSeparators is the fixed separator set candidates are split on
// (§4.3), checked in list order with " featuring " first so it is not
// swallowed by a shorter substring.
var performerSeparators = []string{
	" featuring ", " with ", " feat ", " ft ", " and ", " & ", ", ", " - ", "_",
}

// performerIgnoreWords strips format/quality/generic-verb tokens that are
// not performer names (§4.3).
var performerIgnoreWords = map[string]bool{
	"1080p": true, "720p": true, "2160p": true, "4k": true, "hd": true, "uhd": true,
	"mp4": true, "mkv": true, "avi": true, "webrip": true, "webdl": true,
	"fucking": true, "fucks": true, "gets": true, "scene": true, "part": true,
	"vol": true, "final": true, "new": true,
}

var capitalizedWordRe = regexp.MustCompile(`[A-Z][a-zA-Z']*(?:\s+[A-Z][a-zA-Z']*)*`)

// KnownPerformer is the reference shape a caller supplies for matching.
type KnownPerformer struct {
	ID      string
	Name    string
	Aliases []string
}

// AIPerformerGuesser is the optional AI delegation hook (§4.3).
type AIPerformerGuesser func(ctx context.Context, path string) ([]DetectionResult, error)

// PerformerDetector extracts candidate performer names from a file path and
// matches them against known performers (§4.3).
type PerformerDetector struct{}

// NewPerformerDetector constructs a PerformerDetector. It holds no state;
// all reference data is caller-supplied per call.
func NewPerformerDetector() *PerformerDetector {
	return &PerformerDetector{}
}

// Detect extracts candidates from path and matches them against known,
// optionally unioning in AI-detected results keyed by canonical name with
// the maximum confidence kept per key (§4.3).
func (d *PerformerDetector) Detect(ctx context.Context, path string, known []KnownPerformer, ai AIPerformerGuesser) []DetectionResult {
	byKey := make(map[string]DetectionResult)

	for _, candidate := range extractCandidates(path) {
		result, ok := matchPerformer(candidate, known)
		if !ok {
			continue
		}
		key := strings.ToLower(result.Value)
		if existing, has := byKey[key]; !has || result.Confidence > existing.Confidence {
			byKey[key] = result
		}
	}

	if ai != nil {
		if aiResults, err := ai(ctx, path); err == nil {
			for _, r := range aiResults {
				key := strings.ToLower(r.Value)
				if existing, has := byKey[key]; !has || r.Confidence > existing.Confidence {
					byKey[key] = r
				}
			}
		}
	}

	out := make([]DetectionResult, 0, len(byKey))
	for _, r := range byKey {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Value < out[j].Value })
	return out
}

// extractCandidates pulls candidate name strings out of the file path's
// final two components (§4.3 phase a).
func extractCandidates(path string) []string {
	dir, file := filepath.Split(path)
	file = strings.TrimSuffix(file, filepath.Ext(file))
	parent := filepath.Base(filepath.Clean(dir))

	var candidates []string
	for _, segment := range []string{parent, file} {
		candidates = append(candidates, splitOnSeparators(segment)...)
	}

	var valid []string
	for _, c := range candidates {
		c = cleanCandidate(c)
		if isValidCandidate(c) {
			valid = append(valid, c)
		}
	}
	if len(valid) > 0 {
		return valid
	}

	// Fallback: contiguous capitalized-word extraction.
	for _, segment := range []string{parent, file} {
		for _, m := range capitalizedWordRe.FindAllString(segment, -1) {
			c := cleanCandidate(m)
			if isValidCandidate(c) {
				valid = append(valid, c)
			}
		}
	}
	return valid
}

func splitOnSeparators(segment string) []string {
	pieces := []string{segment}
	for _, sep := range performerSeparators {
		var next []string
		for _, p := range pieces {
			next = append(next, strings.Split(p, sep)...)
		}
		pieces = next
	}
	return pieces
}

func cleanCandidate(c string) string {
	words := strings.Fields(c)
	filtered := words[:0]
	for _, w := range words {
		if performerIgnoreWords[strings.ToLower(w)] {
			continue
		}
		filtered = append(filtered, w)
	}
	return strings.TrimSpace(strings.Join(filtered, " "))
}

func isValidCandidate(c string) bool {
	if len(c) < 2 || len(c) > 50 {
		return false
	}
	hasLetter := false
	digits := 0
	for _, r := range c {
		if unicode.IsLetter(r) {
			hasLetter = true
		}
		if unicode.IsDigit(r) {
			digits++
		}
	}
	if !hasLetter {
		return false
	}
	return digits*2 < len(c) // not mostly digits
}

// matchPerformer matches a candidate string against known performers using
// exact name, exact alias, then fuzzy ratio with first/last-name bonuses
// (§4.3 phase b).
func matchPerformer(candidate string, known []KnownPerformer) (DetectionResult, bool) {
	lowerCandidate := strings.ToLower(candidate)

	for _, k := range known {
		if strings.EqualFold(k.Name, candidate) {
			return DetectionResult{Value: k.Name, Confidence: 1.0, Source: SourcePath}, true
		}
	}
	for _, k := range known {
		for _, alias := range k.Aliases {
			if strings.EqualFold(alias, candidate) {
				return DetectionResult{Value: k.Name, Confidence: 0.95, Source: SourcePath}, true
			}
		}
	}

	best := ""
	bestScore := 0.0
	for _, k := range known {
		score := fuzzyRatio(lowerCandidate, strings.ToLower(k.Name))
		score += nameBonus(lowerCandidate, k.Name)
		if score > bestScore {
			bestScore = score
			best = k.Name
		}
	}
	if bestScore >= 0.6 {
		return DetectionResult{Value: best, Confidence: bestScore, Source: SourcePath}, true
	}

	// No known match: still a path-derived candidate at low confidence.
	return DetectionResult{Value: candidate, Confidence: 0.5, Source: SourcePath}, true
}

// nameBonus adds a small score bump when candidate shares a first or last
// name token with name (case-insensitive).
func nameBonus(lowerCandidate, name string) float64 {
	nameParts := strings.Fields(strings.ToLower(name))
	if len(nameParts) == 0 {
		return 0
	}
	bonus := 0.0
	if strings.Contains(lowerCandidate, nameParts[0]) {
		bonus += 0.05
	}
	if len(nameParts) > 1 && strings.Contains(lowerCandidate, nameParts[len(nameParts)-1]) {
		bonus += 0.05
	}
	return bonus
}

// fuzzyRatio is a sequence-matcher-style similarity ratio in [0,1], based on
// the length of the longest common subsequence between a and b (a cheap,
// dependency-free stand-in for Python's difflib.SequenceMatcher.ratio()).
func fuzzyRatio(a, b string) float64 {
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	lcs := longestCommonSubsequence(a, b)
	return float64(2*lcs) / float64(len(a)+len(b))
}

func longestCommonSubsequence(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			if ra[i-1] == rb[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}
