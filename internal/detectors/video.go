package detectors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/sjafferali/stashhog-sub000/internal/model"
)

// VideoTagRequest is the body POSTed to the remote video-analysis service
// (§6).
type VideoTagRequest struct {
	Path              string  `json:"path"`
	FrameInterval     float64 `json:"frame_interval"`
	Threshold         float64 `json:"threshold"`
	ReturnConfidence  bool    `json:"return_confidence"`
	VRVideo           bool    `json:"vr_video"`
}

// VideoOccurrence is one detected tag occupying a timespan, normalized from
// either response shape (§6).
type VideoOccurrence struct {
	Tag        string
	Start      float64
	End        float64
	Confidence float64
}

// VideoTagDetector delegates to a remote video-analysis service (§4.3).
type VideoTagDetector struct {
	http     *http.Client
	endpoint string
}

// NewVideoTagDetector constructs a detector targeting endpoint (typically
// ".../process_video/").
func NewVideoTagDetector(httpClient *http.Client, endpoint string) *VideoTagDetector {
	return &VideoTagDetector{http: httpClient, endpoint: endpoint}
}

type videoTagInfoShape struct {
	Result struct {
		VideoTagInfo *struct {
			VideoTags     map[string][]string                      `json:"video_tags"`
			TagTimespans  map[string]map[string][]videoTimespanV1 `json:"tag_timespans"`
		} `json:"video_tag_info"`
		JSONResult json.RawMessage `json:"json_result"`
	} `json:"result"`
}

type videoTimespanV1 struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type legacyJSONResult struct {
	Timespans map[string]map[string][]videoTimespanV2 `json:"timespans"`
}

type videoTimespanV2 struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
}

// Analyze posts the request and returns the tag set and normalized
// occurrences, accepting either documented response shape (§6).
func (d *VideoTagDetector) Analyze(ctx context.Context, req VideoTagRequest) ([]string, []VideoOccurrence, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, nil, fmt.Errorf("encoding video-tag request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("building video-tag request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := d.http.Do(httpReq)
	if err != nil {
		return nil, nil, fmt.Errorf("video-tag request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return nil, nil, fmt.Errorf("video-tag service returned %d", resp.StatusCode)
	}

	var shape videoTagInfoShape
	if err := json.NewDecoder(resp.Body).Decode(&shape); err != nil {
		return nil, nil, fmt.Errorf("decoding video-tag response: %w", err)
	}

	if shape.Result.VideoTagInfo != nil {
		return parseVideoTagInfo(shape.Result.VideoTagInfo.VideoTags, shape.Result.VideoTagInfo.TagTimespans)
	}
	if len(shape.Result.JSONResult) > 0 {
		return parseLegacyJSONResult(shape.Result.JSONResult)
	}
	return nil, nil, nil
}

func parseVideoTagInfo(videoTags map[string][]string, timespans map[string]map[string][]videoTimespanV1) ([]string, []VideoOccurrence, error) {
	var tags []string
	for _, list := range videoTags {
		tags = append(tags, list...)
	}
	var occs []VideoOccurrence
	for _, tagMap := range mergeByNormalizedCategory(timespans) {
		for tag, spans := range tagMap {
			for _, s := range spans {
				occs = append(occs, VideoOccurrence{Tag: tag, Start: s.Start, End: s.End, Confidence: 1.0})
			}
		}
	}
	return tags, occs, nil
}

// mergeByNormalizedCategory folds categories that only differ by case or
// surrounding whitespace into one entry, per the remote service's
// _normalize_category behavior (§12). VideoOccurrence does not record the
// category and MergeOccurrences groups by tag name alone, so spans of the
// same tag from "Actions" and "actions" merge whether or not they are
// folded here.
func mergeByNormalizedCategory(timespans map[string]map[string][]videoTimespanV1) map[string]map[string][]videoTimespanV1 {
	merged := make(map[string]map[string][]videoTimespanV1, len(timespans))
	for category, tagMap := range timespans {
		key := normalizeCategory(category)
		if merged[key] == nil {
			merged[key] = make(map[string][]videoTimespanV1, len(tagMap))
		}
		for tag, spans := range tagMap {
			merged[key][tag] = append(merged[key][tag], spans...)
		}
	}
	return merged
}

// normalizeCategory lower-cases and trims a remote-service category label
// before it is used as a dedup key (§12).
func normalizeCategory(category string) string {
	return strings.ToLower(strings.TrimSpace(category))
}

// parseLegacyJSONResult handles the legacy shape, which may arrive as a
// JSON-encoded string that must be re-parsed (§6).
func parseLegacyJSONResult(raw json.RawMessage) ([]string, []VideoOccurrence, error) {
	var payload legacyJSONResult

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		if err := json.Unmarshal([]byte(asString), &payload); err != nil {
			return nil, nil, fmt.Errorf("re-parsing json_result string: %w", err)
		}
	} else if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, nil, fmt.Errorf("parsing json_result: %w", err)
	}

	tagSet := make(map[string]bool)
	var occs []VideoOccurrence
	for _, actionMap := range mergeLegacyByNormalizedCategory(payload.Timespans) {
		for action, spans := range actionMap {
			tagSet[action] = true
			for _, s := range spans {
				occs = append(occs, VideoOccurrence{Tag: action, Start: s.Start, End: s.End, Confidence: s.Confidence})
			}
		}
	}
	tags := make([]string, 0, len(tagSet))
	for t := range tagSet {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags, occs, nil
}

// mergeLegacyByNormalizedCategory is mergeByNormalizedCategory's counterpart
// for the legacy response shape's timespan map (§12).
func mergeLegacyByNormalizedCategory(timespans map[string]map[string][]videoTimespanV2) map[string]map[string][]videoTimespanV2 {
	merged := make(map[string]map[string][]videoTimespanV2, len(timespans))
	for category, actionMap := range timespans {
		key := normalizeCategory(category)
		if merged[key] == nil {
			merged[key] = make(map[string][]videoTimespanV2, len(actionMap))
		}
		for action, spans := range actionMap {
			merged[key][action] = append(merged[key][action], spans...)
		}
	}
	return merged
}

// MergeOccurrences merges consecutive occurrences of the same tag: two
// occurrences merge when their confidences differ by < 0.01 and the gap
// between them is <= frameInterval * 1.1 (§4.3). Stable: calling it on an
// already-merged slice returns the same slice.
func MergeOccurrences(occs []VideoOccurrence, frameInterval float64) []VideoOccurrence {
	if len(occs) == 0 {
		return nil
	}

	byTag := make(map[string][]VideoOccurrence)
	var order []string
	for _, o := range occs {
		if _, seen := byTag[o.Tag]; !seen {
			order = append(order, o.Tag)
		}
		byTag[o.Tag] = append(byTag[o.Tag], o)
	}

	maxGap := frameInterval * 1.1
	var merged []VideoOccurrence
	for _, tag := range order {
		spans := byTag[tag]
		sort.Slice(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })

		current := spans[0]
		for _, next := range spans[1:] {
			gap := next.Start - current.End
			if gap <= maxGap && absFloat(next.Confidence-current.Confidence) < 0.01 {
				if next.End > current.End {
					current.End = next.End
				}
				continue
			}
			merged = append(merged, current)
			current = next
		}
		merged = append(merged, current)
	}
	return merged
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// aiTagSuffix is appended to every video-detected tag name; idempotent if
// already present (§4.3).
const aiTagSuffix = "_AI"

func withAISuffix(tag string) string {
	if strings.HasSuffix(tag, aiTagSuffix) {
		return tag
	}
	return tag + aiTagSuffix
}

// BuildTagChanges turns detected tags into ProposedChange-shaped
// model.PlanChange values with field=tags, action=add.
func BuildTagChanges(sceneID string, tags []string, confidence float64) []model.PlanChange {
	changes := make([]model.PlanChange, 0, len(tags))
	for _, tag := range tags {
		changes = append(changes, model.PlanChange{
			SceneID:       sceneID,
			Field:         model.FieldTags,
			Action:        model.ActionAdd,
			ProposedValue: withAISuffix(tag),
			Confidence:    confidence,
			Status:        model.ChangeStatusPending,
		})
	}
	return changes
}

// BuildMarkerChanges turns merged occurrences into add-marker
// ProposedChanges, each tag suffixed with _AI, plus remove-marker changes
// for existing markers absent from the new detection (§4.3).
func BuildMarkerChanges(sceneID string, merged []VideoOccurrence, existing []model.SceneMarker, tagNames map[string]string) []model.PlanChange {
	var changes []model.PlanChange
	seen := make(map[float64]bool, len(merged))

	for _, occ := range merged {
		seen[occ.Start] = true
		changes = append(changes, model.PlanChange{
			SceneID: sceneID,
			Field:   model.FieldMarkers,
			Action:  model.ActionAdd,
			ProposedValue: map[string]any{
				"seconds":     occ.Start,
				"end_seconds": occ.End,
				"title":       withAISuffix(occ.Tag),
				"tags":        []string{withAISuffix(occ.Tag)},
			},
			Confidence: occ.Confidence,
			Status:     model.ChangeStatusPending,
		})
	}

	for _, m := range existing {
		if !strings.HasSuffix(tagNames[m.PrimaryTagID], aiTagSuffix) {
			continue // only the detector's own markers are subject to removal
		}
		if seen[m.Seconds] {
			continue
		}
		changes = append(changes, model.PlanChange{
			SceneID: sceneID,
			Field:   model.FieldMarkers,
			Action:  model.ActionRemove,
			CurrentValue: map[string]any{
				"seconds": m.Seconds,
				"title":   m.Title,
			},
			Confidence: 1.0,
			Status:     model.ChangeStatusPending,
		})
	}

	return changes
}
