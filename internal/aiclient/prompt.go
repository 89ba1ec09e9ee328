package aiclient

import (
	"fmt"
	"strings"

	"github.com/sjafferali/stashhog-sub000/internal/model"
)

// SceneFields is the set of scene attributes substituted into a prompt
// template (§4.4). Missing fields substitute empty strings; substitution
// must never fail.
type SceneFields struct {
	FilePath   string
	Title      string
	Details    string
	Studio     string
	Performers string
	Tags       string
	Duration   string
	Resolution string
}

// SceneFieldsFrom derives SceneFields from a mirror-DB Scene plus resolved
// name lookups, formatting duration and resolution for display.
func SceneFieldsFrom(s model.Scene, studioName string, performerNames, tagNames []string) SceneFields {
	var duration, resolution string
	if f := s.PrimaryFile(); f != nil {
		duration = fmt.Sprintf("%.0fs", f.Duration)
		resolution = fmt.Sprintf("%dx%d", f.Width, f.Height)
	}
	return SceneFields{
		FilePath:   primaryPath(s),
		Title:      s.Title,
		Details:    s.Details,
		Studio:     studioName,
		Performers: strings.Join(performerNames, ", "),
		Tags:       strings.Join(tagNames, ", "),
		Duration:   duration,
		Resolution: resolution,
	}
}

func primaryPath(s model.Scene) string {
	if f := s.PrimaryFile(); f != nil {
		return f.Path
	}
	return ""
}

var templateKeys = []string{
	"file_path", "title", "details", "studio", "performers", "tags", "duration", "resolution",
}

// RenderPrompt substitutes SceneFields into template, replacing
// "{{field_name}}" placeholders. Unknown placeholders are left as-is;
// missing field values substitute the empty string (§4.4).
func RenderPrompt(template string, fields SceneFields) string {
	values := map[string]string{
		"file_path":  fields.FilePath,
		"title":      fields.Title,
		"details":    fields.Details,
		"studio":     fields.Studio,
		"performers": fields.Performers,
		"tags":       fields.Tags,
		"duration":   fields.Duration,
		"resolution": fields.Resolution,
	}

	out := template
	for _, key := range templateKeys {
		placeholder := "{{" + key + "}}"
		out = strings.ReplaceAll(out, placeholder, values[key])
	}
	return out
}
