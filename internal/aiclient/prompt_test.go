package aiclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderPrompt_SubstitutesKnownFields(t *testing.T) {
	tmpl := "File: {{file_path}}, Title: {{title}}, Studio: {{studio}}"
	out := RenderPrompt(tmpl, SceneFields{FilePath: "/a.mp4", Title: "t", Studio: "s"})
	assert.Equal(t, "File: /a.mp4, Title: t, Studio: s", out)
}

func TestRenderPrompt_MissingFieldsSubstituteEmpty(t *testing.T) {
	tmpl := "Performers: {{performers}}, Tags: {{tags}}"
	out := RenderPrompt(tmpl, SceneFields{})
	assert.Equal(t, "Performers: , Tags: ", out)
}

func TestRenderPrompt_NeverFails(t *testing.T) {
	assert.NotPanics(t, func() {
		RenderPrompt("{{unknown_field}} {{title}}", SceneFields{Title: "x"})
	})
}
