package detectors

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanDetails_StripsHTMLPreservesLinks(t *testing.T) {
	input := `<p>Check out <a href="https://example.com/x">this scene</a></p><p>More info</p>`
	out := CleanDetails(input)
	assert.Contains(t, out, "this scene (https://example.com/x)")
	assert.NotContains(t, out, "<p>")
}

func TestCleanDetails_DecodesEntitiesAndRemovesURLsEmails(t *testing.T) {
	input := "Tom &amp; Jerry visit https://spam.example and contact a@b.com"
	out := CleanDetails(input)
	assert.Contains(t, out, "Tom & Jerry")
	assert.NotContains(t, out, "https://spam.example")
	assert.NotContains(t, out, "a@b.com")
}

func TestCleanDetails_EnsuresTerminalPunctuation(t *testing.T) {
	out := CleanDetails("no ending punctuation")
	assert.True(t, strings.HasSuffix(out, "."))
}

func TestCleanDetails_TruncatesAtSentenceBoundary(t *testing.T) {
	sentence := strings.Repeat("word ", 20) + ". "
	input := strings.Repeat(sentence, 10)
	out := CleanDetails(input)
	assert.LessOrEqual(t, len(out), MaxDetailsLength)
}

func TestCleanDetails_Idempotent(t *testing.T) {
	input := `<div>Some <b>bold</b> text &amp; more.</div>`
	once := CleanDetails(input)
	twice := CleanDetails(once)
	assert.Equal(t, once, twice)
}

func TestDetailsCleanProposal_NilWhenUnchanged(t *testing.T) {
	input := "Already clean text."
	proposal := DetailsCleanProposal(input)
	assert.Nil(t, proposal)
}

func TestDetailsCleanProposal_ProposesWhenChanged(t *testing.T) {
	proposal := DetailsCleanProposal("<p>messy</p>")
	if proposal == nil {
		t.Fatal("expected a proposal for changed text")
	}
	assert.Equal(t, "messy.", proposal.Value)
}
