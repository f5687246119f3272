package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInitialPrompt(t *testing.T) {
	t.Parallel()

	t.Run("history and system instructions", func(t *testing.T) {
		composer := NewPromptComposer("Answer in French.", DefaultTemplates())
		got := composer.InitialPrompt("  Human: hi\nAssistant: hello  \n", "What is 2+2?")

		want := "<prompt>\n    <instruction>Human: hi\nAssistant: hello\n\n" +
			"[SYSTEM INSTRUCTIONS]\nAnswer in French.\n[/SYSTEM INSTRUCTIONS]\n\n" +
			"Human: What is 2+2?</instruction>\n</prompt>"
		assert.Equal(t, want, got)
	})

	t.Run("prompt only", func(t *testing.T) {
		composer := NewPromptComposer("", DefaultTemplates())
		got := composer.InitialPrompt("", "What is 2+2?")
		assert.Equal(t, "<prompt>\n    <instruction>Human: What is 2+2?</instruction>\n</prompt>", got)
	})
}

func TestRefinementPromptUsesTemplate(t *testing.T) {
	t.Parallel()

	templates := Templates{Iteration: "Q: {original_prompt}\nFB: {previous_synthesis}\nAreas:\n{refinement_areas}\nU: {user_instructions}"}
	composer := NewPromptComposer("be brief", templates)

	got := composer.RefinementPrompt("What is 2+2?", SynthesisResult{
		Synthesis:       "4",
		Confidence:      0.5,
		Analysis:        "thin",
		NeedsIteration:  true,
		RefinementAreas: []string{"show work", "cite <source>"},
	})

	want := `Q: What is 2+2?
FB: {
  "synthesis": "4",
  "confidence": 0.5,
  "analysis": "thin",
  "dissent": "",
  "needs_iteration": true,
  "refinement_areas": [
    "show work",
    "cite <source>"
  ]
}
Areas:
show work
cite <source>
U: be brief`
	assert.Equal(t, want, got)
}

func TestRefinementPromptFallback(t *testing.T) {
	t.Parallel()

	last := SynthesisResult{Synthesis: "4", Confidence: 0.5}
	wantPrefix := "Refining response for original prompt:\nWhat is 2+2?\n\nArbiter feedback from previous attempt:\n{\n  \"synthesis\": \"4\","
	wantSuffix := "\n\nPlease improve your response based on this feedback."

	for name, templates := range map[string]Templates{
		"empty template":      {},
		"unknown placeholder": {Iteration: "{original_prompt} {nonexistent}"},
	} {
		t.Run(name, func(t *testing.T) {
			got := NewPromptComposer("", templates).RefinementPrompt("What is 2+2?", last)
			assert.Contains(t, got, wantPrefix)
			assert.Contains(t, got, `"refinement_areas": []`)
			assert.Equal(t, wantSuffix, got[len(got)-len(wantSuffix):])
		})
	}
}
