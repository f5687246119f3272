package core

import (
	"bytes"
	"encoding/json"
	"strings"

	"consortium-core/observability"
)

// PromptComposer builds the worker prompts of each round.
type PromptComposer struct {
	systemPrompt string
	iteration    string
}

// NewPromptComposer creates a composer for a consortium's system prompt and iteration template.
func NewPromptComposer(systemPrompt string, templates Templates) *PromptComposer {
	return &PromptComposer{
		systemPrompt: systemPrompt,
		iteration:    templates.Iteration,
	}
}

// InitialPrompt builds the first-round prompt from prior conversation, system instructions
// and the user's prompt.
func (c *PromptComposer) InitialPrompt(conversationHistory, prompt string) string {
	parts := make([]string, 0, 3)
	if history := strings.TrimSpace(conversationHistory); history != "" {
		parts = append(parts, history)
	}
	if c.systemPrompt != "" {
		parts = append(parts, "[SYSTEM INSTRUCTIONS]\n"+c.systemPrompt+"\n[/SYSTEM INSTRUCTIONS]")
	}
	parts = append(parts, "Human: "+prompt)

	return WrapInstruction(strings.Join(parts, "\n\n"))
}

// previousSynthesis is the feedback shown to workers in a refinement round.
type previousSynthesis struct {
	Synthesis       string   `json:"synthesis"`
	Confidence      float64  `json:"confidence"`
	Analysis        string   `json:"analysis"`
	Dissent         string   `json:"dissent"`
	NeedsIteration  bool     `json:"needs_iteration"`
	RefinementAreas []string `json:"refinement_areas"`
}

// RefinementPrompt builds the prompt of the next round from the last synthesis.
func (c *PromptComposer) RefinementPrompt(originalPrompt string, last SynthesisResult) string {
	areas := last.RefinementAreas
	if areas == nil {
		areas = []string{}
	}
	feedback := encodeFeedback(previousSynthesis{
		Synthesis:       last.Synthesis,
		Confidence:      last.Confidence,
		Analysis:        last.Analysis,
		Dissent:         last.Dissent,
		NeedsIteration:  last.NeedsIteration,
		RefinementAreas: areas,
	})

	if strings.TrimSpace(c.iteration) != "" {
		values := map[string]string{
			"original_prompt":    originalPrompt,
			"previous_synthesis": feedback,
			"user_instructions":  c.systemPrompt,
		}
		if HasPlaceholder(c.iteration, "refinement_areas") {
			values["refinement_areas"] = strings.Join(areas, "\n")
		}

		prompt, err := FormatTemplate(c.iteration, values)
		if err == nil {
			return prompt
		}
		observability.Component("PromptComposer").Warn().Err(err).Msg("Iteration template unusable, using fallback prompt")
	}

	return "Refining response for original prompt:\n" + originalPrompt +
		"\n\nArbiter feedback from previous attempt:\n" + feedback +
		"\n\nPlease improve your response based on this feedback."
}

func encodeFeedback(v previousSynthesis) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "{}"
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
