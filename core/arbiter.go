package core

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"consortium-core/observability"
)

const noPreviousIterations = "<no_previous_iterations>No previous iterations available.</no_previous_iterations>"

// Arbiter asks one model to judge a round of worker responses.
type Arbiter struct {
	model        string
	method       JudgingMethod
	systemPrompt string
	templates    Templates
	caller       *Dispatcher
}

// NewArbiter creates an arbiter that calls model through caller.
func NewArbiter(model string, method JudgingMethod, systemPrompt string, templates Templates, caller *Dispatcher) *Arbiter {
	if method == "" {
		method = JudgingDefault
	}
	return &Arbiter{
		model:        model,
		method:       method,
		systemPrompt: systemPrompt,
		templates:    templates,
		caller:       caller,
	}
}

// Synthesize judges responses and returns the parsed verdict. The error is non-nil only when
// the arbiter call fails; unparseable replies come back degraded.
func (a *Arbiter) Synthesize(ctx context.Context, originalPrompt string, responses []WorkerResponse, history []IterationContext) (*SynthesisResult, error) {
	logger := observability.WithRunID("Arbiter", RunIDFromContext(ctx)).With().
		Str("model", a.model).Str("method", string(a.method)).Logger()
	logger.Debug().Int("responses", len(responses)).Msg("Synthesizing responses")

	prompt := a.buildPrompt(originalPrompt, responses, history)

	completion, err := a.caller.Call(ctx, "arbiter:"+a.model, a.model, prompt)
	if err != nil {
		logger.Error().Err(err).Msg("Arbiter call failed")
		return nil, fmt.Errorf("%w: %v", ErrSynthesisUnavailable, err)
	}

	outcome := ParseArbiterResponse(a.method, completion.Text, responses)
	if outcome.Degraded {
		logger.Error().Str("reason", outcome.Reason).Msg("Error parsing arbiter response")
		observability.RecordArbiterOutcome(string(a.method), "degraded")
	} else {
		observability.RecordArbiterOutcome(string(a.method), "parsed")
	}

	result := outcome.Result
	result.RawArbiterResponse = completion.Text
	return &result, nil
}

func (a *Arbiter) buildPrompt(originalPrompt string, responses []WorkerResponse, history []IterationContext) string {
	values := map[string]string{
		"original_prompt":     originalPrompt,
		"formatted_responses": FormatResponses(responses),
		"formatted_history":   FormatHistory(history),
		"user_instructions":   a.systemPrompt,
	}

	prompt, err := FormatTemplate(a.templates.ArbiterTemplate(a.method), values)
	if err == nil {
		return prompt
	}

	observability.Component("Arbiter").Warn().Err(err).Msg("Arbiter template unusable, using built-in template")
	fallback := Templates{}.ArbiterTemplate(a.method)
	if prompt, err = FormatTemplate(fallback, values); err != nil {
		return fallback
	}
	return prompt
}

// FormatResponses renders a round's responses for the arbiter.
func FormatResponses(responses []WorkerResponse) string {
	formatted := make([]string, 0, len(responses))
	for _, r := range responses {
		text := r.Response
		if r.Failed() {
			text = "Error: " + r.Error
		}
		formatted = append(formatted, fmt.Sprintf(`<model_response>
            <id>%d</id>
            <model>%s</model>
            <instance>%d</instance>
            <confidence>%s</confidence>
            <response>%s</response>
        </model_response>`, r.ID, r.Model, r.Instance, FormatFloat(r.Confidence), text))
	}
	return strings.Join(formatted, "\n")
}

// FormatHistory renders earlier rounds for the arbiter.
func FormatHistory(history []IterationContext) string {
	if len(history) == 0 {
		return noPreviousIterations
	}

	blocks := make([]string, 0, len(history))
	for i, iteration := range history {
		lines := make([]string, 0, len(iteration.ModelResponses))
		for _, r := range iteration.ModelResponses {
			text := r.Response
			if r.Failed() {
				text = "Error"
			}
			lines = append(lines, fmt.Sprintf("<model_response>%s: %s</model_response>", r.Model, text))
		}

		areas := make([]string, 0, len(iteration.Synthesis.RefinementAreas))
		for _, area := range iteration.Synthesis.RefinementAreas {
			areas = append(areas, "<area>"+area+"</area>")
		}

		blocks = append(blocks, fmt.Sprintf(`<iteration>
            <iteration_number>%d</iteration_number>
            <model_responses>
                %s
            </model_responses>
            <synthesis>%s</synthesis>
            <confidence>%s</confidence>
            <refinement_areas>
                %s
            </refinement_areas>
        </iteration>`,
			i+1,
			strings.Join(lines, "\n"),
			iteration.Synthesis.Synthesis,
			FormatFloat(iteration.Synthesis.Confidence),
			strings.Join(areas, "\n                "),
		))
	}
	return strings.Join(blocks, "\n")
}

// FormatFloat prints the shortest form with at least one decimal place.
func FormatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
