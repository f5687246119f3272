package core

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatResponses(t *testing.T) {
	t.Parallel()

	got := FormatResponses([]WorkerResponse{
		{ID: 1, Model: "gpt-4o", Instance: 1, Response: "Paris", Confidence: 0.9},
		{ID: 2, Model: "command-r", Instance: 2, Error: "quota"},
	})

	want := `<model_response>
            <id>1</id>
            <model>gpt-4o</model>
            <instance>1</instance>
            <confidence>0.9</confidence>
            <response>Paris</response>
        </model_response>
<model_response>
            <id>2</id>
            <model>command-r</model>
            <instance>2</instance>
            <confidence>0.0</confidence>
            <response>Error: quota</response>
        </model_response>`
	assert.Equal(t, want, got)
}

func TestFormatHistory(t *testing.T) {
	t.Parallel()

	assert.Equal(t, noPreviousIterations, FormatHistory(nil))

	got := FormatHistory([]IterationContext{{
		Synthesis: SynthesisResult{Synthesis: "Paris", Confidence: 0.5, RefinementAreas: []string{"sources", "history"}},
		ModelResponses: []WorkerResponse{
			{Model: "gpt-4o", Response: "Paris"},
			{Model: "command-r", Error: "quota"},
		},
	}})

	want := `<iteration>
            <iteration_number>1</iteration_number>
            <model_responses>
                <model_response>gpt-4o: Paris</model_response>
<model_response>command-r: Error</model_response>
            </model_responses>
            <synthesis>Paris</synthesis>
            <confidence>0.5</confidence>
            <refinement_areas>
                <area>sources</area>
                <area>history</area>
            </refinement_areas>
        </iteration>`
	assert.Equal(t, want, got)
}

func TestFormatFloat(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "1.0", FormatFloat(1))
	assert.Equal(t, "0.0", FormatFloat(0))
	assert.Equal(t, "0.75", FormatFloat(0.75))
	assert.Equal(t, "0.8", FormatFloat(0.8))
}

func TestArbiterSynthesize(t *testing.T) {
	t.Parallel()

	responses := roundResponses()

	t.Run("fills template and parses reply", func(t *testing.T) {
		invoker := newScriptedInvoker(func(string, string, int) (string, error) {
			return arbiterReply("Paris", "0.95", false), nil
		})
		logger := &memoryLogger{}
		arbiter := NewArbiter("judge", JudgingDefault, "be exact", DefaultTemplates(), NewDispatcher(invoker, WithResponseLogger(logger)))

		result, err := arbiter.Synthesize(context.Background(), "Capital of France?", responses, nil)
		require.NoError(t, err)
		assert.Equal(t, "Paris", result.Synthesis)
		assert.InDelta(t, 0.95, result.Confidence, 1e-9)
		assert.NotEmpty(t, result.RawArbiterResponse)

		prompt := invoker.promptsFor("judge")[0]
		assert.Contains(t, prompt, "Capital of France?")
		assert.Contains(t, prompt, "be exact")
		assert.Contains(t, prompt, "<response>Error: boom</response>")
		assert.Contains(t, prompt, noPreviousIterations)

		records := logger.snapshot()
		require.Len(t, records, 1)
		assert.Equal(t, "arbiter:judge", records[0].Label)
	})

	t.Run("uses method template", func(t *testing.T) {
		invoker := newScriptedInvoker(func(string, string, int) (string, error) {
			return "<response_id>1</response_id>", nil
		})
		templates := Templates{PickOne: "PICK {original_prompt}|{formatted_responses}|{formatted_history}|{user_instructions}"}
		arbiter := NewArbiter("judge", JudgingPickOne, "", templates, NewDispatcher(invoker))

		result, err := arbiter.Synthesize(context.Background(), "q", responses, nil)
		require.NoError(t, err)
		assert.Equal(t, "Paris is the capital.", result.Synthesis)
		assert.True(t, strings.HasPrefix(invoker.promptsFor("judge")[0], "PICK q|"))
	})

	t.Run("unparseable reply degrades", func(t *testing.T) {
		invoker := newScriptedInvoker(func(string, string, int) (string, error) {
			return "no idea", nil
		})
		arbiter := NewArbiter("judge", JudgingRank, "", DefaultTemplates(), NewDispatcher(invoker))

		result, err := arbiter.Synthesize(context.Background(), "q", responses, nil)
		require.NoError(t, err)
		assert.True(t, result.Degraded)
		assert.Equal(t, "no idea", result.Synthesis)
		assert.Equal(t, "no idea", result.RawArbiterResponse)
	})

	t.Run("call failure is unavailable", func(t *testing.T) {
		invoker := newScriptedInvoker(func(string, string, int) (string, error) {
			return "", errors.New("connection refused")
		})
		arbiter := NewArbiter("judge", JudgingDefault, "", DefaultTemplates(), NewDispatcher(invoker))

		result, err := arbiter.Synthesize(context.Background(), "q", responses, nil)
		assert.Nil(t, result)
		assert.ErrorIs(t, err, ErrSynthesisUnavailable)
	})
}
