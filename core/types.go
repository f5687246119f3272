package core

import (
	"fmt"
	"strings"
	"time"
)

// JudgingMethod selects how the arbiter's reply is interpreted.
type JudgingMethod string

const (
	JudgingDefault JudgingMethod = "default"  // merge and summarize
	JudgingPickOne JudgingMethod = "pick-one" // select one response verbatim
	JudgingRank    JudgingMethod = "rank"     // rank responses, keep the top one
)

// ParseJudgingMethod accepts a judging method name case-insensitively. Empty means default.
func ParseJudgingMethod(s string) (JudgingMethod, error) {
	switch JudgingMethod(strings.ToLower(strings.TrimSpace(s))) {
	case "", JudgingDefault:
		return JudgingDefault, nil
	case JudgingPickOne:
		return JudgingPickOne, nil
	case JudgingRank:
		return JudgingRank, nil
	default:
		return "", fmt.Errorf("%w: unknown judging method %q (want default, pick-one or rank)", ErrInvalidConfig, s)
	}
}

// Iterative reports whether the method can run refinement rounds.
func (m JudgingMethod) Iterative() bool {
	return m == JudgingDefault || m == ""
}

// DefaultArbiter is used when a config names no arbiter.
const DefaultArbiter = "gemini-2.0-flash"

// ConsortiumConfig describes one consortium. It is not modified once a run starts.
type ConsortiumConfig struct {
	Models              map[string]int `json:"models" yaml:"models"`
	SystemPrompt        string         `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`
	ConfidenceThreshold float64        `json:"confidence_threshold" yaml:"confidence_threshold"`
	MaxIterations       int            `json:"max_iterations" yaml:"max_iterations"`
	MinIterations       int            `json:"minimum_iterations" yaml:"minimum_iterations"`
	Arbiter             string         `json:"arbiter,omitempty" yaml:"arbiter,omitempty"`
	JudgingMethod       JudgingMethod  `json:"judging_method" yaml:"judging_method"`
}

// WorkerResponse is one worker instance's answer for a round. Exactly one of Response and
// Error is set.
type WorkerResponse struct {
	ID         int     `json:"id"`
	Model      string  `json:"model"`
	Instance   int     `json:"instance"`
	Response   string  `json:"response,omitempty"`
	Error      string  `json:"error,omitempty"`
	Confidence float64 `json:"confidence"`
}

// Failed reports whether the instance produced no text.
func (r WorkerResponse) Failed() bool {
	return r.Error != ""
}

// SynthesisResult is the arbiter's verdict for one round.
type SynthesisResult struct {
	Synthesis          string   `json:"synthesis"`
	Confidence         float64  `json:"confidence"`
	Analysis           string   `json:"analysis"`
	Dissent            string   `json:"dissent"`
	NeedsIteration     bool     `json:"needs_iteration"`
	RefinementAreas    []string `json:"refinement_areas"`
	RawArbiterResponse string   `json:"raw_arbiter_response"`
	ChosenID           *int     `json:"chosen_id,omitempty"`
	Ranking            []int    `json:"ranking,omitempty"`
	Degraded           bool     `json:"degraded"`
}

// ParseOutcome is either a parsed result or a degraded fallback that carries the reason the
// structured parse was abandoned.
type ParseOutcome struct {
	Result   SynthesisResult
	Degraded bool
	Reason   string
}

// IterationContext pairs one round's synthesis with the responses it was built from.
type IterationContext struct {
	Synthesis      SynthesisResult  `json:"synthesis"`
	ModelResponses []WorkerResponse `json:"model_responses"`
}

// RunMetadata describes a finished run.
type RunMetadata struct {
	RunID          string         `json:"run_id"`
	ModelsUsed     map[string]int `json:"models_used"`
	Arbiter        string         `json:"arbiter"`
	JudgingMethod  JudgingMethod  `json:"judging_method"`
	Timestamp      time.Time      `json:"timestamp"`
	IterationCount int            `json:"iteration_count"`
}

// RunResult is the output of one orchestration.
type RunResult struct {
	OriginalPrompt               string           `json:"original_prompt"`
	ModelResponsesFinalIteration []WorkerResponse `json:"model_responses_final_iteration"`
	Synthesis                    SynthesisResult  `json:"synthesis"`
	Metadata                     RunMetadata      `json:"metadata"`
}

// SavedConsortium is a named consortium configuration.
type SavedConsortium struct {
	Name      string           `json:"name"`
	Config    ConsortiumConfig `json:"config"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}
