package core

import (
	"context"
	"errors"
	"maps"
	"time"

	"consortium-core/observability"
)

const (
	FailedSynthesisText     = "Error: Failed to get synthesis."
	FailedSynthesisAnalysis = "Consortium failed."
)

// Orchestrator runs consortium rounds until the arbiter is confident enough or the round
// budget is spent. One Orchestrator may serve concurrent runs; each run keeps its own history.
type Orchestrator struct {
	cfg        ConsortiumConfig
	dispatcher *Dispatcher
	arbiter    *Arbiter
	composer   *PromptComposer
	now        func() time.Time
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*orchestratorOptions)

type orchestratorOptions struct {
	templates Templates
	now       func() time.Time
}

// WithTemplates replaces the embedded prompt templates.
func WithTemplates(t Templates) OrchestratorOption {
	return func(o *orchestratorOptions) { o.templates = t }
}

// WithClock replaces time.Now for run timestamps.
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *orchestratorOptions) { o.now = now }
}

// NewOrchestrator validates cfg and wires the round collaborators.
func NewOrchestrator(cfg ConsortiumConfig, dispatcher *Dispatcher, opts ...OrchestratorOption) (*Orchestrator, error) {
	if dispatcher == nil {
		return nil, errors.New("orchestrator requires a dispatcher")
	}

	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	options := orchestratorOptions{
		templates: DefaultTemplates(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Orchestrator{
		cfg:        cfg,
		dispatcher: dispatcher,
		arbiter:    NewArbiter(cfg.Arbiter, cfg.JudgingMethod, cfg.SystemPrompt, options.templates, dispatcher),
		composer:   NewPromptComposer(cfg.SystemPrompt, options.templates),
		now:        options.now,
	}, nil
}

// Config returns the validated configuration.
func (o *Orchestrator) Config() ConsortiumConfig {
	return o.cfg
}

// Orchestrate runs one consortium over prompt. conversationHistory is prepended to the first
// round's prompt when not empty.
func (o *Orchestrator) Orchestrate(ctx context.Context, prompt, conversationHistory string) (*RunResult, error) {
	return o.OrchestrateWithID(ctx, observability.NewRunID(), prompt, conversationHistory)
}

// OrchestrateWithID is Orchestrate with a caller-chosen run id.
func (o *Orchestrator) OrchestrateWithID(ctx context.Context, runID, prompt, conversationHistory string) (*RunResult, error) {
	ctx = ContextWithRunID(ctx, runID)
	logger := observability.WithRunID("Orchestrator", runID)

	maxIterations, minIterations := o.cfg.MaxIterations, o.cfg.MinIterations
	if !o.cfg.JudgingMethod.Iterative() {
		// pick-one and rank make a terminal choice in a single round
		maxIterations, minIterations = 1, 1
	}

	var (
		count         int
		history       []IterationContext
		lastResponses []WorkerResponse
		final         SynthesisResult
		status        = "success"
	)
	observability.RunStarted()
	defer func() { observability.RunFinished(status, count) }()

	current := o.composer.InitialPrompt(conversationHistory, prompt)

	for count < maxIterations || count < minIterations {
		if err := ctx.Err(); err != nil {
			status = "cancelled"
			return nil, err
		}

		count++
		logger.Debug().Int("iteration", count).Msg("Starting iteration")

		responses := AssignIDs(o.dispatcher.Dispatch(ctx, current, o.cfg.Models))
		lastResponses = responses

		synthesis, err := o.arbiter.Synthesize(ctx, prompt, responses, history)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				logger.Warn().Err(ctxErr).Int("iteration", count).Msg("Run cancelled during iteration")
				status = "cancelled"
				return nil, ctxErr
			}
			logger.Error().Err(err).Int("iteration", count).Msg("Synthesis unavailable, stopping")
			status = "synthesis_failed"
			if len(history) > 0 {
				final = history[len(history)-1].Synthesis
			} else {
				final = SynthesisResult{
					Synthesis:       FailedSynthesisText,
					Confidence:      0.0,
					Analysis:        FailedSynthesisAnalysis,
					RefinementAreas: []string{},
				}
			}
			break
		}

		history = append(history, IterationContext{Synthesis: *synthesis, ModelResponses: responses})
		final = *synthesis

		if synthesis.Confidence >= o.cfg.ConfidenceThreshold && count >= minIterations {
			logger.Debug().Int("iteration", count).Float64("confidence", synthesis.Confidence).Msg("Confidence threshold reached")
			break
		}

		current = o.composer.RefinementPrompt(prompt, *synthesis)
	}

	logger.Info().Int("iterations", count).Float64("confidence", final.Confidence).Msg("Consortium run finished")

	return &RunResult{
		OriginalPrompt:               prompt,
		ModelResponsesFinalIteration: lastResponses,
		Synthesis:                    final,
		Metadata: RunMetadata{
			RunID:          runID,
			ModelsUsed:     maps.Clone(o.cfg.Models),
			Arbiter:        o.cfg.Arbiter,
			JudgingMethod:  o.cfg.JudgingMethod,
			Timestamp:      o.now().UTC(),
			IterationCount: count,
		},
	}, nil
}
