package core

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Duration accepts either a Go duration string or integer nanoseconds in JSON.
type Duration time.Duration

func (d Duration) ToDuration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
		return nil
	case string:
		tmp, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		*d = Duration(tmp)
		return nil
	default:
		return fmt.Errorf("invalid duration type %T", v)
	}
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// ConsortiumSpec is the user-facing description of a consortium, shared by the CLI flags and
// the HTTP API. Zero values fall back to defaults.
type ConsortiumSpec struct {
	Models              []string `json:"models,omitempty"`
	Count               int      `json:"count,omitempty"`
	Arbiter             string   `json:"arbiter,omitempty"`
	ConfidenceThreshold *float64 `json:"confidence_threshold,omitempty"`
	MaxIterations       *int     `json:"max_iterations,omitempty"`
	MinIterations       *int     `json:"min_iterations,omitempty"`
	System              string   `json:"system,omitempty"`
	JudgingMethod       string   `json:"judging_method,omitempty"`
}

// SpecDefaults supplies the values a ConsortiumSpec leaves out.
type SpecDefaults struct {
	Models       []string
	SystemPrompt string
}

// ToConfig resolves s into a validated ConsortiumConfig.
func (s ConsortiumSpec) ToConfig(defaults SpecDefaults) (ConsortiumConfig, error) {
	count := s.Count
	if count == 0 {
		count = 1
	}

	specs := s.Models
	if len(specs) == 0 {
		specs = defaults.Models
	}
	models, err := ParseModels(specs, count)
	if err != nil {
		return ConsortiumConfig{}, err
	}

	cfg := DefaultConfig()
	cfg.Models = models
	cfg.SystemPrompt = s.System
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = defaults.SystemPrompt
	}
	if s.Arbiter != "" {
		cfg.Arbiter = s.Arbiter
	}
	if s.ConfidenceThreshold != nil {
		threshold, err := NormalizeConfidenceThreshold(*s.ConfidenceThreshold)
		if err != nil {
			return ConsortiumConfig{}, err
		}
		cfg.ConfidenceThreshold = threshold
	}
	if s.MaxIterations != nil {
		cfg.MaxIterations = *s.MaxIterations
	}
	if s.MinIterations != nil {
		cfg.MinIterations = *s.MinIterations
	}
	method, err := ParseJudgingMethod(s.JudgingMethod)
	if err != nil {
		return ConsortiumConfig{}, err
	}
	cfg.JudgingMethod = method

	if err := cfg.Validate(); err != nil {
		return ConsortiumConfig{}, err
	}
	return cfg, nil
}

// RunRequest is the body of POST /api/v1/runs and POST /api/v1/consortiums/{name}/run.
// Consortium fields are ignored when running a saved consortium.
type RunRequest struct {
	ConsortiumSpec
	Prompt  string   `json:"prompt"`
	History string   `json:"history,omitempty"`
	Async   bool     `json:"async,omitempty"`
	Timeout Duration `json:"timeout,omitempty"`
}

// RunAccepted is returned for asynchronous runs.
type RunAccepted struct {
	RunID  string    `json:"run_id"`
	Status RunStatus `json:"status"`
}

// ServerStats summarizes the API server.
type ServerStats struct {
	Uptime      string  `json:"uptime"`
	ActiveRuns  int     `json:"active_runs"`
	TrackedRuns int     `json:"tracked_runs"`
	Workers     int     `json:"workers"`
	WorkerLoad  float64 `json:"worker_load"`
}

// ConsortiumStore persists named consortiums.
type ConsortiumStore interface {
	Save(ctx context.Context, name string, cfg ConsortiumConfig) error
	Get(ctx context.Context, name string) (SavedConsortium, error)
	List(ctx context.Context) ([]SavedConsortium, error)
	Remove(ctx context.Context, name string) error
}
