package store

import (
	"fmt"
	"time"

	"consortium-core/core"
)

const currentSchemaVersion = 1

type fileSchema struct {
	Version     int                `toml:"version"`
	Consortiums []consortiumSchema `toml:"consortiums"`
}

func (s *fileSchema) applyDefaults() {
	if s.Version == 0 {
		s.Version = currentSchemaVersion
	}
}

func (s fileSchema) validateVersion() error {
	if s.Version > currentSchemaVersion {
		return fmt.Errorf("unsupported consortiums schema version %d (current %d)", s.Version, currentSchemaVersion)
	}
	return nil
}

type consortiumSchema struct {
	Name                string         `toml:"name"`
	Models              map[string]int `toml:"models"`
	SystemPrompt        string         `toml:"system_prompt,omitempty"`
	ConfidenceThreshold float64        `toml:"confidence_threshold"`
	MaxIterations       int            `toml:"max_iterations"`
	MinIterations       int            `toml:"minimum_iterations"`
	Arbiter             string         `toml:"arbiter,omitempty"`
	JudgingMethod       string         `toml:"judging_method"`
	CreatedAt           time.Time      `toml:"created_at"`
	UpdatedAt           time.Time      `toml:"updated_at"`
}

func toSchema(saved SavedConsortium) consortiumSchema {
	cfg := saved.Config
	return consortiumSchema{
		Name:                saved.Name,
		Models:              cfg.Models,
		SystemPrompt:        cfg.SystemPrompt,
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		MaxIterations:       cfg.MaxIterations,
		MinIterations:       cfg.MinIterations,
		Arbiter:             cfg.Arbiter,
		JudgingMethod:       string(cfg.JudgingMethod),
		CreatedAt:           saved.CreatedAt.UTC(),
		UpdatedAt:           saved.UpdatedAt.UTC(),
	}
}

func fromSchema(entry consortiumSchema) SavedConsortium {
	models := entry.Models
	if models == nil {
		models = map[string]int{}
	}
	method := core.JudgingMethod(entry.JudgingMethod)
	if method == "" {
		method = core.JudgingDefault
	}
	return SavedConsortium{
		Name: entry.Name,
		Config: core.ConsortiumConfig{
			Models:              models,
			SystemPrompt:        entry.SystemPrompt,
			ConfidenceThreshold: entry.ConfidenceThreshold,
			MaxIterations:       entry.MaxIterations,
			MinIterations:       entry.MinIterations,
			Arbiter:             entry.Arbiter,
			JudgingMethod:       method,
		},
		CreatedAt: entry.CreatedAt,
		UpdatedAt: entry.UpdatedAt,
	}
}
