package core

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultConfidenceThreshold = 0.8
	DefaultMaxIterations       = 3
	DefaultMinIterations       = 1
)

// DefaultConfig returns a config with the stock thresholds and no models.
func DefaultConfig() ConsortiumConfig {
	return ConsortiumConfig{
		Models:              map[string]int{},
		ConfidenceThreshold: DefaultConfidenceThreshold,
		MaxIterations:       DefaultMaxIterations,
		MinIterations:       DefaultMinIterations,
		Arbiter:             DefaultArbiter,
		JudgingMethod:       JudgingDefault,
	}
}

// ParseModels turns "model" and "model:count" specs into a model to count map. Specs without
// a count get defaultCount; a repeated model keeps the last count given.
func ParseModels(specs []string, defaultCount int) (map[string]int, error) {
	models := make(map[string]int, len(specs))
	for _, spec := range specs {
		spec = strings.TrimSpace(spec)
		if spec == "" {
			continue
		}

		name, countText, hasCount := strings.Cut(spec, ":")
		count := defaultCount
		if hasCount {
			n, err := strconv.Atoi(strings.TrimSpace(countText))
			if err != nil {
				return nil, fmt.Errorf("%w: Invalid count for model %s: %s", ErrInvalidConfig, name, countText)
			}
			count = n
		}

		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("%w: empty model name in %q", ErrInvalidConfig, spec)
		}
		if count < 1 {
			return nil, fmt.Errorf("%w: count for model %s must be at least 1, got %d", ErrInvalidConfig, name, count)
		}
		models[name] = count
	}
	return models, nil
}

// NormalizeConfidenceThreshold accepts a fraction in [0,1] or a percentage in (1,100].
func NormalizeConfidenceThreshold(value float64) (float64, error) {
	switch {
	case value < 0:
		return 0, fmt.Errorf("%w: confidence threshold must be non-negative", ErrInvalidConfig)
	case value > 100:
		return 0, fmt.Errorf("%w: confidence threshold must be between 0.0 and 1.0 (or 0 and 100)", ErrInvalidConfig)
	case value > 1:
		return value / 100, nil
	default:
		return value, nil
	}
}

// ResolveSystemPrompt reads value as a file when it names one, otherwise returns it as is.
func ResolveSystemPrompt(value string) (string, error) {
	if value == "" {
		return "", nil
	}

	info, err := os.Stat(value)
	if err != nil || info.IsDir() {
		return value, nil
	}

	data, err := os.ReadFile(value)
	if err != nil {
		return "", fmt.Errorf("error reading system prompt file '%s': %w", value, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// WithDefaults fills the arbiter and judging method when unset. The models map is copied.
func (c ConsortiumConfig) WithDefaults() ConsortiumConfig {
	out := c
	out.Models = maps.Clone(c.Models)
	if out.Arbiter == "" {
		out.Arbiter = DefaultArbiter
	}
	if out.JudgingMethod == "" {
		out.JudgingMethod = JudgingDefault
	}
	return out
}

// Validate reports the first configuration error found.
func (c ConsortiumConfig) Validate() error {
	if len(c.Models) == 0 {
		return fmt.Errorf("%w: at least one model is required", ErrInvalidConfig)
	}
	for model, count := range c.Models {
		if strings.TrimSpace(model) == "" {
			return fmt.Errorf("%w: empty model name", ErrInvalidConfig)
		}
		if count < 1 {
			return fmt.Errorf("%w: count for model %s must be at least 1, got %d", ErrInvalidConfig, model, count)
		}
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("%w: confidence threshold %.2f outside [0,1]", ErrInvalidConfig, c.ConfidenceThreshold)
	}
	if c.MaxIterations < 1 {
		return fmt.Errorf("%w: max iterations must be at least 1, got %d", ErrInvalidConfig, c.MaxIterations)
	}
	if c.MinIterations < 1 {
		return fmt.Errorf("%w: min iterations must be at least 1, got %d", ErrInvalidConfig, c.MinIterations)
	}
	if c.MinIterations > c.MaxIterations {
		return fmt.Errorf("%w: min iterations (%d) exceeds max iterations (%d)", ErrInvalidConfig, c.MinIterations, c.MaxIterations)
	}
	if _, err := ParseJudgingMethod(string(c.JudgingMethod)); err != nil {
		return err
	}
	return nil
}

// consortiumFile is the YAML layout of a consortium definition. Models may be given as a
// map or as a list of "model:count" specs.
type consortiumFile struct {
	Models              yaml.Node `yaml:"models"`
	Count               int       `yaml:"count"`
	SystemPrompt        string    `yaml:"system_prompt"`
	ConfidenceThreshold *float64  `yaml:"confidence_threshold"`
	MaxIterations       *int      `yaml:"max_iterations"`
	MinIterations       *int      `yaml:"minimum_iterations"`
	Arbiter             string    `yaml:"arbiter"`
	JudgingMethod       string    `yaml:"judging_method"`
}

// LoadConsortiumFile reads a YAML consortium definition.
func LoadConsortiumFile(path string) (ConsortiumConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ConsortiumConfig{}, fmt.Errorf("consortium file %s does not exist", path)
		}
		return ConsortiumConfig{}, fmt.Errorf("read consortium file: %w", err)
	}
	return ParseConsortiumYAML(data)
}

// ParseConsortiumYAML decodes a YAML consortium definition and validates it.
func ParseConsortiumYAML(data []byte) (ConsortiumConfig, error) {
	var file consortiumFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return ConsortiumConfig{}, fmt.Errorf("decode consortium file: %w", err)
	}

	cfg := DefaultConfig()
	defaultCount := file.Count
	if defaultCount == 0 {
		defaultCount = 1
	}

	switch file.Models.Kind {
	case yaml.MappingNode:
		if err := file.Models.Decode(&cfg.Models); err != nil {
			return ConsortiumConfig{}, fmt.Errorf("decode consortium models: %w", err)
		}
	case yaml.SequenceNode:
		var specs []string
		if err := file.Models.Decode(&specs); err != nil {
			return ConsortiumConfig{}, fmt.Errorf("decode consortium models: %w", err)
		}
		models, err := ParseModels(specs, defaultCount)
		if err != nil {
			return ConsortiumConfig{}, err
		}
		cfg.Models = models
	}

	cfg.SystemPrompt = file.SystemPrompt
	if file.ConfidenceThreshold != nil {
		threshold, err := NormalizeConfidenceThreshold(*file.ConfidenceThreshold)
		if err != nil {
			return ConsortiumConfig{}, err
		}
		cfg.ConfidenceThreshold = threshold
	}
	if file.MaxIterations != nil {
		cfg.MaxIterations = *file.MaxIterations
	}
	if file.MinIterations != nil {
		cfg.MinIterations = *file.MinIterations
	}
	if file.Arbiter != "" {
		cfg.Arbiter = file.Arbiter
	}
	method, err := ParseJudgingMethod(file.JudgingMethod)
	if err != nil {
		return ConsortiumConfig{}, err
	}
	cfg.JudgingMethod = method

	if err := cfg.Validate(); err != nil {
		return ConsortiumConfig{}, err
	}
	return cfg, nil
}
