package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseModels(t *testing.T) {
	t.Parallel()

	models, err := ParseModels([]string{"gpt-4o:2", "claude-3-opus-20240229", " gemini-2.0-flash : 3 ", ""}, 1)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{
		"gpt-4o":                 2,
		"claude-3-opus-20240229": 1,
		"gemini-2.0-flash":       3,
	}, models)

	_, err = ParseModels([]string{"gpt-4o:two"}, 1)
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "Invalid count for model gpt-4o: two")

	_, err = ParseModels([]string{"gpt-4o:0"}, 1)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = ParseModels([]string{":2"}, 1)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNormalizeConfidenceThreshold(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      float64
		want    float64
		wantErr bool
	}{
		{0.8, 0.8, false},
		{1, 1, false},
		{80, 0.8, false},
		{100, 1, false},
		{150, 0, true},
		{-0.1, 0, true},
	}
	for _, tt := range tests {
		got, err := NormalizeConfidenceThreshold(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidConfig, tt.in)
			continue
		}
		require.NoError(t, err)
		assert.InDelta(t, tt.want, got, 1e-9)
	}
}

func TestResolveSystemPrompt(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "system.txt")
	require.NoError(t, os.WriteFile(path, []byte("\n  From a file.\n"), 0o644))

	got, err := ResolveSystemPrompt(path)
	require.NoError(t, err)
	assert.Equal(t, "From a file.", got)

	got, err = ResolveSystemPrompt("Be concise.")
	require.NoError(t, err)
	assert.Equal(t, "Be concise.", got)
}

func TestParseConsortiumYAML(t *testing.T) {
	t.Parallel()

	t.Run("model map", func(t *testing.T) {
		cfg, err := ParseConsortiumYAML([]byte(`
models:
  gpt-4o: 2
  command-r: 1
confidence_threshold: 90
max_iterations: 4
minimum_iterations: 2
arbiter: claude-3-opus-20240229
judging_method: Rank
`))
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"gpt-4o": 2, "command-r": 1}, cfg.Models)
		assert.InDelta(t, 0.9, cfg.ConfidenceThreshold, 1e-9)
		assert.Equal(t, 4, cfg.MaxIterations)
		assert.Equal(t, 2, cfg.MinIterations)
		assert.Equal(t, "claude-3-opus-20240229", cfg.Arbiter)
		assert.Equal(t, JudgingRank, cfg.JudgingMethod)
	})

	t.Run("model list with default count", func(t *testing.T) {
		cfg, err := ParseConsortiumYAML([]byte(`
models: ["gpt-4o", "gemini-2.0-flash:3"]
count: 2
`))
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"gpt-4o": 2, "gemini-2.0-flash": 3}, cfg.Models)
		assert.Equal(t, DefaultArbiter, cfg.Arbiter)
		assert.Equal(t, JudgingDefault, cfg.JudgingMethod)
		assert.Equal(t, DefaultMaxIterations, cfg.MaxIterations)
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := ParseConsortiumYAML([]byte("models: {gpt-4o: 1}\njudging_method: vote\n"))
		assert.ErrorIs(t, err, ErrInvalidConfig)

		_, err = ParseConsortiumYAML([]byte("max_iterations: 2\n"))
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestLoadConsortiumFileMissing(t *testing.T) {
	t.Parallel()

	_, err := LoadConsortiumFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "does not exist")
}

func TestWithDefaultsCopiesModels(t *testing.T) {
	t.Parallel()

	cfg := ConsortiumConfig{Models: map[string]int{"gpt-4o": 1}}
	out := cfg.WithDefaults()
	out.Models["gpt-4o"] = 5

	assert.Equal(t, 1, cfg.Models["gpt-4o"])
	assert.Equal(t, DefaultArbiter, out.Arbiter)
	assert.Equal(t, JudgingDefault, out.JudgingMethod)
}
