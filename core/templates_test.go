package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatTemplate(t *testing.T) {
	t.Parallel()

	got, err := FormatTemplate("Hello {name}, keep {{braces}} and }} too", map[string]string{"name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "Hello Ada, keep {braces} and } too", got)

	_, err = FormatTemplate("Hello {who}", map[string]string{"name": "Ada"})
	assert.ErrorIs(t, err, ErrMissingTemplateKey)

	_, err = FormatTemplate("Hello {name", map[string]string{"name": "Ada"})
	assert.ErrorIs(t, err, ErrMissingTemplateKey)
}

func TestDefaultTemplatesAreEmbedded(t *testing.T) {
	t.Parallel()

	templates := DefaultTemplates()
	assert.NotEmpty(t, templates.SystemPrompt)

	values := map[string]string{
		"original_prompt":     "p",
		"formatted_responses": "r",
		"formatted_history":   "h",
		"user_instructions":   "u",
	}
	for _, method := range []JudgingMethod{JudgingDefault, JudgingPickOne, JudgingRank} {
		tmpl := templates.ArbiterTemplate(method)
		require.NotEmpty(t, tmpl, method)
		_, err := FormatTemplate(tmpl, values)
		assert.NoError(t, err, method)
	}

	assert.True(t, HasPlaceholder(templates.Iteration, "previous_synthesis"))
}

func TestLoadTemplatesOverridesFromDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rank_prompt.xml"), []byte("  custom rank {original_prompt}\n"), 0o644))

	templates := LoadTemplates(dir)
	defaults := DefaultTemplates()

	assert.Equal(t, "custom rank {original_prompt}", templates.Rank)
	assert.Equal(t, defaults.Arbiter, templates.Arbiter)
	assert.Equal(t, defaults.Iteration, templates.Iteration)
}

func TestLoadTemplatePack(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "pack.yaml")
	pack := "system_prompt: Be terse.\npick_one: |\n  choose from {formatted_responses}\n"
	require.NoError(t, os.WriteFile(path, []byte(pack), 0o644))

	base := DefaultTemplates()
	templates, err := LoadTemplatePack(path, base)
	require.NoError(t, err)

	assert.Equal(t, "Be terse.", templates.SystemPrompt)
	assert.Equal(t, "choose from {formatted_responses}", templates.PickOne)
	assert.Equal(t, base.Arbiter, templates.Arbiter)

	_, err = LoadTemplatePack(filepath.Join(t.TempDir(), "missing.yaml"), base)
	assert.Error(t, err)
}

func TestArbiterTemplateFallsBackWhenEmpty(t *testing.T) {
	t.Parallel()

	var empty Templates
	assert.Equal(t, minimalArbiterTemplate, empty.ArbiterTemplate(JudgingDefault))
	assert.Equal(t, minimalPickOneTemplate, empty.ArbiterTemplate(JudgingPickOne))
	assert.Equal(t, minimalRankTemplate, empty.ArbiterTemplate(JudgingRank))
}
