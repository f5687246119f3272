package core

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"consortium-core/observability"
)

//go:embed templates/*
var embeddedTemplates embed.FS

// Template file names, shared by the embedded set and override directories.
const (
	systemPromptFile = "system_prompt.txt"
	arbiterFile      = "arbiter_prompt.xml"
	pickOneFile      = "pick_one_prompt.xml"
	rankFile         = "rank_prompt.xml"
	iterationFile    = "iteration_prompt.txt"
)

// Minimal templates used when neither files nor the embedded set provide one.
const (
	minimalArbiterTemplate = `<original_prompt>{original_prompt}</original_prompt>
<user_instructions>{user_instructions}</user_instructions>
<previous_iterations>{formatted_history}</previous_iterations>
<model_responses>{formatted_responses}</model_responses>
Reply with <synthesis>, <confidence>, <analysis>, <dissent>, <needs_iteration> and <refinement_areas> sections.`

	minimalPickOneTemplate = `<original_prompt>{original_prompt}</original_prompt>
<user_instructions>{user_instructions}</user_instructions>
<previous_iterations>{formatted_history}</previous_iterations>
<model_responses>{formatted_responses}</model_responses>
Reply with the id of the best response as <response_id>N</response_id>.`

	minimalRankTemplate = `<original_prompt>{original_prompt}</original_prompt>
<user_instructions>{user_instructions}</user_instructions>
<previous_iterations>{formatted_history}</previous_iterations>
<model_responses>{formatted_responses}</model_responses>
Reply with <ranking><rank position="1">N</rank>...</ranking>, best first.`
)

// Templates holds the prompt templates. Placeholders use {name}; {{ and }} are literal braces.
type Templates struct {
	SystemPrompt string `yaml:"system_prompt"`
	Arbiter      string `yaml:"arbiter"`
	PickOne      string `yaml:"pick_one"`
	Rank         string `yaml:"rank"`
	Iteration    string `yaml:"iteration"`
}

// DefaultTemplates returns the embedded template set.
func DefaultTemplates() Templates {
	read := func(name string) string {
		data, err := embeddedTemplates.ReadFile("templates/" + name)
		if err != nil {
			return ""
		}
		return strings.TrimSpace(string(data))
	}
	return Templates{
		SystemPrompt: read(systemPromptFile),
		Arbiter:      read(arbiterFile),
		PickOne:      read(pickOneFile),
		Rank:         read(rankFile),
		Iteration:    read(iterationFile),
	}
}

// LoadTemplates overlays files found in dir on the embedded set. Unreadable or missing
// files keep the embedded template.
func LoadTemplates(dir string) Templates {
	templates := DefaultTemplates()
	if dir == "" {
		return templates
	}

	logger := observability.Component("Templates")
	overlay := func(target *string, name string) {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				logger.Error().Err(err).Str("file", name).Msg("Error reading template file, using default")
			}
			return
		}
		*target = strings.TrimSpace(string(data))
	}

	overlay(&templates.SystemPrompt, systemPromptFile)
	overlay(&templates.Arbiter, arbiterFile)
	overlay(&templates.PickOne, pickOneFile)
	overlay(&templates.Rank, rankFile)
	overlay(&templates.Iteration, iterationFile)
	return templates
}

// LoadTemplatePack overlays a YAML template pack on base. Keys absent from the pack keep
// the base template.
func LoadTemplatePack(path string, base Templates) (Templates, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read template pack: %w", err)
	}

	var pack Templates
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return base, fmt.Errorf("decode template pack: %w", err)
	}

	merge := func(target *string, value string) {
		if strings.TrimSpace(value) != "" {
			*target = strings.TrimSpace(value)
		}
	}
	merge(&base.SystemPrompt, pack.SystemPrompt)
	merge(&base.Arbiter, pack.Arbiter)
	merge(&base.PickOne, pack.PickOne)
	merge(&base.Rank, pack.Rank)
	merge(&base.Iteration, pack.Iteration)
	return base, nil
}

// ArbiterTemplate returns the arbiter template for a judging method.
func (t Templates) ArbiterTemplate(method JudgingMethod) string {
	switch method {
	case JudgingPickOne:
		return firstNonEmpty(t.PickOne, minimalPickOneTemplate)
	case JudgingRank:
		return firstNonEmpty(t.Rank, minimalRankTemplate)
	default:
		return firstNonEmpty(t.Arbiter, minimalArbiterTemplate)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// FormatTemplate substitutes {name} placeholders from values.
func FormatTemplate(tmpl string, values map[string]string) (string, error) {
	var out strings.Builder
	out.Grow(len(tmpl))

	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		switch c {
		case '{':
			if i+1 < len(tmpl) && tmpl[i+1] == '{' {
				out.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(tmpl[i+1:], '}')
			if end < 0 {
				return "", fmt.Errorf("%w: unclosed placeholder at offset %d", ErrMissingTemplateKey, i)
			}
			key := tmpl[i+1 : i+1+end]
			value, ok := values[key]
			if !ok {
				return "", fmt.Errorf("%w: %q", ErrMissingTemplateKey, key)
			}
			out.WriteString(value)
			i += end + 1
		case '}':
			if i+1 < len(tmpl) && tmpl[i+1] == '}' {
				i++
			}
			out.WriteByte('}')
		default:
			out.WriteByte(c)
		}
	}
	return out.String(), nil
}

// HasPlaceholder reports whether tmpl references {name}.
func HasPlaceholder(tmpl, name string) bool {
	return strings.Contains(tmpl, "{"+name+"}")
}
