package llmclient

import (
	"sort"
	"strings"
)

// ModelConfig represents a model configuration for a provider
type ModelConfig struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// Known models for each provider. Model ids outside this list are still routed by prefix.
var providerModels = map[Provider][]string{
	ProviderOpenAI: {
		"gpt-4o",
		"gpt-4o-mini",
		"gpt-4.1",
		"gpt-4-turbo",
		"o3-mini",
	},
	ProviderAnthropic: {
		"claude-sonnet-4-5-20250929",
		"claude-haiku-4-5",
		"claude-opus-4-1",
		"claude-3-opus-20240229",
		"claude-3-sonnet-20240229",
	},
	ProviderGoogle: {
		"gemini-2.5-pro",
		"gemini-2.5-flash",
		"gemini-2.0-flash",
		"gemini-1.5-pro",
	},
	ProviderCohere: {
		"command-a-03-2025",
		"command-r-plus",
		"command-r",
	},
	ProviderMistral: {
		"mistral-large-latest",
		"mistral-medium-latest",
		"mistral-small-latest",
	},
	ProviderDummy: {
		DummyModelID,
	},
}

// modelPrefixes routes model ids that are not in the catalogue.
var modelPrefixes = []struct {
	prefix   string
	provider Provider
}{
	{"gpt-", ProviderOpenAI},
	{"o1", ProviderOpenAI},
	{"o3", ProviderOpenAI},
	{"o4", ProviderOpenAI},
	{"claude", ProviderAnthropic},
	{"gemini", ProviderGoogle},
	{"command", ProviderCohere},
	{"mistral", ProviderMistral},
	{"open-mistral", ProviderMistral},
	{"codestral", ProviderMistral},
}

// ProviderForModel resolves which provider serves a model id. An explicit
// "provider/model" form wins over catalogue and prefix lookup.
func ProviderForModel(model string) (Provider, string, bool) {
	if provider, name, ok := strings.Cut(model, "/"); ok {
		p := Provider(strings.ToLower(provider))
		if _, known := providerModels[p]; known {
			return p, name, true
		}
	}

	for provider, models := range providerModels {
		for _, m := range models {
			if m == model {
				return provider, model, true
			}
		}
	}

	lower := strings.ToLower(model)
	for _, entry := range modelPrefixes {
		if strings.HasPrefix(lower, entry.prefix) {
			return entry.provider, model, true
		}
	}
	return "", model, false
}

// GetModelsForProvider returns all catalogued models for a given provider
func GetModelsForProvider(provider Provider) []string {
	if models, ok := providerModels[provider]; ok {
		return models
	}
	return []string{}
}

// ListModels returns the catalogue sorted by provider then model.
func ListModels() []ModelConfig {
	providers := make([]string, 0, len(providerModels))
	for provider := range providerModels {
		providers = append(providers, string(provider))
	}
	sort.Strings(providers)

	var out []ModelConfig
	for _, provider := range providers {
		for _, model := range providerModels[Provider(provider)] {
			out = append(out, ModelConfig{Provider: provider, Model: model})
		}
	}
	return out
}
