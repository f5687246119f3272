package llmclient

import (
	"context"
)

// Request is a single-turn completion request.
type Request struct {
	SystemPrompt string
	UserMessage  string
	MaxTokens    int
}

// Completion carries the text a provider returned plus the metadata kept in the response log.
type Completion struct {
	Provider     Provider `json:"provider"`
	Model        string   `json:"model"`
	Text         string   `json:"text"`
	FinishReason string   `json:"finish_reason,omitempty"`
	InputTokens  int64    `json:"input_tokens,omitempty"`
	OutputTokens int64    `json:"output_tokens,omitempty"`
}

// LLMClient defines the interface for all LLM providers
type LLMClient interface {
	// Call performs a non-streaming LLM call
	Call(ctx context.Context, req Request) (*Completion, error)

	// SetModel sets the model to use
	SetModel(model string)

	// Model returns the model the client currently targets
	Model() string
}

// Provider represents the LLM provider type
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGoogle    Provider = "google"
	ProviderCohere    Provider = "cohere"
	ProviderMistral   Provider = "mistral"
	ProviderDummy     Provider = "dummy"
)

// defaultMaxTokens applies when a Request leaves MaxTokens unset.
const defaultMaxTokens = 4096

func (r Request) maxTokens() int {
	if r.MaxTokens <= 0 {
		return defaultMaxTokens
	}
	return r.MaxTokens
}
