package llmclient

import (
	"context"
	"fmt"
	"sync"
)

// Credentials maps each provider to the API key used for it.
type Credentials map[Provider]string

// NewLLMClient creates a new LLM client based on the provider string
func NewLLMClient(provider Provider, apiKey string) (LLMClient, error) {
	if provider != ProviderDummy && apiKey == "" {
		return nil, fmt.Errorf("%s: %w", provider, ErrMissingAPIKey)
	}

	switch provider {
	case ProviderOpenAI:
		return NewOpenAIClient(apiKey), nil
	case ProviderAnthropic:
		return NewAnthropicClient(apiKey), nil
	case ProviderGoogle:
		return NewGoogleClient(apiKey), nil
	case ProviderCohere:
		return NewCohereClient(apiKey), nil
	case ProviderMistral:
		return NewMistralClient(apiKey), nil
	case ProviderDummy:
		return NewDummyClient(), nil
	default:
		return nil, fmt.Errorf("%w: %s. Supported providers: openai, anthropic, google, cohere, mistral", ErrUnsupportedProvider, provider)
	}
}

// NewLLMClientWithModel creates a new LLM client with a specific model
func NewLLMClientWithModel(provider Provider, model, apiKey string) (LLMClient, error) {
	client, err := NewLLMClient(provider, apiKey)
	if err != nil {
		return nil, err
	}
	client.SetModel(model)
	return client, nil
}

// Router turns a bare model id into a call on the right provider client. It caches one
// client per model id and is safe for concurrent use.
type Router struct {
	credentials Credentials
	maxTokens   int

	mu      sync.Mutex
	clients map[string]LLMClient
}

// NewRouter creates a router using the given provider credentials.
func NewRouter(credentials Credentials, maxTokens int) *Router {
	if credentials == nil {
		credentials = Credentials{}
	}
	return &Router{
		credentials: credentials,
		maxTokens:   maxTokens,
		clients:     make(map[string]LLMClient),
	}
}

// Register pins a client to a model id, replacing provider resolution for it.
func (r *Router) Register(model string, client LLMClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[model] = client
}

func (r *Router) clientFor(model string) (LLMClient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if client, ok := r.clients[model]; ok {
		return client, nil
	}

	provider, name, ok := ProviderForModel(model)
	if !ok {
		return nil, fmt.Errorf("%w: no provider serves model %q", ErrUnsupportedProvider, model)
	}

	client, err := NewLLMClientWithModel(provider, name, r.credentials[provider])
	if err != nil {
		return nil, err
	}
	r.clients[model] = client
	return client, nil
}

// Invoke sends prompt to model as a single user message.
func (r *Router) Invoke(ctx context.Context, model, prompt string) (*Completion, error) {
	client, err := r.clientFor(model)
	if err != nil {
		return nil, err
	}
	return client.Call(ctx, Request{UserMessage: prompt, MaxTokens: r.maxTokens})
}
