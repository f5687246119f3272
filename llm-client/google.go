package llmclient

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"google.golang.org/genai"
)

// GoogleClient implements LLMClient for Google Gemini
type GoogleClient struct {
	model  string
	apiKey string

	once      sync.Once
	client    *genai.Client
	clientErr error
}

// NewGoogleClient creates a new Google client. The underlying genai client is built lazily
// on the first call because its constructor needs a context.
func NewGoogleClient(apiKey string) *GoogleClient {
	return &GoogleClient{
		model:  "gemini-2.5-flash", // default - latest Flash model
		apiKey: apiKey,
	}
}

// SetModel sets the model to use
func (c *GoogleClient) SetModel(model string) {
	c.model = model
}

func (c *GoogleClient) Model() string {
	return c.model
}

func (c *GoogleClient) genaiClient(ctx context.Context) (*genai.Client, error) {
	c.once.Do(func() {
		c.client, c.clientErr = genai.NewClient(ctx, &genai.ClientConfig{
			Backend: genai.BackendGeminiAPI,
			APIKey:  c.apiKey,
		})
	})
	return c.client, c.clientErr
}

// Call performs a non-streaming Google Gemini API call
func (c *GoogleClient) Call(ctx context.Context, req Request) (*Completion, error) {
	client, err := c.genaiClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("google client: %w", err)
	}

	config := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(req.maxTokens()),
	}
	if req.SystemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}

	resp, err := client.Models.GenerateContent(ctx, c.model, genai.Text(req.UserMessage), config)
	if err != nil {
		return nil, c.classify(err)
	}

	if resp == nil || resp.Text() == "" {
		return nil, fmt.Errorf("google %s: %w", c.model, ErrEmptyCompletion)
	}

	completion := &Completion{
		Provider: ProviderGoogle,
		Model:    c.model,
		Text:     resp.Text(),
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0] != nil {
		completion.FinishReason = string(resp.Candidates[0].FinishReason)
	}
	if resp.UsageMetadata != nil {
		completion.InputTokens = int64(resp.UsageMetadata.PromptTokenCount)
		completion.OutputTokens = int64(resp.UsageMetadata.CandidatesTokenCount)
	}
	return completion, nil
}

func (c *GoogleClient) classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && (isRateLimitStatus(apiErr.Code) || apiErr.Status == "RESOURCE_EXHAUSTED") {
		return newRateLimitError(ProviderGoogle, c.model, err)
	}
	return fmt.Errorf("google %s: %w", c.model, err)
}
