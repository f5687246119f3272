package llmclient

import (
	"context"
	"errors"
	"fmt"

	coheregov2 "github.com/cohere-ai/cohere-go/v2"
	"github.com/cohere-ai/cohere-go/v2/client"
	cohereoption "github.com/cohere-ai/cohere-go/v2/option"
)

// CohereClient implements LLMClient for Cohere
type CohereClient struct {
	model  string
	client *client.Client
}

// NewCohereClient creates a new Cohere client
func NewCohereClient(apiKey string) *CohereClient {
	return &CohereClient{
		model: "command-a-03-2025", // default - latest model
		client: client.NewClient(
			cohereoption.WithToken(apiKey),
		),
	}
}

// SetModel sets the model to use
func (c *CohereClient) SetModel(model string) {
	c.model = model
}

func (c *CohereClient) Model() string {
	return c.model
}

// Call performs a non-streaming Cohere API call
func (c *CohereClient) Call(ctx context.Context, req Request) (*Completion, error) {
	chatReq := &coheregov2.ChatRequest{
		Message:   req.UserMessage,
		Model:     coheregov2.String(c.model),
		MaxTokens: coheregov2.Int(req.maxTokens()),
	}
	if req.SystemPrompt != "" {
		chatReq.Preamble = coheregov2.String(req.SystemPrompt)
	}

	resp, err := c.client.Chat(ctx, chatReq)
	if err != nil {
		return nil, c.classify(err)
	}

	if resp.Text == "" {
		return nil, fmt.Errorf("cohere %s: %w", c.model, ErrEmptyCompletion)
	}

	completion := &Completion{
		Provider: ProviderCohere,
		Model:    c.model,
		Text:     resp.Text,
	}
	if resp.FinishReason != nil {
		completion.FinishReason = string(*resp.FinishReason)
	}
	return completion, nil
}

func (c *CohereClient) classify(err error) error {
	var tooMany *coheregov2.TooManyRequestsError
	if errors.As(err, &tooMany) {
		return newRateLimitError(ProviderCohere, c.model, err)
	}
	return fmt.Errorf("cohere %s: %w", c.model, err)
}
