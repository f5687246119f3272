package llmclient

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicClient implements LLMClient for Anthropic Claude
type AnthropicClient struct {
	model  string
	client anthropic.Client
}

// NewAnthropicClient creates a new Anthropic client
func NewAnthropicClient(apiKey string, opts ...option.RequestOption) *AnthropicClient {
	opts = append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, opts...)

	return &AnthropicClient{
		model:  "claude-sonnet-4-5-20250929", // default - actual API model ID
		client: anthropic.NewClient(opts...),
	}
}

// SetModel sets the model to use
func (c *AnthropicClient) SetModel(model string) {
	c.model = model
}

func (c *AnthropicClient) Model() string {
	return c.model
}

// Call performs a non-streaming Anthropic API call
func (c *AnthropicClient) Call(ctx context.Context, req Request) (*Completion, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(req.maxTokens()),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewTextBlock(req.UserMessage),
			),
		},
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{
				Text: req.SystemPrompt,
			},
		}
	}

	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, c.classify(err)
	}

	// Concatenate every text block; tool or thinking blocks are ignored
	var text strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("anthropic %s: %w", c.model, ErrEmptyCompletion)
	}

	return &Completion{
		Provider:     ProviderAnthropic,
		Model:        c.model,
		Text:         text.String(),
		FinishReason: string(message.StopReason),
		InputTokens:  message.Usage.InputTokens,
		OutputTokens: message.Usage.OutputTokens,
	}, nil
}

func (c *AnthropicClient) classify(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) && isRateLimitStatus(apiErr.StatusCode) {
		return newRateLimitError(ProviderAnthropic, c.model, err)
	}
	return fmt.Errorf("anthropic %s: %w", c.model, err)
}
