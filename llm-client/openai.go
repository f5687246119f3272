package llmclient

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIClient implements LLMClient for OpenAI
type OpenAIClient struct {
	model  string
	client openai.Client
}

// NewOpenAIClient creates a new OpenAI client. SDK-level retries are disabled so the
// dispatcher owns the backoff policy.
func NewOpenAIClient(apiKey string, opts ...option.RequestOption) *OpenAIClient {
	opts = append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, opts...)

	return &OpenAIClient{
		model:  "gpt-4o", // default
		client: openai.NewClient(opts...),
	}
}

// SetModel sets the model to use
func (c *OpenAIClient) SetModel(model string) {
	c.model = model
}

func (c *OpenAIClient) Model() string {
	return c.model
}

// Call performs a non-streaming OpenAI API call
func (c *OpenAIClient) Call(ctx context.Context, req Request) (*Completion, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessageParamUnion{
			OfSystem: &openai.ChatCompletionSystemMessageParam{
				Content: openai.ChatCompletionSystemMessageParamContentUnion{
					OfString: openai.String(req.SystemPrompt),
				},
			},
		})
	}
	messages = append(messages, openai.ChatCompletionMessageParamUnion{
		OfUser: &openai.ChatCompletionUserMessageParam{
			Content: openai.ChatCompletionUserMessageParamContentUnion{
				OfString: openai.String(req.UserMessage),
			},
		},
	})

	resp, err := c.client.Chat.Completions.New(
		ctx,
		openai.ChatCompletionNewParams{
			Model:               c.model,
			Messages:            messages,
			MaxCompletionTokens: openai.Int(int64(req.maxTokens())),
		},
	)
	if err != nil {
		return nil, c.classify(err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai %s: %w", c.model, ErrEmptyCompletion)
	}

	choice := resp.Choices[0]
	return &Completion{
		Provider:     ProviderOpenAI,
		Model:        c.model,
		Text:         choice.Message.Content,
		FinishReason: choice.FinishReason,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

func (c *OpenAIClient) classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && isRateLimitStatus(apiErr.StatusCode) {
		return newRateLimitError(ProviderOpenAI, c.model, err)
	}
	return fmt.Errorf("openai %s: %w", c.model, err)
}
