package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const mistralChatURL = "https://api.mistral.ai/v1/chat/completions"

// MistralClient implements LLMClient for Mistral AI
type MistralClient struct {
	model      string
	apiKey     string
	endpoint   string
	httpClient *http.Client
}

// NewMistralClient creates a new Mistral client
func NewMistralClient(apiKey string) *MistralClient {
	return &MistralClient{
		model:      "mistral-large-latest",
		apiKey:     apiKey,
		endpoint:   mistralChatURL,
		httpClient: &http.Client{},
	}
}

// SetModel sets the model to use
func (c *MistralClient) SetModel(model string) {
	c.model = model
}

func (c *MistralClient) Model() string {
	return c.model
}

// mistralMessage represents a message in Mistral API format
type mistralMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// mistralRequest represents a request to Mistral API
type mistralRequest struct {
	Model     string           `json:"model"`
	Messages  []mistralMessage `json:"messages"`
	MaxTokens int              `json:"max_tokens,omitempty"`
}

// mistralResponse represents a response from Mistral API
type mistralResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
}

// Call performs a non-streaming Mistral API call
func (c *MistralClient) Call(ctx context.Context, req Request) (*Completion, error) {
	messages := make([]mistralMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, mistralMessage{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, mistralMessage{Role: "user", Content: req.UserMessage})

	jsonData, err := json.Marshal(mistralRequest{
		Model:     c.model,
		Messages:  messages,
		MaxTokens: req.maxTokens(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		apiErr := fmt.Errorf("mistral API error: %d - %s", resp.StatusCode, string(body))
		if isRateLimitStatus(resp.StatusCode) {
			return nil, newRateLimitError(ProviderMistral, c.model, apiErr)
		}
		return nil, apiErr
	}

	var mistralResp mistralResponse
	if err := json.NewDecoder(resp.Body).Decode(&mistralResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(mistralResp.Choices) == 0 || mistralResp.Choices[0].Message.Content == "" {
		return nil, fmt.Errorf("mistral %s: %w", c.model, ErrEmptyCompletion)
	}

	choice := mistralResp.Choices[0]
	return &Completion{
		Provider:     ProviderMistral,
		Model:        c.model,
		Text:         choice.Message.Content,
		FinishReason: choice.FinishReason,
		InputTokens:  mistralResp.Usage.PromptTokens,
		OutputTokens: mistralResp.Usage.CompletionTokens,
	}, nil
}
