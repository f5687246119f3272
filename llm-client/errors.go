package llmclient

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrRateLimited marks a provider refusal that is worth retrying after a backoff.
	ErrRateLimited = errors.New("rate limited")
	// ErrUnsupportedProvider is returned when no client exists for a provider or model.
	ErrUnsupportedProvider = errors.New("unsupported LLM provider")
	// ErrEmptyCompletion is returned when a provider answered without any text.
	ErrEmptyCompletion = errors.New("no text content in response")
	// ErrMissingAPIKey is returned when a provider is needed but has no credentials.
	ErrMissingAPIKey = errors.New("missing API key")
)

// RateLimitError wraps a provider error that was classified as a rate limit.
type RateLimitError struct {
	Provider Provider
	Model    string
	Err      error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s rate limit for model %s: %v", e.Provider, e.Model, e.Err)
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrRateLimited) match any RateLimitError.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// IsRateLimited reports whether err was classified as a rate limit by a provider client.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

func newRateLimitError(provider Provider, model string, err error) error {
	return &RateLimitError{Provider: provider, Model: model, Err: err}
}

func isRateLimitStatus(status int) bool {
	return status == http.StatusTooManyRequests
}
