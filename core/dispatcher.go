package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	llmclient "consortium-core/llm-client"
	"consortium-core/observability"
)

const (
	// TestModelID is a reserved worker id answered locally with TestModelResponse.
	TestModelID       = "test-model"
	TestModelResponse = "test response"

	// RateLimitExhausted is the error text of an instance that stayed rate limited.
	RateLimitExhausted = "Rate limit exceeded after retries."

	DefaultCallTimeout = 120 * time.Second
	DefaultConcurrency = 16
)

// Invoker sends one prompt to one model.
type Invoker interface {
	Invoke(ctx context.Context, model, prompt string) (*llmclient.Completion, error)
}

// CallRecord is one worker or arbiter call as handed to a ResponseLogger.
type CallRecord struct {
	RunID        string    `json:"run_id,omitempty"`
	Label        string    `json:"label"`
	Model        string    `json:"model"`
	Text         string    `json:"text,omitempty"`
	Error        string    `json:"error,omitempty"`
	FinishReason string    `json:"finish_reason,omitempty"`
	InputTokens  int64     `json:"input_tokens,omitempty"`
	OutputTokens int64     `json:"output_tokens,omitempty"`
	Duration     float64   `json:"duration_seconds"`
	Timestamp    time.Time `json:"timestamp"`
}

// ResponseLogger persists call records. Errors it returns are logged and dropped.
type ResponseLogger interface {
	LogCall(ctx context.Context, record CallRecord) error
}

// RetryPolicy controls rate-limit retries. Attempt n (1-based) that hits a rate limit waits
// Backoff(n) before the next one; the last attempt never waits.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
	Sleep       func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy makes three attempts, waiting 2s then 4s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Backoff:     ExponentialBackoff,
		Sleep:       sleepContext,
	}
}

// ExponentialBackoff waits 2^attempt seconds.
func ExponentialBackoff(attempt int) time.Duration {
	return time.Duration(math.Pow(2, float64(attempt))) * time.Second
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type runIDKey struct{}

// ContextWithRunID tags ctx with a run id used by logs and call records.
func ContextWithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunIDFromContext returns the run id set by ContextWithRunID.
func RunIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

// Dispatcher fans a prompt out to every worker instance of a consortium.
type Dispatcher struct {
	invoker     Invoker
	logger      ResponseLogger
	pool        *PoolManager
	retry       RetryPolicy
	callTimeout time.Duration
	concurrency int
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

func WithResponseLogger(l ResponseLogger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = l }
}

func WithPoolManager(pm *PoolManager) DispatcherOption {
	return func(d *Dispatcher) { d.pool = pm }
}

func WithRetryPolicy(p RetryPolicy) DispatcherOption {
	return func(d *Dispatcher) { d.retry = p }
}

func WithCallTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) { d.callTimeout = timeout }
}

func WithConcurrency(n int) DispatcherOption {
	return func(d *Dispatcher) { d.concurrency = n }
}

// NewDispatcher creates a dispatcher calling models through invoker.
func NewDispatcher(invoker Invoker, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		invoker:     invoker,
		retry:       DefaultRetryPolicy(),
		callTimeout: DefaultCallTimeout,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.retry.MaxAttempts < 1 {
		d.retry.MaxAttempts = 1
	}
	if d.retry.Backoff == nil {
		d.retry.Backoff = ExponentialBackoff
	}
	if d.retry.Sleep == nil {
		d.retry.Sleep = sleepContext
	}
	return d
}

// Dispatch sends prompt to count instances of every model and returns one response per
// instance, in completion order. Failures are reported per instance, never as an error.
func (d *Dispatcher) Dispatch(ctx context.Context, prompt string, models map[string]int) []WorkerResponse {
	names := make([]string, 0, len(models))
	total := 0
	for model, count := range models {
		names = append(names, model)
		total += count
	}
	sort.Strings(names)

	logger := observability.WithRunID("Dispatcher", RunIDFromContext(ctx))
	logger.Debug().Int("instances", total).Msg("Dispatching prompt to workers")

	var (
		mu        sync.Mutex
		responses = make([]WorkerResponse, 0, total)
		g         errgroup.Group
	)
	if d.concurrency > 0 {
		g.SetLimit(d.concurrency)
	}

	for _, model := range names {
		for instance := 1; instance <= models[model]; instance++ {
			g.Go(func() error {
				resp := d.callWorker(ctx, model, instance, prompt)
				mu.Lock()
				responses = append(responses, resp)
				mu.Unlock()
				return nil
			})
		}
	}
	_ = g.Wait()

	return responses
}

// callWorker runs one instance through the retry loop.
func (d *Dispatcher) callWorker(ctx context.Context, model string, instance int, prompt string) WorkerResponse {
	if model == TestModelID {
		return WorkerResponse{
			Model:      model,
			Instance:   instance,
			Response:   TestModelResponse,
			Confidence: ExtractConfidence(TestModelResponse, 0.0),
		}
	}

	logger := observability.WithRunID("Dispatcher", RunIDFromContext(ctx)).With().
		Str("model", model).Int("instance", instance).Logger()

	var workerID string
	if d.pool != nil {
		workerID = d.pool.BeginCall(model, instance)
	}

	start := time.Now()
	wrapped := WrapInstruction(prompt)
	resp := WorkerResponse{Model: model, Instance: instance}

	for attempt := 1; attempt <= d.retry.MaxAttempts; attempt++ {
		completion, err := d.invokeOnce(ctx, model, wrapped)
		d.logCall(ctx, WorkerID(model, instance), model, completion, err, time.Since(start))

		if err == nil {
			resp.Response = completion.Text
			resp.Confidence = ExtractConfidence(completion.Text, 0.0)
			break
		}

		if !llmclient.IsRateLimited(err) {
			logger.Error().Err(err).Msg("Error getting response from worker")
			resp.Error = err.Error()
			break
		}

		if attempt == d.retry.MaxAttempts {
			resp.Error = RateLimitExhausted
			break
		}

		wait := d.retry.Backoff(attempt)
		logger.Warn().Dur("wait", wait).Int("attempt", attempt).Msg("Rate limit encountered, retrying")
		observability.RecordRateLimitRetry(model)
		if d.pool != nil {
			_ = d.pool.UpdateWorkerStatus(workerID, WorkerRateLimited)
		}
		if err := d.retry.Sleep(ctx, wait); err != nil {
			resp.Error = err.Error()
			break
		}
	}

	status := "success"
	if resp.Failed() {
		status = "error"
	}
	observability.RecordWorkerCall(model, status, time.Since(start))
	if d.pool != nil {
		_ = d.pool.RecordResult(workerID, resp.Error)
	}
	return resp
}

// Call performs one logged call without rate-limit retries.
func (d *Dispatcher) Call(ctx context.Context, label, model, prompt string) (*llmclient.Completion, error) {
	start := time.Now()
	completion, err := d.invokeOnce(ctx, model, prompt)
	d.logCall(ctx, label, model, completion, err, time.Since(start))
	return completion, err
}

// invokeOnce performs a single call under the per-call timeout.
func (d *Dispatcher) invokeOnce(ctx context.Context, model, prompt string) (*llmclient.Completion, error) {
	callCtx := ctx
	if d.callTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, d.callTimeout)
		defer cancel()
	}

	completion, err := d.invoker.Invoke(callCtx, model, prompt)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("call to %s timed out after %s: %w", model, d.callTimeout, err)
		}
		return nil, err
	}
	if completion == nil {
		return nil, fmt.Errorf("%s: %w", model, llmclient.ErrEmptyCompletion)
	}
	return completion, nil
}

// logCall hands one call to the response logger, swallowing its errors.
func (d *Dispatcher) logCall(ctx context.Context, label, model string, completion *llmclient.Completion, callErr error, elapsed time.Duration) {
	if d.logger == nil {
		return
	}

	record := CallRecord{
		RunID:     RunIDFromContext(ctx),
		Label:     label,
		Model:     model,
		Duration:  elapsed.Seconds(),
		Timestamp: time.Now().UTC(),
	}
	if callErr != nil {
		record.Error = callErr.Error()
	}
	if completion != nil {
		record.Text = completion.Text
		record.FinishReason = completion.FinishReason
		record.InputTokens = completion.InputTokens
		record.OutputTokens = completion.OutputTokens
	}

	if err := d.logger.LogCall(ctx, record); err != nil {
		observability.Component("Dispatcher").Warn().Err(err).Str("label", label).Msg("Failed to log response")
	}
}

// WrapInstruction wraps a prompt in the instruction envelope sent to workers.
func WrapInstruction(prompt string) string {
	return "<prompt>\n    <instruction>" + prompt + "</instruction>\n</prompt>"
}

// AssignIDs numbers responses 1..N in their current order.
func AssignIDs(responses []WorkerResponse) []WorkerResponse {
	for i := range responses {
		responses[i].ID = i + 1
	}
	return responses
}
