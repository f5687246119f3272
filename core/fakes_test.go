package core

import (
	"context"
	"errors"
	"sync"
	"time"

	llmclient "consortium-core/llm-client"
)

// scriptedInvoker answers every call through reply and records what it was asked.
type scriptedInvoker struct {
	mu      sync.Mutex
	reply   func(model, prompt string, call int) (string, error)
	calls   map[string]int
	prompts map[string][]string
}

func newScriptedInvoker(reply func(model, prompt string, call int) (string, error)) *scriptedInvoker {
	return &scriptedInvoker{
		reply:   reply,
		calls:   make(map[string]int),
		prompts: make(map[string][]string),
	}
}

func (s *scriptedInvoker) Invoke(ctx context.Context, model, prompt string) (*llmclient.Completion, error) {
	s.mu.Lock()
	s.calls[model]++
	call := s.calls[model]
	s.prompts[model] = append(s.prompts[model], prompt)
	s.mu.Unlock()

	text, err := s.reply(model, prompt, call)
	if err != nil {
		return nil, err
	}
	return &llmclient.Completion{Model: model, Text: text, FinishReason: "stop"}, nil
}

func (s *scriptedInvoker) callCount(model string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[model]
}

func (s *scriptedInvoker) promptsFor(model string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts[model]...)
}

// recordingSleep collects requested backoffs without waiting.
type recordingSleep struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *recordingSleep) sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waits = append(r.waits, d)
	return nil
}

func (r *recordingSleep) recorded() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.waits...)
}

func noSleepPolicy(rec *recordingSleep) RetryPolicy {
	policy := DefaultRetryPolicy()
	policy.Sleep = rec.sleep
	return policy
}

// memoryLogger keeps call records in memory and can be told to fail.
type memoryLogger struct {
	mu      sync.Mutex
	records []CallRecord
	fail    bool
}

func (m *memoryLogger) LogCall(_ context.Context, record CallRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, record)
	if m.fail {
		return errors.New("disk full")
	}
	return nil
}

func (m *memoryLogger) snapshot() []CallRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CallRecord(nil), m.records...)
}

func rateLimited(model string) error {
	return &llmclient.RateLimitError{Provider: llmclient.ProviderOpenAI, Model: model, Err: errors.New("429 Too Many Requests")}
}

func arbiterReply(synthesis string, confidence string, needsIteration bool, areas ...string) string {
	needs := "false"
	if needsIteration {
		needs = "true"
	}
	block := ""
	for _, a := range areas {
		block += "<area>" + a + "</area>\n"
	}
	return "<synthesis>" + synthesis + "</synthesis>\n" +
		"<confidence>" + confidence + "</confidence>\n" +
		"<analysis>compared answers</analysis>\n" +
		"<dissent></dissent>\n" +
		"<needs_iteration>" + needs + "</needs_iteration>\n" +
		"<refinement_areas>\n" + block + "</refinement_areas>"
}
