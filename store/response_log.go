package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"consortium-core/core"
	"consortium-core/observability"
)

var truncationIndicators = []string{"length", "max_tokens", "max_token"}

// ResponseLog appends one JSON line per model call. It is safe for concurrent use.
type ResponseLog struct {
	path string
	mu   sync.Mutex
}

var _ core.ResponseLogger = (*ResponseLog)(nil)

// NewResponseLog creates a log writing to path. The file is created on first use.
func NewResponseLog(path string) *ResponseLog {
	return &ResponseLog{path: path}
}

// LogCall appends record and warns when the provider reports a truncated reply.
func (l *ResponseLog) LogCall(ctx context.Context, record core.CallRecord) error {
	if IsTruncated(record.FinishReason) {
		observability.WithRunID("ResponseLog", record.RunID).Warn().
			Str("model", record.Model).
			Str("label", record.Label).
			Str("finish_reason", record.FinishReason).
			Msg("Response truncated")
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode response record: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), storeDirMode); err != nil {
		return fmt.Errorf("create response log directory: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, storeFileMode)
	if err != nil {
		return fmt.Errorf("open response log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write response log: %w", err)
	}
	return nil
}

// IsTruncated reports whether a finish reason means the reply was cut short.
func IsTruncated(finishReason string) bool {
	reason := strings.ToLower(finishReason)
	for _, indicator := range truncationIndicators {
		if strings.Contains(reason, indicator) {
			return true
		}
	}
	return false
}
