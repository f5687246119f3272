package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"consortium-core/observability"
)

// RunStatus is the lifecycle state of an asynchronous run.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// DefaultRunTTL is how long finished runs stay queryable.
const DefaultRunTTL = time.Hour

// RunRecord tracks one asynchronous run.
type RunRecord struct {
	RunID       string     `json:"run_id"`
	Status      RunStatus  `json:"status"`
	Error       string     `json:"error,omitempty"`
	Result      *RunResult `json:"result,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	ExpiresAt   time.Time  `json:"expires_at"`
}

// RunRegistry keeps asynchronous runs until their TTL passes.
type RunRegistry struct {
	runs map[string]*RunRecord
	ttl  time.Duration
	now  func() time.Time
	mu   sync.RWMutex
}

// NewRunRegistry creates a registry. A non-positive ttl uses DefaultRunTTL.
func NewRunRegistry(ttl time.Duration) *RunRegistry {
	if ttl <= 0 {
		ttl = DefaultRunTTL
	}
	return &RunRegistry{
		runs: make(map[string]*RunRecord),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Create registers a pending run with a fresh id.
func (rr *RunRegistry) Create() RunRecord {
	now := rr.now()
	record := &RunRecord{
		RunID:     observability.NewRunID(),
		Status:    RunPending,
		CreatedAt: now,
		ExpiresAt: now.Add(rr.ttl),
	}

	rr.mu.Lock()
	rr.runs[record.RunID] = record
	rr.mu.Unlock()

	return *record
}

// Get returns a copy of a run's record.
func (rr *RunRegistry) Get(runID string) (RunRecord, error) {
	rr.mu.RLock()
	record, exists := rr.runs[runID]
	var snapshot RunRecord
	if exists {
		snapshot = *record
	}
	rr.mu.RUnlock()

	if !exists {
		return RunRecord{}, ErrRunNotFound
	}

	if rr.now().After(snapshot.ExpiresAt) {
		rr.Delete(runID)
		return RunRecord{}, fmt.Errorf("%w: expired", ErrRunNotFound)
	}
	return snapshot, nil
}

// MarkRunning moves a pending run to running.
func (rr *RunRegistry) MarkRunning(runID string) {
	rr.update(runID, func(r *RunRecord) {
		r.Status = RunRunning
	})
}

// Complete stores a run's result.
func (rr *RunRegistry) Complete(runID string, result *RunResult) {
	rr.update(runID, func(r *RunRecord) {
		r.Status = RunCompleted
		r.Result = result
	})
}

// Fail records why a run ended without a result.
func (rr *RunRegistry) Fail(runID string, err error) {
	rr.update(runID, func(r *RunRecord) {
		r.Status = RunFailed
		r.Error = err.Error()
	})
}

func (rr *RunRegistry) update(runID string, fn func(*RunRecord)) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	record, exists := rr.runs[runID]
	if !exists {
		return
	}
	fn(record)

	if record.Status == RunCompleted || record.Status == RunFailed {
		now := rr.now()
		record.CompletedAt = &now
		record.ExpiresAt = now.Add(rr.ttl)
	}
}

// Delete removes a run.
func (rr *RunRegistry) Delete(runID string) {
	rr.mu.Lock()
	delete(rr.runs, runID)
	rr.mu.Unlock()
}

// Counts returns the number of tracked runs and how many are still in flight.
func (rr *RunRegistry) Counts() (tracked, active int) {
	rr.mu.RLock()
	defer rr.mu.RUnlock()

	for _, record := range rr.runs {
		tracked++
		if record.Status == RunPending || record.Status == RunRunning {
			active++
		}
	}
	return tracked, active
}

// CleanupExpired removes finished runs past their expiry.
func (rr *RunRegistry) CleanupExpired() int {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	now := rr.now()
	removed := 0
	for id, record := range rr.runs {
		finished := record.Status == RunCompleted || record.Status == RunFailed
		if finished && now.After(record.ExpiresAt) {
			delete(rr.runs, id)
			removed++
		}
	}
	return removed
}

// StartCleanupRoutine removes expired runs every interval until ctx is done.
func (rr *RunRegistry) StartCleanupRoutine(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := rr.CleanupExpired(); n > 0 {
					observability.Component("RunRegistry").Debug().Int("removed", n).Msg("Expired runs removed")
				}
			}
		}
	}()
}
