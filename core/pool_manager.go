package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"consortium-core/observability"
)

// WorkerStatus is the last known state of a worker instance.
type WorkerStatus string

const (
	WorkerAvailable   WorkerStatus = "available"
	WorkerBusy        WorkerStatus = "busy"
	WorkerRateLimited WorkerStatus = "rate_limited"
	WorkerFailed      WorkerStatus = "failed"
)

// WorkerState tracks one (model, instance) pair across runs.
type WorkerState struct {
	ID           string       `json:"id"`
	Model        string       `json:"model"`
	Instance     int          `json:"instance"`
	Status       WorkerStatus `json:"status"`
	InFlight     int          `json:"in_flight"`
	Calls        int          `json:"calls"`
	Failures     int          `json:"failures"`
	LastError    string       `json:"last_error,omitempty"`
	LastActivity time.Time    `json:"last_activity"`
}

// PoolManager records the worker instances the dispatcher has used and their status.
type PoolManager struct {
	mu      sync.RWMutex
	workers map[string]*WorkerState
}

// NewPoolManager creates a new pool manager instance
func NewPoolManager() *PoolManager {
	return &PoolManager{
		workers: make(map[string]*WorkerState),
	}
}

// WorkerID names a worker instance.
func WorkerID(model string, instance int) string {
	return fmt.Sprintf("%s#%d", model, instance)
}

// RegisterWorker adds a worker instance to the pool if it is not known yet.
func (pm *PoolManager) RegisterWorker(model string, instance int) string {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	return pm.registerLocked(model, instance).ID
}

func (pm *PoolManager) registerLocked(model string, instance int) *WorkerState {
	id := WorkerID(model, instance)
	worker, exists := pm.workers[id]
	if !exists {
		worker = &WorkerState{
			ID:           id,
			Model:        model,
			Instance:     instance,
			Status:       WorkerAvailable,
			LastActivity: time.Now(),
		}
		pm.workers[id] = worker
		observability.Component("PoolManager").Debug().Str("worker", id).Msg("Worker registered")
	}
	return worker
}

// BeginCall registers the worker if needed and opens one call on it.
// Runs share worker ids, so each BeginCall must be closed by RecordResult.
func (pm *PoolManager) BeginCall(model string, instance int) string {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	worker := pm.registerLocked(model, instance)
	worker.InFlight++
	worker.Status = WorkerBusy
	worker.LastActivity = time.Now()
	return worker.ID
}

// UpdateWorkerStatus updates the status of a worker
func (pm *PoolManager) UpdateWorkerStatus(workerID string, status WorkerStatus) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	worker, exists := pm.workers[workerID]
	if !exists {
		return fmt.Errorf("worker %s not found", workerID)
	}

	worker.Status = status
	worker.LastActivity = time.Now()
	return nil
}

// RecordResult closes a call on a worker. An empty errText marks success.
// The worker stays busy while other calls on it are still open.
func (pm *PoolManager) RecordResult(workerID, errText string) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	worker, exists := pm.workers[workerID]
	if !exists {
		return fmt.Errorf("worker %s not found", workerID)
	}

	if worker.InFlight > 0 {
		worker.InFlight--
	}
	worker.Calls++
	worker.LastActivity = time.Now()
	if errText == "" {
		worker.LastError = ""
	} else {
		worker.Failures++
		worker.LastError = errText
	}

	switch {
	case worker.InFlight > 0:
		worker.Status = WorkerBusy
	case errText == "":
		worker.Status = WorkerAvailable
	default:
		worker.Status = WorkerFailed
	}
	return nil
}

// GetWorkerStatus returns the current status of a worker
func (pm *PoolManager) GetWorkerStatus(workerID string) (WorkerStatus, error) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	worker, exists := pm.workers[workerID]
	if !exists {
		return "", fmt.Errorf("worker %s not found", workerID)
	}
	return worker.Status, nil
}

// GetWorkerCount returns the total number of workers and the number currently busy.
func (pm *PoolManager) GetWorkerCount() (total int, busy int) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	for _, worker := range pm.workers {
		total++
		if worker.InFlight > 0 || worker.Status == WorkerBusy || worker.Status == WorkerRateLimited {
			busy++
		}
	}
	return total, busy
}

// GetWorkersByStatus returns copies of the workers with the given status, sorted by id.
func (pm *PoolManager) GetWorkersByStatus(status WorkerStatus) []WorkerState {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	var filtered []WorkerState
	for _, worker := range pm.workers {
		if worker.Status == status {
			filtered = append(filtered, *worker)
		}
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].ID < filtered[j].ID })
	return filtered
}

// Snapshot returns copies of every worker, sorted by id.
func (pm *PoolManager) Snapshot() []WorkerState {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	out := make([]WorkerState, 0, len(pm.workers))
	for _, worker := range pm.workers {
		out = append(out, *worker)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetWorkerLoad returns the current load (busy workers / total workers)
func (pm *PoolManager) GetWorkerLoad() float64 {
	total, busy := pm.GetWorkerCount()
	if total == 0 {
		return 0
	}
	return float64(busy) / float64(total)
}

// MonitorWorkers forgets idle workers not seen within staleAfter until ctx is done.
func (pm *PoolManager) MonitorWorkers(ctx context.Context, interval, staleAfter time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pm.pruneStale(time.Now(), staleAfter)
		}
	}
}

func (pm *PoolManager) pruneStale(now time.Time, staleAfter time.Duration) int {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	removed := 0
	for id, worker := range pm.workers {
		if worker.InFlight > 0 || worker.Status == WorkerBusy || worker.Status == WorkerRateLimited {
			continue
		}
		if now.Sub(worker.LastActivity) > staleAfter {
			delete(pm.workers, id)
			removed++
			observability.Component("PoolManager").Debug().Str("worker", id).Msg("Worker removed after inactivity")
		}
	}
	return removed
}
