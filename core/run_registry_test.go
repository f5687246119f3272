package core

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// manualClock is a clock tests can move forward.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestRegistry(ttl time.Duration) (*RunRegistry, *manualClock) {
	clock := &manualClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	registry := NewRunRegistry(ttl)
	registry.now = clock.Now
	return registry, clock
}

func TestRunRegistryLifecycle(t *testing.T) {
	t.Parallel()

	registry, clock := newTestRegistry(time.Minute)

	record := registry.Create()
	assert.Equal(t, RunPending, record.Status)
	assert.NotEmpty(t, record.RunID)

	registry.MarkRunning(record.RunID)
	got, err := registry.Get(record.RunID)
	require.NoError(t, err)
	assert.Equal(t, RunRunning, got.Status)

	tracked, active := registry.Counts()
	assert.Equal(t, 1, tracked)
	assert.Equal(t, 1, active)

	clock.Advance(30 * time.Second)
	result := &RunResult{OriginalPrompt: "q"}
	registry.Complete(record.RunID, result)

	got, err = registry.Get(record.RunID)
	require.NoError(t, err)
	assert.Equal(t, RunCompleted, got.Status)
	assert.Same(t, result, got.Result)
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, clock.Now(), *got.CompletedAt)
	assert.Equal(t, clock.Now().Add(time.Minute), got.ExpiresAt)

	_, active = registry.Counts()
	assert.Zero(t, active)
}

func TestRunRegistryFail(t *testing.T) {
	t.Parallel()

	registry, _ := newTestRegistry(time.Minute)

	record := registry.Create()
	registry.Fail(record.RunID, errors.New("context deadline exceeded"))

	got, err := registry.Get(record.RunID)
	require.NoError(t, err)
	assert.Equal(t, RunFailed, got.Status)
	assert.Equal(t, "context deadline exceeded", got.Error)
	assert.Nil(t, got.Result)
}

func TestRunRegistryExpiry(t *testing.T) {
	t.Parallel()

	registry, clock := newTestRegistry(time.Minute)

	first := registry.Create()
	second := registry.Create()
	registry.Complete(first.RunID, &RunResult{})

	clock.Advance(2 * time.Minute)

	assert.Equal(t, 1, registry.CleanupExpired())
	_, err := registry.Get(first.RunID)
	assert.ErrorIs(t, err, ErrRunNotFound)

	// unfinished runs survive cleanup but expire on lookup
	_, err = registry.Get(second.RunID)
	assert.ErrorIs(t, err, ErrRunNotFound)
	tracked, _ := registry.Counts()
	assert.Zero(t, tracked)
}

func TestRunRegistryUnknownRun(t *testing.T) {
	t.Parallel()

	registry, _ := newTestRegistry(0)

	_, err := registry.Get("missing")
	assert.ErrorIs(t, err, ErrRunNotFound)

	registry.Complete("missing", &RunResult{})
	tracked, _ := registry.Counts()
	assert.Zero(t, tracked)
}
