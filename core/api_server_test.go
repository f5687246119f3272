package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryStore is an in-memory ConsortiumStore.
type memoryStore struct {
	mu    sync.Mutex
	saved map[string]SavedConsortium
}

func newMemoryStore() *memoryStore {
	return &memoryStore{saved: make(map[string]SavedConsortium)}
}

func (m *memoryStore) Save(_ context.Context, name string, cfg ConsortiumConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved[name] = SavedConsortium{Name: name, Config: cfg}
	return nil
}

func (m *memoryStore) Get(_ context.Context, name string) (SavedConsortium, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	saved, ok := m.saved[name]
	if !ok {
		return SavedConsortium{}, fmt.Errorf("%w: %s", ErrConsortiumNotFound, name)
	}
	return saved, nil
}

func (m *memoryStore) List(_ context.Context) ([]SavedConsortium, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SavedConsortium, 0, len(m.saved))
	for _, saved := range m.saved {
		out = append(out, saved)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memoryStore) Remove(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.saved[name]; !ok {
		return fmt.Errorf("%w: %s", ErrConsortiumNotFound, name)
	}
	delete(m.saved, name)
	return nil
}

func newTestAPIServer(t *testing.T, store ConsortiumStore) (*APIServer, *scriptedInvoker) {
	t.Helper()

	invoker := newScriptedInvoker(func(model, _ string, _ int) (string, error) {
		if model == judge {
			return arbiterReply("Paris", "0.95", false), nil
		}
		return "Paris is the capital.", nil
	})
	dispatcher := NewDispatcher(invoker, WithRetryPolicy(noSleepPolicy(&recordingSleep{})))

	server := NewAPIServer(APIServerConfig{
		Dispatcher: dispatcher,
		Store:      store,
		Templates:  DefaultTemplates(),
		Defaults:   SpecDefaults{Models: []string{"alpha", "beta"}},
	})
	t.Cleanup(server.Close)
	return server, invoker
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestAPIServerSyncRun(t *testing.T) {
	t.Parallel()

	server, invoker := newTestAPIServer(t, nil)

	rec := doJSON(t, server, http.MethodPost, "/api/v1/runs", map[string]interface{}{
		"prompt":  "What is the capital of France?",
		"arbiter": judge,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result RunResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "Paris", result.Synthesis.Synthesis)
	assert.Equal(t, 1, result.Metadata.IterationCount)
	assert.Len(t, result.ModelResponsesFinalIteration, 2)
	assert.Equal(t, 1, invoker.callCount("alpha"))
	assert.Equal(t, 1, invoker.callCount("beta"))
}

func TestAPIServerRejectsBadRunRequests(t *testing.T) {
	t.Parallel()

	server, _ := newTestAPIServer(t, nil)

	rec := doJSON(t, server, http.MethodPost, "/api/v1/runs", map[string]interface{}{"arbiter": judge})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "prompt is required")

	rec = doJSON(t, server, http.MethodPost, "/api/v1/runs", map[string]interface{}{
		"prompt":         "q",
		"judging_method": "vote",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", bytes.NewBufferString("{"))
	raw := httptest.NewRecorder()
	server.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)
}

func TestAPIServerAsyncRun(t *testing.T) {
	t.Parallel()

	server, _ := newTestAPIServer(t, nil)

	rec := doJSON(t, server, http.MethodPost, "/api/v1/runs", map[string]interface{}{
		"prompt":  "q",
		"arbiter": judge,
		"async":   true,
		"timeout": "30s",
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var accepted RunAccepted
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	require.NotEmpty(t, accepted.RunID)

	var record RunRecord
	require.Eventually(t, func() bool {
		rec := doJSON(t, server, http.MethodGet, "/api/v1/runs/"+accepted.RunID, nil)
		if rec.Code != http.StatusOK {
			return false
		}
		record = RunRecord{}
		if err := json.Unmarshal(rec.Body.Bytes(), &record); err != nil {
			return false
		}
		return record.Status == RunCompleted
	}, 5*time.Second, 10*time.Millisecond)

	require.NotNil(t, record.Result)
	assert.Equal(t, accepted.RunID, record.Result.Metadata.RunID)
	assert.Equal(t, "Paris", record.Result.Synthesis.Synthesis)

	missing := doJSON(t, server, http.MethodGet, "/api/v1/runs/unknown", nil)
	assert.Equal(t, http.StatusNotFound, missing.Code)
}

func TestAPIServerConsortiumLifecycle(t *testing.T) {
	t.Parallel()

	server, invoker := newTestAPIServer(t, newMemoryStore())

	rec := doJSON(t, server, http.MethodPut, "/api/v1/consortiums/geo", map[string]interface{}{
		"models":  []string{"gamma:2"},
		"arbiter": judge,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var saved SavedConsortium
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &saved))
	assert.Equal(t, "geo", saved.Name)
	assert.Equal(t, map[string]int{"gamma": 2}, saved.Config.Models)

	rec = doJSON(t, server, http.MethodGet, "/api/v1/consortiums", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var all []SavedConsortium
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	require.Len(t, all, 1)

	rec = doJSON(t, server, http.MethodPost, "/api/v1/consortiums/geo/run", map[string]interface{}{"prompt": "q"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 2, invoker.callCount("gamma"))

	rec = doJSON(t, server, http.MethodDelete, "/api/v1/consortiums/geo", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, server, http.MethodPost, "/api/v1/consortiums/geo/run", map[string]interface{}{"prompt": "q"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Consortium with name 'geo' not found.")
}

func TestAPIServerSaveRequiresModels(t *testing.T) {
	t.Parallel()

	server, _ := newTestAPIServer(t, newMemoryStore())

	rec := doJSON(t, server, http.MethodPut, "/api/v1/consortiums/empty", map[string]interface{}{"arbiter": judge})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPIServerWithoutStore(t *testing.T) {
	t.Parallel()

	server, _ := newTestAPIServer(t, nil)

	rec := doJSON(t, server, http.MethodGet, "/api/v1/consortiums", nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestAPIServerIntrospection(t *testing.T) {
	t.Parallel()

	server, _ := newTestAPIServer(t, nil)

	rec := doJSON(t, server, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = doJSON(t, server, http.MethodGet, "/api/v1/models", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"model":"dummy"`)

	rec = doJSON(t, server, http.MethodGet, "/api/v1/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats ServerStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Zero(t, stats.ActiveRuns)

	rec = doJSON(t, server, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIServerCORS(t *testing.T) {
	t.Parallel()

	server, _ := newTestAPIServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
