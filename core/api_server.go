package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	llmclient "consortium-core/llm-client"
	"consortium-core/observability"
)

// APIServerConfig wires the API server's collaborators.
type APIServerConfig struct {
	Dispatcher  *Dispatcher
	Pool        *PoolManager
	Store       ConsortiumStore
	Templates   Templates
	Defaults    SpecDefaults
	RunTTL      time.Duration
	CORSOrigins []string
}

// APIServer exposes consortium runs and saved consortiums over HTTP.
type APIServer struct {
	dispatcher *Dispatcher
	pool       *PoolManager
	store      ConsortiumStore
	templates  Templates
	defaults   SpecDefaults
	registry   *RunRegistry
	router     *mux.Router
	handler    http.Handler
	startTime  time.Time

	// background runs outlive their request and stop when the server closes
	baseCtx context.Context
	cancel  context.CancelFunc
}

// NewAPIServer creates a new API server instance
func NewAPIServer(cfg APIServerConfig) *APIServer {
	baseCtx, cancel := context.WithCancel(context.Background())

	registry := NewRunRegistry(cfg.RunTTL)
	registry.StartCleanupRoutine(baseCtx, 5*time.Minute)

	pool := cfg.Pool
	if pool == nil {
		pool = NewPoolManager()
	}

	server := &APIServer{
		dispatcher: cfg.Dispatcher,
		pool:       pool,
		store:      cfg.Store,
		templates:  cfg.Templates,
		defaults:   cfg.Defaults,
		registry:   registry,
		router:     mux.NewRouter(),
		startTime:  time.Now(),
		baseCtx:    baseCtx,
		cancel:     cancel,
	}

	server.setupRoutes()

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	server.handler = cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(server.router)

	return server
}

func (s *APIServer) setupRoutes() {
	s.router.HandleFunc("/api/v1/runs", s.handleRun).Methods("POST")
	s.router.HandleFunc("/api/v1/runs/{runId}", s.handleGetRun).Methods("GET")

	s.router.HandleFunc("/api/v1/consortiums", s.handleListConsortiums).Methods("GET")
	s.router.HandleFunc("/api/v1/consortiums/{name}", s.handleGetConsortium).Methods("GET")
	s.router.HandleFunc("/api/v1/consortiums/{name}", s.handleSaveConsortium).Methods("PUT")
	s.router.HandleFunc("/api/v1/consortiums/{name}", s.handleRemoveConsortium).Methods("DELETE")
	s.router.HandleFunc("/api/v1/consortiums/{name}/run", s.handleRunSaved).Methods("POST")

	s.router.HandleFunc("/api/v1/models", s.handleListModels).Methods("GET")
	s.router.HandleFunc("/api/v1/workers", s.handleGetWorkers).Methods("GET")
	s.router.HandleFunc("/api/v1/stats", s.handleGetStats).Methods("GET")

	s.router.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	s.router.Handle("/metrics", observability.MetricsHandler()).Methods("GET")

	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.recoveryMiddleware)
}

// ServeHTTP implements http.Handler
func (s *APIServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Close stops background runs and the cleanup routine.
func (s *APIServer) Close() {
	s.cancel()
}

func (s *APIServer) handleRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if req.Prompt == "" {
		s.sendError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	cfg, err := req.ToConfig(s.defaults)
	if err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.startRun(w, r, cfg, req)
}

func (s *APIServer) handleRunSaved(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if req.Prompt == "" {
		s.sendError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	saved, err := s.lookupConsortium(r.Context(), name)
	if err != nil {
		s.sendStoreError(w, name, err)
		return
	}

	s.startRun(w, r, saved.Config, req)
}

func (s *APIServer) startRun(w http.ResponseWriter, r *http.Request, cfg ConsortiumConfig, req RunRequest) {
	orch, err := NewOrchestrator(cfg, s.dispatcher, WithTemplates(s.templates))
	if err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.Async {
		record := s.registry.Create()
		go s.runAsync(orch, record.RunID, req)
		s.sendJSON(w, http.StatusAccepted, RunAccepted{RunID: record.RunID, Status: record.Status})
		return
	}

	ctx := r.Context()
	if timeout := req.Timeout.ToDuration(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, err := orch.Orchestrate(ctx, req.Prompt, req.History)
	if err != nil {
		s.sendError(w, http.StatusServiceUnavailable, fmt.Sprintf("Run aborted: %v", err))
		return
	}
	s.sendJSON(w, http.StatusOK, result)
}

func (s *APIServer) runAsync(orch *Orchestrator, runID string, req RunRequest) {
	ctx := s.baseCtx
	if timeout := req.Timeout.ToDuration(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	s.registry.MarkRunning(runID)
	result, err := orch.OrchestrateWithID(ctx, runID, req.Prompt, req.History)
	if err != nil {
		observability.WithRunID("APIServer", runID).Error().Err(err).Msg("Async run failed")
		s.registry.Fail(runID, err)
		return
	}
	s.registry.Complete(runID, result)
}

func (s *APIServer) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["runId"]

	record, err := s.registry.Get(runID)
	if err != nil {
		s.sendError(w, http.StatusNotFound, err.Error())
		return
	}
	s.sendJSON(w, http.StatusOK, record)
}

func (s *APIServer) handleListConsortiums(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.sendError(w, http.StatusNotImplemented, "Consortium store not configured")
		return
	}

	saved, err := s.store.List(r.Context())
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.sendJSON(w, http.StatusOK, saved)
}

func (s *APIServer) handleGetConsortium(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	saved, err := s.lookupConsortium(r.Context(), name)
	if err != nil {
		s.sendStoreError(w, name, err)
		return
	}
	s.sendJSON(w, http.StatusOK, saved)
}

func (s *APIServer) handleSaveConsortium(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if s.store == nil {
		s.sendError(w, http.StatusNotImplemented, "Consortium store not configured")
		return
	}

	var spec ConsortiumSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		s.sendError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if len(spec.Models) == 0 {
		s.sendError(w, http.StatusBadRequest, "models are required")
		return
	}

	cfg, err := spec.ToConfig(SpecDefaults{})
	if err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.Save(r.Context(), name, cfg); err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	saved, err := s.store.Get(r.Context(), name)
	if err != nil {
		s.sendStoreError(w, name, err)
		return
	}
	s.sendJSON(w, http.StatusOK, saved)
}

func (s *APIServer) handleRemoveConsortium(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if s.store == nil {
		s.sendError(w, http.StatusNotImplemented, "Consortium store not configured")
		return
	}

	if err := s.store.Remove(r.Context(), name); err != nil {
		s.sendStoreError(w, name, err)
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *APIServer) lookupConsortium(ctx context.Context, name string) (SavedConsortium, error) {
	if s.store == nil {
		return SavedConsortium{}, fmt.Errorf("%w: %s", ErrConsortiumNotFound, name)
	}
	return s.store.Get(ctx, name)
}

func (s *APIServer) sendStoreError(w http.ResponseWriter, name string, err error) {
	if errors.Is(err, ErrConsortiumNotFound) {
		s.sendError(w, http.StatusNotFound, fmt.Sprintf("Consortium with name '%s' not found.", name))
		return
	}
	s.sendError(w, http.StatusInternalServerError, err.Error())
}

func (s *APIServer) handleListModels(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, llmclient.ListModels())
}

func (s *APIServer) handleGetWorkers(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, s.pool.Snapshot())
}

func (s *APIServer) handleGetStats(w http.ResponseWriter, r *http.Request) {
	tracked, active := s.registry.Counts()
	total, _ := s.pool.GetWorkerCount()

	s.sendJSON(w, http.StatusOK, ServerStats{
		Uptime:      time.Since(s.startTime).Round(time.Second).String(),
		ActiveRuns:  active,
		TrackedRuns: tracked,
		Workers:     total,
		WorkerLoad:  s.pool.GetWorkerLoad(),
	})
}

func (s *APIServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *APIServer) sendJSON(w http.ResponseWriter, status int, data interface{}) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		observability.Component("APIServer").Error().Err(err).Msg("Error marshaling JSON response")
		s.sendError(w, http.StatusInternalServerError, "Failed to encode response")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(jsonData); err != nil {
		observability.Component("APIServer").Error().Err(err).Msg("Error writing JSON response")
	}
}

func (s *APIServer) sendError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	jsonData, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"Internal server error"}`))
		return
	}
	if _, err := w.Write(jsonData); err != nil {
		observability.Component("APIServer").Error().Err(err).Msg("Error writing error response")
	}
}

// Middleware functions
func (s *APIServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		observability.Component("APIServer").Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("Request handled")
	})
}

func (s *APIServer) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				observability.Component("APIServer").Error().Interface("panic", err).Msg("Panic recovered")
				s.sendError(w, http.StatusInternalServerError, "Internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
