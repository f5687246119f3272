package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	workerCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "consortium_worker_calls_total",
		Help: "Worker invocations by model and outcome",
	}, []string{"model", "status"})

	workerRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "consortium_worker_rate_limit_retries_total",
		Help: "Retries caused by rate limiting",
	}, []string{"model"})

	workerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "consortium_worker_latency_seconds",
		Help:    "Latency of a worker call including retries",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"model"})

	arbiterOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "consortium_arbiter_parse_total",
		Help: "Arbiter responses by judging method and parse outcome",
	}, []string{"method", "outcome"})

	runRounds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "consortium_run_rounds",
		Help:    "Rounds executed per consortium run",
		Buckets: []float64{1, 2, 3, 4, 5, 8, 10},
	})

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "consortium_runs_total",
		Help: "Consortium runs by outcome",
	}, []string{"status"})

	activeRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "consortium_active_runs",
		Help: "Consortium runs currently executing",
	})
)

// RecordWorkerCall records one worker call outcome and its latency.
func RecordWorkerCall(model, status string, elapsed time.Duration) {
	workerCalls.WithLabelValues(model, status).Inc()
	workerLatency.WithLabelValues(model).Observe(elapsed.Seconds())
}

// RecordRateLimitRetry records a backoff caused by a rate limit.
func RecordRateLimitRetry(model string) {
	workerRetries.WithLabelValues(model).Inc()
}

// RecordArbiterOutcome records whether an arbiter response parsed or degraded.
func RecordArbiterOutcome(method, outcome string) {
	arbiterOutcomes.WithLabelValues(method, outcome).Inc()
}

// RunStarted marks a run as active.
func RunStarted() {
	activeRuns.Inc()
}

// RunFinished records a finished run.
func RunFinished(status string, rounds int) {
	activeRuns.Dec()
	runsTotal.WithLabelValues(status).Inc()
	if rounds > 0 {
		runRounds.Observe(float64(rounds))
	}
}

// MetricsHandler exposes the default registry.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
