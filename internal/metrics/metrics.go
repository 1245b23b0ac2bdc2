// Package metrics provides Prometheus metrics for discovery and sync workers.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Worker phases.
const (
	PhasePlan = "plan"
	PhaseSync = "sync"
)

// Outcomes.
const (
	OutcomeError      = "error"
	OutcomeNotInDepot = "not_in_depot"
	OutcomeSuccess    = "success"
	OutcomeSynced     = "synced"
	OutcomeToSync     = "to_sync"
)

const shutdownTimeout = 5 * time.Second

//nolint:gochecknoglobals // Prometheus collectors are registered once per process
var (
	// Worker metrics
	workersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "depotsync_workers_total",
			Help: "Workers finished, by phase and outcome",
		},
		[]string{"phase", "outcome"},
	)

	workersActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "depotsync_workers_active",
			Help: "Workers currently running, by phase",
		},
		[]string{"phase"},
	)

	workerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "depotsync_worker_duration_seconds",
			Help:    "Worker run time in seconds, by phase",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"phase"},
	)

	// Discovery metrics
	candidatesFound = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "depotsync_candidates_found_total",
			Help: "Files reported out of date by dry runs",
		},
	)

	staleEvents = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "depotsync_stale_events_dropped_total",
			Help: "Events from a replaced generation that were dropped",
		},
	)

	// Sync metrics
	filesSynced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "depotsync_files_synced_total",
			Help: "Files synced, by outcome",
		},
		[]string{"outcome"},
	)

	bytesSynced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "depotsync_bytes_synced_total",
			Help: "Bytes of successfully synced files",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: shutdownTimeout}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		_ = server.Shutdown(shutdownCtx) //nolint:contextcheck // Shutdown outlives the cancelled ctx
	}()

	err := server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve metrics on %s: %w", addr, err)
	}

	return nil
}

// WorkerStarted marks a worker as running and returns a func that records its end.
func WorkerStarted(phase string) func(outcome string) {
	start := time.Now()

	workersActive.WithLabelValues(phase).Inc()

	return func(outcome string) {
		workersActive.WithLabelValues(phase).Dec()
		workerDuration.WithLabelValues(phase).Observe(time.Since(start).Seconds())
		workersTotal.WithLabelValues(phase, outcome).Inc()
	}
}

// RecordCandidates counts files reported by one dry run.
func RecordCandidates(count int) {
	candidatesFound.Add(float64(count))
}

// RecordStaleEvent counts a dropped stale event.
func RecordStaleEvent() {
	staleEvents.Inc()
}

// RecordFileSync records one file sync.
func RecordFileSync(bytes int64, success bool) {
	if !success {
		filesSynced.WithLabelValues(OutcomeError).Inc()
		return
	}

	filesSynced.WithLabelValues(OutcomeSuccess).Inc()
	bytesSynced.Add(float64(bytes))
}
