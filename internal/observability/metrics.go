package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the service.
	Registry = prometheus.NewRegistry()

	// HTTPRequests counts requests by method, path and status.
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds.
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// Diagnoses counts completed diagnostic runs by decision and path (ai/fallback).
	Diagnoses = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "autonoc_diagnoses_total", Help: "Diagnostic runs by decision and reasoning path."},
		[]string{"decision", "path"},
	)
	// Dispatches counts automatic dispatch attempts by outcome.
	Dispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "autonoc_dispatches_total", Help: "Automatic dispatch attempts by outcome."},
		[]string{"outcome"},
	)
	// SyncedTickets counts tickets upserted from the billing system.
	SyncedTickets = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "autonoc_synced_tickets_total", Help: "Tickets imported from the billing system."},
	)
	// WorkerSteps tracks pipeline step outcomes.
	WorkerSteps = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "autonoc_worker_steps_total", Help: "Worker pipeline steps by action and result."},
		[]string{"action", "result"},
	)
	// WorkerStepDuration records pipeline step durations in seconds.
	WorkerStepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "autonoc_worker_step_duration_seconds", Help: "Worker pipeline step duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"action"},
	)
)

var regOnce sync.Once

// RegisterMetrics registers all collectors on the dedicated registry.
func RegisterMetrics() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(Diagnoses)
		Registry.MustRegister(Dispatches)
		Registry.MustRegister(SyncedTickets)
		Registry.MustRegister(WorkerSteps)
		Registry.MustRegister(WorkerStepDuration)
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}
