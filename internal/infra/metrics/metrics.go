// Package metrics provides Prometheus metrics for Quarry — counters,
// gauges, and histograms for the job ledger and the worker scheduler.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Ledger ─────────────────────────────────────────────────────────────────

// JobTransitions tracks applied lifecycle transitions by operation.
var JobTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "quarry",
	Name:      "job_transitions_total",
	Help:      "Total applied job lifecycle transitions.",
}, []string{"op"})

// LedgerRejections tracks ledger operations rejected before mutation.
var LedgerRejections = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "quarry",
	Name:      "ledger_rejections_total",
	Help:      "Total ledger operations rejected, by error class.",
}, []string{"op", "class"})

// CreditsMoved tracks credits moved through escrow by direction.
var CreditsMoved = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "quarry",
	Name:      "credits_moved_total",
	Help:      "Total credits moved, by transfer kind.",
}, []string{"kind"})

// ─── Scheduler ──────────────────────────────────────────────────────────────

// ScanCycles tracks scan cycle outcomes.
var ScanCycles = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "quarry",
	Name:      "worker_scan_cycles_total",
	Help:      "Total scheduler scan cycles, by outcome.",
}, []string{"outcome"})

// ActiveJobs tracks jobs currently claimed and in flight.
var ActiveJobs = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "quarry",
	Name:      "worker_active_jobs",
	Help:      "Jobs currently claimed and being processed by this worker.",
})

// QuarantinedJobs tracks the current quarantine set size.
var QuarantinedJobs = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "quarry",
	Name:      "worker_quarantined_jobs",
	Help:      "Job ids currently excluded from re-evaluation.",
})

// ClaimsLost tracks claim attempts that failed (race lost, ineligible).
var ClaimsLost = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "quarry",
	Name:      "worker_claims_lost_total",
	Help:      "Claim attempts that failed; routine under contention.",
})

// JobsProcessed tracks finished processing attempts by outcome.
var JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "quarry",
	Name:      "worker_jobs_processed_total",
	Help:      "Processing attempts finished, by outcome.",
}, []string{"outcome"})

// ExecuteLatency tracks work executor duration in seconds.
var ExecuteLatency = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "quarry",
	Name:      "worker_execute_latency_seconds",
	Help:      "Work executor duration in seconds.",
	Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300},
})
