/**
 * @description
 * Prometheus metrics for the recurring transaction engine.
 */

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recurring_executions_total",
		Help: "Total number of execution attempts by outcome",
	}, []string{"outcome"})

	ExecutionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "recurring_execution_seconds",
		Help:    "Time taken to run one execution attempt end to end",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	})

	DueScansTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recurring_due_scans_total",
		Help: "Total number of due-scan runs",
	})

	DueScanBatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "recurring_due_scan_batch_size",
		Help:    "Number of due schedules found per scan",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	RetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recurring_retries_total",
		Help: "Total number of retried executions",
	})

	DeadLetteredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recurring_dead_lettered_total",
		Help: "Executions that exhausted the retry ceiling",
	})

	StaleClaimsReleased = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recurring_stale_claims_released_total",
		Help: "Schedule claims recovered after their holder crashed",
	})

	InFlightExecutions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "recurring_in_flight_executions",
		Help: "Executions currently running against the ledger service",
	})
)
