// Package metrics provides Prometheus metrics for the relationship worker.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal tracks finished relationship runs by outcome
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tagrel",
			Subsystem: "executor",
			Name:      "runs_total",
			Help:      "Total number of relationship runs by kind, operation and outcome",
		},
		[]string{"kind", "operation", "outcome"},
	)

	// AttemptsTotal tracks individual processing attempts
	AttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tagrel",
			Subsystem: "executor",
			Name:      "attempts_total",
			Help:      "Total number of processing attempts by kind and result",
		},
		[]string{"kind", "result"},
	)

	// RetryDelay tracks the backoff slept between attempts
	RetryDelay = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "tagrel",
			Subsystem: "executor",
			Name:      "retry_delay_seconds",
			Help:      "Backoff delay before a retried attempt in seconds",
			Buckets:   []float64{1, 2, 4, 8, 16, 32, 64},
		},
	)

	// RunDuration tracks wall time of a run including retries
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tagrel",
			Subsystem: "executor",
			Name:      "run_duration_seconds",
			Help:      "Duration of relationship runs in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
		},
		[]string{"kind", "operation"},
	)

	// RewriteRecordsTotal tracks records rewritten per pass
	RewriteRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tagrel",
			Subsystem: "rewrite",
			Name:      "records_total",
			Help:      "Total number of records rewritten by pass and direction",
		},
		[]string{"pass", "direction"},
	)

	// RewriteBatchesTotal tracks committed batches per pass
	RewriteBatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tagrel",
			Subsystem: "rewrite",
			Name:      "batches_total",
			Help:      "Total number of committed rewrite batches by pass",
		},
		[]string{"pass"},
	)

	// QueueMessagesTotal tracks consumed job messages
	QueueMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tagrel",
			Subsystem: "queue",
			Name:      "messages_total",
			Help:      "Total number of consumed messages by queue and result",
		},
		[]string{"queue", "result"},
	)

	// MaintenanceRunsTotal tracks scheduled maintenance tasks
	MaintenanceRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tagrel",
			Subsystem: "maintenance",
			Name:      "runs_total",
			Help:      "Total number of maintenance task runs by task and result",
		},
		[]string{"task", "result"},
	)
)
