package jobs

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsEnqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "legalytics_jobs_enqueued_total",
			Help: "Total number of jobs enqueued",
		},
		[]string{"task_name", "priority"},
	)

	jobsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "legalytics_jobs_processed_total",
			Help: "Total number of job executions by outcome",
		},
		[]string{"task_name", "status"},
	)

	jobsRetryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "legalytics_jobs_retry_total",
			Help: "Total number of retries scheduled by workers",
		},
		[]string{"task_name"},
	)

	jobsInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "legalytics_jobs_inflight",
			Help: "Current number of jobs being executed by workers",
		},
		[]string{"priority"},
	)

	jobsQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "legalytics_jobs_queue_depth",
			Help: "Current number of jobs waiting on each priority queue",
		},
		[]string{"priority"},
	)
)

func recordJobEnqueued(job *Job) {
	if job == nil {
		return
	}
	jobsEnqueuedTotal.WithLabelValues(
		normalizeMetricLabel(job.TaskName, "unknown"),
		job.Priority.String(),
	).Inc()
}

func recordJobProcessed(taskName, outcome string) {
	jobsProcessedTotal.WithLabelValues(
		normalizeMetricLabel(taskName, "unknown"),
		normalizeMetricLabel(outcome, "unknown"),
	).Inc()
}

func recordJobRetry(taskName string) {
	jobsRetryTotal.WithLabelValues(normalizeMetricLabel(taskName, "unknown")).Inc()
}

func incrementJobInFlight(priority Priority) {
	jobsInFlight.WithLabelValues(priority.String()).Inc()
}

func decrementJobInFlight(priority Priority) {
	jobsInFlight.WithLabelValues(priority.String()).Dec()
}

func recordQueueDepth(priority Priority, depth int) {
	jobsQueueDepth.WithLabelValues(priority.String()).Set(float64(depth))
}

func normalizeMetricLabel(value, fallback string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	return trimmed
}
