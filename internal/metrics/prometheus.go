// Package metrics provides Prometheus exporters for application metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the weekly badge engine.
var (
	// Counters.
	ActivityEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activity_events_recorded_total",
			Help: "Activity events received, by outcome (recorded, duplicate, error)",
		},
		[]string{"result"},
	)

	AwardEvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "award_evaluations_total",
			Help: "Subject evaluations, by subject type and outcome (active, pending, error)",
		},
		[]string{"subject_type", "outcome"},
	)

	AwardsActivatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "awards_activated_total",
			Help: "Awards that transitioned to active for the first time in their window",
		},
		[]string{"subject_type"},
	)

	MetricUnavailableTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "award_metric_unavailable_total",
			Help: "Criterion measurements that failed or timed out and degraded to unmet",
		},
		[]string{"metric"},
	)

	AwardsSweptTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "awards_swept_total",
			Help: "Awards deactivated by the expiration sweeper",
		},
	)

	NotificationFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "award_notification_failures_total",
			Help: "Failed award notifications, by notifier",
		},
		[]string{"notifier"},
	)

	LockContentionTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "award_lock_contention_total",
			Help: "Evaluations that proceeded without the per-subject lease",
		},
		[]string{"reason"},
	)

	// Histograms.
	AwardEvaluationDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "award_evaluation_duration_seconds",
			Help:    "Time taken to evaluate one subject",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		},
		[]string{"subject_type"},
	)

	HTTPRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	// Scheduler metrics.
	SchedulerJobsRunTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_jobs_run_total",
			Help: "Total scheduler job executions",
		},
		[]string{"job", "status"},
	)

	SchedulerLastRunTimestamp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scheduler_last_run_timestamp",
			Help: "Unix timestamp of last scheduler run",
		},
		[]string{"job"},
	)

	SchedulerJobDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scheduler_job_duration_seconds",
			Help:    "Time taken to execute a scheduler job",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~1024s
		},
		[]string{"job"},
	)

	// Gauges.
	LastBatchSubjects = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "award_last_batch_subjects",
			Help: "Subjects processed by the last full recalculation, by result",
		},
		[]string{"result"},
	)
)

// RecordActivityEvent records the outcome of one RecordEvent call.
func RecordActivityEvent(result string) {
	ActivityEventsTotal.WithLabelValues(result).Inc()
}

// RecordEvaluation records one subject evaluation.
func RecordEvaluation(subjectType, outcome string, duration time.Duration) {
	AwardEvaluationsTotal.WithLabelValues(subjectType, outcome).Inc()
	AwardEvaluationDurationSeconds.WithLabelValues(subjectType).Observe(duration.Seconds())
}

// RecordAwardActivated records a first-time activation.
func RecordAwardActivated(subjectType string) {
	AwardsActivatedTotal.WithLabelValues(subjectType).Inc()
}

// RecordMetricUnavailable records a degraded criterion measurement.
func RecordMetricUnavailable(metric string) {
	MetricUnavailableTotal.WithLabelValues(metric).Inc()
}

// RecordSweep records deactivated awards.
func RecordSweep(deactivated int64) {
	AwardsSweptTotal.Add(float64(deactivated))
}

// RecordNotificationFailure records a failed notification.
func RecordNotificationFailure(notifier string) {
	NotificationFailuresTotal.WithLabelValues(notifier).Inc()
}

// RecordLockContention records an evaluation that ran without its lease.
func RecordLockContention(reason string) {
	LockContentionTotal.WithLabelValues(reason).Inc()
}

// ObserveHTTPRequest observes one HTTP request.
func ObserveHTTPRequest(method, route, status string, duration time.Duration) {
	HTTPRequestDurationSeconds.WithLabelValues(method, route, status).Observe(duration.Seconds())
}

// RecordSchedulerJobRun records a scheduler job execution.
func RecordSchedulerJobRun(job, status string) {
	SchedulerJobsRunTotal.WithLabelValues(job, status).Inc()
}

// SetSchedulerLastRun sets the timestamp of the last scheduler run.
func SetSchedulerLastRun(job string) {
	SchedulerLastRunTimestamp.WithLabelValues(job).SetToCurrentTime()
}

// ObserveSchedulerJobDuration observes the duration of a scheduler job.
func ObserveSchedulerJobDuration(job string, seconds float64) {
	SchedulerJobDurationSeconds.WithLabelValues(job).Observe(seconds)
}

// SetLastBatch records the result of a full recalculation.
func SetLastBatch(evaluated, awarded, failed int) {
	LastBatchSubjects.WithLabelValues("evaluated").Set(float64(evaluated))
	LastBatchSubjects.WithLabelValues("awarded").Set(float64(awarded))
	LastBatchSubjects.WithLabelValues("failed").Set(float64(failed))
}
