// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Job outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

var (
	JobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_job_runs_total",
			Help: "Total number of scheduled job runs by outcome",
		},
		[]string{"job", "outcome"},
	)

	JobFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_job_failures_total",
			Help: "Total number of reported job failures by step and error category",
		},
		[]string{"job", "step", "category"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notifier_job_duration_seconds",
			Help:    "Duration of one job run in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"job"},
	)

	JobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "notifier_jobs_active",
			Help: "Number of job runs currently executing",
		},
		[]string{"job"},
	)

	HandleTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_handle_transitions_total",
			Help: "Handle records moved into a state",
		},
		[]string{"state"},
	)

	NotificationsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_notifications_enqueued_total",
			Help: "Notifications written to the outbox",
		},
		[]string{"type"},
	)

	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_notifications_sent_total",
			Help: "Notifications handed to the mail transport and marked sent",
		},
		[]string{"type"},
	)

	RatingSourceRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_rating_source_requests_total",
			Help: "Rating source lookups by classified outcome",
		},
		[]string{"outcome"},
	)

	WebhookRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_webhook_requests_total",
			Help: "Registration webhook deliveries by response status",
		},
		[]string{"status"},
	)
)
