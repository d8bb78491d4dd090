// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	NotificationsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_enqueued_total",
			Help: "Total number of notifications accepted for dispatch",
		},
		[]string{"queue"},
	)

	DispatchCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_completed_total",
			Help: "Total number of queue items delivered successfully",
		},
		[]string{"queue"},
	)

	DispatchFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_failed_total",
			Help: "Total number of delivery attempts that failed",
		},
		[]string{"queue", "error_code"},
	)

	DispatchRetried = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_retried_total",
			Help: "Total number of queue items released for another attempt",
		},
		[]string{"queue"},
	)

	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "dispatch_duration_seconds",
			Help: "Duration of a single delivery attempt in seconds",
		},
		[]string{"queue"},
	)

	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dispatch_queue_depth",
			Help: "Number of live (unclaimed, non-dead-letter) items per queue",
		},
		[]string{"queue"},
	)

	QueueClaims = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_queue_claims_total",
			Help: "Total number of queue items claimed by workers",
		},
		[]string{"queue"},
	)

	DeadLettered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_dead_lettered_total",
			Help: "Total number of queue items retired to the dead letter state",
		},
		[]string{"queue", "reason"},
	)
)
