// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	NotificationsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_dispatched_total",
			Help: "Total number of per-channel notification delivery attempts",
		},
		[]string{"channel", "status"},
	)

	SweepRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweep_runs_total",
			Help: "Total number of sweep job runs",
		},
		[]string{"job", "status"},
	)

	SweepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "sweep_duration_seconds",
			Help: "Duration of a sweep job run in seconds",
		},
		[]string{"job"},
	)

	SweepCandidates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweep_candidates_total",
			Help: "Number of entities that qualified for a sweep run",
		},
		[]string{"job"},
	)

	EscalationsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notifications_escalated_total",
			Help: "Total number of escalation notifications sent to admins",
		},
	)
)
