package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TurnCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "companiond_turns_total",
			Help: "Total number of conversation turns by role and outcome",
		},
		[]string{"role", "outcome"},
	)

	TurnDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "companiond_turn_duration_seconds",
			Help: "End-to-end turn duration in seconds",
		},
	)

	UpstreamFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "companiond_upstream_failures_total",
			Help: "Failed calls to hosted AI services by collaborator",
		},
		[]string{"collaborator"},
	)

	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "companiond_queue_depth",
			Help: "Pending items in the message queue by priority tier",
		},
		[]string{"tier"},
	)

	QueueEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "companiond_queue_evictions_total",
			Help: "Items evicted from a full queue tier",
		},
		[]string{"tier"},
	)

	ActiveListenSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "companiond_active_listen_sessions",
			Help: "Number of active microphone listen sessions",
		},
	)

	MoodAccumulator = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "companiond_mood_accumulator",
			Help: "Current value of the mood sentiment accumulator",
		},
	)
)
