package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CyclesTotal counts poll cycles by outcome
	// (completed, failed, skipped, unavailable, busy)
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_cycles_total",
			Help: "Total number of poll cycles",
		},
		[]string{"result"},
	)

	// CycleDuration tracks how long a cycle takes
	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "notifier_cycle_duration_seconds",
			Help:    "Poll cycle duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// StreamErrorsTotal counts cycle-level failures per stream
	StreamErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_stream_errors_total",
			Help: "Total number of aborted stream cycles",
		},
		[]string{"stream"},
	)

	// NotificationsTotal counts send attempts by kind and status
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_notifications_total",
			Help: "Total number of notification send attempts",
		},
		[]string{"kind", "status"},
	)

	// SendAbandonedTotal counts items given up on after repeated failures
	SendAbandonedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_send_abandoned_total",
			Help: "Total number of notifications abandoned after max attempts",
		},
		[]string{"kind"},
	)

	// ParticipantLookupErrors counts participant calls downgraded to irrelevant
	ParticipantLookupErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notifier_participant_lookup_errors_total",
			Help: "Total number of failed participant lookups",
		},
	)

	// Watermark tracks each stream's checkpoint as a Unix timestamp
	Watermark = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "notifier_watermark_timestamp_seconds",
			Help: "Stream watermark as Unix seconds",
		},
		[]string{"stream"},
	)

	// SourceAvailable is 1 when the last probe succeeded
	SourceAvailable = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "notifier_source_available",
			Help: "Whether the remote platform answered the last probe",
		},
	)

	// Unread mirrors the unread counter
	Unread = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "notifier_unread",
			Help: "Notifications delivered since the last reset",
		},
	)
)
