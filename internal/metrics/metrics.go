package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Evaluation pipeline metrics
	EvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swapfolio_signal_evaluations_total",
			Help: "Total number of signal evaluations",
		},
		[]string{"signal_type", "status"}, // risk/liquidity, ok/degraded/unavailable
	)

	SignalsDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swapfolio_signals_detected_total",
			Help: "Total number of evaluations that produced a signal",
		},
		[]string{"signal_type", "severity"},
	)

	SignalsSuppressed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swapfolio_signals_suppressed_total",
			Help: "Total number of signals suppressed before escalation",
		},
		[]string{"stage"}, // duplicate, cooldown
	)

	// Escalation metrics
	EscalationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swapfolio_escalations_total",
			Help: "Total number of escalation decisions",
		},
		[]string{"rule"}, // first_alert, level_jump, confidence_jump, drop_worsened, none
	)

	// Notification metrics
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swapfolio_notifications_sent_total",
			Help: "Total number of notification delivery outcomes",
		},
		[]string{"status"}, // sent, rejected, failed
	)

	NotificationsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swapfolio_notifications_rejected_total",
			Help: "Total number of notifications rejected by subscription gates",
		},
		[]string{"reason"}, // disabled, impact_filter, confidence_floor, quiet_hours, channel_cooldown, no_subscription
	)

	DeliveryRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "swapfolio_delivery_retries_total",
			Help: "Total number of delivery attempts beyond the first",
		},
	)

	DeliveryRateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "swapfolio_delivery_rate_limited_total",
			Help: "Total number of rate-limit waits honored during delivery",
		},
	)

	// Result cache metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swapfolio_result_cache_hits_total",
			Help: "Total number of result cache hits",
		},
		[]string{"backend"}, // redis, memory
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swapfolio_result_cache_misses_total",
			Help: "Total number of result cache misses",
		},
		[]string{"backend"},
	)

	// Upstream metrics
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swapfolio_upstream_requests_total",
			Help: "Total number of upstream adapter requests",
		},
		[]string{"upstream", "status"}, // security/liquidity, success/error/no_data/breaker_open
	)

	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "swapfolio_upstream_request_duration_seconds",
			Help:    "Duration of upstream adapter requests",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"upstream"},
	)

	// Sweeper metrics
	SweepsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "swapfolio_sweeps_total",
			Help: "Total number of sweep cycles run",
		},
	)

	SweptEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swapfolio_swept_entries_total",
			Help: "Total number of stale entries removed by the sweeper",
		},
		[]string{"store"}, // cooldown, dedup, recurrence, alert_state, notification_cooldown
	)
)
