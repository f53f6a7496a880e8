// Package metrics holds the Prometheus collectors shared by the pollers and the dispatcher.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	ResultOK      = "ok"
	ResultError   = "error"
	ResultSkipped = "skipped"
	ResultInvalid = "invalid_target"

	DirectionOnline  = "online"
	DirectionOffline = "offline"
)

var (
	PollTicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamnotify_poll_ticks_total",
		Help: "Poll ticks by service and result.",
	}, []string{"service", "result"})

	PollDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "streamnotify_poll_duration_seconds",
		Help:    "Duration of a poll tick.",
		Buckets: prometheus.DefBuckets,
	}, []string{"service"})

	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamnotify_transitions_total",
		Help: "Presence transitions by service and direction.",
	}, []string{"service", "direction"})

	Deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamnotify_deliveries_total",
		Help: "Notification deliveries by service and result.",
	}, []string{"service", "result"})

	TrackedStreamers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "streamnotify_tracked_streamers",
		Help: "Streamers with at least one subscriber, per service.",
	}, []string{"service"})
)
