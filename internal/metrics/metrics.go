package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	SessionsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "timestamp_sessions_started_total",
			Help: "Total sessions created",
		},
	)

	Heartbeats = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "timestamp_heartbeats_total",
			Help: "Total heartbeats recorded",
		},
	)

	SessionsStopped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "timestamp_sessions_stopped_total",
			Help: "Total sessions closed by an explicit stop",
		},
	)

	SessionsReaped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "timestamp_sessions_reaped_total",
			Help: "Total sessions closed by the staleness reaper",
		},
	)

	ActiveWatchers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "timestamp_active_watchers",
			Help: "Connected roster watch streams",
		},
	)
)

func init() {
	prometheus.MustRegister(
		SessionsStarted,
		Heartbeats,
		SessionsStopped,
		SessionsReaped,
		ActiveWatchers,
	)
}
