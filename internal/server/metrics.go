package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricSessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "huddle_sessions_active",
			Help: "Authenticated realtime sessions attached to the hub",
		},
	)

	metricHandshakes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huddle_handshakes_total",
			Help: "Websocket handshakes by result",
		},
		[]string{"result"}, // "accepted", "rejected", "superseding"
	)

	metricEventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huddle_events_published_total",
			Help: "Server events handed to the hub",
		},
		[]string{"event"},
	)

	metricDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huddle_deliveries_total",
			Help: "Per-session event deliveries by result",
		},
		[]string{"result"}, // "queued", "evicted"
	)

	metricActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huddle_actions_total",
			Help: "Client actions by outcome",
		},
		[]string{"action", "outcome"}, // "ok", "dropped", "failed"
	)

	metricFramesRateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "huddle_frames_rate_limited_total",
			Help: "Inbound frames discarded by the per-session rate limiter",
		},
	)
)
