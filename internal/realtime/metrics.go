package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ripple",
		Subsystem: "ws",
		Name:      "connections",
		Help:      "Currently open websocket connections.",
	})

	metricEventsIn = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ripple",
		Subsystem: "ws",
		Name:      "events_in_total",
		Help:      "Inbound websocket events by type.",
	}, []string{"type"})

	metricBroadcasts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ripple",
		Subsystem: "ws",
		Name:      "broadcasts_total",
		Help:      "Events fanned out to rooms.",
	})

	metricRejects = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ripple",
		Subsystem: "ws",
		Name:      "rejects_total",
		Help:      "Rejected websocket handshakes by reason.",
	}, []string{"reason"})
)
