package chatapi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var metricMessagesSent = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "ripple",
	Subsystem: "chat",
	Name:      "messages_sent_total",
	Help:      "Messages accepted by the send endpoint.",
})
