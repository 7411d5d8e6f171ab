package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pairlink_ws_connections_active",
			Help: "Currently open websocket connections",
		},
	)

	MessagesPersisted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pairlink_messages_persisted_total",
			Help: "Total messages saved to the store",
		},
	)

	MessagesDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pairlink_messages_delivered_total",
			Help: "Total receive-message events pushed to clients",
		},
	)

	HistoryRequests = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pairlink_history_requests_total",
			Help: "Total history fetches served",
		},
	)

	DroppedPackets = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pairlink_ws_dropped_packets_total",
			Help: "Inbound packets dropped because they were malformed",
		},
	)
)
