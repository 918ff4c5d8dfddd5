// Package server exposes Prometheus instruments for the hub. They are
// registered on the default registry and served at /metrics.
package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// metricConnectedSessions mirrors Registry.Count.
	metricConnectedSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "geopulse_connected_sessions",
			Help: "Number of currently connected sessions",
		},
	)

	// metricLocationReports counts accepted location_acquired events.
	metricLocationReports = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "geopulse_location_reports_total",
			Help: "Total accepted location reports",
		},
	)

	// metricBroadcastsSent counts individual messages fanned out to clients.
	metricBroadcastsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "geopulse_broadcast_messages_total",
			Help: "Total messages fanned out to connected clients",
		},
	)

	// metricRejectedFrames counts inbound frames dropped at the transport
	// boundary (malformed JSON, bad coordinates, unknown events).
	metricRejectedFrames = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "geopulse_rejected_frames_total",
			Help: "Total inbound frames rejected before reaching the hub",
		},
	)

	// metricDroppedClients counts clients disconnected because their send
	// buffer filled up.
	metricDroppedClients = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "geopulse_dropped_clients_total",
			Help: "Total clients dropped due to a full send buffer",
		},
	)
)
