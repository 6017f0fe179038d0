// Package metrics defines the Prometheus instrumentation for ingestion,
// the broadcast bus and the live websocket connections.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ingestion metrics
var (
	// SubmissionsTotal tracks listing submissions by outcome (accepted/rejected)
	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_submissions_total",
			Help: "Total listing submissions by outcome",
		},
		[]string{"outcome"},
	)

	// StoreErrorsTotal tracks failed store upserts
	StoreErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_store_errors_total",
			Help: "Total store upsert failures",
		},
	)
)

// Broadcast bus metrics
var (
	// BusPublishedTotal tracks batches published to the bus
	BusPublishedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bus_published_batches_total",
			Help: "Total listing batches published to the broadcast bus",
		},
	)

	// BusDroppedTotal tracks batches dropped for lagging subscribers
	BusDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bus_dropped_batches_total",
			Help: "Total batches dropped because a subscriber lagged behind the ring",
		},
	)

	// BusSubscribers tracks current bus subscriber count
	BusSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bus_subscribers_current",
			Help: "Current number of broadcast bus subscribers",
		},
	)
)

// WebSocket metrics
var (
	// WSActiveConnections tracks currently connected live viewers
	WSActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_active_connections",
			Help: "Currently connected websocket clients",
		},
	)

	// WSActiveSubscriptions tracks live channel subscriptions across all connections
	WSActiveSubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_active_subscriptions",
			Help: "Currently live channel subscriptions across all connections",
		},
	)

	// WSLagTerminationsTotal tracks forwarding tasks terminated by bus lag
	WSLagTerminationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ws_lag_terminations_total",
			Help: "Forwarding tasks terminated because their bus cursor lagged",
		},
	)

	// WSOutboundFramesTotal tracks frames written to clients by type
	WSOutboundFramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ws_outbound_frames_total",
			Help: "Frames written to websocket clients by message type",
		},
		[]string{"type"},
	)

	// WSDecodeErrorsTotal tracks malformed inbound control frames
	WSDecodeErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ws_decode_errors_total",
			Help: "Malformed inbound control frames answered with an err message",
		},
	)
)
