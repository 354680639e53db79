// Package metrics defines and registers all custom Prometheus metrics for
// the livetrack realtime core. It is the single source of truth for metric
// names, labels, and help strings.
//
// Metrics register with the default Prometheus registry at package init via
// promauto; the router exposes them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "livetrack"

// ── Ingest metrics ────────────────────────────────────────────────────────────

// IngestTotal counts accepted location fixes.
// Label:
//   - source: "device" or "manual"
var IngestTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ingest_total",
		Help:      "Total number of location fixes accepted.",
	},
	[]string{"source"},
)

// IngestErrorsTotal counts rejected location fixes.
// Label:
//   - reason: "invalid_coordinates", "identity_mismatch", "store_error"
var IngestErrorsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ingest_errors_total",
		Help:      "Total number of location fixes rejected.",
	},
	[]string{"reason"},
)

// ── Bus metrics ───────────────────────────────────────────────────────────────

// BusConnections tracks connections currently registered in any room.
var BusConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "bus_connections",
		Help:      "Connections currently registered in the notification bus.",
	},
)

// BusPublishTotal counts publish outcomes.
// Labels:
//   - kind:   event kind (e.g. "statusUpdate")
//   - result: "delivered" or "empty_room"
var BusPublishTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bus_publish_total",
		Help:      "Publish deliveries and empty-room no-ops, by event kind.",
	},
	[]string{"kind", "result"},
)

// ── Stream metrics ────────────────────────────────────────────────────────────

// StreamConnections tracks open snapshot stream connections.
var StreamConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "stream_connections",
		Help:      "Currently open snapshot stream connections.",
	},
)

// SnapshotsSentTotal counts snapshot frames enqueued to stream connections.
var SnapshotsSentTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "snapshots_sent_total",
		Help:      "Total snapshot frames emitted across all stream connections.",
	},
)

// StreamDroppedTotal counts frames dropped because a consumer fell behind.
var StreamDroppedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stream_dropped_total",
		Help:      "Frames dropped on slow stream consumers instead of blocking.",
	},
)

// ── Mutation metrics ──────────────────────────────────────────────────────────

// StatusUpdatesTotal counts committed booking status mutations.
// Label:
//   - status: resulting status label (e.g. "completed")
var StatusUpdatesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "status_updates_total",
		Help:      "Total committed booking status mutations, by resulting label.",
	},
	[]string{"status"},
)
