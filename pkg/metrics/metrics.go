// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks local status API request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatsync_api_request_duration_seconds",
			Help:    "Status API request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total status API requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_api_requests_total",
			Help: "Total status API requests",
		},
		[]string{"method", "path", "status"},
	)

	// ConnectionState is 1 for the current channel state and 0 for the others.
	ConnectionState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chatsync_connection_state",
			Help: "Current channel connection state (1 = active)",
		},
		[]string{"state"},
	)

	// ReconnectAttemptsTotal counts scheduled reconnection attempts.
	ReconnectAttemptsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatsync_reconnect_attempts_total",
			Help: "Total reconnection attempts scheduled",
		},
	)

	// OutboundQueueDepth tracks frames awaiting a transport ack.
	OutboundQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatsync_outbound_queue_depth",
			Help: "Outbound frames not yet acknowledged by the transport",
		},
	)

	// FramesReceivedTotal counts decoded inbound frames.
	FramesReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_frames_received_total",
			Help: "Inbound frames dispatched",
		},
		[]string{"type"},
	)

	// FramesDroppedTotal counts inbound frames that could not be dispatched.
	FramesDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_frames_dropped_total",
			Help: "Inbound frames dropped",
		},
		[]string{"reason"},
	)

	// FramesSentTotal counts frames written to the transport.
	FramesSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_frames_sent_total",
			Help: "Outbound frames written to the transport",
		},
		[]string{"type"},
	)

	// MessagesReconciledTotal counts reconciliation outcomes.
	MessagesReconciledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_messages_reconciled_total",
			Help: "Server-confirmed messages by reconciliation outcome",
		},
		[]string{"outcome"},
	)

	// ActiveEventStreams tracks open status API event streams.
	ActiveEventStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatsync_event_streams_active",
			Help: "Open server-sent event streams",
		},
	)

	// StoreRequestDuration tracks REST store call duration.
	StoreRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatsync_store_request_duration_seconds",
			Help:    "REST store request duration in seconds",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"operation", "status"},
	)
)

var connectionStates = []string{"disconnected", "connecting", "connected", "reconnecting", "failed"}

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// SetConnectionState marks state as the active connection state.
func SetConnectionState(state string) {
	for _, s := range connectionStates {
		v := 0.0
		if s == state {
			v = 1
		}
		ConnectionState.WithLabelValues(s).Set(v)
	}
}

// RecordStoreRequest records metrics for a REST store call.
func RecordStoreRequest(operation, status string, duration float64) {
	StoreRequestDuration.WithLabelValues(operation, status).Observe(duration)
}

// IncrementEventStreams increments the open event stream gauge.
func IncrementEventStreams() {
	ActiveEventStreams.Inc()
}

// DecrementEventStreams decrements the open event stream gauge.
func DecrementEventStreams() {
	ActiveEventStreams.Dec()
}
