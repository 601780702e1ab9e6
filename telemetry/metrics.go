package telemetry

// Histogram bucket definitions for different latency profiles
var (
	// FanoutBuckets for acked registration broadcasts (network round trips)
	FanoutBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

	// DispatchBuckets for local callback dispatch
	DispatchBuckets = []float64{0.00001, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1}
)

// Cluster Health Metrics
var (
	// ClusterMembers tracks member count by status (ALIVE, SUSPECT, DEAD)
	ClusterMembers GaugeVec = noopGaugeVec{}
)

// Listener Registration Metrics
var (
	// ListenerItems tracks the current size of the local listener table
	ListenerItems Gauge = NoopStat{}

	// RegistrationsTotal counts listener calls by op (add, add_local, remove)
	RegistrationsTotal CounterVec = noopCounterVec{}

	// RegistrationDedupTotal counts remote registrations skipped by the dedup scan
	RegistrationDedupTotal Counter = NoopStat{}

	// RegistrationFanoutSeconds measures acked broadcast latency
	RegistrationFanoutSeconds Histogram = NoopStat{}

	// RegistrationRejectsTotal counts inbound registrations refused by reason
	// (no_origin, filtered)
	RegistrationRejectsTotal CounterVec = noopCounterVec{}

	// ResyncReplaysTotal counts listener items replayed by membership resync
	ResyncReplaysTotal Counter = NoopStat{}
)

// Packet Transport Metrics
var (
	// PacketsSentTotal counts outbound packets by op
	PacketsSentTotal CounterVec = noopCounterVec{}

	// PacketSendFailuresTotal counts fire-and-forget sends dropped on failure
	PacketSendFailuresTotal Counter = NoopStat{}
)

// Event Dispatch Metrics
var (
	// EventsDispatchedTotal counts callback invocations by instance type
	EventsDispatchedTotal CounterVec = noopCounterVec{}

	// EventsSuppressedTotal counts matches skipped by local-echo suppression
	EventsSuppressedTotal Counter = NoopStat{}

	// EventDispatchSeconds measures packet receipt to callback return
	EventDispatchSeconds Histogram = NoopStat{}
)

// Event Export Metrics
var (
	// ExportedEventsTotal counts events handed to export sinks by sink and result
	ExportedEventsTotal CounterVec = noopCounterVec{}

	// ExportQueueDepth tracks the export worker queue depth
	ExportQueueDepth Gauge = NoopStat{}
)

// InitMetrics initializes all Prometheus metrics.
// Must be called after InitializeTelemetry().
func InitMetrics() {
	// Cluster Health Metrics
	ClusterMembers = NewGaugeVec(
		"cluster_members",
		"Number of cluster members by status",
		[]string{"status"},
	)

	// Listener Registration Metrics
	ListenerItems = NewGauge(
		"listener_items",
		"Current size of the local listener table",
	)
	RegistrationsTotal = NewCounterVec(
		"registrations_total",
		"Listener registration calls by op",
		[]string{"op"},
	)
	RegistrationDedupTotal = NewCounter(
		"registration_dedup_total",
		"Remote registrations skipped by the dedup scan",
	)
	RegistrationFanoutSeconds = NewHistogramWithBuckets(
		"registration_fanout_seconds",
		"Acked registration broadcast duration in seconds",
		FanoutBuckets,
	)
	RegistrationRejectsTotal = NewCounterVec(
		"registration_rejects_total",
		"Inbound registrations refused by reason",
		[]string{"reason"},
	)
	ResyncReplaysTotal = NewCounter(
		"resync_replays_total",
		"Listener items replayed by membership resync",
	)

	// Packet Transport Metrics
	PacketsSentTotal = NewCounterVec(
		"packets_sent_total",
		"Outbound packets by op",
		[]string{"op"},
	)
	PacketSendFailuresTotal = NewCounter(
		"packet_send_failures_total",
		"Fire-and-forget sends dropped on failure",
	)

	// Event Dispatch Metrics
	EventsDispatchedTotal = NewCounterVec(
		"events_dispatched_total",
		"Callback invocations by instance type",
		[]string{"instance_type"},
	)
	EventsSuppressedTotal = NewCounter(
		"events_suppressed_total",
		"Matches skipped by local-echo suppression",
	)
	EventDispatchSeconds = NewHistogramWithBuckets(
		"event_dispatch_seconds",
		"Event dispatch duration in seconds",
		DispatchBuckets,
	)

	// Event Export Metrics
	ExportedEventsTotal = NewCounterVec(
		"exported_events_total",
		"Events handed to export sinks by sink and result",
		[]string{"sink", "result"},
	)
	ExportQueueDepth = NewGauge(
		"export_queue_depth",
		"Export worker queue depth",
	)
}
