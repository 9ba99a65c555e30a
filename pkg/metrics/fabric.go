package metrics

import "time"

// FabricMetrics is the metrics surface every layer of the transport core
// reports through. When metrics are disabled NewFabricMetrics returns a
// nil interface, which has no methods to call, so callers check for nil
// before reporting.
//
// The per-service counters named here mirror the stats table of the error
// handling design: msgs_alloc, msgs_max, send_count, send_length,
// recv_count, recv_length, route_count, route_length, drop_count,
// drop_length.
type FabricMetrics interface {
	// RecordSend observes a successful driver send of length bytes on
	// the named service/NI.
	RecordSend(service string, length int)

	// RecordRecv observes a successful driver receive of length bytes.
	RecordRecv(service string, length int)

	// RecordRoute observes a forwarded (routed) message of length bytes.
	RecordRoute(service string, length int)

	// RecordDrop observes a dropped message of length bytes and the
	// reason it was dropped (one of the error-kind taxonomy names).
	RecordDrop(service, reason string, length int)

	// RecordMsgsAlloc sets the current and historical-max in-flight
	// message descriptor counts for a service.
	RecordMsgsAlloc(service string, current, max int)

	// RecordCreditPool sets the current signed credit value and queue
	// depth for a named credit pool (e.g. "ni:o2ib0", "peer:12345@o2ib0").
	RecordCreditPool(pool string, value int, queueDepth int)

	// RecordMatch observes a matching-engine lookup outcome: hit, miss,
	// or lazy-queued.
	RecordMatch(portal uint32, outcome string)

	// RecordATEstimate records the current adaptive-timeout estimate for
	// a service, in seconds.
	RecordATEstimate(service string, seconds float64)

	// ObserveServiceLatency records end-to-end request handling latency.
	ObserveServiceLatency(service string, d time.Duration)
}

// NewFabricMetrics returns the Prometheus-backed implementation if metrics
// are enabled, or nil otherwise, mirroring the teacher's "nil means zero
// overhead" cache-metrics convention. Calling a method on the nil result
// panics; callers test it against nil first.
func NewFabricMetrics() FabricMetrics {
	if !IsEnabled() {
		return nil
	}
	return newPrometheusFabricMetrics()
}

// newPrometheusFabricMetrics is supplied by pkg/metrics/prometheus during
// package initialization, avoiding an import cycle between this package
// and the concrete Prometheus implementation.
var newPrometheusFabricMetrics func() FabricMetrics

// RegisterFabricMetricsConstructor is called by
// pkg/metrics/prometheus.init to install the concrete constructor.
func RegisterFabricMetricsConstructor(constructor func() FabricMetrics) {
	newPrometheusFabricMetrics = constructor
}
