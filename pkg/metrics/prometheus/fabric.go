// Package prometheus supplies the Prometheus-backed implementation of
// pkg/metrics.FabricMetrics.
package prometheus

import (
	"strconv"
	"time"

	"github.com/lustre-net/lnetgo/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func init() {
	metrics.RegisterFabricMetricsConstructor(newFabricMetrics)
}

type fabricMetrics struct {
	sendCount    *prometheus.CounterVec
	sendLength   *prometheus.CounterVec
	recvCount    *prometheus.CounterVec
	recvLength   *prometheus.CounterVec
	routeCount   *prometheus.CounterVec
	routeLength  *prometheus.CounterVec
	dropCount    *prometheus.CounterVec
	dropLength   *prometheus.CounterVec
	msgsAlloc    *prometheus.GaugeVec
	msgsMax      *prometheus.GaugeVec
	creditValue  *prometheus.GaugeVec
	creditQueue  *prometheus.GaugeVec
	matchTotal   *prometheus.CounterVec
	atEstimate   *prometheus.GaugeVec
	svcLatencyMS *prometheus.HistogramVec
}

func newFabricMetrics() metrics.FabricMetrics {
	reg := metrics.GetRegistry()

	return &fabricMetrics{
		sendCount: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "lnet_send_count_total",
			Help: "Total messages sent per service.",
		}, []string{"service"}),
		sendLength: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "lnet_send_length_bytes_total",
			Help: "Total bytes sent per service.",
		}, []string{"service"}),
		recvCount: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "lnet_recv_count_total",
			Help: "Total messages received per service.",
		}, []string{"service"}),
		recvLength: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "lnet_recv_length_bytes_total",
			Help: "Total bytes received per service.",
		}, []string{"service"}),
		routeCount: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "lnet_route_count_total",
			Help: "Total messages forwarded per service.",
		}, []string{"service"}),
		routeLength: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "lnet_route_length_bytes_total",
			Help: "Total bytes forwarded per service.",
		}, []string{"service"}),
		dropCount: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "lnet_drop_count_total",
			Help: "Total messages dropped per service and reason.",
		}, []string{"service", "reason"}),
		dropLength: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "lnet_drop_length_bytes_total",
			Help: "Total bytes dropped per service and reason.",
		}, []string{"service", "reason"}),
		msgsAlloc: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "lnet_msgs_alloc",
			Help: "Currently allocated message descriptors per service.",
		}, []string{"service"}),
		msgsMax: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "lnet_msgs_max",
			Help: "High-water mark of allocated message descriptors per service.",
		}, []string{"service"}),
		creditValue: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "lnet_credit_value",
			Help: "Current signed credit value for a credit pool.",
		}, []string{"pool"}),
		creditQueue: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "lnet_credit_queue_depth",
			Help: "Current queue depth for a credit pool.",
		}, []string{"pool"}),
		matchTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "lnet_match_total",
			Help: "Matching engine lookups by portal and outcome (hit, miss, lazy).",
		}, []string{"portal", "outcome"}),
		atEstimate: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "lnet_at_estimate_seconds",
			Help: "Current adaptive-timeout estimate per service.",
		}, []string{"service"}),
		svcLatencyMS: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name: "lnet_service_latency_milliseconds",
			Help: "RPC service handling latency in milliseconds.",
			Buckets: []float64{
				0.5, 1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000,
			},
		}, []string{"service"}),
	}
}

func (m *fabricMetrics) RecordSend(service string, length int) {
	if m == nil {
		return
	}
	m.sendCount.WithLabelValues(service).Inc()
	m.sendLength.WithLabelValues(service).Add(float64(length))
}

func (m *fabricMetrics) RecordRecv(service string, length int) {
	if m == nil {
		return
	}
	m.recvCount.WithLabelValues(service).Inc()
	m.recvLength.WithLabelValues(service).Add(float64(length))
}

func (m *fabricMetrics) RecordRoute(service string, length int) {
	if m == nil {
		return
	}
	m.routeCount.WithLabelValues(service).Inc()
	m.routeLength.WithLabelValues(service).Add(float64(length))
}

func (m *fabricMetrics) RecordDrop(service, reason string, length int) {
	if m == nil {
		return
	}
	m.dropCount.WithLabelValues(service, reason).Inc()
	m.dropLength.WithLabelValues(service, reason).Add(float64(length))
}

func (m *fabricMetrics) RecordMsgsAlloc(service string, current, max int) {
	if m == nil {
		return
	}
	m.msgsAlloc.WithLabelValues(service).Set(float64(current))
	m.msgsMax.WithLabelValues(service).Set(float64(max))
}

func (m *fabricMetrics) RecordCreditPool(pool string, value int, queueDepth int) {
	if m == nil {
		return
	}
	m.creditValue.WithLabelValues(pool).Set(float64(value))
	m.creditQueue.WithLabelValues(pool).Set(float64(queueDepth))
}

func (m *fabricMetrics) RecordMatch(portal uint32, outcome string) {
	if m == nil {
		return
	}
	m.matchTotal.WithLabelValues(strconv.FormatUint(uint64(portal), 10), outcome).Inc()
}

func (m *fabricMetrics) RecordATEstimate(service string, seconds float64) {
	if m == nil {
		return
	}
	m.atEstimate.WithLabelValues(service).Set(seconds)
}

func (m *fabricMetrics) ObserveServiceLatency(service string, d time.Duration) {
	if m == nil {
		return
	}
	m.svcLatencyMS.WithLabelValues(service).Observe(float64(d.Milliseconds()))
}
