package prometheus

import (
	"time"

	"github.com/bowlofstew/nimbus.io/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func init() {
	metrics.RegisterGatewayMetricsConstructor(newGatewayMetrics)
}

// gatewayMetrics is the Prometheus implementation of metrics.GatewayMetrics.
type gatewayMetrics struct {
	archivesInFlight  prometheus.Gauge
	retrievesInFlight prometheus.Gauge

	archiveDuration  *prometheus.HistogramVec
	retrieveDuration *prometheus.HistogramVec
	destroyDuration  *prometheus.HistogramVec

	bytesArchived  prometheus.Counter
	bytesRetrieved prometheus.Counter

	nodeConnected *prometheus.GaugeVec
}

// durationBuckets spans a single-node RPC (sub-millisecond) up through a
// full slow fan-out under handoff (multi-second).
var durationBuckets = []float64{
	0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

func newGatewayMetrics() metrics.GatewayMetrics {
	reg := metrics.GetRegistry()

	return &gatewayMetrics{
		archivesInFlight: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "nimbusio_gateway_archives_in_flight",
			Help: "Number of archive requests currently being processed.",
		}),
		retrievesInFlight: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "nimbusio_gateway_retrieves_in_flight",
			Help: "Number of retrieve requests currently being processed.",
		}),
		archiveDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nimbusio_gateway_archive_duration_seconds",
			Help:    "Duration of archive requests by outcome.",
			Buckets: durationBuckets,
		}, []string{"outcome"}),
		retrieveDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nimbusio_gateway_retrieve_duration_seconds",
			Help:    "Duration of retrieve requests by outcome.",
			Buckets: durationBuckets,
		}, []string{"outcome"}),
		destroyDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nimbusio_gateway_destroy_duration_seconds",
			Help:    "Duration of destroy requests by outcome.",
			Buckets: durationBuckets,
		}, []string{"outcome"}),
		bytesArchived: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "nimbusio_gateway_bytes_archived_total",
			Help: "Total bytes accepted by ArchiveKey.",
		}),
		bytesRetrieved: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "nimbusio_gateway_bytes_retrieved_total",
			Help: "Total bytes streamed out by RetrieveKey.",
		}),
		nodeConnected: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "nimbusio_gateway_node_connected",
			Help: "1 if the gateway's client for this node is connected, 0 otherwise.",
		}, []string{"node"}),
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *gatewayMetrics) ArchiveStarted() {
	if m == nil {
		return
	}
	m.archivesInFlight.Inc()
}

func (m *gatewayMetrics) ArchiveFinished(duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.archivesInFlight.Dec()
	m.archiveDuration.WithLabelValues(outcome(err)).Observe(duration.Seconds())
}

func (m *gatewayMetrics) RetrieveStarted() {
	if m == nil {
		return
	}
	m.retrievesInFlight.Inc()
}

func (m *gatewayMetrics) RetrieveFinished(duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.retrievesInFlight.Dec()
	m.retrieveDuration.WithLabelValues(outcome(err)).Observe(duration.Seconds())
}

func (m *gatewayMetrics) DestroyFinished(duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.destroyDuration.WithLabelValues(outcome(err)).Observe(duration.Seconds())
}

func (m *gatewayMetrics) BytesArchived(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.bytesArchived.Add(float64(n))
}

func (m *gatewayMetrics) BytesRetrieved(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.bytesRetrieved.Add(float64(n))
}

func (m *gatewayMetrics) NodeConnected(nodeName string, connected bool) {
	if m == nil {
		return
	}
	v := 0.0
	if connected {
		v = 1.0
	}
	m.nodeConnected.WithLabelValues(nodeName).Set(v)
}
