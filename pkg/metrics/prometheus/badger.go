package prometheus

import (
	"github.com/bowlofstew/nimbus.io/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func init() {
	metrics.RegisterBufferMetricsConstructor(newBadgerMetrics)
}

// badgerMetrics instruments the event-push client's durable local buffer
// (pkg/eventpush), a Badger database holding events not yet acknowledged
// by the event-push service.
type badgerMetrics struct {
	bufferedEvents prometheus.Gauge
	flushSuccesses prometheus.Counter
	flushFailures  prometheus.Counter
}

// newBadgerMetrics creates a new Prometheus-backed event-push buffer
// metrics instance.
func newBadgerMetrics() metrics.BufferMetrics {
	reg := metrics.GetRegistry()

	return &badgerMetrics{
		bufferedEvents: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "nimbusio_eventpush_buffered_events",
				Help: "Number of events currently held in the durable local buffer awaiting delivery.",
			},
		),
		flushSuccesses: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "nimbusio_eventpush_flush_success_total",
				Help: "Total number of events successfully delivered to the event-push service.",
			},
		),
		flushFailures: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "nimbusio_eventpush_flush_failure_total",
				Help: "Total number of failed delivery attempts to the event-push service.",
			},
		),
	}
}

// RecordBufferDepth records the current number of buffered, undelivered events.
func (m *badgerMetrics) RecordBufferDepth(n int) {
	if m == nil {
		return
	}
	m.bufferedEvents.Set(float64(n))
}

// RecordFlushSuccess records a batch of events successfully delivered.
func (m *badgerMetrics) RecordFlushSuccess(n int) {
	if m == nil {
		return
	}
	m.flushSuccesses.Add(float64(n))
}

// RecordFlushFailure records a failed delivery attempt.
func (m *badgerMetrics) RecordFlushFailure() {
	if m == nil {
		return
	}
	m.flushFailures.Inc()
}
