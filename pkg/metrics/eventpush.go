package metrics

// BufferMetrics instruments pkg/eventpush's durable local buffer: how
// many events are waiting, and how flush attempts against the
// event-push service are going.
type BufferMetrics interface {
	RecordBufferDepth(n int)
	RecordFlushSuccess(n int)
	RecordFlushFailure()
}

// NewBufferMetrics creates a new Prometheus-backed BufferMetrics
// instance, or a no-op one if metrics are not enabled.
func NewBufferMetrics() BufferMetrics {
	if !IsEnabled() {
		return NoopBufferMetrics{}
	}
	return newPrometheusBufferMetrics()
}

// NoopBufferMetrics discards every call.
type NoopBufferMetrics struct{}

func (NoopBufferMetrics) RecordBufferDepth(int)   {}
func (NoopBufferMetrics) RecordFlushSuccess(int)  {}
func (NoopBufferMetrics) RecordFlushFailure()     {}

// newPrometheusBufferMetrics is implemented in
// pkg/metrics/prometheus/badger.go.
var newPrometheusBufferMetrics func() BufferMetrics

// RegisterBufferMetricsConstructor is called by
// pkg/metrics/prometheus/badger.go during package initialization.
func RegisterBufferMetricsConstructor(constructor func() BufferMetrics) {
	newPrometheusBufferMetrics = constructor
}
