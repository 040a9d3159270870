package metrics

import "time"

// GatewayMetrics is the gateway's Prometheus surface: per-operation
// duration/outcome, bytes moved, and per-node connectivity. The
// Prometheus implementation's methods are no-ops on a nil receiver; a nil
// GatewayMetrics interface value is not callable, so gateway.New replaces
// nil (what NewGatewayMetrics returns when disabled) with
// NoopGatewayMetrics.
type GatewayMetrics interface {
	ArchiveStarted()
	ArchiveFinished(duration time.Duration, err error)
	RetrieveStarted()
	RetrieveFinished(duration time.Duration, err error)
	DestroyFinished(duration time.Duration, err error)

	BytesArchived(n int64)
	BytesRetrieved(n int64)

	NodeConnected(nodeName string, connected bool)
}

// NewGatewayMetrics creates a new Prometheus-backed GatewayMetrics
// instance. Returns nil if metrics are not enabled (InitRegistry not
// called); callers substitute NoopGatewayMetrics before calling methods.
func NewGatewayMetrics() GatewayMetrics {
	if !IsEnabled() {
		return nil
	}

	return newPrometheusGatewayMetrics()
}

// NoopGatewayMetrics is a zero-value, always-discard GatewayMetrics.
// Application defaults to it when constructed with a nil GatewayMetrics,
// so handler code never has to nil-check a.Metrics at every call site.
type NoopGatewayMetrics struct{}

func (NoopGatewayMetrics) ArchiveStarted()                           {}
func (NoopGatewayMetrics) ArchiveFinished(time.Duration, error)      {}
func (NoopGatewayMetrics) RetrieveStarted()                          {}
func (NoopGatewayMetrics) RetrieveFinished(time.Duration, error)     {}
func (NoopGatewayMetrics) DestroyFinished(time.Duration, error)      {}
func (NoopGatewayMetrics) BytesArchived(int64)                       {}
func (NoopGatewayMetrics) BytesRetrieved(int64)                      {}
func (NoopGatewayMetrics) NodeConnected(string, bool)                {}

// newPrometheusGatewayMetrics is implemented in
// pkg/metrics/prometheus/gateway.go; this indirection keeps pkg/metrics
// free of a direct client_golang dependency on the concrete collector
// construction, matching the registration pattern the rest of this
// package uses for its other metric families.
var newPrometheusGatewayMetrics func() GatewayMetrics

// RegisterGatewayMetricsConstructor is called by
// pkg/metrics/prometheus/gateway.go during package initialization.
func RegisterGatewayMetricsConstructor(constructor func() GatewayMetrics) {
	newPrometheusGatewayMetrics = constructor
}
