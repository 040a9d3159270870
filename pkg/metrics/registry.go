// Package metrics exposes the gateway's Prometheus instrumentation behind
// interfaces with no-op fallbacks: when metrics are disabled,
// NewBufferMetrics returns NoopBufferMetrics and NewGatewayMetrics returns
// nil (which gateway.New replaces with NoopGatewayMetrics), so call sites
// never need to branch on whether metrics are enabled.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	mu       sync.RWMutex
	enabled  bool
	registry *prometheus.Registry
)

// InitRegistry enables metrics collection and creates the process-wide
// Prometheus registry. Must be called before any New*Metrics constructor
// if metrics are to be collected; otherwise those constructors return a
// no-op or nil value.
func InitRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()

	registry = prometheus.NewRegistry()
	enabled = true
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return enabled
}

// GetRegistry returns the process-wide registry, or nil if metrics are
// disabled.
func GetRegistry() *prometheus.Registry {
	mu.RLock()
	defer mu.RUnlock()
	return registry
}
