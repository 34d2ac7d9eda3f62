package monitoring

import (
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric exported by the server.
const DefaultNamespace = "codeshare"

// Options control monitoring module configuration.
type Options struct {
	// Namespace configures the Prometheus namespace. Defaults to DefaultNamespace.
	Namespace string
	// DisableGoCollector skips registration of the Go runtime collector when true.
	DisableGoCollector bool
	// DisableProcessCollector skips registration of the process collector when true.
	DisableProcessCollector bool
	// ProbeTimeout bounds each health probe. Defaults to DefaultProbeTimeout.
	ProbeTimeout time.Duration
}

// Module owns the server's metrics registry, the counters behind the admin
// summary, and the health probes.
type Module struct {
	registry *prometheus.Registry
	metrics  *sessionCollectors
	stats    *statStore
	health   *HealthManager
}

// NewModule constructs a monitoring module with its own Prometheus registry.
func NewModule(opts Options) (*Module, error) {
	namespace := opts.Namespace
	if namespace == "" {
		namespace = DefaultNamespace
	}

	registry := prometheus.NewRegistry()
	metrics := newCollectors(namespace)

	toRegister := metrics.all()
	if !opts.DisableGoCollector {
		toRegister = append(toRegister, collectors.NewGoCollector())
	}
	if !opts.DisableProcessCollector {
		toRegister = append(toRegister, collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	for _, c := range toRegister {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("monitoring: register collector: %w", err)
		}
	}

	health := NewHealthManager()
	health.SetProbeTimeout(opts.ProbeTimeout)

	return &Module{
		registry: registry,
		metrics:  metrics,
		stats:    newStatStore(),
		health:   health,
	}, nil
}

// Registry exposes the underlying Prometheus registry.
func (m *Module) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the module's metrics in the Prometheus exposition format.
// A nil module answers 503.
func (m *Module) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		Registry:      m.registry,
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// Stats returns the runtime statistics store backing the monitoring summary.
func (m *Module) Stats() *statStore {
	if m == nil {
		return nil
	}
	return m.stats
}

// Health exposes the liveness and readiness probes.
func (m *Module) Health() *HealthManager {
	if m == nil {
		return nil
	}
	return m.health
}

var globalModule atomic.Pointer[Module]

// SetModule installs the module used by the package level Record helpers and
// returns the previous one. A nil module is ignored.
func SetModule(module *Module) *Module {
	if module == nil {
		return globalModule.Load()
	}
	return globalModule.Swap(module)
}

// CurrentModule returns the process-wide monitoring module, or nil when unset.
func CurrentModule() *Module {
	return globalModule.Load()
}
