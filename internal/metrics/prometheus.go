package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once     sync.Once
	registry *Registry
)

// Registry holds all portguard metrics.
type Registry struct {
	// Rule application
	RulesCreated   *prometheus.CounterVec
	RulesRemoved   *prometheus.CounterVec
	ProviderErrors *prometheus.CounterVec

	// Tracked state
	PortsTracked prometheus.Gauge
	GroupsCached prometheus.Gauge

	// Orchestration
	SyncTotal    *prometheus.CounterVec
	SyncDuration prometheus.Histogram
	PortRetries  prometheus.Counter
}

// Get returns the global metrics registry, creating it if necessary.
func Get() *Registry {
	once.Do(func() {
		registry = newRegistry(prometheus.DefaultRegisterer)
	})
	return registry
}

func newRegistry(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)
	r := &Registry{}

	r.RulesCreated = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "portguard_rules_created_total",
		Help: "ACL rules successfully created on ports",
	}, []string{"direction"})

	r.RulesRemoved = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "portguard_rules_removed_total",
		Help: "ACL rules successfully removed from ports",
	}, []string{"direction"})

	r.ProviderErrors = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "portguard_provider_errors_total",
		Help: "Failed calls to the enforcement provider",
	}, []string{"op"})

	r.PortsTracked = factory.NewGauge(prometheus.GaugeOpts{
		Name: "portguard_ports_tracked",
		Help: "Ports with a synchronized filter",
	})

	r.GroupsCached = factory.NewGauge(prometheus.GaugeOpts{
		Name: "portguard_groups_cached",
		Help: "Security groups held in the rule and membership cache",
	})

	r.SyncTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "portguard_sync_total",
		Help: "Reconciliation runs by result",
	}, []string{"result"})

	r.SyncDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Name:    "portguard_sync_duration_seconds",
		Help:    "Duration of reconciliation runs",
		Buckets: prometheus.DefBuckets,
	})

	r.PortRetries = factory.NewCounter(prometheus.CounterOpts{
		Name: "portguard_port_retries_total",
		Help: "Lifecycle calls retried by the reconciler",
	})

	return r
}

// Handler returns the HTTP handler serving the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
