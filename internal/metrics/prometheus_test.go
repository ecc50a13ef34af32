package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_IsolatedCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := newRegistry(reg)

	r.RulesCreated.WithLabelValues("in").Add(16)
	r.RulesRemoved.WithLabelValues("out").Inc()
	r.ProviderErrors.WithLabelValues("create").Inc()
	r.PortsTracked.Set(3)

	assert.Equal(t, 16.0, testutil.ToFloat64(r.RulesCreated.WithLabelValues("in")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.RulesRemoved.WithLabelValues("out")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.ProviderErrors.WithLabelValues("create")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.PortsTracked))

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["portguard_rules_created_total"])
	assert.True(t, names["portguard_ports_tracked"])
}

func TestGet_Singleton(t *testing.T) {
	assert.Same(t, Get(), Get())
	assert.NotNil(t, Handler())
}
