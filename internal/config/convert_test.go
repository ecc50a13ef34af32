package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/portguard/internal/secgroup"
)

func TestSecurityGroupConversion(t *testing.T) {
	cfg := validConfig()
	g := cfg.SecurityGroups[0]

	rules := g.Rules()
	require.Len(t, rules, 1)
	assert.Equal(t, secgroup.Rule{
		Direction:     secgroup.DirectionIngress,
		Ethertype:     secgroup.EthertypeIPv4,
		Protocol:      "tcp",
		PortRangeMin:  intPtr(80),
		PortRangeMax:  intPtr(80),
		RemoteGroupID: "web",
	}, rules[0])

	// Converted bounds do not alias the config
	*rules[0].PortRangeMin = 1
	assert.Equal(t, 80, *g.RuleDefs[0].PortRangeMin)

	assert.Equal(t, secgroup.Members{
		secgroup.EthertypeIPv4: {"10.0.0.1"},
		secgroup.EthertypeIPv6: {"fd00::/64"},
	}, g.Members())

	assert.Empty(t, SecurityGroup{Name: "empty"}.Members())
}

func TestPortDescription(t *testing.T) {
	p := Port{
		ID:             "p1",
		Device:         "tap0",
		FixedIPs:       []string{"10.0.0.1"},
		SecurityGroups: []string{"web"},
		RuleDefs:       []Rule{{Direction: "EGRESS", Ethertype: "ipv6"}},
	}

	d := p.Description()
	assert.Equal(t, "p1", d.ID)
	assert.Equal(t, "tap0", d.Device)
	assert.Equal(t, []string{"10.0.0.1"}, d.FixedIPs)
	assert.Equal(t, []string{"web"}, d.SecurityGroups)
	require.Len(t, d.ProviderRules, 1)
	assert.Equal(t, secgroup.DirectionEgress, d.ProviderRules[0].Direction)
	assert.Equal(t, secgroup.EthertypeIPv6, d.ProviderRules[0].Ethertype)

	cfg := &Config{Ports: []Port{p, {ID: "p2", Device: "tap1"}}}
	descs := cfg.PortDescriptions()
	require.Len(t, descs, 2)
	assert.Equal(t, "p2", descs[1].ID)
}
