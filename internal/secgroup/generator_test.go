package secgroup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_WildcardProtocol(t *testing.T) {
	g := NewGenerator()
	rule := Rule{Direction: DirectionIngress, Ethertype: EthertypeIPv4}.WithPorts(80, 80)

	out := g.Generate(rule)
	require.Len(t, out, 4)

	for i, proto := range KnownProtocols() {
		assert.Equal(t, proto, out[i].Protocol)
		assert.Equal(t, ACLDirectionIn, out[i].Direction)
		assert.Equal(t, ActionAllow, out[i].Action)
		assert.Equal(t, "0.0.0.0/0", out[i].RemoteAddress)
	}

	assert.Equal(t, "80-80", out[0].LocalPort)
	assert.True(t, out[0].Stateful)
	assert.Equal(t, "80-80", out[1].LocalPort)
	assert.True(t, out[1].Stateful)
	assert.Empty(t, out[2].LocalPort)
	assert.False(t, out[2].Stateful)
	assert.Empty(t, out[3].LocalPort)
	assert.False(t, out[3].Stateful)
}

func TestGenerate_ExplicitAnyProtocol(t *testing.T) {
	g := NewGenerator()
	out := g.Generate(Rule{Direction: DirectionEgress, Ethertype: EthertypeIPv6, Protocol: "any"})
	assert.Len(t, out, 4)
}

func TestGenerate_ProtocolNames(t *testing.T) {
	g := NewGenerator()

	tests := []struct {
		in   string
		want string
	}{
		{"tcp", ProtocolTCP},
		{"TCP", ProtocolTCP},
		{"udp", ProtocolUDP},
		{"icmp", ProtocolICMP},
		{"icmpv6", ProtocolICMPv6},
		{"ipv6-icmp", ProtocolICMPv6},
		{"sctp", "sctp"},
		{"47", "47"},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			out := g.Generate(Rule{Direction: DirectionIngress, Ethertype: EthertypeIPv4, Protocol: tc.in})
			require.Len(t, out, 1)
			assert.Equal(t, tc.want, out[0].Protocol)
		})
	}
}

func TestGenerate_PortRange(t *testing.T) {
	g := NewGenerator()

	out := g.Generate(Rule{Direction: DirectionIngress, Ethertype: EthertypeIPv4, Protocol: "tcp"}.WithPorts(1000, 2000))
	require.Len(t, out, 1)
	assert.Equal(t, "1000-2000", out[0].LocalPort)

	lo := 22
	out = g.Generate(Rule{Direction: DirectionIngress, Ethertype: EthertypeIPv4, Protocol: "tcp", PortRangeMin: &lo})
	require.Len(t, out, 1)
	assert.Equal(t, Any, out[0].LocalPort, "a half-open range matches any port")
}

func TestGenerate_RemoteAddress(t *testing.T) {
	g := NewGenerator()

	tests := []struct {
		name      string
		ethertype Ethertype
		prefix    string
		want      string
	}{
		{"ipv4 default", EthertypeIPv4, "", "0.0.0.0/0"},
		{"ipv6 default", EthertypeIPv6, "", "::/0"},
		{"ipv4 host kept", EthertypeIPv4, "10.0.0.2/32", "10.0.0.2/32"},
		{"ipv6 host stripped", EthertypeIPv6, "::1/128", "::1"},
		{"ipv6 network kept", EthertypeIPv6, "2001:db8::/64", "2001:db8::/64"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out := g.Generate(Rule{Direction: DirectionEgress, Ethertype: tc.ethertype, Protocol: "udp", RemoteIPPrefix: tc.prefix})
			require.Len(t, out, 1)
			assert.Equal(t, tc.want, out[0].RemoteAddress)
			assert.Equal(t, ACLDirectionOut, out[0].Direction)
		})
	}
}

func TestGenerateDefaultDeny(t *testing.T) {
	g := NewGenerator()
	out := g.GenerateDefaultDeny()
	require.Len(t, out, 16)

	set := NewRuleSet(out...)
	assert.Equal(t, 16, set.Len(), "baseline rules are distinct")

	for _, r := range out {
		assert.Equal(t, ActionDeny, r.Action)
		assert.False(t, r.Stateful)
		if IsICMP(r.Protocol) {
			assert.Empty(t, r.LocalPort)
		} else {
			assert.Equal(t, Any, r.LocalPort)
		}
	}

	assert.Equal(t, NewACLRule(ACLDirectionIn, Any, ProtocolTCP, "0.0.0.0/0", ActionDeny), out[0])
	assert.Equal(t, NewACLRule(ACLDirectionIn, Any, ProtocolTCP, "::/0", ActionDeny), out[1])
	assert.Equal(t, ACLDirectionOut, out[8].Direction)
}

func TestComputeAdditions(t *testing.T) {
	g := NewGenerator()
	a := NewACLRule(ACLDirectionIn, "80-80", ProtocolTCP, "0.0.0.0/0", ActionAllow)
	b := NewACLRule(ACLDirectionIn, "443-443", ProtocolTCP, "0.0.0.0/0", ActionAllow)
	c := NewACLRule(ACLDirectionOut, Any, ProtocolUDP, "::/0", ActionAllow)

	assert.Equal(t, []ACLRule{b, c}, g.ComputeAdditions([]ACLRule{a}, []ACLRule{a, b, c, b}))
	assert.Empty(t, g.ComputeAdditions([]ACLRule{a, b}, []ACLRule{b, a}))
	assert.Equal(t, []ACLRule{a}, g.ComputeAdditions(nil, []ACLRule{a, a}))
}

func TestComputeAdditions_Idempotent(t *testing.T) {
	g := NewGenerator()
	rules := g.GenerateDefaultDeny()
	assert.Empty(t, g.ComputeAdditions(rules, g.GenerateDefaultDeny()))
}
