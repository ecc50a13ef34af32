package config

import (
	"strings"

	"grimm.is/portguard/internal/secgroup"
)

// Rules converts the group's rule blocks into rule templates.
func (g SecurityGroup) Rules() []secgroup.Rule {
	out := make([]secgroup.Rule, 0, len(g.RuleDefs))
	for _, r := range g.RuleDefs {
		out = append(out, r.toRule())
	}
	return out
}

// Members converts the group's membership block. A group without one has no members.
func (g SecurityGroup) Members() secgroup.Members {
	m := secgroup.Members{}
	if g.Membership == nil {
		return m
	}
	if len(g.Membership.IPv4) > 0 {
		m[secgroup.EthertypeIPv4] = append([]string(nil), g.Membership.IPv4...)
	}
	if len(g.Membership.IPv6) > 0 {
		m[secgroup.EthertypeIPv6] = append([]string(nil), g.Membership.IPv6...)
	}
	return m
}

// Description converts the port block into the description consumed by the driver.
func (p Port) Description() secgroup.Port {
	rules := make([]secgroup.Rule, 0, len(p.RuleDefs))
	for _, r := range p.RuleDefs {
		rules = append(rules, r.toRule())
	}
	return secgroup.Port{
		ID:             p.ID,
		Device:         p.Device,
		FixedIPs:       append([]string(nil), p.FixedIPs...),
		SecurityGroups: append([]string(nil), p.SecurityGroups...),
		ProviderRules:  rules,
	}
}

// PortDescriptions converts every port, in declaration order.
func (c *Config) PortDescriptions() []secgroup.Port {
	out := make([]secgroup.Port, 0, len(c.Ports))
	for _, p := range c.Ports {
		out = append(out, p.Description())
	}
	return out
}

func (r Rule) toRule() secgroup.Rule {
	out := secgroup.Rule{
		Direction:      secgroup.Direction(strings.ToLower(r.Direction)),
		Ethertype:      normalizeEthertype(r.Ethertype),
		Protocol:       r.Protocol,
		RemoteGroupID:  r.RemoteGroup,
		RemoteIPPrefix: r.RemoteIPPrefix,
	}
	if r.PortRangeMin != nil {
		v := *r.PortRangeMin
		out.PortRangeMin = &v
	}
	if r.PortRangeMax != nil {
		v := *r.PortRangeMax
		out.PortRangeMax = &v
	}
	return out
}

// normalizeEthertype accepts any casing and defaults to IPv4.
func normalizeEthertype(s string) secgroup.Ethertype {
	switch strings.ToLower(s) {
	case "", "ipv4":
		return secgroup.EthertypeIPv4
	case "ipv6":
		return secgroup.EthertypeIPv6
	}
	return secgroup.Ethertype(s)
}
