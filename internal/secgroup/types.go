package secgroup

import "slices"

// Direction is the traffic direction of a rule template, relative to the port.
type Direction string

const (
	DirectionIngress Direction = "ingress"
	DirectionEgress  Direction = "egress"
)

// Ethertype selects the address family of a rule.
type Ethertype string

const (
	EthertypeIPv4 Ethertype = "IPv4"
	EthertypeIPv6 Ethertype = "IPv6"
)

// Ethertypes lists the address families in baseline generation order.
var Ethertypes = []Ethertype{EthertypeIPv4, EthertypeIPv6}

// AnyAddress returns the match-everything prefix for the ethertype, or "" if unknown.
func (e Ethertype) AnyAddress() string {
	switch e {
	case EthertypeIPv4:
		return "0.0.0.0/0"
	case EthertypeIPv6:
		return "::/0"
	}
	return ""
}

// Rule is a declarative security group rule. The same shape is used for group
// templates, provider rules declared directly on a port, and the per-port
// instances produced by the Selector (which stamp SecurityGroupID and resolve
// RemoteGroupID into RemoteIPPrefix).
//
// RemoteGroupID and RemoteIPPrefix are mutually exclusive on input.
type Rule struct {
	Direction       Direction `json:"direction"`
	Ethertype       Ethertype `json:"ethertype"`
	Protocol        string    `json:"protocol,omitempty"`
	PortRangeMin    *int      `json:"port_range_min,omitempty"`
	PortRangeMax    *int      `json:"port_range_max,omitempty"`
	RemoteGroupID   string    `json:"remote_group_id,omitempty"`
	RemoteIPPrefix  string    `json:"remote_ip_prefix,omitempty"`
	SecurityGroupID string    `json:"security_group_id,omitempty"`
}

// WithPorts returns a copy of r with both port bounds set.
func (r Rule) WithPorts(min, max int) Rule {
	r.PortRangeMin = &min
	r.PortRangeMax = &max
	return r
}

// Equal reports whether two rules are the same declaration, comparing port
// bounds by value.
func (r Rule) Equal(o Rule) bool {
	return r.key() == o.key()
}

type optionalPort struct {
	value int
	set   bool
}

type ruleSpecKey struct {
	direction      Direction
	ethertype      Ethertype
	protocol       string
	portMin        optionalPort
	portMax        optionalPort
	remoteGroupID  string
	remoteIPPrefix string
	groupID        string
}

func (r Rule) key() ruleSpecKey {
	return ruleSpecKey{
		direction:      r.Direction,
		ethertype:      r.Ethertype,
		protocol:       r.Protocol,
		portMin:        optional(r.PortRangeMin),
		portMax:        optional(r.PortRangeMax),
		remoteGroupID:  r.RemoteGroupID,
		remoteIPPrefix: r.RemoteIPPrefix,
		groupID:        r.SecurityGroupID,
	}
}

func optional(p *int) optionalPort {
	if p == nil {
		return optionalPort{}
	}
	return optionalPort{value: *p, set: true}
}

// ruleDifference returns the rules of a that have no equal in b, keeping a's order.
func ruleDifference(a, b []Rule) []Rule {
	seen := make(map[ruleSpecKey]struct{}, len(b))
	for _, r := range b {
		seen[r.key()] = struct{}{}
	}
	var out []Rule
	for _, r := range a {
		if _, ok := seen[r.key()]; !ok {
			out = append(out, r)
		}
	}
	return out
}

// Members is the membership of one security group: addresses per ethertype.
type Members map[Ethertype][]string

func (m Members) clone() Members {
	if m == nil {
		return Members{}
	}
	out := make(Members, len(m))
	for k, v := range m {
		out[k] = slices.Clone(v)
	}
	return out
}

// Port describes a virtual network port as delivered by the host agent.
type Port struct {
	ID             string   `json:"id"`
	Device         string   `json:"device"`
	FixedIPs       []string `json:"fixed_ips,omitempty"`
	SecurityGroups []string `json:"security_groups,omitempty"`
	ProviderRules  []Rule   `json:"provider_rules,omitempty"`
}

func (p Port) clone() Port {
	p.FixedIPs = slices.Clone(p.FixedIPs)
	p.SecurityGroups = slices.Clone(p.SecurityGroups)
	p.ProviderRules = slices.Clone(p.ProviderRules)
	return p
}
