package secgroup

import "net/netip"

// Selector expands the templates of a port's security groups into per-port rules.
type Selector struct {
	cache *Cache
}

// NewSelector returns a Selector reading from cache.
func NewSelector(cache *Cache) *Selector {
	return &Selector{cache: cache}
}

// SelectForPort returns the rules of every group attached to port that apply
// in direction. Templates referencing a remote group are expanded into one
// rule per member address of that group, skipping the port's own addresses.
// Groups missing from the cache contribute nothing.
func (s *Selector) SelectForPort(port Port, direction Direction) []Rule {
	own := make(map[netip.Addr]struct{}, len(port.FixedIPs))
	for _, ip := range port.FixedIPs {
		if addr, ok := parseHost(ip); ok {
			own[addr] = struct{}{}
		}
	}

	var out []Rule
	s.cache.view(func(templates map[string][]Rule, members map[string]Members) {
		for _, sgID := range port.SecurityGroups {
			for _, tmpl := range templates[sgID] {
				if tmpl.Direction != direction {
					continue
				}

				if tmpl.RemoteGroupID == "" {
					r := tmpl
					r.SecurityGroupID = sgID
					out = append(out, r)
					continue
				}

				for _, ip := range members[tmpl.RemoteGroupID][tmpl.Ethertype] {
					prefix, self := hostPrefix(ip, own)
					if self {
						continue
					}
					r := tmpl
					r.RemoteIPPrefix = prefix
					r.SecurityGroupID = sgID
					out = append(out, r)
				}
			}
		}
	})
	return out
}

// SelectAll returns the ingress rules of port followed by its egress rules.
func (s *Selector) SelectAll(port Port) []Rule {
	rules := s.SelectForPort(port, DirectionIngress)
	return append(rules, s.SelectForPort(port, DirectionEgress)...)
}

// hostPrefix renders a member address as a single-host network and reports
// whether it is one of the port's own addresses. Member strings that do not
// parse are returned unchanged.
func hostPrefix(member string, own map[netip.Addr]struct{}) (string, bool) {
	if addr, ok := parseHost(member); ok {
		if _, self := own[addr]; self {
			return "", true
		}
		return netip.PrefixFrom(addr, addr.BitLen()).String(), false
	}
	if p, err := netip.ParsePrefix(member); err == nil {
		return p.Masked().String(), false
	}
	return member, false
}

// parseHost accepts a bare address or a full-length prefix.
func parseHost(s string) (netip.Addr, bool) {
	if addr, err := netip.ParseAddr(s); err == nil {
		return addr.WithZone(""), true
	}
	if p, err := netip.ParsePrefix(s); err == nil && p.IsSingleIP() {
		return p.Addr(), true
	}
	return netip.Addr{}, false
}
