package secgroup

import (
	"fmt"
	"strings"
)

// Protocol codes understood by enforcement providers.
const (
	ProtocolTCP    = "tcp"
	ProtocolUDP    = "udp"
	ProtocolICMP   = "1"
	ProtocolICMPv6 = "58"
)

// knownProtocols is the expansion order of the wildcard protocol.
var knownProtocols = []string{ProtocolTCP, ProtocolUDP, ProtocolICMP, ProtocolICMPv6}

var protocolCodes = map[string]string{
	"tcp":       ProtocolTCP,
	"udp":       ProtocolUDP,
	"icmp":      ProtocolICMP,
	"icmpv6":    ProtocolICMPv6,
	"ipv6-icmp": ProtocolICMPv6,
}

var aclDirections = map[Direction]ACLDirection{
	DirectionIngress: ACLDirectionIn,
	DirectionEgress:  ACLDirectionOut,
}

// KnownProtocols returns the protocol codes a wildcard rule expands into.
func KnownProtocols() []string {
	out := make([]string, len(knownProtocols))
	copy(out, knownProtocols)
	return out
}

// IsICMP reports whether the protocol code belongs to the ICMP family.
func IsICMP(protocol string) bool {
	return protocol == ProtocolICMP || protocol == ProtocolICMPv6
}

// Generator converts declarative rules into canonical ACL rules. It holds no
// state and is safe for concurrent use.
type Generator struct{}

// NewGenerator returns a Generator.
func NewGenerator() *Generator {
	return &Generator{}
}

// Generate converts one rule into one ACLRule per protocol it covers.
func (g *Generator) Generate(rule Rule) []ACLRule {
	localPort := portRange(rule)
	direction := aclDirection(rule.Direction)
	remote := strings.TrimSuffix(remoteAddress(rule), "/128")

	protocols := []string{protocolCode(rule.Protocol)}
	if protocols[0] == Any {
		protocols = knownProtocols
	}

	out := make([]ACLRule, 0, len(protocols))
	for _, proto := range protocols {
		out = append(out, NewACLRule(direction, localPort, proto, remote, ActionAllow))
	}
	return out
}

// GenerateAll generates every rule in order.
func (g *Generator) GenerateAll(rules []Rule) []ACLRule {
	var out []ACLRule
	for _, r := range rules {
		out = append(out, g.Generate(r)...)
	}
	return out
}

// GenerateDefaultDeny returns the fail-closed baseline: a deny rule for every
// direction, known protocol and ethertype, matching the ethertype's any-address.
func (g *Generator) GenerateDefaultDeny() []ACLRule {
	out := make([]ACLRule, 0, 2*len(knownProtocols)*len(Ethertypes))
	for _, direction := range []ACLDirection{ACLDirectionIn, ACLDirectionOut} {
		for _, proto := range knownProtocols {
			for _, ethertype := range Ethertypes {
				out = append(out, NewACLRule(direction, Any, proto, ethertype.AnyAddress(), ActionDeny))
			}
		}
	}
	return out
}

// ComputeAdditions returns the rules of newRules whose identity is absent from
// oldRules, de-duplicated and in newRules order. Removals are computed by the
// Driver from its own deltas.
func (g *Generator) ComputeAdditions(oldRules, newRules []ACLRule) []ACLRule {
	have := NewRuleSet(oldRules...)
	var add []ACLRule
	for _, r := range newRules {
		if have.Add(r) {
			add = append(add, r)
		}
	}
	return add
}

func portRange(rule Rule) string {
	if rule.PortRangeMin != nil && rule.PortRangeMax != nil {
		return fmt.Sprintf("%d-%d", *rule.PortRangeMin, *rule.PortRangeMax)
	}
	return Any
}

func remoteAddress(rule Rule) string {
	if rule.RemoteIPPrefix != "" {
		return rule.RemoteIPPrefix
	}
	return rule.Ethertype.AnyAddress()
}

// protocolCode maps known names to codes and the empty protocol to Any.
// Anything else is passed through for the provider to judge.
func protocolCode(protocol string) string {
	if protocol == "" || strings.EqualFold(protocol, Any) {
		return Any
	}
	if code, ok := protocolCodes[strings.ToLower(protocol)]; ok {
		return code
	}
	return protocol
}

func aclDirection(d Direction) ACLDirection {
	if ad, ok := aclDirections[d]; ok {
		return ad
	}
	return ACLDirection(d)
}
