package secgroup

import "fmt"

// ACLDirection is the direction of a concrete ACL rule as seen by the provider.
type ACLDirection string

const (
	ACLDirectionIn  ACLDirection = "in"
	ACLDirectionOut ACLDirection = "out"
)

// Action is the verdict of a concrete ACL rule.
type Action string

const (
	ActionAllow Action = "allow"
	ActionDeny  Action = "deny"
)

const (
	// Any is the wildcard marker for ports and protocols.
	Any = "ANY"

	// DefaultWeight is the weight carried by every generated rule.
	DefaultWeight = 65500
)

// ACLRule is a canonical, provider-ready rule.
//
// Identity (Key, Equal, RuleSet membership) covers Direction, Action,
// LocalPort, Protocol and RemoteAddress only. IdleSessionTimeout and Weight
// never take part in it, and Stateful is derived from Protocol and Action.
// FullEqual and Fields cover every field; callers relying on either notion
// exist, so the two are kept distinct.
type ACLRule struct {
	Direction          ACLDirection
	Action             Action
	LocalPort          string
	Protocol           string
	RemoteAddress      string
	Stateful           bool
	IdleSessionTimeout int
	Weight             int
}

// NewACLRule builds a normalized rule: ICMP-family rules get an empty local
// port, and only non-ICMP allow rules are stateful.
func NewACLRule(direction ACLDirection, localPort, protocol, remoteAddress string, action Action) ACLRule {
	notICMP := !IsICMP(protocol)
	if !notICMP {
		localPort = ""
	}
	return ACLRule{
		Direction:     direction,
		Action:        action,
		LocalPort:     localPort,
		Protocol:      protocol,
		RemoteAddress: remoteAddress,
		Stateful:      notICMP && action != ActionDeny,
		Weight:        DefaultWeight,
	}
}

// RuleKey is the identity of an ACLRule.
type RuleKey struct {
	Direction     ACLDirection
	Action        Action
	LocalPort     string
	Protocol      string
	RemoteAddress string
}

// String renders the key in a stable form, used as the provider-side rule tag.
func (k RuleKey) String() string {
	return fmt.Sprintf("%s/%s/%s/%s/%s", k.Direction, k.Action, k.Protocol, k.LocalPort, k.RemoteAddress)
}

// Key returns the identity of r.
func (r ACLRule) Key() RuleKey {
	return RuleKey{
		Direction:     r.Direction,
		Action:        r.Action,
		LocalPort:     r.LocalPort,
		Protocol:      r.Protocol,
		RemoteAddress: r.RemoteAddress,
	}
}

// Equal compares identities only.
func (r ACLRule) Equal(o ACLRule) bool {
	return r.Key() == o.Key()
}

// FullEqual compares every field, including IdleSessionTimeout and Weight.
func (r ACLRule) FullEqual(o ACLRule) bool {
	return r == o
}

// Fields serializes every field of the rule.
func (r ACLRule) Fields() map[string]any {
	return map[string]any{
		"Direction":          string(r.Direction),
		"Action":             string(r.Action),
		"LocalPort":          r.LocalPort,
		"Protocol":           r.Protocol,
		"RemoteIPAddress":    r.RemoteAddress,
		"Stateful":           r.Stateful,
		"IdleSessionTimeout": r.IdleSessionTimeout,
		"Weight":             r.Weight,
	}
}

func (r ACLRule) String() string {
	return fmt.Sprintf("%s %s proto=%s port=%q remote=%s stateful=%t",
		r.Direction, r.Action, r.Protocol, r.LocalPort, r.RemoteAddress, r.Stateful)
}

// RuleSet is an insertion-ordered set of ACLRules keyed by identity.
// The first rule added for a key is the one retained.
type RuleSet struct {
	rules []ACLRule
	index map[RuleKey]int
}

// NewRuleSet returns a set holding rules, duplicates dropped.
func NewRuleSet(rules ...ACLRule) *RuleSet {
	s := &RuleSet{index: make(map[RuleKey]int, len(rules))}
	for _, r := range rules {
		s.Add(r)
	}
	return s
}

// Add inserts r and reports whether it was not already present.
func (s *RuleSet) Add(r ACLRule) bool {
	k := r.Key()
	if _, ok := s.index[k]; ok {
		return false
	}
	s.index[k] = len(s.rules)
	s.rules = append(s.rules, r)
	return true
}

// Has reports whether a rule with r's identity is present.
func (s *RuleSet) Has(r ACLRule) bool {
	_, ok := s.index[r.Key()]
	return ok
}

// Remove deletes the rule with r's identity and reports whether it was present.
func (s *RuleSet) Remove(r ACLRule) bool {
	i, ok := s.index[r.Key()]
	if !ok {
		return false
	}
	s.rules = append(s.rules[:i], s.rules[i+1:]...)
	delete(s.index, r.Key())
	for j := i; j < len(s.rules); j++ {
		s.index[s.rules[j].Key()] = j
	}
	return true
}

// Len returns the number of rules.
func (s *RuleSet) Len() int {
	return len(s.rules)
}

// Rules returns a copy of the rules in insertion order.
func (s *RuleSet) Rules() []ACLRule {
	out := make([]ACLRule, len(s.rules))
	copy(out, s.rules)
	return out
}
