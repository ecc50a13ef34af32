package secgroup

import "context"

// Provider is the enforcement engine that applies ACL rules to a port.
//
// CreateRules and RemoveRules either apply the whole batch or fail; the
// Driver treats a returned error as "nothing in this batch changed".
// InvalidateCache drops any per-port bookkeeping the provider keeps; it does
// not remove enforced rules.
type Provider interface {
	CreateRules(ctx context.Context, portID string, rules []ACLRule) error
	RemoveRules(ctx context.Context, portID string, rules []ACLRule) error
	InvalidateCache(portID string)
}

// PortFilter is the lifecycle surface consumed by the host orchestrator.
type PortFilter interface {
	Prepare(ctx context.Context, port Port) error
	Update(ctx context.Context, port Port) error
	Remove(port Port)
	DeferApplyOn()
	DeferApplyOff()
	SecurityGroupUpdated(kind string, groupIDs []string, deviceID string)
	Ports() map[string]Port
}
