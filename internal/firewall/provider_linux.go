//go:build linux
// +build linux

package firewall

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/nftables"
	"github.com/google/nftables/expr"

	"grimm.is/portguard/internal/logging"
	"grimm.is/portguard/internal/secgroup"
)

var errNotSetUp = errors.New("nftables provider not set up")

// NFTablesProvider enforces ACL rules with nftables.
//
// All state lives in one inet table. The forward base chain accepts tracked
// connections and dispatches each bound device to the regular chains of its
// port: traffic leaving through the device jumps to in-<port>, traffic
// arriving from it jumps to out-<port>. Allow rules are inserted at the head
// of a port chain and deny rules appended, so allows win over the baseline.
// Each rule is tagged with its ACL identity in UserData.
type NFTablesProvider struct {
	mu     sync.Mutex
	conn   NFTablesConn
	table  *nftables.Table
	base   *nftables.Chain
	chains map[string]*portChains
	logger *logging.Logger
}

type portChains struct {
	in     *nftables.Chain
	out    *nftables.Chain
	device string
}

func (pc *portChains) chain(dir secgroup.ACLDirection) *nftables.Chain {
	if dir == secgroup.ACLDirectionIn {
		return pc.in
	}
	return pc.out
}

// OpenNFTables creates a provider on a new netlink connection.
func OpenNFTables(table string, logger *logging.Logger) (*NFTablesProvider, error) {
	conn, err := nftables.New()
	if err != nil {
		return nil, fmt.Errorf("failed to open nftables connection: %w", err)
	}
	return NewNFTablesProvider(NewRealNFTablesConn(conn), table, logger), nil
}

// NewNFTablesProvider creates a provider with an injected connection.
func NewNFTablesProvider(conn NFTablesConn, table string, logger *logging.Logger) *NFTablesProvider {
	if table == "" {
		table = DefaultTable
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &NFTablesProvider{
		conn:   conn,
		table:  &nftables.Table{Name: table, Family: nftables.TableFamilyINet},
		chains: make(map[string]*portChains),
		logger: logger.WithComponent("nftables"),
	}
}

// Setup recreates the table with a forward chain that accepts established
// and related traffic. Rules left by a previous run are discarded.
func (p *NFTablesProvider) Setup() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	// The table may not exist yet
	p.conn.DelTable(p.table)
	_ = p.conn.Flush()

	p.conn.AddTable(p.table)
	policy := nftables.ChainPolicyAccept
	base := p.conn.AddChain(&nftables.Chain{
		Name:     forwardChain,
		Table:    p.table,
		Type:     nftables.ChainTypeFilter,
		Hooknum:  nftables.ChainHookForward,
		Priority: nftables.ChainPriorityFilter,
		Policy:   &policy,
	})
	p.conn.AddRule(&nftables.Rule{
		Table: p.table,
		Chain: base,
		Exprs: buildEstablishedAccept(),
	})

	if err := p.conn.Flush(); err != nil {
		return fmt.Errorf("failed to create table %s: %w", p.table.Name, err)
	}

	p.base = base
	p.chains = make(map[string]*portChains)
	p.logger.Info("nftables table ready", "table", p.table.Name)
	return nil
}

// CreateRules applies a batch of rules to a port in one transaction.
func (p *NFTablesProvider) CreateRules(ctx context.Context, portID string, rules []secgroup.ACLRule) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	built := make([][]expr.Any, len(rules))
	for i, r := range rules {
		exprs, err := buildACLExprs(r)
		if err != nil {
			return fmt.Errorf("rule %s: %w", r.Key(), err)
		}
		built[i] = exprs
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.base == nil {
		return errNotSetUp
	}

	pc, created := p.portChainsFor(portID)
	for i, r := range rules {
		rule := &nftables.Rule{
			Table:    p.table,
			Chain:    pc.chain(r.Direction),
			Exprs:    built[i],
			UserData: []byte(r.Key().String()),
		}
		if r.Action == secgroup.ActionAllow {
			p.conn.InsertRule(rule)
		} else {
			p.conn.AddRule(rule)
		}
	}

	if err := p.conn.Flush(); err != nil {
		if created {
			delete(p.chains, portID)
		}
		return fmt.Errorf("failed to commit %d rules: %w", len(rules), err)
	}

	p.logger.Debug("rules created", "port", portID, "rules", len(rules))
	return nil
}

// RemoveRules deletes the rules of a port matching the identities in rules.
// Rules already absent are ignored.
func (p *NFTablesProvider) RemoveRules(ctx context.Context, portID string, rules []secgroup.ACLRule) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	keys := make(map[string]struct{}, len(rules))
	for _, r := range rules {
		keys[r.Key().String()] = struct{}{}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.base == nil {
		return errNotSetUp
	}

	deleted := 0
	for _, chain := range p.chainRefs(portID) {
		existing, err := p.conn.GetRules(p.table, chain)
		if err != nil {
			return fmt.Errorf("failed to list rules of chain %s: %w", chain.Name, err)
		}
		for _, rule := range existing {
			if _, ok := keys[string(rule.UserData)]; !ok {
				continue
			}
			if err := p.conn.DelRule(rule); err != nil {
				return fmt.Errorf("failed to delete rule %s: %w", rule.UserData, err)
			}
			deleted++
		}
	}

	if deleted == 0 {
		return nil
	}
	if err := p.conn.Flush(); err != nil {
		return fmt.Errorf("failed to commit removal of %d rules: %w", deleted, err)
	}

	p.logger.Debug("rules removed", "port", portID, "rules", deleted)
	return nil
}

// InvalidateCache forgets the chain handles of a port. Enforced rules stay.
func (p *NFTablesProvider) InvalidateCache(portID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.chains, portID)
}

// BindDevice dispatches the traffic of device to the chains of a port,
// replacing any earlier binding of that port.
func (p *NFTablesProvider) BindDevice(ctx context.Context, portID, device string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if device == "" {
		return fmt.Errorf("port %s has no device", portID)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.base == nil {
		return errNotSetUp
	}

	pc, created := p.portChainsFor(portID)
	if pc.device == device {
		return nil
	}

	if err := p.unbind(portID); err != nil {
		return err
	}

	tag := []byte(bindTag + portID)
	p.conn.AddRule(&nftables.Rule{
		Table:    p.table,
		Chain:    p.base,
		Exprs:    append(buildInterfaceMatch(device, false), &expr.Verdict{Kind: expr.VerdictJump, Chain: pc.in.Name}),
		UserData: tag,
	})
	p.conn.AddRule(&nftables.Rule{
		Table:    p.table,
		Chain:    p.base,
		Exprs:    append(buildInterfaceMatch(device, true), &expr.Verdict{Kind: expr.VerdictJump, Chain: pc.out.Name}),
		UserData: tag,
	})

	if err := p.conn.Flush(); err != nil {
		if created {
			delete(p.chains, portID)
		}
		return fmt.Errorf("failed to bind device %s: %w", device, err)
	}

	pc.device = device
	p.logger.Info("device bound", "port", portID, "device", device)
	return nil
}

// ReleasePort removes the dispatch rules and chains of a port.
func (p *NFTablesProvider) ReleasePort(ctx context.Context, portID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.base == nil {
		return errNotSetUp
	}

	if err := p.unbind(portID); err != nil {
		return err
	}
	// Chains are only known to exist while cached
	if pc, ok := p.chains[portID]; ok {
		for _, c := range []*nftables.Chain{pc.in, pc.out} {
			p.conn.FlushChain(c)
			p.conn.DelChain(c)
		}
	}

	if err := p.conn.Flush(); err != nil {
		return fmt.Errorf("failed to release port %s: %w", portID, err)
	}

	delete(p.chains, portID)
	p.logger.Info("port released", "port", portID)
	return nil
}

// unbind queues deletion of the dispatch rules of a port. Caller holds p.mu.
func (p *NFTablesProvider) unbind(portID string) error {
	existing, err := p.conn.GetRules(p.table, p.base)
	if err != nil {
		return fmt.Errorf("failed to list rules of chain %s: %w", p.base.Name, err)
	}
	tag := bindTag + portID
	for _, rule := range existing {
		if string(rule.UserData) != tag {
			continue
		}
		if err := p.conn.DelRule(rule); err != nil {
			return fmt.Errorf("failed to delete dispatch rule of port %s: %w", portID, err)
		}
	}
	return nil
}

// portChainsFor returns the chains of a port, queueing their creation on
// first use. Caller holds p.mu.
func (p *NFTablesProvider) portChainsFor(portID string) (*portChains, bool) {
	if pc, ok := p.chains[portID]; ok {
		return pc, false
	}
	pc := &portChains{
		in: p.conn.AddChain(&nftables.Chain{
			Name:  chainName(secgroup.ACLDirectionIn, portID),
			Table: p.table,
		}),
		out: p.conn.AddChain(&nftables.Chain{
			Name:  chainName(secgroup.ACLDirectionOut, portID),
			Table: p.table,
		}),
	}
	p.chains[portID] = pc
	return pc, true
}

// chainRefs returns the chains of a port without creating them. Caller holds p.mu.
func (p *NFTablesProvider) chainRefs(portID string) []*nftables.Chain {
	if pc, ok := p.chains[portID]; ok {
		return []*nftables.Chain{pc.in, pc.out}
	}
	return []*nftables.Chain{
		{Name: chainName(secgroup.ACLDirectionIn, portID), Table: p.table},
		{Name: chainName(secgroup.ACLDirectionOut, portID), Table: p.table},
	}
}

func chainName(dir secgroup.ACLDirection, portID string) string {
	return string(dir) + "-" + strings.ReplaceAll(portID, " ", "_")
}
