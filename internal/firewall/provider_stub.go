//go:build !linux
// +build !linux

package firewall

import (
	"context"

	"grimm.is/portguard/internal/logging"
	"grimm.is/portguard/internal/secgroup"
)

// NFTablesProvider enforces ACL rules with nftables (stub for non-Linux).
type NFTablesProvider struct{}

// OpenNFTables creates a provider (stub for non-Linux).
func OpenNFTables(table string, logger *logging.Logger) (*NFTablesProvider, error) {
	return nil, ErrNotSupported
}

// Setup prepares the table (stub for non-Linux).
func (p *NFTablesProvider) Setup() error {
	return ErrNotSupported
}

// CreateRules applies rules (stub for non-Linux).
func (p *NFTablesProvider) CreateRules(ctx context.Context, portID string, rules []secgroup.ACLRule) error {
	return ErrNotSupported
}

// RemoveRules deletes rules (stub for non-Linux).
func (p *NFTablesProvider) RemoveRules(ctx context.Context, portID string, rules []secgroup.ACLRule) error {
	return ErrNotSupported
}

// InvalidateCache is a no-op on non-Linux systems.
func (p *NFTablesProvider) InvalidateCache(portID string) {}

// BindDevice attaches a device (stub for non-Linux).
func (p *NFTablesProvider) BindDevice(ctx context.Context, portID, device string) error {
	return ErrNotSupported
}

// ReleasePort detaches a port (stub for non-Linux).
func (p *NFTablesProvider) ReleasePort(ctx context.Context, portID string) error {
	return ErrNotSupported
}
