package firewall

import (
	"context"
	"fmt"

	"grimm.is/portguard/internal/logging"
	"grimm.is/portguard/internal/secgroup"
)

// Backend is an enforcement provider that also attaches ports to their devices.
type Backend interface {
	secgroup.Provider
	BindDevice(ctx context.Context, portID, device string) error
	ReleasePort(ctx context.Context, portID string) error
}

var (
	_ Backend = (*NFTablesProvider)(nil)
	_ Backend = (*MemoryProvider)(nil)
)

// New opens the named backend. The nftables table is set up before returning.
func New(backend, table string, logger *logging.Logger) (Backend, error) {
	switch backend {
	case "", BackendNFTables:
		p, err := OpenNFTables(table, logger)
		if err != nil {
			return nil, err
		}
		if err := p.Setup(); err != nil {
			return nil, err
		}
		return p, nil
	case BackendMemory:
		return NewMemoryProvider(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
}
