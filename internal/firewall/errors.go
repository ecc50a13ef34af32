package firewall

import (
	"errors"
	"fmt"
	"runtime"
)

var (
	// ErrUnsupportedProtocol is returned for rules whose protocol the
	// provider cannot express. Nothing of the batch is applied.
	ErrUnsupportedProtocol = errors.New("unsupported protocol")

	// ErrNotSupported is returned when nftables operations are attempted on non-Linux systems.
	ErrNotSupported = fmt.Errorf("nftables enforcement not supported on %s", runtime.GOOS)

	// ErrUnknownBackend is returned by New for an unrecognized backend name.
	ErrUnknownBackend = errors.New("unknown provider backend")
)
