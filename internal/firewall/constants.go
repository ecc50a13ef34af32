package firewall

// Protocol constants for rule generation
const (
	ProtoIPv4 = 2  // unix.NFPROTO_IPV4
	ProtoIPv6 = 10 // unix.NFPROTO_IPV6
)

// Backend names accepted by New.
const (
	BackendNFTables = "nftables"
	BackendMemory   = "memory"
)

// DefaultTable is the nftables table used when none is configured.
const DefaultTable = "portguard"

const (
	forwardChain = "forward"

	// UserData prefix of the dispatch rules in the forward chain
	bindTag = "bind:"
)
