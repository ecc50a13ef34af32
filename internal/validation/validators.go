// Package validation checks names that end up in kernel objects: device
// names in interface matches, port ids in chain names, protocol names in
// l4proto matches.
package validation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	// Valid interface name: alphanumeric, dash, underscore, dot (for VLANs), max 15 chars
	interfaceNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]{1,15}$`)

	// Port ids become part of chain names
	portIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_.:-]+$`)

	// Dangerous characters that should never appear in identifiers
	dangerousChars = []string{";", "|", "&", "$", "`", "(", ")", "<", ">", "\\", "\"", "'", "\n", "\r"}
)

// MaxPortIDLen leaves room for the direction prefix within the nftables
// chain name limit.
const MaxPortIDLen = 200

// protocolNames lists the protocol names a rule may use besides a number.
var protocolNames = []string{"any", "tcp", "udp", "icmp", "icmpv6", "ipv6-icmp"}

// ValidateInterfaceName validates a network interface name
func ValidateInterfaceName(name string) error {
	if name == "" {
		return fmt.Errorf("interface name cannot be empty")
	}

	if len(name) > 15 {
		return fmt.Errorf("interface name too long (max 15 characters): %s", name)
	}

	if !interfaceNameRegex.MatchString(name) {
		return fmt.Errorf("invalid interface name: %s (must be alphanumeric with -_.)", name)
	}

	return checkDangerous("interface name", name)
}

// ValidatePortID validates a port id used in chain names.
func ValidatePortID(id string) error {
	if id == "" {
		return fmt.Errorf("port id cannot be empty")
	}

	if len(id) > MaxPortIDLen {
		return fmt.Errorf("port id too long (max %d characters)", MaxPortIDLen)
	}

	if !portIDRegex.MatchString(id) {
		return fmt.Errorf("invalid port id: %s (must be alphanumeric with -_.:)", id)
	}

	return checkDangerous("port id", id)
}

// ValidateProtocol accepts an empty protocol (any), a known name in any
// casing, or an IP protocol number.
func ValidateProtocol(proto string) error {
	if proto == "" {
		return nil
	}

	lower := strings.ToLower(proto)
	for _, valid := range protocolNames {
		if lower == valid {
			return nil
		}
	}

	if n, err := strconv.Atoi(proto); err == nil {
		if n < 0 || n > 255 {
			return fmt.Errorf("invalid protocol number: %d (must be 0-255)", n)
		}
		return nil
	}

	return fmt.Errorf("invalid protocol: %s (must be a number or one of: %s)", proto, strings.Join(protocolNames, ", "))
}

func checkDangerous(what, s string) error {
	for _, char := range dangerousChars {
		if strings.Contains(s, char) {
			return fmt.Errorf("%s contains dangerous character: %s", what, char)
		}
	}
	return nil
}
