package validation

import (
	"strings"
	"testing"
)

func TestValidateInterfaceName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		// Happy paths
		{"simple", "tap0", false},
		{"with dash", "tap-0", false},
		{"with underscore", "tap_0", false},
		{"with dot (vlan)", "eth0.100", false},
		{"max length", "tap0123456789ab", false}, // 15 chars

		// Sad paths
		{"empty", "", true},
		{"too long", "tap01234567890123", true}, // 17 chars
		{"space", "tap 0", true},
		{"semicolon injection", "tap0;rm", true},
		{"pipe injection", "tap0|cat", true},
		{"dollar sign", "tap0$USER", true},
		{"backtick", "tap0`whoami`", true},
		{"newline", "tap0\n", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateInterfaceName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateInterfaceName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidatePortID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"uuid", "3f2a6c1e-9b1d-4c57-8d0e-2b6a1f0c9e44", false},
		{"short", "p1", false},
		{"dots and colons", "vm1.nic:0", false},
		{"max length", strings.Repeat("a", MaxPortIDLen), false},

		{"empty", "", true},
		{"too long", strings.Repeat("a", MaxPortIDLen+1), true},
		{"space", "port 1", true},
		{"slash", "port/1", true},
		{"quote", `port"1`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePortID(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePortID(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateProtocol(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"", false},
		{"tcp", false},
		{"UDP", false},
		{"icmp", false},
		{"ipv6-icmp", false},
		{"any", false},
		{"ANY", false},
		{"6", false},
		{"132", false},

		{"sctp", true},
		{"256", true},
		{"-1", true},
		{"tcp;drop", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			err := ValidateProtocol(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateProtocol(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}
