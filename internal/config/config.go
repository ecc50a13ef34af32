package config

import (
	"fmt"
	"time"

	"grimm.is/portguard/internal/brand"
)

// CurrentSchemaVersion defines the current schema version of the configuration.
const CurrentSchemaVersion = "1.0"

// Defaults applied to omitted settings.
const (
	DefaultLogLevel      = "info"
	DefaultMetricsListen = ":9108"
	DefaultBackend       = "nftables"
	DefaultTable         = "portguard"
	DefaultMaxAttempts   = 3
	DefaultInitialDelay  = "500ms"
	DefaultMaxDelay      = "10s"
)

// Config is the top-level structure of the portguard configuration.
type Config struct {
	// Schema version for backward compatibility; empty means "1.0"
	SchemaVersion string `hcl:"schema_version,optional" json:"schema_version,omitempty"`

	LogLevel      string `hcl:"log_level,optional" json:"log_level,omitempty"`
	LogJSON       bool   `hcl:"log_json,optional" json:"log_json,omitempty"`
	StateDB       string `hcl:"state_db,optional" json:"state_db,omitempty"`
	MetricsListen string `hcl:"metrics_listen,optional" json:"metrics_listen,omitempty"`

	Provider *ProviderConfig `hcl:"provider,block" json:"provider,omitempty"`
	Retry    *RetryConfig    `hcl:"retry,block" json:"retry,omitempty"`

	SecurityGroups []SecurityGroup `hcl:"security_group,block" json:"security_groups,omitempty"`
	Ports          []Port          `hcl:"port,block" json:"ports,omitempty"`
}

// ProviderConfig selects the enforcement backend.
type ProviderConfig struct {
	Backend string `hcl:"backend,optional" json:"backend,omitempty"` // nftables, memory
	Table   string `hcl:"table,optional" json:"table,omitempty"`     // nftables table name
}

// RetryConfig controls how often a failed port is retried within one sync.
type RetryConfig struct {
	MaxAttempts  int    `hcl:"max_attempts,optional" json:"max_attempts,omitempty"`
	InitialDelay string `hcl:"initial_delay,optional" json:"initial_delay,omitempty"`
	MaxDelay     string `hcl:"max_delay,optional" json:"max_delay,omitempty"`
}

// Delays parses the backoff bounds.
func (r *RetryConfig) Delays() (initial, maximum time.Duration, err error) {
	initial, err = time.ParseDuration(r.InitialDelay)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid initial_delay %q: %w", r.InitialDelay, err)
	}
	maximum, err = time.ParseDuration(r.MaxDelay)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid max_delay %q: %w", r.MaxDelay, err)
	}
	return initial, maximum, nil
}

// SecurityGroup declares the rule templates and membership of one group.
type SecurityGroup struct {
	Name       string   `hcl:"name,label" json:"name"`
	RuleDefs   []Rule   `hcl:"rule,block" json:"rules,omitempty"`
	Membership *Members `hcl:"members,block" json:"members,omitempty"`
}

// Members lists the addresses belonging to a group.
type Members struct {
	IPv4 []string `hcl:"ipv4,optional" json:"ipv4,omitempty"`
	IPv6 []string `hcl:"ipv6,optional" json:"ipv6,omitempty"`
}

// Rule is a declarative rule, either a group template or a port rule.
type Rule struct {
	Direction      string `hcl:"direction" json:"direction"`
	Ethertype      string `hcl:"ethertype,optional" json:"ethertype,omitempty"`
	Protocol       string `hcl:"protocol,optional" json:"protocol,omitempty"`
	PortRangeMin   *int   `hcl:"port_range_min,optional" json:"port_range_min,omitempty"`
	PortRangeMax   *int   `hcl:"port_range_max,optional" json:"port_range_max,omitempty"`
	RemoteGroup    string `hcl:"remote_group,optional" json:"remote_group,omitempty"`
	RemoteIPPrefix string `hcl:"remote_ip_prefix,optional" json:"remote_ip_prefix,omitempty"`
}

// Port declares a virtual network port.
type Port struct {
	ID             string   `hcl:"id,label" json:"id"`
	Device         string   `hcl:"device" json:"device"`
	FixedIPs       []string `hcl:"fixed_ips,optional" json:"fixed_ips,omitempty"`
	SecurityGroups []string `hcl:"security_groups,optional" json:"security_groups,omitempty"`
	RuleDefs       []Rule   `hcl:"rule,block" json:"rules,omitempty"`
}

// applyDefaults fills in omitted settings.
func (c *Config) applyDefaults() {
	if c.SchemaVersion == "" {
		c.SchemaVersion = CurrentSchemaVersion
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.StateDB == "" {
		c.StateDB = brand.StatePath()
	}
	if c.MetricsListen == "" {
		c.MetricsListen = DefaultMetricsListen
	}

	if c.Provider == nil {
		c.Provider = &ProviderConfig{}
	}
	if c.Provider.Backend == "" {
		c.Provider.Backend = DefaultBackend
	}
	if c.Provider.Table == "" {
		c.Provider.Table = DefaultTable
	}

	if c.Retry == nil {
		c.Retry = &RetryConfig{}
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = DefaultMaxAttempts
	}
	if c.Retry.InitialDelay == "" {
		c.Retry.InitialDelay = DefaultInitialDelay
	}
	if c.Retry.MaxDelay == "" {
		c.Retry.MaxDelay = DefaultMaxDelay
	}
}
