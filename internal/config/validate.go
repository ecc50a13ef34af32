package config

import (
	"fmt"
	"net/netip"
	"strings"

	"grimm.is/portguard/internal/logging"
	"grimm.is/portguard/internal/validation"
)

var validBackends = map[string]bool{
	"nftables": true,
	"memory":   true,
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validate checks the structure of the configuration. References to
// security groups that are not declared are allowed; such groups simply
// contribute no rules.
func (c *Config) Validate() ValidationErrors {
	var errs ValidationErrors

	if c.SchemaVersion != "" && c.SchemaVersion != CurrentSchemaVersion {
		errs = append(errs, ValidationError{
			Field:   "schema_version",
			Message: fmt.Sprintf("unsupported version %q (supported: %s)", c.SchemaVersion, CurrentSchemaVersion),
		})
	}

	if c.LogLevel != "" {
		if _, err := logging.ParseLevel(c.LogLevel); err != nil {
			errs = append(errs, ValidationError{Field: "log_level", Message: err.Error()})
		}
	}

	errs = append(errs, c.validateProvider()...)
	errs = append(errs, c.validateRetry()...)
	errs = append(errs, c.validateGroups()...)
	errs = append(errs, c.validatePorts()...)

	return errs
}

func (c *Config) validateProvider() ValidationErrors {
	if c.Provider == nil || c.Provider.Backend == "" {
		return nil
	}
	if !validBackends[c.Provider.Backend] {
		return ValidationErrors{{
			Field:   "provider.backend",
			Message: fmt.Sprintf("unknown backend %q", c.Provider.Backend),
		}}
	}
	return nil
}

func (c *Config) validateRetry() ValidationErrors {
	if c.Retry == nil {
		return nil
	}
	var errs ValidationErrors

	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, ValidationError{Field: "retry.max_attempts", Message: "must be at least 1"})
	}
	if c.Retry.InitialDelay == "" || c.Retry.MaxDelay == "" {
		return errs
	}
	initial, maximum, err := c.Retry.Delays()
	if err != nil {
		return append(errs, ValidationError{Field: "retry", Message: err.Error()})
	}
	if initial > maximum {
		errs = append(errs, ValidationError{Field: "retry", Message: "initial_delay exceeds max_delay"})
	}
	return errs
}

func (c *Config) validateGroups() ValidationErrors {
	var errs ValidationErrors
	seen := make(map[string]bool)

	for i, g := range c.SecurityGroups {
		field := fmt.Sprintf("security_group[%d]", i)
		if g.Name == "" {
			errs = append(errs, ValidationError{Field: field, Message: "name is required"})
		} else if seen[g.Name] {
			errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf("duplicate security group %q", g.Name)})
		}
		seen[g.Name] = true

		for j, r := range g.RuleDefs {
			errs = append(errs, r.validate(fmt.Sprintf("%s.rule[%d]", field, j))...)
		}

		if g.Membership != nil {
			errs = append(errs, validateAddrs(field+".members.ipv4", g.Membership.IPv4, false)...)
			errs = append(errs, validateAddrs(field+".members.ipv6", g.Membership.IPv6, true)...)
		}
	}
	return errs
}

func (c *Config) validatePorts() ValidationErrors {
	var errs ValidationErrors
	ids := make(map[string]bool)
	devices := make(map[string]string)

	for i, p := range c.Ports {
		field := fmt.Sprintf("port[%d]", i)
		if err := validation.ValidatePortID(p.ID); err != nil {
			errs = append(errs, ValidationError{Field: field, Message: err.Error()})
		} else if ids[p.ID] {
			errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf("duplicate port %q", p.ID)})
		}
		ids[p.ID] = true

		if err := validation.ValidateInterfaceName(p.Device); err != nil {
			errs = append(errs, ValidationError{Field: field + ".device", Message: err.Error()})
		} else if other, ok := devices[p.Device]; ok {
			errs = append(errs, ValidationError{
				Field:   field + ".device",
				Message: fmt.Sprintf("device %q already used by port %q", p.Device, other),
			})
		} else {
			devices[p.Device] = p.ID
		}

		for _, ip := range p.FixedIPs {
			if _, err := netip.ParseAddr(ip); err != nil {
				errs = append(errs, ValidationError{Field: field + ".fixed_ips", Message: fmt.Sprintf("invalid address %q", ip)})
			}
		}

		for j, r := range p.RuleDefs {
			errs = append(errs, r.validate(fmt.Sprintf("%s.rule[%d]", field, j))...)
		}
	}
	return errs
}

func (r Rule) validate(field string) ValidationErrors {
	var errs ValidationErrors

	switch strings.ToLower(r.Direction) {
	case "ingress", "egress":
	default:
		errs = append(errs, ValidationError{Field: field + ".direction", Message: fmt.Sprintf("must be ingress or egress, got %q", r.Direction)})
	}

	switch strings.ToLower(r.Ethertype) {
	case "", "ipv4", "ipv6":
	default:
		errs = append(errs, ValidationError{Field: field + ".ethertype", Message: fmt.Sprintf("must be IPv4 or IPv6, got %q", r.Ethertype)})
	}

	if err := validation.ValidateProtocol(r.Protocol); err != nil {
		errs = append(errs, ValidationError{Field: field + ".protocol", Message: err.Error()})
	}

	if r.RemoteGroup != "" && r.RemoteIPPrefix != "" {
		errs = append(errs, ValidationError{Field: field, Message: "remote_group and remote_ip_prefix are mutually exclusive"})
	}

	if r.RemoteIPPrefix != "" {
		if _, err := netip.ParsePrefix(r.RemoteIPPrefix); err != nil {
			if _, err := netip.ParseAddr(r.RemoteIPPrefix); err != nil {
				errs = append(errs, ValidationError{Field: field + ".remote_ip_prefix", Message: fmt.Sprintf("invalid prefix %q", r.RemoteIPPrefix)})
			}
		}
	}

	bounds := []struct {
		name  string
		value *int
	}{
		{"port_range_min", r.PortRangeMin},
		{"port_range_max", r.PortRangeMax},
	}
	for _, b := range bounds {
		if b.value != nil && (*b.value < 0 || *b.value > 65535) {
			errs = append(errs, ValidationError{Field: field + "." + b.name, Message: fmt.Sprintf("out of range: %d", *b.value)})
		}
	}
	if r.PortRangeMin != nil && r.PortRangeMax != nil && *r.PortRangeMin > *r.PortRangeMax {
		errs = append(errs, ValidationError{Field: field, Message: "port_range_min exceeds port_range_max"})
	}

	return errs
}

// validateAddrs checks member addresses: a bare address or a prefix of the right family.
func validateAddrs(field string, addrs []string, v6 bool) ValidationErrors {
	var errs ValidationErrors
	for _, s := range addrs {
		var addr netip.Addr
		if p, err := netip.ParsePrefix(s); err == nil {
			addr = p.Addr()
		} else if a, err := netip.ParseAddr(s); err == nil {
			addr = a
		} else {
			errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf("invalid address %q", s)})
			continue
		}
		if addr.Is6() != v6 {
			errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf("address %q has the wrong family", s)})
		}
	}
	return errs
}
