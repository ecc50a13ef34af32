// Package config loads the portguard HCL configuration: the enforcement
// backend, retry policy, security groups and the ports they apply to.
//
// Example:
//
//	log_level = "info"
//	state_db  = "/var/lib/portguard/state.db"
//
//	provider {
//	  backend = "nftables"
//	  table   = "portguard"
//	}
//
//	security_group "web" {
//	  rule {
//	    direction      = ingress
//	    protocol       = "tcp"
//	    port_range_min = 80
//	    port_range_max = 80
//	    remote_group   = "web"
//	  }
//	  members {
//	    ipv4 = ["10.0.0.1", "10.0.0.2"]
//	  }
//	}
//
//	port "p1" {
//	  device          = "tap0"
//	  fixed_ips       = ["10.0.0.1"]
//	  security_groups = ["web"]
//	}
package config
