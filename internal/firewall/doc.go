// Package firewall enforces per-port ACL rules.
//
// # Backends
//
//   - [NFTablesProvider]: applies rules to the kernel through nftables (Linux only)
//   - [MemoryProvider]: records rules in memory, used for rendering and dry runs
//
// Both implement [Backend], which adds device binding to the
// secgroup.Provider contract.
//
// # nftables layout
//
//	table inet portguard
//	  chain forward (hook forward, policy accept)
//	    ct state established,related accept
//	    oifname "tap1" jump in-p1
//	    iifname "tap1" jump out-p1
//	  chain in-p1
//	    <allow rules> ... <deny rules>
//	  chain out-p1
//	    <allow rules> ... <deny rules>
//
// Every port rule carries the identity of its ACL rule in UserData, which is
// how RemoveRules finds it again.
package firewall
