// Package secgroup turns security group rules into the per-port ACL rules an
// enforcement provider applies.
//
// A Driver owns the lifecycle of each port. On Prepare a port first receives
// a fail-closed baseline of deny rules, then the rules declared on the port,
// then the rules of its security groups as expanded by the Selector from the
// Cache. Update sends only the delta against what the provider has already
// confirmed, removals before additions. Bookkeeping changes only after the
// provider accepts a batch, so a failed call can simply be retried.
package secgroup
