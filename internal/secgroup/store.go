package secgroup

import "sync"

// portEntry is the bookkeeping for one port. It is only touched by the
// lifecycle call currently handling that port, so it carries no lock.
type portEntry struct {
	port       Port
	applied    *RuleSet
	groupRules []Rule
}

// portStore tracks registered devices and the rules applied to each port.
// The mutex protects the maps themselves; callers never run two lifecycle
// calls for the same port at once.
type portStore struct {
	mu      sync.Mutex
	devices map[string]*portEntry // by device, registered ports only
	entries map[string]*portEntry // by port id, including ports still being prepared
}

func newPortStore() *portStore {
	return &portStore{
		devices: make(map[string]*portEntry),
		entries: make(map[string]*portEntry),
	}
}

// lookup returns the entry of a registered device.
func (s *portStore) lookup(device string) (*portEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.devices[device]
	return e, ok
}

// pending returns the entry of a port id, creating an empty one if needed.
// Rules applied by an interrupted Prepare survive here until the next attempt.
func (s *portStore) pending(portID string) *portEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[portID]
	if !ok {
		e = &portEntry{applied: NewRuleSet()}
		s.entries[portID] = e
	}
	return e
}

// register records port and its group-derived rules on e and publishes the
// device, dropping the device e was registered under before.
func (s *portStore) register(e *portEntry, port Port, groupRules []Rule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old := e.port.ID; old != "" && old != port.ID {
		delete(s.entries, old)
	}
	if old := e.port.Device; old != "" && old != port.Device && s.devices[old] == e {
		delete(s.devices, old)
	}
	e.port = port.clone()
	e.groupRules = groupRules
	s.entries[port.ID] = e
	s.devices[port.Device] = e
}

// remove forgets a port and its device. It reports the number of tracked devices left.
func (s *portStore) remove(port Port) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.devices[port.Device]; ok && e.port.ID != "" && e.port.ID != port.ID {
		delete(s.entries, e.port.ID)
	}
	delete(s.devices, port.Device)
	delete(s.entries, port.ID)
	return len(s.devices)
}

// applied returns a copy of the rules applied to a port id.
func (s *portStore) applied(portID string) []ACLRule {
	s.mu.Lock()
	e, ok := s.entries[portID]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return e.applied.Rules()
}

// ports returns a snapshot of registered port descriptions keyed by device.
func (s *portStore) ports() map[string]Port {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Port, len(s.devices))
	for dev, e := range s.devices {
		out[dev] = e.port.clone()
	}
	return out
}

func (s *portStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.devices)
}

