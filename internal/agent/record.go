package agent

import (
	"encoding/json"
	"fmt"
	"sort"

	"grimm.is/portguard/internal/secgroup"
	"grimm.is/portguard/internal/state"
)

// PortsBucket is the state bucket holding one PortRecord per port id.
const PortsBucket = "ports"

// PortRecord is what the state store remembers about a synced port.
type PortRecord struct {
	ID     string           `json:"id"`
	Device string           `json:"device"`
	SyncID string           `json:"sync_id"`
	Rules  []map[string]any `json:"rules"`
}

// NewPortRecord snapshots the rules applied to port.
func NewPortRecord(port secgroup.Port, syncID string, rules []secgroup.ACLRule) PortRecord {
	rec := PortRecord{
		ID:     port.ID,
		Device: port.Device,
		SyncID: syncID,
		Rules:  make([]map[string]any, 0, len(rules)),
	}
	for _, r := range rules {
		rec.Rules = append(rec.Rules, r.Fields())
	}
	return rec
}

// RuleLines renders every rule on one line, sorted.
func (p PortRecord) RuleLines() []string {
	lines := make([]string, 0, len(p.Rules))
	for _, f := range p.Rules {
		lines = append(lines, FieldsLine(f))
	}
	sort.Strings(lines)
	return lines
}

// FieldsLine renders the output of ACLRule.Fields. Rules read back from JSON
// render the same as live ones.
func FieldsLine(f map[string]any) string {
	return fmt.Sprintf("%v %v proto=%v port=%q remote=%v stateful=%v",
		f["Direction"], f["Action"], f["Protocol"], fmt.Sprint(f["LocalPort"]), f["RemoteIPAddress"], f["Stateful"])
}

// RuleLines renders live rules the way PortRecord.RuleLines renders stored ones.
func RuleLines(rules []secgroup.ACLRule) []string {
	lines := make([]string, 0, len(rules))
	for _, r := range rules {
		lines = append(lines, FieldsLine(r.Fields()))
	}
	sort.Strings(lines)
	return lines
}

// LoadRecords reads every stored port record, keyed by port id.
func LoadRecords(store state.Store) (map[string]PortRecord, error) {
	values, err := store.List(PortsBucket)
	if err != nil {
		return nil, err
	}
	out := make(map[string]PortRecord, len(values))
	for k, v := range values {
		var rec PortRecord
		if err := json.Unmarshal(v, &rec); err != nil {
			return nil, fmt.Errorf("failed to read record of port %s: %w", k, err)
		}
		out[k] = rec
	}
	return out, nil
}
