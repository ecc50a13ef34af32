package firewall

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/portguard/internal/logging"
	"grimm.is/portguard/internal/secgroup"
)

func TestMemoryProvider(t *testing.T) {
	m := NewMemoryProvider()
	ctx := context.Background()

	deny := secgroup.NewACLRule(secgroup.ACLDirectionIn, secgroup.Any, secgroup.ProtocolTCP, "0.0.0.0/0", secgroup.ActionDeny)
	allow := secgroup.NewACLRule(secgroup.ACLDirectionIn, "80-80", secgroup.ProtocolTCP, "0.0.0.0/0", secgroup.ActionAllow)

	require.NoError(t, m.CreateRules(ctx, "p2", []secgroup.ACLRule{deny}))
	require.NoError(t, m.CreateRules(ctx, "p1", []secgroup.ACLRule{deny, allow, deny}))
	assert.Equal(t, []secgroup.ACLRule{deny, allow}, m.Rules("p1"))
	assert.Equal(t, []string{"p1", "p2"}, m.Ports())

	require.NoError(t, m.RemoveRules(ctx, "p1", []secgroup.ACLRule{deny}))
	assert.Equal(t, []secgroup.ACLRule{allow}, m.Rules("p1"))
	require.NoError(t, m.RemoveRules(ctx, "missing", []secgroup.ACLRule{deny}))

	m.InvalidateCache("p1")
	assert.Equal(t, []string{"p1"}, m.Invalidated)
	assert.Len(t, m.Rules("p1"), 1, "invalidation keeps enforced rules")

	require.NoError(t, m.BindDevice(ctx, "p1", "tap1"))
	dev, ok := m.Device("p1")
	assert.True(t, ok)
	assert.Equal(t, "tap1", dev)

	require.NoError(t, m.ReleasePort(ctx, "p1"))
	assert.Nil(t, m.Rules("p1"))
	_, ok = m.Device("p1")
	assert.False(t, ok)
}

func TestMemoryProvider_FailNext(t *testing.T) {
	m := NewMemoryProvider()
	ctx := context.Background()
	boom := errors.New("boom")
	rule := secgroup.NewACLRule(secgroup.ACLDirectionOut, secgroup.Any, secgroup.ProtocolUDP, "::/0", secgroup.ActionDeny)

	m.FailNext(OpCreate, boom)
	m.FailNext(OpCreate, boom)

	assert.ErrorIs(t, m.CreateRules(ctx, "p1", []secgroup.ACLRule{rule}), boom)
	assert.ErrorIs(t, m.CreateRules(ctx, "p1", []secgroup.ACLRule{rule}), boom)
	assert.Nil(t, m.Rules("p1"), "failed batches record nothing")

	require.NoError(t, m.CreateRules(ctx, "p1", []secgroup.ACLRule{rule}))
	assert.Len(t, m.Rules("p1"), 1)

	m.FailNext(OpRemove, boom)
	assert.ErrorIs(t, m.RemoveRules(ctx, "p1", []secgroup.ACLRule{rule}), boom)
	assert.Len(t, m.Rules("p1"), 1)

	m.FailNext(OpBind, boom)
	assert.ErrorIs(t, m.BindDevice(ctx, "p1", "tap1"), boom)
}

func TestMemoryProvider_DrivenBySecgroup(t *testing.T) {
	m := NewMemoryProvider()
	d := secgroup.NewDriver(m, nil, logging.Discard())
	d.SetGroupRules("web", []secgroup.Rule{
		secgroup.Rule{Direction: secgroup.DirectionIngress, Ethertype: secgroup.EthertypeIPv4, Protocol: "tcp"}.WithPorts(443, 443),
	})

	port := secgroup.Port{ID: "p1", Device: "tap1", SecurityGroups: []string{"web"}}
	require.NoError(t, d.Prepare(context.Background(), port))

	assert.Len(t, m.Rules("p1"), 17)
	assert.Equal(t, d.AppliedRules("p1"), m.Rules("p1"))
}

func TestNew(t *testing.T) {
	b, err := New(BackendMemory, "", logging.Discard())
	require.NoError(t, err)
	assert.IsType(t, &MemoryProvider{}, b)

	_, err = New("iptables", "", logging.Discard())
	assert.ErrorIs(t, err, ErrUnknownBackend)
}
