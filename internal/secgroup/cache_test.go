package secgroup

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCache_ReplaceWhole(t *testing.T) {
	c := NewCache()
	r1 := Rule{Direction: DirectionIngress, Ethertype: EthertypeIPv4, Protocol: "tcp"}
	r2 := Rule{Direction: DirectionEgress, Ethertype: EthertypeIPv6}

	c.SetGroupRules("sg", []Rule{r1, r2})
	c.SetGroupRules("sg", []Rule{r2})
	assert.Equal(t, []Rule{r2}, c.GroupRules("sg"))

	c.SetGroupMembers("sg", Members{EthertypeIPv4: {"10.0.0.1", "10.0.0.2"}})
	c.SetGroupMembers("sg", Members{EthertypeIPv6: {"fd00::1"}})
	assert.Equal(t, Members{EthertypeIPv6: {"fd00::1"}}, c.GroupMembers("sg"))
}

func TestCache_ReturnsCopies(t *testing.T) {
	c := NewCache()
	in := []Rule{{Direction: DirectionIngress, Ethertype: EthertypeIPv4, Protocol: "tcp"}}
	members := Members{EthertypeIPv4: {"10.0.0.1"}}

	c.SetGroupRules("sg", in)
	c.SetGroupMembers("sg", members)

	in[0].Protocol = "udp"
	members[EthertypeIPv4][0] = "10.9.9.9"
	assert.Equal(t, "tcp", c.GroupRules("sg")[0].Protocol)
	assert.Equal(t, "10.0.0.1", c.GroupMembers("sg")[EthertypeIPv4][0])

	out := c.GroupRules("sg")
	out[0].Protocol = "icmp"
	got := c.GroupMembers("sg")
	got[EthertypeIPv4] = nil
	assert.Equal(t, "tcp", c.GroupRules("sg")[0].Protocol)
	assert.Len(t, c.GroupMembers("sg")[EthertypeIPv4], 1)
}

func TestCache_UnknownGroup(t *testing.T) {
	c := NewCache()
	assert.Nil(t, c.GroupRules("missing"))
	assert.Empty(t, c.GroupMembers("missing"))
	assert.NotNil(t, c.GroupMembers("missing"))
}

func TestCache_GroupsAndDelete(t *testing.T) {
	c := NewCache()
	c.SetGroupRules("b", nil)
	c.SetGroupMembers("a", Members{})
	c.SetGroupMembers("b", Members{})

	assert.Equal(t, []string{"a", "b"}, c.Groups())

	c.DeleteGroup("b")
	assert.Equal(t, []string{"a"}, c.Groups())
	assert.Nil(t, c.GroupRules("b"))
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := NewCache()
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("sg-%d", i%3)
			for j := 0; j < 100; j++ {
				c.SetGroupRules(id, []Rule{{Direction: DirectionIngress, Ethertype: EthertypeIPv4}})
				c.SetGroupMembers(id, Members{EthertypeIPv4: {fmt.Sprintf("10.0.%d.%d", i, j)}})
			}
		}(i)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("sg-%d", i%3)
			for j := 0; j < 100; j++ {
				_ = c.GroupRules(id)
				_ = c.GroupMembers(id)
				_ = c.Groups()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, []string{"sg-0", "sg-1", "sg-2"}, c.Groups())
}
