package cluster

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingSingleMemberOwnsEverything(t *testing.T) {
	m := NewMembership("nodea:7800")
	ring := NewRing(m)

	assert.Equal(t, Address("nodea:7800"), ring.ResolveOwner("orders", []byte("k1")))
	assert.Equal(t, Address("nodea:7800"), ring.ResolveOwner("users", nil))
}

func TestRingOwnershipIsDeterministic(t *testing.T) {
	// Two members with the same view must agree on every owner.
	ma := NewMembership("nodea:7800")
	ma.Add("nodeb:7800")
	ma.Add("nodec:7800")

	mb := NewMembership("nodeb:7800")
	mb.Add("nodea:7800")
	mb.Add("nodec:7800")

	ra, rb := NewRing(ma), NewRing(mb)
	for i := 0; i < 100; i++ {
		key := []byte("key-" + strconv.Itoa(i))
		assert.Equal(t, ra.ResolveOwner("orders", key), rb.ResolveOwner("orders", key))
	}
}

func TestRingPartitionIDStable(t *testing.T) {
	m := NewMembership("nodea:7800")
	ring := NewRing(m)

	p1 := ring.PartitionID("orders", []byte("k1"))
	p2 := ring.PartitionID("orders", []byte("k1"))
	assert.Equal(t, p1, p2)
	assert.Less(t, p1, uint64(defaultPartitionCount))

	// Collection name namespaces the key space.
	assert.NotPanics(t, func() {
		_ = ring.PartitionID("users", []byte("k1"))
	})
}

func TestRingSpreadsKeysAcrossMembers(t *testing.T) {
	m := NewMembership("nodea:7800")
	m.Add("nodeb:7800")
	m.Add("nodec:7800")
	ring := NewRing(m)

	owners := make(map[Address]int)
	for i := 0; i < 300; i++ {
		owner := ring.ResolveOwner("orders", []byte("key-"+strconv.Itoa(i)))
		owners[owner]++
	}

	// Every member should own a meaningful share.
	require.Len(t, owners, 3)
	for addr, count := range owners {
		assert.Greater(t, count, 30, "member %s owns too few keys", addr)
	}
}

func TestRingReassignsOnMembershipChange(t *testing.T) {
	m := NewMembership("nodea:7800")
	m.Add("nodeb:7800")
	ring := NewRing(m)

	moved := 0
	before := make(map[string]Address)
	for i := 0; i < 100; i++ {
		key := "key-" + strconv.Itoa(i)
		before[key] = ring.ResolveOwner("orders", []byte(key))
	}

	m.Remove("nodeb:7800")
	for key, owner := range before {
		if ring.ResolveOwner("orders", []byte(key)) != owner {
			moved++
		}
	}

	// Only keys owned by the removed member move.
	removedOwned := 0
	for _, owner := range before {
		if owner == Address("nodeb:7800") {
			removedOwned++
		}
	}
	assert.Equal(t, removedOwned, moved)
}
