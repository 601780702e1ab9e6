package cluster

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// defaultPartitionCount matches the grid's fixed partition space. Ownership of
// a key never depends on which node computes it, only on the partition id and
// the current alive member set.
const defaultPartitionCount = 271

// Ring resolves which member owns a given (collection, key) pair. It hashes
// the encoded key into a fixed partition space and assigns each partition to
// a member by highest-random-weight, so partition moves on membership change
// are limited to partitions touching the changed member.
type Ring struct {
	membership *Membership
	partitions uint64
}

// NewRing creates an ownership resolver over the given membership.
func NewRing(membership *Membership) *Ring {
	return &Ring{
		membership: membership,
		partitions: defaultPartitionCount,
	}
}

// PartitionID maps an encoded key (with its collection name as namespace) to
// a partition.
func (r *Ring) PartitionID(name string, encodedKey []byte) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(name)
	_, _ = h.Write(encodedKey)
	return h.Sum64() % r.partitions
}

// ResolveOwner returns the member owning the given key. With a single member
// the local node owns everything.
func (r *Ring) ResolveOwner(name string, encodedKey []byte) Address {
	members := r.membership.Members()
	if len(members) == 0 {
		return r.membership.LocalAddress()
	}
	if len(members) == 1 {
		return members[0]
	}

	partition := r.PartitionID(name, encodedKey)

	var pid [8]byte
	binary.BigEndian.PutUint64(pid[:], partition)

	var best Address
	var bestWeight uint64
	for _, member := range members {
		h := xxhash.New()
		_, _ = h.WriteString(member.String())
		_, _ = h.Write(pid[:])
		if w := h.Sum64(); best.IsNil() || w > bestWeight {
			best = member
			bestWeight = w
		}
	}
	return best
}
