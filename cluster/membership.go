package cluster

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// MemberStatus tracks the liveness of a member.
type MemberStatus int

const (
	StatusAlive MemberStatus = iota
	StatusSuspect
	StatusDead
)

func (s MemberStatus) String() string {
	switch s {
	case StatusAlive:
		return "ALIVE"
	case StatusSuspect:
		return "SUSPECT"
	case StatusDead:
		return "DEAD"
	default:
		return "UNKNOWN"
	}
}

// Member is one entry in the membership table.
type Member struct {
	Address Address
	Status  MemberStatus
}

// MemberInfo is the admin-facing view of a member.
type MemberInfo struct {
	Address  string `json:"address"`
	Status   string `json:"status"`
	LastSeen int64  `json:"last_seen"`
	Local    bool   `json:"local"`
}

// Membership is the node-local view of the cluster. The local member is always
// present and always ALIVE. Join and death callbacks fire outside the lock so
// handlers can call back into the membership without deadlocking.
type Membership struct {
	local    Address
	members  map[Address]*Member
	lastSeen map[Address]time.Time
	mu       sync.RWMutex

	onJoinFunc func(Address)
	onDeadFunc func(Address)
	callbackMu sync.RWMutex
}

// NewMembership creates a membership table seeded with the local member.
func NewMembership(local Address) *Membership {
	m := &Membership{
		local:    local,
		members:  make(map[Address]*Member),
		lastSeen: make(map[Address]time.Time),
	}
	m.members[local] = &Member{Address: local, Status: StatusAlive}
	m.lastSeen[local] = time.Now()
	return m
}

// LocalAddress returns this node's own address.
func (m *Membership) LocalAddress() Address {
	return m.local
}

// IsLocal reports whether addr is this node.
func (m *Membership) IsLocal(addr Address) bool {
	return addr == m.local
}

// Add registers a member as ALIVE. Re-adding a known member revives it.
// The join callback fires only for members not previously alive.
func (m *Membership) Add(addr Address) {
	if addr.IsNil() || addr == m.local {
		return
	}

	m.mu.Lock()
	existing, known := m.members[addr]
	wasAlive := known && existing.Status == StatusAlive
	m.members[addr] = &Member{Address: addr, Status: StatusAlive}
	m.lastSeen[addr] = time.Now()
	m.mu.Unlock()

	if wasAlive {
		return
	}

	log.Info().Str("member", addr.String()).Msg("Member joined")

	m.callbackMu.RLock()
	callback := m.onJoinFunc
	m.callbackMu.RUnlock()
	if callback != nil {
		callback(addr)
	}
}

// Remove drops a member from the table and fires the death callback.
func (m *Membership) Remove(addr Address) {
	if addr == m.local {
		return
	}

	m.mu.Lock()
	_, known := m.members[addr]
	delete(m.members, addr)
	delete(m.lastSeen, addr)
	m.mu.Unlock()

	if !known {
		return
	}

	log.Warn().Str("member", addr.String()).Msg("Member removed")

	m.callbackMu.RLock()
	callback := m.onDeadFunc
	m.callbackMu.RUnlock()
	if callback != nil {
		callback(addr)
	}
}

// Touch updates a member's last-seen timestamp. Any inbound packet from a peer
// counts as an implicit heartbeat.
func (m *Membership) Touch(addr Address) {
	m.mu.Lock()
	if _, ok := m.members[addr]; ok {
		m.lastSeen[addr] = time.Now()
	}
	m.mu.Unlock()
}

// Members returns the alive members in stable address order, local included.
func (m *Membership) Members() []Address {
	m.mu.RLock()
	addrs := make([]Address, 0, len(m.members))
	for addr, member := range m.members {
		if member.Status == StatusAlive {
			addrs = append(addrs, addr)
		}
	}
	m.mu.RUnlock()

	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	return addrs
}

// Contains reports whether addr is a known alive member.
func (m *Membership) Contains(addr Address) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	member, ok := m.members[addr]
	return ok && member.Status == StatusAlive
}

// Count returns the number of alive members.
func (m *Membership) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, member := range m.members {
		if member.Status == StatusAlive {
			count++
		}
	}
	return count
}

// StatusCounts returns member counts keyed by status name. Used by the
// telemetry collector.
func (m *Membership) StatusCounts() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := map[string]int{
		StatusAlive.String():   0,
		StatusSuspect.String(): 0,
		StatusDead.String():    0,
	}
	for _, member := range m.members {
		counts[member.Status.String()]++
	}
	return counts
}

// CheckTimeouts sweeps the table, marking quiet members SUSPECT and removing
// SUSPECT members that stayed quiet past deadTimeout. Death callbacks fire
// outside the lock.
func (m *Membership) CheckTimeouts(suspectTimeout, deadTimeout time.Duration) {
	m.mu.Lock()

	now := time.Now()
	var dead []Address

	for addr, member := range m.members {
		if addr == m.local {
			continue
		}

		elapsed := now.Sub(m.lastSeen[addr])

		switch member.Status {
		case StatusAlive:
			if elapsed > suspectTimeout {
				member.Status = StatusSuspect
				log.Warn().Str("member", addr.String()).Msg("Member marked SUSPECT")
			}
		case StatusSuspect:
			if elapsed > deadTimeout {
				member.Status = StatusDead
				log.Error().Str("member", addr.String()).Msg("Member marked DEAD")
				dead = append(dead, addr)
			}
		}
	}

	for _, addr := range dead {
		delete(m.members, addr)
		delete(m.lastSeen, addr)
	}

	m.mu.Unlock()

	if len(dead) == 0 {
		return
	}

	m.callbackMu.RLock()
	callback := m.onDeadFunc
	m.callbackMu.RUnlock()
	if callback != nil {
		for _, addr := range dead {
			callback(addr)
		}
	}
}

// SetOnMemberJoin sets the callback fired when a member becomes alive.
func (m *Membership) SetOnMemberJoin(callback func(Address)) {
	m.callbackMu.Lock()
	defer m.callbackMu.Unlock()
	m.onJoinFunc = callback
}

// SetOnMemberDead sets the callback fired when a member dies or is removed.
func (m *Membership) SetOnMemberDead(callback func(Address)) {
	m.callbackMu.Lock()
	defer m.callbackMu.Unlock()
	m.onDeadFunc = callback
}

// GetMembershipInfo returns the admin view of every known member.
func (m *Membership) GetMembershipInfo() []MemberInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]MemberInfo, 0, len(m.members))
	for addr, member := range m.members {
		infos = append(infos, MemberInfo{
			Address:  addr.String(),
			Status:   member.Status.String(),
			LastSeen: m.lastSeen[addr].Unix(),
			Local:    addr == m.local,
		})
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Address < infos[j].Address })
	return infos
}
