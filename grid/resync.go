package grid

import (
	"github.com/rs/zerolog/log"

	"github.com/skygrid-io/gridmesh/cluster"
	"github.com/skygrid-io/gridmesh/telemetry"
)

// SyncForDead repairs listener registrations after a member death. Interests
// the dead member held are dropped, then every local item is replayed as if
// freshly registered: key ownership may have moved, and registrations the
// dead member served are gone with it. Replays are fire-and-forget; a drop
// here is repaired by the next membership change.
func (s *ListenerService) SyncForDead(dead cluster.Address) {
	s.interests.removeOrigin(dead)
	log.Info().
		Str("member", dead.String()).
		Msg("Replaying listener registrations after member death")
	s.SyncForAdd()
}

// SyncForAdd replays every non-local listener item to its current serving
// members. Serving members treat replays as set insertion, so replaying an
// already-known registration is harmless.
func (s *ListenerService) SyncForAdd() {
	for _, item := range s.table.Snapshot() {
		if item.LocalOnly {
			continue
		}
		s.registerListenerWithNoResponse(item.Name, item.EncodedKey, item.IncludeValue)
		telemetry.ResyncReplaysTotal.Inc()
	}
}

// SyncForAddMember replays every non-local listener item directly to one
// newly-joined member, so keyless interests reach it without waiting for a
// full resync cycle.
func (s *ListenerService) SyncForAddMember(newAddr cluster.Address) {
	if s.membership.IsLocal(newAddr) {
		return
	}
	for _, item := range s.table.Snapshot() {
		if item.LocalOnly {
			continue
		}
		s.sendAddListener(newAddr, item.Name, item.EncodedKey, item.IncludeValue)
		telemetry.ResyncReplaysTotal.Inc()
	}
}
