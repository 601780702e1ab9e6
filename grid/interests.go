package grid

import (
	"sync"

	"github.com/skygrid-io/gridmesh/cluster"
)

// interestKey identifies one remote interest. A non-nil encoded key is never
// empty, so the empty string unambiguously means "whole collection".
type interestKey struct {
	origin cluster.Address
	name   string
	key    string
}

// RemoteInterest is one registered interest served by this node: the origin
// member wants events for (name, key).
type RemoteInterest struct {
	Origin       cluster.Address
	Name         string
	EncodedKey   []byte
	IncludeValue bool
}

// InterestInfo is the admin-facing view of a remote interest.
type InterestInfo struct {
	Origin       string `json:"origin"`
	Name         string `json:"name"`
	HasKey       bool   `json:"has_key"`
	IncludeValue bool   `json:"include_value"`
}

// interestRegistry records which members want events from this node. Add is
// set insertion: replaying a known registration overwrites in place, so resync
// is idempotent and never multiplies dispatch.
type interestRegistry struct {
	mu        sync.RWMutex
	interests map[interestKey]*RemoteInterest
}

func newInterestRegistry() *interestRegistry {
	return &interestRegistry{interests: make(map[interestKey]*RemoteInterest)}
}

func (r *interestRegistry) add(interest *RemoteInterest) {
	k := interestKey{origin: interest.Origin, name: interest.Name, key: string(interest.EncodedKey)}
	r.mu.Lock()
	// A replay of a value-declining item must not downgrade an interest that
	// already flows values; the strongest demand seen wins.
	if existing, ok := r.interests[k]; ok {
		interest.IncludeValue = interest.IncludeValue || existing.IncludeValue
	}
	r.interests[k] = interest
	r.mu.Unlock()
}

func (r *interestRegistry) remove(origin cluster.Address, name string, encodedKey []byte) {
	k := interestKey{origin: origin, name: name, key: string(encodedKey)}
	r.mu.Lock()
	delete(r.interests, k)
	r.mu.Unlock()
}

// removeOrigin drops every interest registered by a member. Called when the
// member dies; it will re-register via resync if it comes back.
func (r *interestRegistry) removeOrigin(origin cluster.Address) {
	r.mu.Lock()
	for k := range r.interests {
		if k.origin == origin {
			delete(r.interests, k)
		}
	}
	r.mu.Unlock()
}

// targetsFor returns the interests matching an event on (name, encodedKey):
// keyless interests match the whole collection.
func (r *interestRegistry) targetsFor(name string, encodedKey []byte) []*RemoteInterest {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var targets []*RemoteInterest
	for _, interest := range r.interests {
		if interest.Name != name {
			continue
		}
		if interest.EncodedKey == nil || keyEquals(interest.EncodedKey, encodedKey) {
			targets = append(targets, interest)
		}
	}
	return targets
}

func (r *interestRegistry) snapshot() []InterestInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]InterestInfo, 0, len(r.interests))
	for _, interest := range r.interests {
		infos = append(infos, InterestInfo{
			Origin:       interest.Origin.String(),
			Name:         interest.Name,
			HasKey:       interest.EncodedKey != nil,
			IncludeValue: interest.IncludeValue,
		})
	}
	return infos
}
