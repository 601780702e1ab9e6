package grid

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jizhuozhi/go-future"
	"github.com/rs/zerolog/log"

	"github.com/skygrid-io/gridmesh/cluster"
	"github.com/skygrid-io/gridmesh/encoding"
	"github.com/skygrid-io/gridmesh/protocol"
	"github.com/skygrid-io/gridmesh/telemetry"
	"github.com/skygrid-io/gridmesh/transport"
)

// Config wires the listener service's collaborators.
type Config struct {
	Membership *cluster.Membership
	Ring       *cluster.Ring
	Transport  transport.Transport
	Keys       *encoding.KeyCodec
	// Filter restricts inbound registrations; nil accepts everything.
	Filter *CollectionFilter
	// RequestTimeout bounds each acked registration sub-call.
	RequestTimeout time.Duration
	// OnDispatch, when set, observes every delivered notification. Feeds the
	// event export pipeline.
	OnDispatch func(n *EventNotification)
}

// ListenerService owns the local listener table, routes registrations across
// the cluster, and dispatches inbound events. One instance per node.
type ListenerService struct {
	membership *cluster.Membership
	ring       *cluster.Ring
	transport  transport.Transport
	keys       *encoding.KeyCodec
	filter     *CollectionFilter
	timeout    time.Duration
	onDispatch func(n *EventNotification)

	table     *ListenerTable
	interests *interestRegistry

	// Serializes the remove-then-maybe-deregister sequence so two concurrent
	// removals of the same (name, key) cannot double de-register or both skip.
	removeMu sync.Mutex
}

// NewListenerService creates the service and installs it as the transport's
// inbound packet handler.
func NewListenerService(cfg Config) *ListenerService {
	s := &ListenerService{
		membership: cfg.Membership,
		ring:       cfg.Ring,
		transport:  cfg.Transport,
		keys:       cfg.Keys,
		filter:     cfg.Filter,
		timeout:    cfg.RequestTimeout,
		onDispatch: cfg.OnDispatch,
		table:      NewListenerTable(),
		interests:  newInterestRegistry(),
	}
	cfg.Transport.Handle(s.HandlePacket)
	return s
}

// Table exposes the listener table for the telemetry collector.
func (s *ListenerService) Table() *ListenerTable {
	return s.table
}

// LocalItems returns the admin view of locally-registered items.
func (s *ListenerService) LocalItems() []ListenerItemInfo {
	snapshot := s.table.Snapshot()
	infos := make([]ListenerItemInfo, 0, len(snapshot))
	for _, item := range snapshot {
		infos = append(infos, ListenerItemInfo{
			Name:         item.Name,
			HasKey:       item.EncodedKey != nil,
			IncludeValue: item.IncludeValue,
			InstanceType: item.InstanceType.String(),
			LocalOnly:    item.LocalOnly,
		})
	}
	return infos
}

// RemoteInterests returns the admin view of interests served by this node.
func (s *ListenerService) RemoteInterests() []InterestInfo {
	return s.interests.snapshot()
}

// ListenerItemInfo is the admin-facing view of a listener item.
type ListenerItemInfo struct {
	Name         string `json:"name"`
	HasKey       bool   `json:"has_key"`
	IncludeValue bool   `json:"include_value"`
	InstanceType string `json:"instance_type"`
	LocalOnly    bool   `json:"local_only"`
}

// validateListener rejects callbacks whose shape cannot serve the instance
// type; catching this at registration beats a dead item in the table.
func validateListener(listener interface{}, instanceType InstanceType) error {
	var ok bool
	switch instanceType {
	case InstanceMap, InstanceMultiMap:
		_, ok = listener.(EntryListener)
	case InstanceSet, InstanceList, InstanceQueue:
		_, ok = listener.(ItemListener)
	case InstanceTopic:
		_, ok = listener.(MessageListener)
	}
	if !ok {
		return fmt.Errorf("listener %T does not serve instance type %s", listener, instanceType)
	}
	return nil
}

// AddListener registers a callback for a collection, optionally scoped to one
// key. The item is always tracked locally; a remote registration is issued
// only when no existing non-local item already covers the same interest.
//
// The local table mutation completes before any network round trip begins.
// An acked registration failure is returned to the caller with the local item
// left in place; a subsequent resync re-establishes the remote side.
func (s *ListenerService) AddListener(name string, listener interface{}, key interface{}, includeValue bool, instanceType InstanceType) error {
	if err := validateListener(listener, instanceType); err != nil {
		return err
	}

	encodedKey, err := s.keys.EncodeKey(key)
	if err != nil {
		return fmt.Errorf("failed to encode listener key: %w", err)
	}

	remotelyRegister := true
	for _, item := range s.table.Snapshot() {
		// Local-only items don't count toward the remote registration check:
		// their fan-out never went over the wire.
		if item.LocalOnly || item.Name != name {
			continue
		}
		if !keyCompatible(item.EncodedKey, encodedKey) {
			continue
		}
		// The existing registration covers the new one unless the new one
		// needs values and the existing one declined them.
		if !includeValue || item.IncludeValue {
			remotelyRegister = false
			break
		}
	}

	s.table.Add(&ListenerItem{
		Name:         name,
		Key:          key,
		EncodedKey:   encodedKey,
		Listener:     listener,
		IncludeValue: includeValue,
		InstanceType: instanceType,
	})
	telemetry.RegistrationsTotal.With("add").Inc()

	if !remotelyRegister {
		telemetry.RegistrationDedupTotal.Inc()
		log.Debug().
			Str("name", name).
			Bool("keyed", encodedKey != nil).
			Msg("Remote registration covered by existing interest")
		return nil
	}

	return s.registerListener(name, encodedKey, true, includeValue)
}

// keyCompatible reports whether an existing item's key covers a new interest:
// both keyless, or both the same key.
func keyCompatible(existing, next []byte) bool {
	if next == nil {
		return existing == nil
	}
	return existing != nil && bytes.Equal(existing, next)
}

// AddLocalListener registers a callback whose events arrive purely through
// local mutation paths. No remote registration is issued; the interest is
// recorded against the local partition store directly.
func (s *ListenerService) AddLocalListener(name string, listener interface{}, instanceType InstanceType) error {
	if err := validateListener(listener, instanceType); err != nil {
		return err
	}

	s.table.Add(&ListenerItem{
		Name:         name,
		Listener:     listener,
		IncludeValue: true,
		InstanceType: instanceType,
		LocalOnly:    true,
	})
	telemetry.RegistrationsTotal.With("add_local").Inc()

	s.interests.add(&RemoteInterest{
		Origin:       s.membership.LocalAddress(),
		Name:         name,
		IncludeValue: true,
	})
	return nil
}

// RemoveListener removes every item matching the callback identity, name, and
// key. If no item with the same (name, key) remains, a remote de-registration
// is issued. The whole sequence is one critical section per service.
func (s *ListenerService) RemoveListener(name string, listener interface{}, key interface{}) error {
	s.removeMu.Lock()
	defer s.removeMu.Unlock()

	encodedKey, err := s.keys.EncodeKey(key)
	if err != nil {
		return fmt.Errorf("failed to encode listener key: %w", err)
	}

	removed := s.table.RemoveMatching(name, listener, encodedKey)
	telemetry.RegistrationsTotal.With("remove").Inc()
	log.Debug().
		Str("name", name).
		Int("removed", removed).
		Msg("Listener removed")

	if s.table.HasInterest(name, encodedKey) {
		return nil
	}
	return s.registerListener(name, encodedKey, false, false)
}

// registerListener issues the remote half of a registration change on the
// acked path: keyless interests broadcast to every member, keyed interests
// route to the key owner. The local member is always applied directly.
func (s *ListenerService) registerListener(name string, encodedKey []byte, add bool, includeValue bool) error {
	if encodedKey == nil {
		return s.invokeOnAllMembers(name, add, includeValue)
	}

	owner := s.ring.ResolveOwner(name, encodedKey)
	if s.membership.IsLocal(owner) {
		return s.applyRegistration(add, name, encodedKey, s.membership.LocalAddress(), includeValue)
	}

	op := protocol.OpAddListener
	if !add {
		op = protocol.OpRemoveListener
	}
	pkt := s.buildRegistrationPacket(op, name, encodedKey, includeValue)
	defer protocol.Release(pkt)

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.transport.Request(ctx, pkt, owner); err != nil {
		return fmt.Errorf("keyed registration at owner %s failed: %w", owner, err)
	}
	return nil
}

// invokeOnAllMembers is the acked broadcast: one sub-call per member, all must
// succeed. Sub-calls run concurrently and join at the end; the local member
// is applied directly, never over the network.
func (s *ListenerService) invokeOnAllMembers(name string, add bool, includeValue bool) error {
	start := time.Now()

	op := protocol.OpAddListener
	if !add {
		op = protocol.OpRemoveListener
	}

	members := s.membership.Members()
	futures := make([]*future.Future[cluster.Address], 0, len(members))

	for _, member := range members {
		if s.membership.IsLocal(member) {
			if err := s.applyRegistration(add, name, nil, s.membership.LocalAddress(), includeValue); err != nil {
				return err
			}
			continue
		}

		p := future.NewPromise[cluster.Address]()
		futures = append(futures, p.Future())
		go func(target cluster.Address) {
			pkt := s.buildRegistrationPacket(op, name, nil, includeValue)
			defer protocol.Release(pkt)

			ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
			defer cancel()
			p.Set(target, s.transport.Request(ctx, pkt, target))
		}(member)
	}

	var firstErr error
	for _, f := range futures {
		if target, err := f.Get(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("registration at %s failed: %w", target, err)
		}
	}

	telemetry.RegistrationFanoutSeconds.Observe(time.Since(start).Seconds())

	if firstErr != nil {
		return firstErr
	}
	return nil
}

// registerListenerWithNoResponse is the fire-and-forget path used by resync
// and internal cascades. Send failures are dropped; the next resync cycle
// repairs any missed registration.
func (s *ListenerService) registerListenerWithNoResponse(name string, encodedKey []byte, includeValue bool) {
	if encodedKey != nil {
		owner := s.ring.ResolveOwner(name, encodedKey)
		if s.membership.IsLocal(owner) {
			_ = s.applyRegistration(true, name, encodedKey, s.membership.LocalAddress(), includeValue)
			return
		}
		s.sendAddListener(owner, name, encodedKey, includeValue)
		return
	}

	for _, member := range s.membership.Members() {
		if s.membership.IsLocal(member) {
			_ = s.applyRegistration(true, name, nil, s.membership.LocalAddress(), includeValue)
		} else {
			s.sendAddListener(member, name, nil, includeValue)
		}
	}
}

// sendAddListener fires an ADD_LISTENER_NO_RESPONSE packet at one member.
// A failed send releases the packet; there is no retry.
func (s *ListenerService) sendAddListener(target cluster.Address, name string, encodedKey []byte, includeValue bool) {
	pkt := s.buildRegistrationPacket(protocol.OpAddListenerNoResponse, name, encodedKey, includeValue)
	if !s.transport.Send(pkt, target) {
		protocol.Release(pkt)
	}
}

func (s *ListenerService) buildRegistrationPacket(op protocol.Op, name string, encodedKey []byte, includeValue bool) *protocol.Packet {
	pkt := protocol.Obtain()
	pkt.Op = op
	pkt.Name = name
	pkt.Key = encodedKey
	pkt.Origin = s.membership.LocalAddress().String()
	if includeValue {
		pkt.Flag = 1
	}
	return pkt
}

// applyRegistration mutates the serving side's interest set. The same code
// runs for local calls and inbound packets; origin is the interested member.
func (s *ListenerService) applyRegistration(add bool, name string, encodedKey []byte, origin cluster.Address, includeValue bool) error {
	if origin.IsNil() {
		telemetry.RegistrationRejectsTotal.With("no_origin").Inc()
		return &OriginUnknownError{Name: name}
	}

	if add && s.filter != nil && !s.filter.Accepts(name) {
		telemetry.RegistrationRejectsTotal.With("filtered").Inc()
		log.Warn().
			Str("name", name).
			Str("origin", origin.String()).
			Msg("Registration refused by collection filter")
		return &RegistrationRejectedError{
			Name:   name,
			Origin: origin.String(),
			Reason: "collection not accepted by this node",
		}
	}

	log.Debug().
		Bool("add", add).
		Str("name", name).
		Bool("keyed", encodedKey != nil).
		Str("origin", origin.String()).
		Msg("Applying listener registration")

	if add {
		s.interests.add(&RemoteInterest{
			Origin:       origin,
			Name:         name,
			EncodedKey:   encodedKey,
			IncludeValue: includeValue,
		})
	} else {
		s.interests.remove(origin, name, encodedKey)
	}
	return nil
}
