package grid

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/skygrid-io/gridmesh/cluster"
	"github.com/skygrid-io/gridmesh/encoding"
	"github.com/skygrid-io/gridmesh/protocol"
	"github.com/skygrid-io/gridmesh/telemetry"
)

// PublishEvent fires a change notification for an entry of a collection this
// node owns. Local listeners are invoked on the caller's goroutine; one EVENT
// packet goes out per interested remote member, fire-and-forget.
func (s *ListenerService) PublishEvent(name string, eventType EventType, key, value, oldValue interface{}) error {
	encodedKey, err := s.keys.EncodeKey(key)
	if err != nil {
		return fmt.Errorf("failed to encode event key: %w", err)
	}

	local := s.membership.LocalAddress()
	s.DispatchEvent(&EventNotification{
		Name:         name,
		Type:         eventType,
		Key:          key,
		EncodedKey:   encodedKey,
		Value:        value,
		OldValue:     oldValue,
		Origin:       local,
		FiredLocally: true,
	})

	var encodedValue, encodedOldValue []byte
	if value != nil {
		if encodedValue, err = encoding.Marshal(value); err != nil {
			return fmt.Errorf("failed to encode event value: %w", err)
		}
	}
	if oldValue != nil {
		if encodedOldValue, err = encoding.Marshal(oldValue); err != nil {
			return fmt.Errorf("failed to encode event old value: %w", err)
		}
	}

	// A member holding several matching interests, keyless and keyed side by
	// side, still receives one packet per mutation. Values ride along when
	// any of its interests wants them.
	targets := make(map[cluster.Address]bool)
	for _, interest := range s.interests.targetsFor(name, encodedKey) {
		if interest.Origin == local {
			continue
		}
		targets[interest.Origin] = targets[interest.Origin] || interest.IncludeValue
	}

	for member, includeValue := range targets {
		pkt := protocol.Obtain()
		pkt.Op = protocol.OpEvent
		pkt.Name = name
		pkt.Key = encodedKey
		pkt.Flag = int64(eventType)
		pkt.Origin = local.String()
		if includeValue {
			pkt.Value = encodedValue
			pkt.OldValue = encodedOldValue
		}

		if !s.transport.Send(pkt, member) {
			protocol.Release(pkt)
			log.Debug().
				Str("name", name).
				Str("target", member.String()).
				Msg("Dropped event notification to unreachable member")
		}
	}
	return nil
}

// DispatchEvent delivers a notification to every matching local listener.
// Local-only items only ever fire from local mutations; a remote echo of
// their own interest is suppressed here.
func (s *ListenerService) DispatchEvent(n *EventNotification) {
	start := time.Now()

	for _, item := range s.table.FindMatching(n.Name, n.EncodedKey) {
		if item.LocalOnly && !n.FiredLocally {
			telemetry.EventsSuppressedTotal.Inc()
			continue
		}

		value, oldValue := n.Value, n.OldValue
		if !item.IncludeValue {
			value, oldValue = nil, nil
		}
		s.callListener(item, n, value, oldValue)
	}

	telemetry.EventDispatchSeconds.Observe(time.Since(start).Seconds())

	if s.onDispatch != nil {
		s.onDispatch(n)
	}
}

// callListener invokes one callback in the shape its instance type demands.
// Event types a shape has no method for are dropped without error: a QUEUE
// never sees UPDATED, a TOPIC only ever carries messages.
func (s *ListenerService) callListener(item *ListenerItem, n *EventNotification, value, oldValue interface{}) {
	switch item.InstanceType {
	case InstanceMap, InstanceMultiMap:
		listener, ok := item.Listener.(EntryListener)
		if !ok {
			return
		}
		event := EntryEvent{
			Name:     n.Name,
			Type:     n.Type,
			Key:      n.Key,
			Value:    value,
			OldValue: oldValue,
			Member:   n.Origin,
		}
		switch n.Type {
		case EventAdded:
			listener.EntryAdded(event)
		case EventRemoved:
			listener.EntryRemoved(event)
		case EventUpdated:
			listener.EntryUpdated(event)
		case EventEvicted:
			listener.EntryEvicted(event)
		default:
			return
		}

	case InstanceSet, InstanceList:
		listener, ok := item.Listener.(ItemListener)
		if !ok {
			return
		}
		switch n.Type {
		case EventAdded:
			listener.ItemAdded(n.Key)
		case EventRemoved:
			listener.ItemRemoved(n.Key)
		default:
			return
		}

	case InstanceQueue:
		listener, ok := item.Listener.(ItemListener)
		if !ok {
			return
		}
		switch n.Type {
		case EventAdded:
			listener.ItemAdded(value)
		case EventRemoved:
			listener.ItemRemoved(value)
		default:
			return
		}

	case InstanceTopic:
		listener, ok := item.Listener.(MessageListener)
		if !ok {
			return
		}
		listener.OnMessage(value)

	default:
		return
	}

	telemetry.EventsDispatchedTotal.With(item.InstanceType.String()).Inc()
}
