package grid

import (
	"bytes"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/skygrid-io/gridmesh/cluster"
	"github.com/skygrid-io/gridmesh/encoding"
	"github.com/skygrid-io/gridmesh/protocol"
)

// HandlePacket routes one inbound packet. The transport releases the packet
// after this returns, so anything retained beyond the call is copied first.
func (s *ListenerService) HandlePacket(pkt *protocol.Packet) error {
	origin := cluster.Address(pkt.Origin)
	if !origin.IsNil() {
		s.membership.Touch(origin)
	}

	switch pkt.Op {
	case protocol.OpAddListener, protocol.OpAddListenerNoResponse:
		return s.applyRegistration(true, pkt.Name, bytes.Clone(pkt.Key), origin, pkt.Flag == 1)

	case protocol.OpRemoveListener:
		return s.applyRegistration(false, pkt.Name, pkt.Key, origin, false)

	case protocol.OpEvent:
		return s.handleEvent(pkt, origin)

	default:
		log.Warn().
			Str("op", pkt.Op.String()).
			Str("origin", pkt.Origin).
			Msg("Dropping packet with unexpected op")
		return fmt.Errorf("unexpected op %s", pkt.Op)
	}
}

// handleEvent decodes an EVENT packet and dispatches it to local listeners.
// Remote events are never echoed back out; fan-out happens only at the
// publishing member.
func (s *ListenerService) handleEvent(pkt *protocol.Packet, origin cluster.Address) error {
	key, err := s.keys.DecodeKey(pkt.Key)
	if err != nil {
		return fmt.Errorf("failed to decode event key: %w", err)
	}

	value, err := decodeOptional(pkt.Value)
	if err != nil {
		return fmt.Errorf("failed to decode event value: %w", err)
	}
	oldValue, err := decodeOptional(pkt.OldValue)
	if err != nil {
		return fmt.Errorf("failed to decode event old value: %w", err)
	}

	s.DispatchEvent(&EventNotification{
		Name:         pkt.Name,
		Type:         EventType(pkt.Flag),
		Key:          key,
		EncodedKey:   bytes.Clone(pkt.Key),
		Value:        value,
		OldValue:     oldValue,
		Origin:       origin,
		FiredLocally: false,
	})
	return nil
}

func decodeOptional(data []byte) (interface{}, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var v interface{}
	if err := encoding.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}
