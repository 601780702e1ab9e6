// Package protocol defines the wire-level packet format exchanged between
// grid members. Packets are msgpack-encoded; large values are compressed.
package protocol

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/s2"

	"github.com/skygrid-io/gridmesh/encoding"
)

// Op is the cluster operation a packet carries.
type Op uint8

const (
	OpAddListener Op = iota + 1
	OpRemoveListener
	OpAddListenerNoResponse
	OpEvent
	OpAck
)

func (op Op) String() string {
	switch op {
	case OpAddListener:
		return "ADD_LISTENER"
	case OpRemoveListener:
		return "REMOVE_LISTENER"
	case OpAddListenerNoResponse:
		return "ADD_LISTENER_NO_RESPONSE"
	case OpEvent:
		return "EVENT"
	case OpAck:
		return "ACK"
	default:
		return "UNKNOWN"
	}
}

// compressThreshold is the value size above which payloads are s2-compressed.
// Keys stay uncompressed: they are small and hot on the dedup/match paths.
const compressThreshold = 1024

// Packet is one unit of cluster communication.
//
// Flag is overloaded the same way for both directions: on listener
// registration ops it carries wants-value as 1/0, on EVENT ops it carries the
// entry event type code.
type Packet struct {
	Op         Op     `msgpack:"op"`
	Name       string `msgpack:"name"`
	Key        []byte `msgpack:"key,omitempty"`
	Value      []byte `msgpack:"value,omitempty"`
	OldValue   []byte `msgpack:"old_value,omitempty"`
	Flag       int64  `msgpack:"flag"`
	Origin     string `msgpack:"origin,omitempty"`
	Compressed bool   `msgpack:"compressed,omitempty"`
}

var packetPool = sync.Pool{
	New: func() interface{} { return &Packet{} },
}

// Obtain fetches a zeroed packet from the pool.
func Obtain() *Packet {
	return packetPool.Get().(*Packet)
}

// Release returns a packet to the pool. Callers must not touch the packet
// afterwards. A send that reports failure does NOT release its packet; that
// is the sender's responsibility.
func Release(pkt *Packet) {
	*pkt = Packet{}
	packetPool.Put(pkt)
}

// Encode serializes the packet, compressing the value payload if large.
func Encode(pkt *Packet) ([]byte, error) {
	if len(pkt.Value) > compressThreshold && !pkt.Compressed {
		pkt.Value = s2.Encode(nil, pkt.Value)
		pkt.Compressed = true
	}

	data, err := encoding.Marshal(pkt)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s packet: %w", pkt.Op, err)
	}
	return data, nil
}

// Decode deserializes a packet into a pooled instance, decompressing the
// value payload if needed.
func Decode(data []byte) (*Packet, error) {
	pkt := Obtain()
	if err := encoding.Unmarshal(data, pkt); err != nil {
		Release(pkt)
		return nil, fmt.Errorf("failed to decode packet: %w", err)
	}

	if pkt.Compressed {
		value, err := s2.Decode(nil, pkt.Value)
		if err != nil {
			Release(pkt)
			return nil, fmt.Errorf("failed to decompress packet value: %w", err)
		}
		pkt.Value = value
		pkt.Compressed = false
	}

	return pkt, nil
}
