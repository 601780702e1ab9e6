package transport

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/skygrid-io/gridmesh/cluster"
	"github.com/skygrid-io/gridmesh/protocol"
)

// Network wires Loopback transports together in-process. Packets still round
// trip through the wire codec so loopback delivery exercises the same
// encode/decode path as NATS delivery.
type Network struct {
	nodes *xsync.MapOf[cluster.Address, *Loopback]
}

// NewNetwork creates an empty loopback network.
func NewNetwork() *Network {
	return &Network{nodes: xsync.NewMapOf[cluster.Address, *Loopback]()}
}

// Join attaches a new member to the network and returns its transport.
func (n *Network) Join(addr cluster.Address) *Loopback {
	lb := &Loopback{network: n, local: addr}
	n.nodes.Store(addr, lb)
	return lb
}

// SentPacket records one outbound packet for test assertions.
type SentPacket struct {
	Target cluster.Address
	Op     protocol.Op
	Name   string
	Key    []byte
	Flag   int64
}

// Loopback is an in-process Transport. Sends deliver synchronously on the
// caller's goroutine, which keeps test assertions deterministic.
type Loopback struct {
	network *Network
	local   cluster.Address
	handler Handler
	down    atomic.Bool

	mu   sync.Mutex
	sent []SentPacket
}

// Handle installs the inbound packet handler.
func (l *Loopback) Handle(h Handler) {
	l.mu.Lock()
	l.handler = h
	l.mu.Unlock()
}

// SetDown makes every send and request to this member fail.
func (l *Loopback) SetDown(down bool) {
	l.down.Store(down)
}

// Sent returns a copy of all packets sent through this transport.
func (l *Loopback) Sent() []SentPacket {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]SentPacket, len(l.sent))
	copy(out, l.sent)
	return out
}

// SentTo returns the packets sent to one target with a given op.
func (l *Loopback) SentTo(target cluster.Address, op protocol.Op) []SentPacket {
	var out []SentPacket
	for _, p := range l.Sent() {
		if p.Target == target && p.Op == op {
			out = append(out, p)
		}
	}
	return out
}

// ResetSent clears the sent-packet record.
func (l *Loopback) ResetSent() {
	l.mu.Lock()
	l.sent = nil
	l.mu.Unlock()
}

func (l *Loopback) record(pkt *protocol.Packet, target cluster.Address) {
	key := make([]byte, len(pkt.Key))
	copy(key, pkt.Key)
	l.mu.Lock()
	l.sent = append(l.sent, SentPacket{
		Target: target,
		Op:     pkt.Op,
		Name:   pkt.Name,
		Key:    key,
		Flag:   pkt.Flag,
	})
	l.mu.Unlock()
}

// deliver round-trips the packet through the codec and runs the remote
// member's handler.
func (l *Loopback) deliver(pkt *protocol.Packet, target cluster.Address) error {
	remote, ok := l.network.nodes.Load(target)
	if !ok || remote.down.Load() {
		return fmt.Errorf("member %s unreachable", target)
	}

	data, err := protocol.Encode(pkt)
	if err != nil {
		return err
	}
	decoded, err := protocol.Decode(data)
	if err != nil {
		return err
	}
	defer protocol.Release(decoded)

	remote.mu.Lock()
	handler := remote.handler
	remote.mu.Unlock()
	if handler == nil {
		return nil
	}
	return handler(decoded)
}

// Send delivers without acknowledgement; handler errors are swallowed, the
// same contract as a published-but-unprocessed packet.
func (l *Loopback) Send(pkt *protocol.Packet, target cluster.Address) bool {
	if remote, ok := l.network.nodes.Load(target); !ok || remote.down.Load() {
		return false
	}
	l.record(pkt, target)
	_ = l.deliver(pkt, target)
	protocol.Release(pkt)
	return true
}

// Request delivers and surfaces the handler's error as a NACK.
func (l *Loopback) Request(ctx context.Context, pkt *protocol.Packet, target cluster.Address) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.record(pkt, target)
	if err := l.deliver(pkt, target); err != nil {
		return fmt.Errorf("request to %s rejected: %w", target, err)
	}
	return nil
}

// Close detaches the member from the network.
func (l *Loopback) Close() error {
	l.network.nodes.Delete(l.local)
	return nil
}
