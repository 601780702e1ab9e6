// Package transport moves packets between grid members. The production
// implementation rides on NATS core subjects, one inbox subject per member
// address. A loopback implementation backs in-process tests.
package transport

import (
	"context"

	"github.com/skygrid-io/gridmesh/cluster"
	"github.com/skygrid-io/gridmesh/protocol"
)

// Handler processes one inbound packet. Each packet is handled on its own
// goroutine. A non-nil error turns into a NACK on acked requests and is
// logged-and-dropped otherwise.
type Handler func(pkt *protocol.Packet) error

// Transport sends packets to cluster members.
//
// Send is fire-and-forget: on success the transport takes ownership of the
// packet and releases it; it returns false on immediate failure, in which
// case the caller still owns the packet and must release it. There is no
// retry in either case.
//
// Request leaves packet ownership with the caller in both outcomes.
//
// Request awaits a single acknowledgement from the target and fails on NACK,
// timeout, or transport error. Cancellation is bounded by ctx; there is no
// in-flight abort beyond it.
type Transport interface {
	Send(pkt *protocol.Packet, target cluster.Address) bool
	Request(ctx context.Context, pkt *protocol.Packet, target cluster.Address) error
	Handle(h Handler)
	Close() error
}
