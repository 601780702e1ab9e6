package transport

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/skygrid-io/gridmesh/cluster"
	"github.com/skygrid-io/gridmesh/protocol"
	"github.com/skygrid-io/gridmesh/telemetry"
)

const subjectPrefix = "gridmesh.node."

// subjectFor maps a member address to its NATS inbox subject. NATS subjects
// cannot contain ":".
func subjectFor(addr cluster.Address) string {
	return subjectPrefix + strings.ReplaceAll(addr.String(), ":", "_")
}

// NatsTransport delivers packets over NATS core. Fire-and-forget sends map to
// Publish, acked requests map to Request/reply.
type NatsTransport struct {
	nc      *nats.Conn
	local   cluster.Address
	sub     *nats.Subscription
	handler Handler
	mu      sync.RWMutex
}

// NewNatsTransport connects to the NATS server and subscribes to the local
// member's inbox subject.
func NewNatsTransport(url string, local cluster.Address) (*NatsTransport, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	t := &NatsTransport{nc: nc, local: local}

	sub, err := nc.Subscribe(subjectFor(local), t.onMessage)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to subscribe to inbox: %w", err)
	}
	t.sub = sub

	log.Info().
		Str("url", url).
		Str("subject", subjectFor(local)).
		Msg("NATS transport connected")

	return t, nil
}

// Handle installs the inbound packet handler.
func (t *NatsTransport) Handle(h Handler) {
	t.mu.Lock()
	t.handler = h
	t.mu.Unlock()
}

// onMessage dispatches one inbound message on its own goroutine.
func (t *NatsTransport) onMessage(msg *nats.Msg) {
	go func() {
		pkt, err := protocol.Decode(msg.Data)
		if err != nil {
			log.Error().Err(err).Msg("Dropping undecodable packet")
			return
		}

		t.mu.RLock()
		handler := t.handler
		t.mu.RUnlock()

		if handler == nil {
			protocol.Release(pkt)
			return
		}

		handlerErr := handler(pkt)

		if msg.Reply != "" {
			t.sendAck(msg.Reply, handlerErr)
		} else if handlerErr != nil {
			log.Warn().
				Err(handlerErr).
				Str("op", pkt.Op.String()).
				Msg("Inbound packet handler failed")
		}
		protocol.Release(pkt)
	}()
}

// sendAck replies with an ACK packet; Flag 1 means success, 0 failure with
// the error message in Name.
func (t *NatsTransport) sendAck(reply string, handlerErr error) {
	ack := protocol.Obtain()
	defer protocol.Release(ack)

	ack.Op = protocol.OpAck
	ack.Flag = 1
	if handlerErr != nil {
		ack.Flag = 0
		ack.Name = handlerErr.Error()
	}

	data, err := protocol.Encode(ack)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode ack")
		return
	}
	if err := t.nc.Publish(reply, data); err != nil {
		log.Warn().Err(err).Msg("Failed to publish ack")
	}
}

// Send publishes a packet without awaiting acknowledgement. On success the
// transport owns and releases the packet; on failure the caller keeps
// ownership.
func (t *NatsTransport) Send(pkt *protocol.Packet, target cluster.Address) bool {
	data, err := protocol.Encode(pkt)
	if err != nil {
		log.Error().Err(err).Str("op", pkt.Op.String()).Msg("Failed to encode packet")
		return false
	}

	if err := t.nc.Publish(subjectFor(target), data); err != nil {
		log.Debug().
			Err(err).
			Str("target", target.String()).
			Str("op", pkt.Op.String()).
			Msg("Fire-and-forget send failed")
		telemetry.PacketSendFailuresTotal.Inc()
		return false
	}

	telemetry.PacketsSentTotal.With(pkt.Op.String()).Inc()
	protocol.Release(pkt)
	return true
}

// Request sends a packet and awaits a single acknowledgement.
func (t *NatsTransport) Request(ctx context.Context, pkt *protocol.Packet, target cluster.Address) error {
	data, err := protocol.Encode(pkt)
	if err != nil {
		return fmt.Errorf("failed to encode %s packet: %w", pkt.Op, err)
	}

	msg, err := t.nc.RequestWithContext(ctx, subjectFor(target), data)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", target, err)
	}

	telemetry.PacketsSentTotal.With(pkt.Op.String()).Inc()

	ack, err := protocol.Decode(msg.Data)
	if err != nil {
		return fmt.Errorf("bad ack from %s: %w", target, err)
	}
	defer protocol.Release(ack)

	if ack.Op != protocol.OpAck || ack.Flag != 1 {
		return fmt.Errorf("request to %s rejected: %s", target, ack.Name)
	}
	return nil
}

// Close drains the inbox subscription and disconnects.
func (t *NatsTransport) Close() error {
	if t.sub != nil {
		_ = t.sub.Unsubscribe()
	}
	if t.nc != nil {
		t.nc.Close()
	}
	return nil
}
