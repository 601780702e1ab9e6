// Package sink holds the concrete export sink implementations. Each sink
// registers itself with the export registry at init time.
package sink

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/skygrid-io/gridmesh/cfg"
	"github.com/skygrid-io/gridmesh/export"
)

const defaultNatsSubjectPrefix = "gridmesh.events"

func init() {
	export.RegisterSink("nats", func(config cfg.SinkConfiguration) (export.Sink, error) {
		if config.NatsURL == "" {
			return nil, fmt.Errorf("nats sink requires nats_url")
		}
		prefix := config.NatsSubject
		if prefix == "" {
			prefix = defaultNatsSubjectPrefix
		}
		return NewNatsSink(config.NatsURL, prefix)
	})
}

// NatsSink publishes exported events to NATS JetStream, one subject per
// collection under a configured prefix.
type NatsSink struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	prefix string
}

// NewNatsSink connects to the NATS server and prepares a JetStream context.
func NewNatsSink(url, subjectPrefix string) (*NatsSink, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return &NatsSink{nc: nc, js: js, prefix: subjectPrefix}, nil
}

// Publish sends one exported event. The collection name becomes the subject
// suffix; the key rides along as a header.
func (n *NatsSink) Publish(topic, key string, value []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	subject := n.prefix + "." + sanitizeToken(topic)

	streamName := sanitizeStreamName(subject)
	_, err := n.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      streamName,
		Subjects:  []string{subject},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    24 * time.Hour,
	})
	if err != nil {
		return fmt.Errorf("failed to ensure stream %s: %w", streamName, err)
	}

	msg := &nats.Msg{
		Subject: subject,
		Data:    value,
		Header:  nats.Header{"key": []string{key}},
	}

	if _, err := n.js.PublishMsg(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// Close disconnects from NATS.
func (n *NatsSink) Close() error {
	if n.nc != nil {
		n.nc.Close()
	}
	return nil
}

// sanitizeToken makes a collection name safe as a single subject token.
func sanitizeToken(name string) string {
	return strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_").Replace(name)
}

// sanitizeStreamName converts a subject to a valid JetStream stream name.
// Stream names can't contain ".".
func sanitizeStreamName(subject string) string {
	return strings.ReplaceAll(subject, ".", "_")
}
