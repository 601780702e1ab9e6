package sink

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/skygrid-io/gridmesh/cfg"
	"github.com/skygrid-io/gridmesh/export"
)

const (
	defaultKafkaTopic      = "gridmesh-events"
	DefaultKafkaBatchSize  = 100
	DefaultKafkaBatchBytes = 1 << 20 // 1MB
)

func init() {
	export.RegisterSink("kafka", func(config cfg.SinkConfiguration) (export.Sink, error) {
		topic := config.KafkaTopic
		if topic == "" {
			topic = defaultKafkaTopic
		}
		return NewKafkaSink(config.KafkaBrokers, topic)
	})
}

// KafkaSink publishes exported events to a single Kafka topic, partitioned
// by event key so per-key ordering survives the hop.
type KafkaSink struct {
	writer *kafka.Writer
	topic  string
}

// NewKafkaSink creates a sink writing to the given brokers and topic.
func NewKafkaSink(brokers []string, topic string) (*KafkaSink, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka sink requires at least one broker address")
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              DefaultKafkaBatchSize,
		BatchBytes:             DefaultKafkaBatchBytes,
		RequiredAcks:           kafka.RequireAll,
		Async:                  false,
		AllowAutoTopicCreation: true,
	}

	return &KafkaSink{writer: writer, topic: topic}, nil
}

// Publish sends one exported event. The export worker owns pacing and drop
// policy, so the write itself runs without a deadline.
func (k *KafkaSink) Publish(topic, key string, value []byte) error {
	msg := kafka.Message{
		Key:   []byte(topic + ":" + key),
		Value: value,
	}
	return k.writer.WriteMessages(context.Background(), msg)
}

// Close flushes and releases the writer.
func (k *KafkaSink) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
