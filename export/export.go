// Package export streams dispatched grid events to external systems.
//
// Every notification delivered by the dispatcher can be mirrored to one or
// more sinks (NATS, Kafka). Export is best-effort: events flow through a
// bounded in-memory queue and are dropped when the queue is full or a sink
// rejects them. Consumers needing stronger guarantees should subscribe to the
// grid directly.
package export

import (
	"fmt"
	"sync"

	"github.com/skygrid-io/gridmesh/cfg"
)

// Record is the sink-facing form of one dispatched event.
type Record struct {
	Name      string      `msgpack:"name"`
	Type      string      `msgpack:"type"`
	Key       interface{} `msgpack:"key,omitempty"`
	Value     interface{} `msgpack:"value,omitempty"`
	OldValue  interface{} `msgpack:"old_value,omitempty"`
	Origin    string      `msgpack:"origin"`
	Local     bool        `msgpack:"local"`
	Timestamp int64       `msgpack:"ts"` // unix milliseconds at dispatch
}

// Sink is a destination for exported events. Topic is the collection name;
// sinks map it to their own addressing scheme.
type Sink interface {
	Publish(topic string, key string, value []byte) error
	Close() error
}

// SinkFactory creates a sink from its configuration
type SinkFactory func(config cfg.SinkConfiguration) (Sink, error)

var (
	factoryMu sync.RWMutex
	factories = make(map[string]SinkFactory)
)

// RegisterSink registers a sink factory for a type name. Called from sink
// package init functions.
func RegisterSink(sinkType string, factory SinkFactory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	factories[sinkType] = factory
}

// createSink instantiates a sink from configuration
func createSink(config cfg.SinkConfiguration) (Sink, error) {
	factoryMu.RLock()
	factory, ok := factories[config.Type]
	factoryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown sink type %q", config.Type)
	}
	return factory(config)
}
