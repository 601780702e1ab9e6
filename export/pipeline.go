package export

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/skygrid-io/gridmesh/cfg"
	"github.com/skygrid-io/gridmesh/encoding"
	"github.com/skygrid-io/gridmesh/grid"
	"github.com/skygrid-io/gridmesh/telemetry"
)

// DefaultQueueSize bounds the export queue when configuration leaves it unset
const DefaultQueueSize = 1024

type namedSink struct {
	name string
	sink Sink
}

// Pipeline fans dispatched events out to the configured sinks through one
// bounded queue. Offer never blocks dispatch: when the queue is full the
// event is dropped and counted.
type Pipeline struct {
	queue chan *Record
	sinks []namedSink

	running     atomic.Bool
	stopCh      chan struct{}
	doneCh      chan struct{}
	lifecycleMu sync.Mutex
}

// NewPipeline builds a pipeline from the export configuration.
func NewPipeline(config cfg.ExportConfiguration) (*Pipeline, error) {
	queueSize := config.QueueSize
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	p := &Pipeline{
		queue: make(chan *Record, queueSize),
		sinks: make([]namedSink, 0, len(config.Sinks)),
	}

	for _, sinkCfg := range config.Sinks {
		snk, err := createSink(sinkCfg)
		if err != nil {
			for _, existing := range p.sinks {
				_ = existing.sink.Close()
			}
			return nil, fmt.Errorf("failed to create sink %q: %w", sinkCfg.Name, err)
		}
		p.sinks = append(p.sinks, namedSink{name: sinkCfg.Name, sink: snk})
	}

	log.Info().
		Int("sinks", len(p.sinks)).
		Int("queue_size", queueSize).
		Msg("Event export pipeline initialized")

	return p, nil
}

// Offer enqueues one dispatched notification. Runs on the dispatch path, so
// it never blocks; a full queue drops the event.
func (p *Pipeline) Offer(n *grid.EventNotification) {
	record := &Record{
		Name:      n.Name,
		Type:      n.Type.String(),
		Key:       n.Key,
		Value:     n.Value,
		OldValue:  n.OldValue,
		Origin:    n.Origin.String(),
		Local:     n.FiredLocally,
		Timestamp: time.Now().UnixMilli(),
	}

	select {
	case p.queue <- record:
		telemetry.ExportQueueDepth.Set(float64(len(p.queue)))
	default:
		telemetry.ExportedEventsTotal.With("queue", "dropped").Inc()
	}
}

// Start launches the export worker. Idempotent.
func (p *Pipeline) Start() {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if p.running.Load() {
		return
	}
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.running.Store(true)

	go p.run()
}

// Stop drains nothing: queued events at shutdown are dropped, matching the
// best-effort contract. Blocks until the worker exits and sinks are closed.
func (p *Pipeline) Stop() {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if !p.running.Load() {
		return
	}
	close(p.stopCh)
	<-p.doneCh
	p.running.Store(false)

	for _, s := range p.sinks {
		if err := s.sink.Close(); err != nil {
			log.Warn().Err(err).Str("sink", s.name).Msg("Failed to close export sink")
		}
	}
}

func (p *Pipeline) run() {
	defer close(p.doneCh)

	for {
		select {
		case <-p.stopCh:
			return
		case record := <-p.queue:
			telemetry.ExportQueueDepth.Set(float64(len(p.queue)))
			p.publish(record)
		}
	}
}

// publish encodes the record once and hands it to every sink. A sink failure
// is counted and logged; other sinks still receive the event.
func (p *Pipeline) publish(record *Record) {
	payload, err := encoding.Marshal(record)
	if err != nil {
		log.Error().Err(err).Str("name", record.Name).Msg("Failed to encode export record")
		return
	}

	key := record.Origin
	if record.Key != nil {
		key = fmt.Sprintf("%v", record.Key)
	}

	for _, s := range p.sinks {
		if err := s.sink.Publish(record.Name, key, payload); err != nil {
			telemetry.ExportedEventsTotal.With(s.name, "error").Inc()
			log.Warn().
				Err(err).
				Str("sink", s.name).
				Str("name", record.Name).
				Msg("Export sink publish failed")
			continue
		}
		telemetry.ExportedEventsTotal.With(s.name, "ok").Inc()
	}
}
