package telemetry

import (
	"sync"
	"time"
)

// MemberCounter provides member counts keyed by status string
type MemberCounter interface {
	StatusCounts() map[string]int
}

// TableSizer provides the current listener table size
type TableSizer interface {
	Size() int
}

// MetricsCollector periodically samples cluster and listener state into gauges
type MetricsCollector struct {
	members  MemberCounter
	table    TableSizer
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector(members MemberCounter, table TableSizer, interval time.Duration) *MetricsCollector {
	return &MetricsCollector{
		members:  members,
		table:    table,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic collection
func (mc *MetricsCollector) Start() {
	mc.wg.Add(1)
	go mc.collectLoop()
}

// Stop stops the collector
func (mc *MetricsCollector) Stop() {
	close(mc.stopCh)
	mc.wg.Wait()
}

func (mc *MetricsCollector) collectLoop() {
	defer mc.wg.Done()

	ticker := time.NewTicker(mc.interval)
	defer ticker.Stop()

	mc.collect()

	for {
		select {
		case <-ticker.C:
			mc.collect()
		case <-mc.stopCh:
			return
		}
	}
}

func (mc *MetricsCollector) collect() {
	if mc.members != nil {
		for status, count := range mc.members.StatusCounts() {
			ClusterMembers.With(status).Set(float64(count))
		}
	}
	if mc.table != nil {
		ListenerItems.Set(float64(mc.table.Size()))
	}
}
