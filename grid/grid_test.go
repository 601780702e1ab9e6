package grid

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/skygrid-io/gridmesh/cluster"
	"github.com/skygrid-io/gridmesh/encoding"
	"github.com/skygrid-io/gridmesh/transport"
)

// testNode is one in-process grid member wired over the loopback network.
type testNode struct {
	addr       cluster.Address
	membership *cluster.Membership
	transport  *transport.Loopback
	service    *ListenerService
}

// newTestCluster builds n members that all know each other and share one
// loopback network.
func newTestCluster(t *testing.T, n int) []*testNode {
	t.Helper()

	network := transport.NewNetwork()
	addrs := make([]cluster.Address, n)
	for i := 0; i < n; i++ {
		addrs[i] = cluster.Address("node" + string(rune('a'+i)) + ":7800")
	}

	nodes := make([]*testNode, n)
	for i, addr := range addrs {
		membership := cluster.NewMembership(addr)
		for _, other := range addrs {
			if other != addr {
				membership.Add(other)
			}
		}

		keys, err := encoding.NewKeyCodec()
		require.NoError(t, err)

		lb := network.Join(addr)
		service := NewListenerService(Config{
			Membership:     membership,
			Ring:           cluster.NewRing(membership),
			Transport:      lb,
			Keys:           keys,
			RequestTimeout: time.Second,
		})

		nodes[i] = &testNode{
			addr:       addr,
			membership: membership,
			transport:  lb,
			service:    service,
		}
	}
	return nodes
}

// recordingEntryListener captures entry events for assertions.
type recordingEntryListener struct {
	mu     sync.Mutex
	events []EntryEvent
}

func (l *recordingEntryListener) record(e EntryEvent) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *recordingEntryListener) EntryAdded(e EntryEvent)   { l.record(e) }
func (l *recordingEntryListener) EntryRemoved(e EntryEvent) { l.record(e) }
func (l *recordingEntryListener) EntryUpdated(e EntryEvent) { l.record(e) }
func (l *recordingEntryListener) EntryEvicted(e EntryEvent) { l.record(e) }

func (l *recordingEntryListener) Events() []EntryEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]EntryEvent, len(l.events))
	copy(out, l.events)
	return out
}

// recordingItemListener captures item callbacks.
type recordingItemListener struct {
	mu      sync.Mutex
	added   []interface{}
	removed []interface{}
}

func (l *recordingItemListener) ItemAdded(item interface{}) {
	l.mu.Lock()
	l.added = append(l.added, item)
	l.mu.Unlock()
}

func (l *recordingItemListener) ItemRemoved(item interface{}) {
	l.mu.Lock()
	l.removed = append(l.removed, item)
	l.mu.Unlock()
}

func (l *recordingItemListener) Added() []interface{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]interface{}, len(l.added))
	copy(out, l.added)
	return out
}

// recordingMessageListener captures topic messages.
type recordingMessageListener struct {
	mu       sync.Mutex
	messages []interface{}
}

func (l *recordingMessageListener) OnMessage(message interface{}) {
	l.mu.Lock()
	l.messages = append(l.messages, message)
	l.mu.Unlock()
}

func (l *recordingMessageListener) Messages() []interface{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]interface{}, len(l.messages))
	copy(out, l.messages)
	return out
}
