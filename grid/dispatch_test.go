package grid

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skygrid-io/gridmesh/cluster"
	"github.com/skygrid-io/gridmesh/protocol"
)

func TestPublishEventDeliversToRemoteListener(t *testing.T) {
	nodes := newTestCluster(t, 2)
	a, b := nodes[0], nodes[1]

	listener := &recordingEntryListener{}
	require.NoError(t, b.service.AddListener("orders", listener, nil, true, InstanceMap))

	require.NoError(t, a.service.PublishEvent("orders", EventAdded, "order-1", "pending", nil))

	events := listener.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "orders", events[0].Name)
	assert.Equal(t, EventAdded, events[0].Type)
	assert.Equal(t, "order-1", events[0].Key)
	assert.Equal(t, "pending", events[0].Value)
	assert.Equal(t, a.addr, events[0].Member)
}

func TestPublishEventStripsValueForDecliningListener(t *testing.T) {
	nodes := newTestCluster(t, 2)
	a, b := nodes[0], nodes[1]

	listener := &recordingEntryListener{}
	require.NoError(t, b.service.AddListener("orders", listener, nil, false, InstanceMap))

	require.NoError(t, a.service.PublishEvent("orders", EventUpdated, "order-1", "shipped", "pending"))

	events := listener.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "order-1", events[0].Key)
	assert.Nil(t, events[0].Value)
	assert.Nil(t, events[0].OldValue)
}

func TestPublishEventKeyedListenerFiltersOtherKeys(t *testing.T) {
	nodes := newTestCluster(t, 2)
	b := nodes[1]

	listener := &recordingEntryListener{}
	require.NoError(t, b.service.AddListener("orders", listener, "order-1", true, InstanceMap))

	// Keyed interests live at the key owner, and so does event publication:
	// mutations are applied by the owning member.
	require.NoError(t, ownerOf(t, nodes, "orders", "order-2").service.PublishEvent("orders", EventAdded, "order-2", "x", nil))
	assert.Empty(t, listener.Events())

	require.NoError(t, ownerOf(t, nodes, "orders", "order-1").service.PublishEvent("orders", EventAdded, "order-1", "y", nil))
	require.Len(t, listener.Events(), 1)
}

func TestPublishEventOnePacketPerMemberWithOverlappingInterests(t *testing.T) {
	nodes := newTestCluster(t, 2)
	a, b := nodes[0], nodes[1]

	// A key owned by the publishing member, so both the keyless and the
	// keyed interest land in its registry for the same origin.
	var key string
	for i := 0; i < 64; i++ {
		candidate := "order-" + strconv.Itoa(i)
		if ownerOf(t, nodes, "orders", candidate) == a {
			key = candidate
			break
		}
	}
	require.NotEmpty(t, key)

	keyless := &recordingEntryListener{}
	keyed := &recordingEntryListener{}
	require.NoError(t, b.service.AddListener("orders", keyless, nil, true, InstanceMap))
	require.NoError(t, b.service.AddListener("orders", keyed, key, true, InstanceMap))
	a.transport.ResetSent()

	require.NoError(t, a.service.PublishEvent("orders", EventAdded, key, "v", nil))

	// One EVENT on the wire, one delivery per local item.
	assert.Len(t, a.transport.SentTo(b.addr, protocol.OpEvent), 1)
	require.Len(t, keyless.Events(), 1)
	require.Len(t, keyed.Events(), 1)
	assert.Equal(t, "v", keyless.Events()[0].Value)
}

func TestPublishEventMergedTargetKeepsValueDemand(t *testing.T) {
	nodes := newTestCluster(t, 2)
	a, b := nodes[0], nodes[1]

	var key string
	for i := 0; i < 64; i++ {
		candidate := "order-" + strconv.Itoa(i)
		if ownerOf(t, nodes, "orders", candidate) == a {
			key = candidate
			break
		}
	}
	require.NotEmpty(t, key)

	// The keyless interest declines values; the keyed one wants them. The
	// merged packet must still carry the payload.
	declining := &recordingEntryListener{}
	wanting := &recordingEntryListener{}
	require.NoError(t, b.service.AddListener("orders", declining, nil, false, InstanceMap))
	require.NoError(t, b.service.AddListener("orders", wanting, key, true, InstanceMap))

	require.NoError(t, a.service.PublishEvent("orders", EventAdded, key, "v", nil))

	require.Len(t, wanting.Events(), 1)
	assert.Equal(t, "v", wanting.Events()[0].Value)
	require.Len(t, declining.Events(), 1)
	assert.Nil(t, declining.Events()[0].Value)
}

// ownerOf returns the test node owning a key's partition.
func ownerOf(t *testing.T, nodes []*testNode, name string, key interface{}) *testNode {
	t.Helper()

	encodedKey, err := nodes[0].service.keys.EncodeKey(key)
	require.NoError(t, err)
	owner := nodes[0].service.ring.ResolveOwner(name, encodedKey)
	for _, n := range nodes {
		if n.addr == owner {
			return n
		}
	}
	t.Fatalf("no test node for owner %s", owner)
	return nil
}

func TestPublishEventSkipsUninterestedCollections(t *testing.T) {
	nodes := newTestCluster(t, 2)
	a, b := nodes[0], nodes[1]

	listener := &recordingEntryListener{}
	require.NoError(t, b.service.AddListener("orders", listener, nil, true, InstanceMap))

	require.NoError(t, a.service.PublishEvent("users", EventAdded, "u1", "alice", nil))
	assert.Empty(t, listener.Events())
}

func TestPublishEventDispatchesLocallyFirst(t *testing.T) {
	nodes := newTestCluster(t, 2)
	a := nodes[0]

	listener := &recordingEntryListener{}
	require.NoError(t, a.service.AddListener("orders", listener, nil, true, InstanceMap))

	require.NoError(t, a.service.PublishEvent("orders", EventRemoved, "order-1", nil, "pending"))

	events := listener.Events()
	require.Len(t, events, 1)
	assert.Equal(t, EventRemoved, events[0].Type)
	assert.Equal(t, "pending", events[0].OldValue)
}

func TestDispatchSuppressesRemoteEchoForLocalOnlyItems(t *testing.T) {
	nodes := newTestCluster(t, 1)
	a := nodes[0]

	listener := &recordingEntryListener{}
	require.NoError(t, a.service.AddLocalListener("cache", listener, InstanceMap))

	// A remote echo of the same mutation must not reach a local-only item.
	a.service.DispatchEvent(&EventNotification{
		Name:         "cache",
		Type:         EventAdded,
		Key:          "k",
		Origin:       cluster.Address("nodeb:7800"),
		FiredLocally: false,
	})
	assert.Empty(t, listener.Events())

	a.service.DispatchEvent(&EventNotification{
		Name:         "cache",
		Type:         EventAdded,
		Key:          "k",
		Origin:       a.addr,
		FiredLocally: true,
	})
	require.Len(t, listener.Events(), 1)
}

func TestDispatchItemListenerBySetKey(t *testing.T) {
	nodes := newTestCluster(t, 2)
	a, b := nodes[0], nodes[1]

	listener := &recordingItemListener{}
	require.NoError(t, b.service.AddListener("tags", listener, nil, true, InstanceSet))

	require.NoError(t, a.service.PublishEvent("tags", EventAdded, "golang", nil, nil))

	added := listener.Added()
	require.Len(t, added, 1)
	assert.Equal(t, "golang", added[0])
}

func TestDispatchItemListenerByQueueValue(t *testing.T) {
	nodes := newTestCluster(t, 2)
	a, b := nodes[0], nodes[1]

	listener := &recordingItemListener{}
	require.NoError(t, b.service.AddListener("jobs", listener, nil, true, InstanceQueue))

	require.NoError(t, a.service.PublishEvent("jobs", EventAdded, "job-1", "payload", nil))

	added := listener.Added()
	require.Len(t, added, 1)
	assert.Equal(t, "payload", added[0])
}

func TestDispatchMessageListenerOnTopic(t *testing.T) {
	nodes := newTestCluster(t, 2)
	a, b := nodes[0], nodes[1]

	listener := &recordingMessageListener{}
	require.NoError(t, b.service.AddListener("alerts", listener, nil, true, InstanceTopic))

	require.NoError(t, a.service.PublishEvent("alerts", EventAdded, nil, "disk full", nil))

	messages := listener.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "disk full", messages[0])
}

func TestDispatchDropsEventTypesTheShapeCannotServe(t *testing.T) {
	nodes := newTestCluster(t, 2)
	a, b := nodes[0], nodes[1]

	listener := &recordingItemListener{}
	require.NoError(t, b.service.AddListener("tags", listener, nil, true, InstanceSet))

	// Sets have no notion of an update.
	require.NoError(t, a.service.PublishEvent("tags", EventUpdated, "golang", nil, nil))
	assert.Empty(t, listener.Added())
}

func TestDispatchDropsUnknownEventType(t *testing.T) {
	nodes := newTestCluster(t, 1)
	a := nodes[0]

	listener := &recordingEntryListener{}
	require.NoError(t, a.service.AddListener("orders", listener, nil, true, InstanceMap))

	a.service.DispatchEvent(&EventNotification{
		Name:         "orders",
		Type:         EventType(99),
		Key:          "k",
		Origin:       a.addr,
		FiredLocally: true,
	})
	assert.Empty(t, listener.Events())
}

func TestDispatchObserverSeesEveryNotification(t *testing.T) {
	network := newTestCluster(t, 1)
	a := network[0]

	var seen []*EventNotification
	a.service.onDispatch = func(n *EventNotification) {
		seen = append(seen, n)
	}

	require.NoError(t, a.service.PublishEvent("orders", EventAdded, "k", "v", nil))
	require.Len(t, seen, 1)
	assert.Equal(t, "orders", seen[0].Name)
	assert.True(t, seen[0].FiredLocally)
}
