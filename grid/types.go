// Package grid implements the listener-registration and event-dispatch core
// of the data grid: local listener bookkeeping, cluster-wide registration
// routing with dedup, membership resync, and inbound event dispatch.
package grid

import (
	"github.com/skygrid-io/gridmesh/cluster"
)

// InstanceType identifies the kind of distributed object a listener observes.
type InstanceType int

const (
	InstanceMap InstanceType = iota + 1
	InstanceMultiMap
	InstanceSet
	InstanceList
	InstanceQueue
	InstanceTopic
)

func (t InstanceType) String() string {
	switch t {
	case InstanceMap:
		return "map"
	case InstanceMultiMap:
		return "multimap"
	case InstanceSet:
		return "set"
	case InstanceList:
		return "list"
	case InstanceQueue:
		return "queue"
	case InstanceTopic:
		return "topic"
	default:
		return "unknown"
	}
}

// EventType is the kind of change an event notification carries. The numeric
// values are the wire codes.
type EventType int64

const (
	EventAdded   EventType = 1
	EventRemoved EventType = 2
	EventUpdated EventType = 3
	EventEvicted EventType = 4
)

func (t EventType) String() string {
	switch t {
	case EventAdded:
		return "ADDED"
	case EventRemoved:
		return "REMOVED"
	case EventUpdated:
		return "UPDATED"
	case EventEvicted:
		return "EVICTED"
	default:
		return "UNKNOWN"
	}
}

// EntryEvent is delivered to EntryListeners on map and multimap changes.
// Value and OldValue are nil when the listener declined values.
type EntryEvent struct {
	Name     string
	Type     EventType
	Key      interface{}
	Value    interface{}
	OldValue interface{}
	Member   cluster.Address
}

// EntryListener observes map and multimap entries.
type EntryListener interface {
	EntryAdded(event EntryEvent)
	EntryRemoved(event EntryEvent)
	EntryUpdated(event EntryEvent)
	EntryEvicted(event EntryEvent)
}

// ItemListener observes set, list, and queue items. Sets and lists identify
// items by key; queues identify items by value.
type ItemListener interface {
	ItemAdded(item interface{})
	ItemRemoved(item interface{})
}

// MessageListener observes topic publications.
type MessageListener interface {
	OnMessage(message interface{})
}

// EventNotification is one inbound or locally-fired change notification.
// Key/Value/OldValue are the decoded application values; EncodedKey is the
// canonical wire form the listener table matches against.
type EventNotification struct {
	Name         string
	Type         EventType
	Key          interface{}
	EncodedKey   []byte
	Value        interface{}
	OldValue     interface{}
	Origin       cluster.Address
	FiredLocally bool
}
