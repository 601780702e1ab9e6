package grid

import (
	"bytes"
	"sync"
	"sync/atomic"
)

// ListenerItem is one locally-registered interest. The table owns items
// exclusively; callbacks are only referenced, never copied.
//
// LocalOnly items have their remote fan-out handled implicitly by this node's
// own storage partition, so they never trigger a remote registration and they
// never fire from a remote echo.
type ListenerItem struct {
	Name         string
	Key          interface{} // application key, nil means every entry
	EncodedKey   []byte      // canonical wire form of Key, nil when Key is nil
	Listener     interface{} // application callback, compared by identity
	IncludeValue bool
	InstanceType InstanceType
	LocalOnly    bool
}

// Listens reports whether this item is interested in an event on the given
// collection and encoded key. A keyless item listens to the whole collection.
func (li *ListenerItem) Listens(name string, encodedKey []byte) bool {
	if li.Name != name {
		return false
	}
	return li.EncodedKey == nil || bytes.Equal(li.EncodedKey, encodedKey)
}

// keyEquals reports exact key identity: nil matches only nil.
func keyEquals(a, b []byte) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return bytes.Equal(a, b)
}

// ListenerTable is the node-wide container of listener items. Reads take an
// immutable snapshot (event dispatch and resync iterate concurrently with
// writers); writes copy the backing slice under a mutex, so readers never see
// a torn list and writers never block readers.
type ListenerTable struct {
	mu    sync.Mutex
	items atomic.Pointer[[]*ListenerItem]
}

// NewListenerTable creates an empty table.
func NewListenerTable() *ListenerTable {
	t := &ListenerTable{}
	empty := make([]*ListenerItem, 0)
	t.items.Store(&empty)
	return t
}

// Snapshot returns the current item list. The returned slice is immutable.
func (t *ListenerTable) Snapshot() []*ListenerItem {
	return *t.items.Load()
}

// Size returns the current item count.
func (t *ListenerTable) Size() int {
	return len(t.Snapshot())
}

// Add appends an item.
func (t *ListenerTable) Add(item *ListenerItem) {
	t.mu.Lock()
	defer t.mu.Unlock()

	old := *t.items.Load()
	next := make([]*ListenerItem, len(old), len(old)+1)
	copy(next, old)
	next = append(next, item)
	t.items.Store(&next)
}

// RemoveMatching removes every item equal on callback identity, collection
// name, and exact key (nil matches only nil). Returns the number removed.
func (t *ListenerTable) RemoveMatching(name string, listener interface{}, encodedKey []byte) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	old := *t.items.Load()
	next := make([]*ListenerItem, 0, len(old))
	removed := 0
	for _, item := range old {
		if item.Listener == listener && item.Name == name && keyEquals(item.EncodedKey, encodedKey) {
			removed++
			continue
		}
		next = append(next, item)
	}
	if removed > 0 {
		t.items.Store(&next)
	}
	return removed
}

// HasInterest reports whether any item remains with the exact (name, key)
// pair. Drives the de-registration decision after removal.
func (t *ListenerTable) HasInterest(name string, encodedKey []byte) bool {
	for _, item := range t.Snapshot() {
		if item.Name == name && keyEquals(item.EncodedKey, encodedKey) {
			return true
		}
	}
	return false
}

// FindMatching returns the items interested in an event on (name, key).
func (t *ListenerTable) FindMatching(name string, encodedKey []byte) []*ListenerItem {
	var matches []*ListenerItem
	for _, item := range t.Snapshot() {
		if item.Listens(name, encodedKey) {
			matches = append(matches, item)
		}
	}
	return matches
}
