package encoding

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// keyCacheSize bounds the decoded-key cache. Event dispatch decodes the same
// hot keys over and over; a small LRU avoids re-running msgpack on every packet.
const keyCacheSize = 4096

// KeyCodec converts application key values to and from their canonical wire
// representation. The zero of a collection key is "no key" and is represented
// as a nil byte slice everywhere, never as an encoded nil.
type KeyCodec struct {
	decoded *lru.Cache[string, interface{}]
}

// NewKeyCodec creates a key codec with a bounded decode cache.
func NewKeyCodec() (*KeyCodec, error) {
	cache, err := lru.New[string, interface{}](keyCacheSize)
	if err != nil {
		return nil, err
	}
	return &KeyCodec{decoded: cache}, nil
}

// EncodeKey converts a key value to canonical bytes. A nil key yields nil bytes.
func (kc *KeyCodec) EncodeKey(key interface{}) ([]byte, error) {
	if key == nil {
		return nil, nil
	}
	return Marshal(key)
}

// DecodeKey converts canonical bytes back to a key value. Nil or empty bytes
// yield a nil key. Cached values are shared between callers and must be
// treated as read-only.
func (kc *KeyCodec) DecodeKey(data []byte) (interface{}, error) {
	if len(data) == 0 {
		return nil, nil
	}

	if v, ok := kc.decoded.Get(string(data)); ok {
		return v, nil
	}

	var v interface{}
	if err := Unmarshal(data, &v); err != nil {
		return nil, err
	}

	kc.decoded.Add(string(data), v)
	return v, nil
}
