package encoding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyCodecNilKey(t *testing.T) {
	kc, err := NewKeyCodec()
	require.NoError(t, err)

	data, err := kc.EncodeKey(nil)
	require.NoError(t, err)
	assert.Nil(t, data)

	key, err := kc.DecodeKey(nil)
	require.NoError(t, err)
	assert.Nil(t, key)
}

func TestKeyCodecRoundTrip(t *testing.T) {
	kc, err := NewKeyCodec()
	require.NoError(t, err)

	data, err := kc.EncodeKey("order-1")
	require.NoError(t, err)
	require.NotNil(t, data)

	key, err := kc.DecodeKey(data)
	require.NoError(t, err)
	assert.Equal(t, "order-1", key)
}

func TestKeyCodecCanonicalBytes(t *testing.T) {
	kc, err := NewKeyCodec()
	require.NoError(t, err)

	first, err := kc.EncodeKey("order-1")
	require.NoError(t, err)
	second, err := kc.EncodeKey("order-1")
	require.NoError(t, err)

	// Same key always encodes to the same bytes; the listener table compares
	// keys byte-wise.
	assert.Equal(t, first, second)
}

func TestKeyCodecIntegerKeysCompareEqual(t *testing.T) {
	kc, err := NewKeyCodec()
	require.NoError(t, err)

	data, err := kc.EncodeKey(int64(42))
	require.NoError(t, err)

	decoded, err := kc.DecodeKey(data)
	require.NoError(t, err)

	// A decoded integer key must re-encode to the same canonical bytes.
	reencoded, err := kc.EncodeKey(decoded)
	require.NoError(t, err)
	assert.Equal(t, data, reencoded)
}

func TestKeyCodecDecodeCached(t *testing.T) {
	kc, err := NewKeyCodec()
	require.NoError(t, err)

	data, err := kc.EncodeKey("order-1")
	require.NoError(t, err)

	first, err := kc.DecodeKey(data)
	require.NoError(t, err)
	second, err := kc.DecodeKey(data)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
