package protocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacketRoundTrip(t *testing.T) {
	pkt := Obtain()
	pkt.Op = OpAddListener
	pkt.Name = "orders"
	pkt.Key = []byte("k1")
	pkt.Flag = 1
	pkt.Origin = "nodea:7800"

	data, err := Encode(pkt)
	require.NoError(t, err)
	Release(pkt)

	decoded, err := Decode(data)
	require.NoError(t, err)
	defer Release(decoded)

	assert.Equal(t, OpAddListener, decoded.Op)
	assert.Equal(t, "orders", decoded.Name)
	assert.Equal(t, []byte("k1"), decoded.Key)
	assert.Equal(t, int64(1), decoded.Flag)
	assert.Equal(t, "nodea:7800", decoded.Origin)
}

func TestPacketLargeValueCompression(t *testing.T) {
	value := bytes.Repeat([]byte("abcdefgh"), 1024)

	pkt := Obtain()
	pkt.Op = OpEvent
	pkt.Name = "orders"
	pkt.Value = value
	pkt.Flag = 1

	data, err := Encode(pkt)
	require.NoError(t, err)
	Release(pkt)

	// Repetitive payload compresses well below the raw size.
	assert.Less(t, len(data), len(value))

	decoded, err := Decode(data)
	require.NoError(t, err)
	defer Release(decoded)

	assert.False(t, decoded.Compressed)
	assert.Equal(t, value, decoded.Value)
}

func TestPacketSmallValueStaysUncompressed(t *testing.T) {
	pkt := Obtain()
	pkt.Op = OpEvent
	pkt.Name = "orders"
	pkt.Value = []byte("small")

	_, err := Encode(pkt)
	require.NoError(t, err)
	assert.False(t, pkt.Compressed)
	Release(pkt)
}

func TestPacketPoolReturnsZeroedInstances(t *testing.T) {
	pkt := Obtain()
	pkt.Op = OpEvent
	pkt.Name = "orders"
	pkt.Key = []byte("k1")
	Release(pkt)

	fresh := Obtain()
	defer Release(fresh)
	assert.Equal(t, Op(0), fresh.Op)
	assert.Empty(t, fresh.Name)
	assert.Nil(t, fresh.Key)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte{0xc1, 0xff, 0x00})
	require.Error(t, err)
}

func TestOpStrings(t *testing.T) {
	assert.Equal(t, "ADD_LISTENER", OpAddListener.String())
	assert.Equal(t, "REMOVE_LISTENER", OpRemoveListener.String())
	assert.Equal(t, "ADD_LISTENER_NO_RESPONSE", OpAddListenerNoResponse.String())
	assert.Equal(t, "EVENT", OpEvent.String())
	assert.Equal(t, "ACK", OpAck.String())
	assert.Equal(t, "UNKNOWN", Op(42).String())
}
