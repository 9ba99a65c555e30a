package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lustre-net/lnetgo/pkg/ids"
)

func TestHeader_RoundTrip_Put(t *testing.T) {
	h := &Header{
		Type:          TypePut,
		PayloadLength: 128,
		DestNID:       ids.NID(0x1),
		SrcNID:        ids.NID(0x1),
		DestPID:       ids.PID(12),
		SrcPID:        ids.PID(12),
		Put: PutUnion{
			AckWMD:    ids.Handle{Interface: 7, Object: 9},
			MatchBits: 0x42,
			HdrData:   0xdeadbeef,
			PortalIdx: 4,
			Offset:    0,
		},
	}

	buf, err := h.Encode()
	require.NoError(t, err)
	assert.Len(t, buf, HeaderSize)

	got, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestHeader_RoundTrip_Get(t *testing.T) {
	h := &Header{
		Type:    TypeGet,
		DestNID: ids.NID(2),
		SrcNID:  ids.NID(3),
		Get: GetUnion{
			ReturnWMD:  ids.Handle{Interface: 1, Object: 2},
			MatchBits:  0x99,
			PortalIdx:  4,
			SrcOffset:  0,
			SinkLength: 64,
		},
	}
	buf, err := h.Encode()
	require.NoError(t, err)
	got, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestHeader_AckGetMustHaveZeroPayload(t *testing.T) {
	h := &Header{Type: TypeAck, PayloadLength: 10}
	_, err := h.Encode()
	assert.Error(t, err)

	h2 := &Header{Type: TypeGet, PayloadLength: 1}
	_, err = h2.Encode()
	assert.Error(t, err)
}

func TestDecode_ShortBuffer(t *testing.T) {
	_, err := Decode(make([]byte, 10))
	assert.Error(t, err)
}

func TestDecode_UnknownType(t *testing.T) {
	buf := make([]byte, HeaderSize)
	buf[0] = 0xff
	_, err := Decode(buf)
	assert.Error(t, err)
}

func TestHeader_LittleEndianOnWire(t *testing.T) {
	h := &Header{Type: TypePut, DestNID: ids.NID(0x0102030405060708)}
	buf, err := h.Encode()
	require.NoError(t, err)
	// Little-endian: least significant byte first.
	assert.Equal(t, byte(0x08), buf[8])
	assert.Equal(t, byte(0x01), buf[15])
}
