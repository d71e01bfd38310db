package trace

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linebus/line-core/pkg/transport"
)

func TestEncodeDataRoundTrips(t *testing.T) {
	raw, err := EncodeData(0, true, 0x0305, 2, []byte{0xAA, 0xBB})
	require.NoError(t, err)

	ev, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, 0, ev.Channel)
	assert.True(t, ev.Responding)
	assert.Equal(t, uint16(0x0305), ev.Request)
	assert.Equal(t, uint8(2), ev.Size)
	assert.Equal(t, []byte{0xAA, 0xBB}, ev.Payload)
	assert.Empty(t, ev.Kind)
}

func TestEncodeErrorRoundTrips(t *testing.T) {
	raw, err := EncodeError(1, false, 0x0000, transport.HeaderInvalid)
	require.NoError(t, err)

	ev, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "HeaderInvalid", ev.Kind)
	assert.False(t, ev.Responding)
}

func TestEncodeStampRoundTrips(t *testing.T) {
	at := time.Now().UnixNano()
	raw, err := EncodeStamp(Stamp{AtUnixNano: at, Event: NewDataEvent(0, true, 0x0305, 2, []byte{0xAA, 0xBB})})
	require.NoError(t, err)

	s, err := DecodeStamp(raw)
	require.NoError(t, err)
	assert.Equal(t, at, s.AtUnixNano)
	assert.Equal(t, uint16(0x0305), s.Event.Request)
}
