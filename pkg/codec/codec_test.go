package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestCodeMasksBackToID(t *testing.T) {
	for id := uint16(0); id < 0x4000; id += 37 {
		got := RequestCode(id)
		require.Equal(t, id, got&0x3FFF, "id=0x%04x", id)
	}
}

func TestRequestCodeParityRoundTrips(t *testing.T) {
	for id := uint16(0); id < 0x4000; id += 23 {
		word := RequestCode(id)
		assert.True(t, ValidParity(word), "id=0x%04x word=0x%04x", id, word)
	}
}

func TestValidParityRejectsSingleBitFlips(t *testing.T) {
	word := RequestCode(0x0123)
	for bit := uint(0); bit < 16; bit++ {
		flipped := word ^ (1 << bit)
		if flipped == word {
			continue
		}
		assert.False(t, ValidParity(flipped), "flipped bit %d should break parity", bit)
	}
}

func TestP2ExcludesBits12And13(t *testing.T) {
	// Toggling bit 12 or bit 13 alone must not change P2 (bit 14 of the word).
	base := RequestCode(0x0000)
	withBit12 := RequestCode(0x1000)
	withBit13 := RequestCode(0x2000)

	p2 := func(word uint16) uint16 { return (word >> 14) & 1 }
	assert.Equal(t, p2(base), p2(withBit12))
	assert.Equal(t, p2(base), p2(withBit13))
}

func TestChecksumKnownVectors(t *testing.T) {
	cases := []struct {
		data []byte
		want uint8
	}{
		{nil, 0xA3},
		{[]byte{0, 0, 0, 0}, byte(4 + 0xA3)},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Checksum(c.data))
	}
}

func TestChecksumWraps(t *testing.T) {
	data := make([]byte, 10)
	for i := range data {
		data[i] = 0xFF
	}
	want := uint8(len(data))
	for _, b := range data {
		want += b
	}
	want += CHECKSUM_OFFSET
	assert.Equal(t, want, Checksum(data))
}

func TestUnicastID(t *testing.T) {
	assert.Equal(t, uint16(0x0305), UnicastID(0x0300, 0x5))
	assert.Equal(t, uint16(0x0300), UnicastID(0x0300, 0x0))
	// address is masked to 4 bits
	assert.Equal(t, uint16(0x030F), UnicastID(0x0300, 0xFF))
}
