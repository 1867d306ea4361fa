package shm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{
		Magic:           Magic,
		LayoutVersion:   LayoutVersion,
		Kind:            KindRing,
		TypeFingerprint: 0xdeadbeefcafef00d,
		Capacity:        64,
		SlotSize:        128,
		CreatorPID:      1234,
		CreationNs:      9876543210,
	}

	enc := h.Encode()
	got, err := DecodeHeader(enc[:])
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestDecodeHeaderShortBuffer(t *testing.T) {
	_, err := DecodeHeader(make([]byte, HeaderSize-1))
	assert.Error(t, err)
}

func TestRoundSlotSize(t *testing.T) {
	cases := map[uint64]uint64{
		0:   0,
		1:   64,
		63:  64,
		64:  64,
		65:  128,
		128: 128,
	}
	for in, want := range cases {
		assert.Equal(t, want, RoundSlotSize(in), "RoundSlotSize(%d)", in)
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "ring", KindRing.String())
	assert.Equal(t, "unknown", Kind(99).String())
}
