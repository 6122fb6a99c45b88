package flate

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBitWriterReaderRoundTrip(t *testing.T) {
	w := &bitWriter{}
	w.writeBits(0x5, 3)
	w.writeBits(0x1ff, 9)
	w.writeBit(1)
	w.writeBitsRev(0x6, 3) // written as 1,1,0
	w.alignByte()
	w.writeBits(0xabcd, 16)

	r := &bitReader{data: w.data}
	v, err := r.readBits(3)
	require.NoError(t, err)
	require.Equal(t, uint32(0x5), v)

	p, err := r.peekBits(9)
	require.NoError(t, err)
	v, err = r.readBits(9)
	require.NoError(t, err)
	require.Equal(t, p, v)
	require.Equal(t, uint32(0x1ff), v)

	v, err = r.readBit()
	require.NoError(t, err)
	require.Equal(t, uint32(1), v)

	for _, want := range []uint32{1, 1, 0} {
		v, err = r.readBit()
		require.NoError(t, err)
		require.Equal(t, want, v)
	}

	r.alignByte()
	v, err = r.readBits(16)
	require.NoError(t, err)
	require.Equal(t, uint32(0xabcd), v)

	_, err = r.readBit()
	require.Error(t, err)
}

func TestBitWriterZeroPadsTail(t *testing.T) {
	w := &bitWriter{}
	w.writeBits(0x1, 3)
	require.Equal(t, []byte{0x01}, w.data)
	w.alignByte()
	w.writeBit(1)
	require.Equal(t, []byte{0x01, 0x01}, w.data)
}
