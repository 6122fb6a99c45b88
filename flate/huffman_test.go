package flate

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanonicalCodes(t *testing.T) {
	// The worked example of RFC 1951 section 3.2.2.
	lengths := []uint32{3, 3, 3, 3, 3, 2, 4, 4}
	tree, err := makeTreeFromLengths(lengths, maxBitsLitLen)
	require.NoError(t, err)

	want := []uint32{2, 3, 4, 5, 6, 0, 14, 15}
	require.Equal(t, want, tree.codes)
}

func TestCanonicalOrdering(t *testing.T) {
	vectors := [][]uint32{
		{3, 3, 3, 3, 3, 2, 4, 4},
		{2, 2, 2, 2},
		{1, 2, 3, 3},
		{4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4},
	}
	for _, lengths := range vectors {
		tree, err := makeTreeFromLengths(lengths, maxBitsLitLen)
		require.NoError(t, err)

		maxLen := uint32(0)
		for _, l := range lengths {
			if l > maxLen {
				maxLen = l
			}
		}
		// Left-padded to max length, a shorter code must sort before a
		// longer one, and all codes must be pairwise distinct.
		padded := make(map[uint32]bool)
		for s1 := range lengths {
			p1 := tree.codes[s1] << (maxLen - lengths[s1])
			require.False(t, padded[p1], "duplicate code for symbol %d", s1)
			padded[p1] = true
			for s2 := range lengths {
				if lengths[s1] < lengths[s2] {
					p2 := tree.codes[s2] << (maxLen - lengths[s2])
					require.Less(t, p1, p2)
				}
			}
		}
	}
}

func TestLengthsFromFrequenciesKraft(t *testing.T) {
	cases := []struct {
		freqs   []uint32
		maxBits int
	}{
		{[]uint32{5, 5, 5, 5}, 15},
		{[]uint32{1, 2, 4, 8, 16, 32, 64, 128}, 15},
		{[]uint32{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1}, 7},
		{[]uint32{1000, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1}, 7},
		{[]uint32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19}, 7},
		{[]uint32{0, 0, 7, 0, 0, 3, 0}, 15},
		{[]uint32{1, 100000}, 15},
	}
	for _, c := range cases {
		lengths := lengthsFromFrequencies(c.freqs, c.maxBits)

		kraft := uint64(0)
		nonzero := 0
		for i, l := range lengths {
			require.LessOrEqual(t, l, uint32(c.maxBits))
			if c.freqs[i] > 0 {
				require.NotZero(t, l, "used symbol %d got length 0", i)
			}
			if l > 0 {
				nonzero++
				kraft += 1 << (uint32(c.maxBits) - l)
			}
		}
		require.GreaterOrEqual(t, nonzero, 2)
		require.LessOrEqual(t, kraft, uint64(1)<<c.maxBits)

		// The code must be buildable and able to decode every used
		// symbol back.
		tree, err := makeTreeFromLengths(lengths, c.maxBits)
		require.NoError(t, err)
		for sym, l := range lengths {
			if l == 0 {
				continue
			}
			w := &bitWriter{}
			w.writeBitsRev(tree.codes[sym], int(l))
			r := &bitReader{data: w.data}
			got, err := tree.decodeSymbol(r)
			require.NoError(t, err)
			require.Equal(t, uint32(sym), got)
		}
	}
}

func TestLengthsFromFrequenciesDegenerate(t *testing.T) {
	// All-zero frequencies: the first two symbols get length 1.
	lengths := lengthsFromFrequencies(make([]uint32, 19), maxBitsCodeLength)
	require.Equal(t, uint32(1), lengths[0])
	require.Equal(t, uint32(1), lengths[1])
	for _, l := range lengths[2:] {
		require.Zero(t, l)
	}

	// A single live symbol still yields two length-1 codes.
	freqs := make([]uint32, 30)
	freqs[7] = 123
	lengths = lengthsFromFrequencies(freqs, maxBitsLitLen)
	require.Equal(t, uint32(1), lengths[7])
	require.Equal(t, uint32(1), lengths[0])

	freqs = make([]uint32, 30)
	freqs[0] = 9
	lengths = lengthsFromFrequencies(freqs, maxBitsLitLen)
	require.Equal(t, uint32(1), lengths[0])
	require.Equal(t, uint32(1), lengths[1])
}

func TestDecodeSymbolInvalid(t *testing.T) {
	// An incomplete code: one symbol of length 2 leaves dead branches.
	lengths := []uint32{2, 0, 0, 0}
	tree, err := makeTreeFromLengths(lengths, maxBitsLitLen)
	require.NoError(t, err)

	r := &bitReader{data: []byte{0xff}}
	_, err = tree.decodeSymbol(r)
	require.Error(t, err)
}

func TestFixedTrees(t *testing.T) {
	lit := fixedLitLenTree()
	require.Equal(t, uint32(8), lit.lengths[0])
	require.Equal(t, uint32(9), lit.lengths[144])
	require.Equal(t, uint32(7), lit.lengths[256])
	require.Equal(t, uint32(8), lit.lengths[280])
	// RFC 1951 3.2.6: literal 0 is 00110000, the end code is 0000000.
	require.Equal(t, uint32(0x30), lit.codes[0])
	require.Equal(t, uint32(0), lit.codes[256])

	dist := fixedDistTree()
	for i := 0; i < numDistSymbols; i++ {
		require.Equal(t, uint32(5), dist.lengths[i])
		require.Equal(t, uint32(i), dist.codes[i])
	}
}
